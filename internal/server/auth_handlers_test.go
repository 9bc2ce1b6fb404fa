package server

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup(t *testing.T) {
	_, app := newTestServer(t)

	t.Run("Creates account with signup grant", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/signup", "", fiber.Map{
			"name":     "Alice Underwriter",
			"email":    "alice@example.com",
			"password": testPassword,
			"company":  "Acme Mutual",
		})
		require.Equal(t, http.StatusCreated, resp.status, "body: %v", resp.body)

		assert.NotEmpty(t, resp.body["token"])
		user := resp.body["user"].(map[string]interface{})
		assert.Equal(t, "Alice Underwriter", user["name"])
		assert.Equal(t, "alice@example.com", user["email"])
		assert.Equal(t, float64(100), user["token_balance"])
		assert.Nil(t, user["password"], "password hash must never be serialized")
	})

	t.Run("Duplicate email rejected", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/signup", "", fiber.Map{
			"name":     "Alice Again",
			"email":    "alice@example.com",
			"password": testPassword,
		})
		assert.Equal(t, http.StatusBadRequest, resp.status)
	})

	t.Run("Weak password rejected", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/signup", "", fiber.Map{
			"name":     "Bob Broker",
			"email":    "bob@example.com",
			"password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, resp.status)
	})

	t.Run("Admin role is not self-assignable", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/signup", "", fiber.Map{
			"name":     "Eve Escalator",
			"email":    "eve@example.com",
			"password": testPassword,
			"role":     "ADMIN",
		})
		require.Equal(t, http.StatusCreated, resp.status)
		user := resp.body["user"].(map[string]interface{})
		assert.NotEqual(t, "ADMIN", user["role"])
	})
}

func TestLogin(t *testing.T) {
	_, app := newTestServer(t)
	signupUser(t, app, "Carol Claims", "carol@example.com")

	t.Run("Valid credentials", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/login", "", fiber.Map{
			"email":    "carol@example.com",
			"password": testPassword,
		})
		require.Equal(t, http.StatusOK, resp.status)
		assert.NotEmpty(t, resp.body["token"])
	})

	t.Run("Email is case-insensitive", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/login", "", fiber.Map{
			"email":    "CAROL@Example.com",
			"password": testPassword,
		})
		assert.Equal(t, http.StatusOK, resp.status)
	})

	t.Run("Wrong password", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/login", "", fiber.Map{
			"email":    "carol@example.com",
			"password": "WrongPass12!@",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.status)
	})

	t.Run("Unknown email", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/login", "", fiber.Map{
			"email":    "nobody@example.com",
			"password": testPassword,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.status)
	})
}

func TestRefreshRotatesToken(t *testing.T) {
	_, app := newTestServer(t)
	token, _ := signupUser(t, app, "Dave Direct", "dave@example.com")

	resp := doJSON(t, app, http.MethodPost, "/api/auth/refresh", token, nil)
	require.Equal(t, http.StatusOK, resp.status)
	fresh, _ := resp.body["token"].(string)
	require.NotEmpty(t, fresh)
	assert.NotEqual(t, token, fresh)

	// The presented token is revoked; only the rotated one keeps working.
	resp = doJSON(t, app, http.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = doJSON(t, app, http.MethodGet, "/api/users/me", fresh, nil)
	assert.Equal(t, http.StatusOK, resp.status)
}

func TestLogoutRevokesToken(t *testing.T) {
	_, app := newTestServer(t)
	token, _ := signupUser(t, app, "Erin Exit", "erin@example.com")

	resp := doJSON(t, app, http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, resp.status)

	resp = doJSON(t, app, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.status)

	resp = doJSON(t, app, http.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	_, app := newTestServer(t)

	for _, path := range []string{"/api/users/me", "/api/conversations", "/api/notifications"} {
		resp := doJSON(t, app, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.status, path)
	}

	resp := doJSON(t, app, http.MethodGet, "/api/users/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
}

func TestIssueWSTicket(t *testing.T) {
	s, app := newTestServer(t)
	token, userID := signupUser(t, app, "Frank Feed", "frank@example.com")

	resp := doJSON(t, app, http.MethodPost, "/api/ws/ticket", token, nil)
	require.Equal(t, http.StatusOK, resp.status)

	ticket, _ := resp.body["ticket"].(string)
	require.NotEmpty(t, ticket)
	assert.Equal(t, float64(30), resp.body["expires_in"])

	// The ticket resolves back to the issuing user and is single-use.
	got, ok := s.redeemWSTicket(t.Context(), ticket, false)
	require.True(t, ok)
	assert.Equal(t, userID, got)

	_, ok = s.redeemWSTicket(t.Context(), ticket, false)
	assert.False(t, ok)
}
