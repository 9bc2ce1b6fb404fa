package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"insureconnect/internal/config"
	"insureconnect/internal/database"
	"insureconnect/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPassword = "SecurePass12!@"

// newTestServer builds a Server on an isolated in-memory SQLite database and
// a miniredis instance, with routes mounted on a bare Fiber app.
func newTestServer(t *testing.T) (*Server, *fiber.App) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{
		JWTSecret:        "test-secret",
		Env:              "test",
		PostTokenCost:    10,
		SignupTokenGrant: 100,
		FeatureFlags:     "new_feed=on,legacy_inbox=off",
	}

	s, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, h := range s.hubs {
			_ = h.Shutdown(context.Background())
		}
	})

	app := fiber.New()
	s.SetupRoutes(app)
	return s, app
}

// signupUser registers a user through the API and returns the auth token and id.
func signupUser(t *testing.T, app *fiber.App, name, email string) (string, uint) {
	t.Helper()

	resp := doJSON(t, app, http.MethodPost, "/api/auth/signup", "", fiber.Map{
		"name":     name,
		"email":    email,
		"password": testPassword,
	})
	require.Equal(t, http.StatusCreated, resp.status, "signup failed: %v", resp.body)

	token, _ := resp.body["token"].(string)
	require.NotEmpty(t, token)
	user, _ := resp.body["user"].(map[string]interface{})
	require.NotNil(t, user)
	return token, uint(user["id"].(float64))
}

// createAdmin inserts an admin account directly and returns its auth token.
func createAdmin(t *testing.T, s *Server, email string) (string, uint) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	admin := &models.User{
		Name:     "Reviewer",
		Email:    email,
		Password: string(hash),
		Role:     models.RoleAdmin,
	}
	require.NoError(t, s.db.Create(admin).Error)

	token, err := s.generateToken(admin.ID)
	require.NoError(t, err)
	return token, admin.ID
}

type jsonResponse struct {
	status int
	body   map[string]interface{}
	raw    []byte
}

// doJSON performs a JSON request against the app and decodes the response.
func doJSON(t *testing.T, app *fiber.App, method, path, token string, payload interface{}) jsonResponse {
	t.Helper()

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	body := map[string]interface{}{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	return jsonResponse{status: resp.StatusCode, body: body, raw: raw}
}
