package service

import (
	"testing"

	"insureconnect/internal/models"
	"insureconnect/internal/repository"
	"insureconnect/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const validPassword = "SecurePass12!@"

func newUserService(db *gorm.DB) (*UserService, *LedgerService) {
	ledger := NewLedgerService(repository.NewLedgerRepository(db))
	return NewUserService(repository.NewUserRepository(db), ledger, 100), ledger
}

func TestRegisterGrantsThroughLedger(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, ledger := newUserService(db)

	user, err := svc.Register(t.Context(), RegisterInput{
		Name:     "Greta Olsen",
		Email:    "Greta@Example.com",
		Password: validPassword,
		Company:  "Olsen Brokerage",
	})
	require.NoError(t, err)
	assert.Equal(t, "greta@example.com", user.Email, "emails are stored lowercased")
	assert.Equal(t, models.RoleCustomer, user.Role)
	assert.Equal(t, 100, user.TokenBalance)

	// The grant is a ledger movement, not a raw balance write.
	ok, err := ledger.VerifyBalance(t.Context(), user.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	txs, err := ledger.Transactions(t.Context(), user.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TransactionPurchase, txs[0].Type)
	assert.Equal(t, 100, txs[0].Amount)
}

func TestRegisterValidation(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, _ := newUserService(db)

	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"empty name", RegisterInput{Email: "a@example.com", Password: validPassword}},
		{"bad email", RegisterInput{Name: "Al", Email: "not-an-email", Password: validPassword}},
		{"weak password", RegisterInput{Name: "Al", Email: "al@example.com", Password: "short"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(t.Context(), tc.in)
			require.Error(t, err)
			var appErr *models.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, models.CodeValidation, appErr.Code)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, _ := newUserService(db)

	in := RegisterInput{Name: "Ivy", Email: "ivy@example.com", Password: validPassword}
	_, err := svc.Register(t.Context(), in)
	require.NoError(t, err)

	_, err = svc.Register(t.Context(), in)
	require.Error(t, err)

	// Case differences do not create a second account either.
	in.Email = "IVY@example.com"
	_, err = svc.Register(t.Context(), in)
	require.Error(t, err)
}

func TestRegisterNeverYieldsAdmin(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, _ := newUserService(db)

	user, err := svc.Register(t.Context(), RegisterInput{
		Name:     "Sly",
		Email:    "sly@example.com",
		Password: validPassword,
		Role:     models.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, user.Role)

	agent, err := svc.Register(t.Context(), RegisterInput{
		Name:     "Pat",
		Email:    "pat@example.com",
		Password: validPassword,
		Role:     models.RoleAgent,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAgent, agent.Role)
}

func TestAuthenticate(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, _ := newUserService(db)

	_, err := svc.Register(t.Context(), RegisterInput{
		Name: "Noa", Email: "noa@example.com", Password: validPassword,
	})
	require.NoError(t, err)

	user, err := svc.Authenticate(t.Context(), "NOA@example.com", validPassword)
	require.NoError(t, err)
	assert.Equal(t, "noa@example.com", user.Email)

	var appErr *models.AppError
	_, err = svc.Authenticate(t.Context(), "noa@example.com", "wrong-password")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeUnauthorized, appErr.Code)

	_, err = svc.Authenticate(t.Context(), "nobody@example.com", validPassword)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeUnauthorized, appErr.Code)
}

func TestUpdateProfile(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, _ := newUserService(db)

	user, err := svc.Register(t.Context(), RegisterInput{
		Name: "Rae", Email: "rae@example.com", Password: validPassword,
	})
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(t.Context(), UpdateProfileInput{
		UserID:  user.ID,
		Name:    "Rae Chen",
		Company: "Chen & Partners",
		Avatar:  "https://cdn.example.com/rae.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "Rae Chen", updated.Name)
	assert.Equal(t, "Chen & Partners", updated.Company)
	assert.Equal(t, models.RoleCustomer, updated.Role, "profile edits never touch the role")
}

func TestIsAdmin(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, _ := newUserService(db)
	admin := seedAdmin(t, db, "boss")
	user := seedUser(t, db, "pleb", 0)

	ok, err := svc.IsAdmin(t.Context(), admin.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsAdmin(t.Context(), user.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
