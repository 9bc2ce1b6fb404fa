package service

import (
	"context"
	"strings"

	"insureconnect/internal/models"
	"insureconnect/internal/repository"
	"insureconnect/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// UserService handles registration, authentication, and profile management.
type UserService struct {
	userRepo    repository.UserRepository
	ledger      *LedgerService
	signupGrant int
}

// RegisterInput is the payload for creating a new account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Company  string
	Role     models.Role
}

// UpdateProfileInput is the payload for profile edits.
type UpdateProfileInput struct {
	UserID  uint
	Name    string
	Avatar  string
	Company string
}

func NewUserService(userRepo repository.UserRepository, ledger *LedgerService, signupGrant int) *UserService {
	return &UserService{
		userRepo:    userRepo,
		ledger:      ledger,
		signupGrant: signupGrant,
	}
}

// Register creates the account and credits the signup grant through the
// ledger, so the balance invariant holds from the first transaction.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := validation.ValidateName(in.Name); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	role := in.Role
	if role == "" {
		role = models.RoleCustomer
	}
	// Self-service signup never yields an admin account.
	if role == models.RoleAdmin || !role.Valid() {
		role = models.RoleCustomer
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewValidationError("Email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Password: string(hash),
		Role:     role,
		Company:  in.Company,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	if s.ledger != nil && s.signupGrant > 0 {
		if err := s.ledger.GrantSignupBonus(ctx, user.ID, s.signupGrant); err != nil {
			return nil, err
		}
		user.TokenBalance = s.signupGrant
	}

	return user, nil
}

// Authenticate verifies credentials and returns the user.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError("Invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid email or password")
	}
	return user, nil
}

// GetProfile returns a user by id.
func (s *UserService) GetProfile(ctx context.Context, userID uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// UpdateProfile applies profile edits. Role and balance are not editable here.
func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if in.Name != "" {
		if err := validation.ValidateName(in.Name); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Name = strings.TrimSpace(in.Name)
	}
	if in.Avatar != "" {
		user.Avatar = in.Avatar
	}
	if in.Company != "" {
		user.Company = in.Company
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// IsAdmin reports whether the user holds the ADMIN role. Injected into
// services that gate admin-only operations.
func (s *UserService) IsAdmin(ctx context.Context, userID uint) (bool, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.Role.HasAtLeast(models.RoleAdmin), nil
}

// ListUsers returns a page of users for the admin panel.
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.userRepo.List(ctx, limit, offset)
}

// CountUsers returns the total number of users.
func (s *UserService) CountUsers(ctx context.Context) (int64, error) {
	return s.userRepo.Count(ctx)
}

// SearchUsers matches members by name or email and returns their public
// profiles. Emails match but are never included in the results.
func (s *UserService) SearchUsers(ctx context.Context, query string, limit int) ([]models.PublicUser, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	users, err := s.userRepo.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	results := make([]models.PublicUser, 0, len(users))
	for i := range users {
		results = append(results, users[i].Public())
	}
	return results, nil
}
