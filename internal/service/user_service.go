package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/domain"
	"github.com/paragon-edu/gatehouse/internal/pkg/crypto"
	"github.com/paragon-edu/gatehouse/internal/repository"
)

// UserService handles account management and authentication.
type UserService struct {
	userRepo   repository.UserRepository
	bcryptCost int
	logger     zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.UserRepository, bcryptCost int, logger zerolog.Logger) *UserService {
	return &UserService{
		userRepo:   userRepo,
		bcryptCost: bcryptCost,
		logger:     logger.With().Str("service", "user").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// CreateUserInput contains the data needed to create a user.
type CreateUserInput struct {
	Username string
	Password string
	IsAdmin  bool
}

// CreateUserOutput contains the created user.
type CreateUserOutput struct {
	User *domain.User
}

// =============================================================================
// Service Methods
// =============================================================================

// CreateUser registers a new account.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*CreateUserOutput, error) {
	if len(input.Username) < 3 || len(input.Username) > 255 {
		return nil, ErrInvalidUsername
	}
	if len(input.Password) < 8 {
		return nil, ErrInvalidPassword
	}

	exists, err := s.userRepo.ExistsByUsername(ctx, input.Username)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to check username existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return nil, domain.ErrUserAlreadyExists
	}

	hash, err := crypto.HashKey(input.Password, s.bcryptCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	user := domain.NewUser(input.Username, hash)
	user.IsAdmin = input.IsAdmin

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return nil, domain.ErrUserAlreadyExists
		}
		s.logger.Error().Err(err).Msg("failed to create user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Str("username", user.Username).Bool("is_admin", user.IsAdmin).Msg("user created")
	return &CreateUserOutput{User: user}, nil
}

// Authenticate verifies credentials and returns the account.
// Unknown usernames and wrong passwords both return ErrInvalidCredentials
// so a probing client cannot enumerate accounts.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		s.logger.Error().Err(err).Msg("failed to look up user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if !crypto.VerifyKey(user.PasswordHash, password) {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.CanAuthenticate() {
		return nil, domain.ErrUserInactive
	}

	return user, nil
}
