package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/expresso-itaporanga/tracking-api/internal/domain"
	"github.com/expresso-itaporanga/tracking-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserService struct {
	users  repository.UserRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewUserService(users repository.UserRepository, logger *zap.Logger) (*UserService, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &UserService{
		users:  users,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (s *UserService) Create(ctx context.Context, username, role string) (*domain.User, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	parsedRole, err := domain.ParseRoleFromString(role)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:        uuid.NewString(),
		Username:  strings.TrimSpace(username),
		Role:      parsedRole,
		CreatedAt: s.now().UTC(),
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%w: username %q already exists", domain.ErrConflict, user.Username)
		}
		return nil, err
	}

	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	return s.users.GetByID(ctx, strings.TrimSpace(id))
}

func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}
