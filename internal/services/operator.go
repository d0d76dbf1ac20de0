package services

import (
	"context"
	"errors"
	"strings"

	"github.com/cerebro-dash/apiserver/internal/store"
	"github.com/cerebro-dash/apiserver/types"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// OperatorRepository defines persistence operations for dashboard operators.
type OperatorRepository interface {
	GetByID(ctx context.Context, id int) (types.Operator, error)
	GetByUsername(ctx context.Context, username string) (types.Operator, error)
	Create(ctx context.Context, operator types.Operator) (types.Operator, error)
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
}

// OperatorService encapsulates operator login use-cases.
type OperatorService struct {
	repo OperatorRepository
}

func NewOperatorService(repo OperatorRepository) *OperatorService {
	return &OperatorService{repo: repo}
}

func (s *OperatorService) GetByID(ctx context.Context, id int) (types.Operator, error) {
	operator, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.Operator{}, oops.Code("OPERATOR_NOT_FOUND").With("operator_id", id).Wrap(err)
	}
	return operator, err
}

// Create hashes password and stores a new operator.
func (s *OperatorService) Create(ctx context.Context, username, password string) (types.Operator, error) {
	username = strings.TrimSpace(username)
	if len(username) < MinUsernameLength {
		return types.Operator{}, invalidInput("username must be at least %d characters", MinUsernameLength)
	}
	if len(password) < MinPasswordLength {
		return types.Operator{}, invalidInput("password must be at least %d characters", MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.Operator{}, oops.Code("HASH_FAILED").Wrap(err)
	}

	operator, err := s.repo.Create(ctx, types.Operator{Username: username, PasswordHash: string(hash)})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.Operator{}, oops.Code("DUPLICATE_OPERATOR").
				With("username", username).
				Wrap(err)
		}
		return types.Operator{}, storeError("operators", err)
	}
	return operator, nil
}

// Authenticate checks an operator's password. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *OperatorService) Authenticate(ctx context.Context, username, password string) (types.Operator, error) {
	operator, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Operator{}, oops.Code("INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
		}
		return types.Operator{}, storeError("operators", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(password)); err != nil {
		return types.Operator{}, oops.Code("INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}
	return operator, nil
}

// SetPassword replaces an operator's password.
func (s *OperatorService) SetPassword(ctx context.Context, username, password string) error {
	if len(password) < MinPasswordLength {
		return invalidInput("password must be at least %d characters", MinPasswordLength)
	}
	operator, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return oops.Code("OPERATOR_NOT_FOUND").With("username", username).Wrap(err)
		}
		return storeError("operators", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return oops.Code("HASH_FAILED").Wrap(err)
	}
	if err := s.repo.UpdatePassword(ctx, operator.ID, string(hash)); err != nil {
		return storeError("operators", err)
	}
	return nil
}
