package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cerebro-dash/apiserver/internal/srp6"
	"github.com/cerebro-dash/apiserver/internal/store"
	"github.com/cerebro-dash/apiserver/types"
	"github.com/samber/oops"
)

const (
	MinUsernameLength = 3
	MinPasswordLength = 4

	// MaxGMLevel is the highest level grantable through the dashboard
	// (administrator). Console access is not handed out here.
	MaxGMLevel = 3

	// AllRealms targets every realm in account_access.
	AllRealms = -1
)

// AccountRepository defines persistence operations on the auth database.
type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (types.Account, error)
	GetByUsername(ctx context.Context, username string) (types.Account, error)
	Create(ctx context.Context, username string, salt, verifier []byte, email string) (int64, error)
	UpdateCredential(ctx context.Context, id int64, salt, verifier []byte) error
	Stats(ctx context.Context) (types.AccountStats, error)
	Online(ctx context.Context) ([]types.OnlineAccount, error)
	Characters(ctx context.Context, accountID int64) ([]types.Character, error)
	GMLevel(ctx context.Context, accountID int64) (int, error)
	SetGMLevel(ctx context.Context, accountID int64, level, realmID int) error
}

// CredentialDeriver produces a fresh salt and verifier for a login.
type CredentialDeriver interface {
	DeriveCredential(username, password string) (srp6.Credential, error)
}

// CreatedAccount is returned by AccountService.Create.
type CreatedAccount struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// AccountService provisions game accounts and reads their state.
type AccountService struct {
	repo    AccountRepository
	deriver CredentialDeriver
	timeout time.Duration
	events  *Notifier
}

// NewAccountService builds the service. A nil deriver uses crypto/rand.
func NewAccountService(repo AccountRepository, deriver CredentialDeriver, timeout time.Duration, events *Notifier) *AccountService {
	if deriver == nil {
		deriver = srp6.NewDeriver(nil)
	}
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &AccountService{repo: repo, deriver: deriver, timeout: timeout, events: events}
}

// Create provisions a login the game server will accept. The username is
// stored uppercased.
func (s *AccountService) Create(ctx context.Context, username, password, email string) (CreatedAccount, error) {
	username = strings.ToUpper(strings.TrimSpace(username))
	if len(username) < MinUsernameLength {
		return CreatedAccount{}, invalidInput("username must be at least %d characters", MinUsernameLength)
	}
	if len(password) < MinPasswordLength {
		return CreatedAccount{}, invalidInput("password must be at least %d characters", MinPasswordLength)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.repo.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return CreatedAccount{}, duplicateAccount(username)
	case !errors.Is(err, store.ErrNotFound):
		return CreatedAccount{}, storeError("accounts", err)
	}

	cred, err := s.derive(username, password)
	if err != nil {
		return CreatedAccount{}, err
	}

	id, err := s.repo.Create(ctx, username, cred.Salt[:], cred.Verifier[:], strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return CreatedAccount{}, duplicateAccount(username)
		}
		return CreatedAccount{}, storeError("accounts", err)
	}

	created := CreatedAccount{ID: id, Username: username}
	s.events.notify(ctx, types.EventKindAccountCreated, created)
	return created, nil
}

// ChangePassword replaces the account's credential with one derived from a
// fresh salt. The previous password is not checked.
func (s *AccountService) ChangePassword(ctx context.Context, id int64, password string) error {
	if len(password) < MinPasswordLength {
		return invalidInput("password must be at least %d characters", MinPasswordLength)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	cred, err := s.derive(account.Username, password)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateCredential(ctx, id, cred.Salt[:], cred.Verifier[:]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return accountNotFound(id)
		}
		return storeError("accounts", err)
	}

	s.events.notify(ctx, types.EventKindAccountPasswordChanged, map[string]any{
		"id":       id,
		"username": account.Username,
	})
	return nil
}

func (s *AccountService) Get(ctx context.Context, id int64) (types.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.get(ctx, id)
}

func (s *AccountService) Stats(ctx context.Context) (types.AccountStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return types.AccountStats{}, storeError("accounts", err)
	}
	return stats, nil
}

func (s *AccountService) Online(ctx context.Context) ([]types.OnlineAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	online, err := s.repo.Online(ctx)
	if err != nil {
		return nil, storeError("accounts", err)
	}
	return online, nil
}

func (s *AccountService) Characters(ctx context.Context, id int64) ([]types.Character, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	characters, err := s.repo.Characters(ctx, id)
	if err != nil {
		return nil, storeError("characters", err)
	}
	return characters, nil
}

func (s *AccountService) GMLevel(ctx context.Context, id int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	level, err := s.repo.GMLevel(ctx, id)
	if err != nil {
		return 0, storeError("accounts", err)
	}
	return level, nil
}

// SetGMLevel grants level on realmID (AllRealms for every realm). Level 0
// revokes the grant.
func (s *AccountService) SetGMLevel(ctx context.Context, id int64, level, realmID int) error {
	if level < 0 || level > MaxGMLevel {
		return invalidInput("gm level must be between 0 and %d", MaxGMLevel)
	}
	if realmID != AllRealms && realmID <= 0 {
		return invalidInput("realm id must be %d or positive", AllRealms)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetGMLevel(ctx, id, level, realmID); err != nil {
		return storeError("accounts", err)
	}

	s.events.notify(ctx, types.EventKindAccountGMLevelChanged, map[string]any{
		"id":       id,
		"username": account.Username,
		"gm_level": level,
		"realm_id": realmID,
	})
	return nil
}

func (s *AccountService) get(ctx context.Context, id int64) (types.Account, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, accountNotFound(id)
		}
		return types.Account{}, storeError("accounts", err)
	}
	return account, nil
}

func (s *AccountService) derive(username, password string) (srp6.Credential, error) {
	cred, err := s.deriver.DeriveCredential(username, password)
	switch {
	case err == nil:
		return cred, nil
	case errors.Is(err, srp6.ErrInvalidInput):
		return srp6.Credential{}, invalidInput("username and password are required")
	default:
		return srp6.Credential{}, oops.Code("WEAK_ENTROPY").Wrap(err)
	}
}

func duplicateAccount(username string) error {
	return oops.Code("DUPLICATE_ACCOUNT").
		With("username", username).
		Wrap(ErrDuplicateAccount)
}
