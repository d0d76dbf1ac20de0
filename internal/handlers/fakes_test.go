package handlers

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cerebro-dash/apiserver/internal/storage"
	"github.com/cerebro-dash/apiserver/internal/store"
	"github.com/cerebro-dash/apiserver/types"
)

// memAccounts backs both the directory reader and the account repository.
type memAccounts struct {
	mu       sync.Mutex
	accounts []types.Account
	gm       map[int64]int
	err      error
}

func newMemAccounts(names ...string) *memAccounts {
	m := &memAccounts{gm: map[int64]int{}}
	for i, name := range names {
		m.accounts = append(m.accounts, types.Account{ID: int64(i + 1), Username: name})
	}
	return m
}

func (m *memAccounts) List(context.Context) ([]types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]types.Account(nil), m.accounts...), nil
}

func (m *memAccounts) GetByID(_ context.Context, id int64) (types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (m *memAccounts) GetByUsername(_ context.Context, username string) (types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (m *memAccounts) Create(_ context.Context, username string, salt, verifier []byte, email string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.accounts) + 1)
	m.accounts = append(m.accounts, types.Account{ID: id, Username: username, Email: email, Salt: salt, Verifier: verifier})
	return id, nil
}

func (m *memAccounts) UpdateCredential(_ context.Context, id int64, salt, verifier []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.accounts {
		if m.accounts[i].ID == id {
			m.accounts[i].Salt, m.accounts[i].Verifier = salt, verifier
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memAccounts) Stats(context.Context) (types.AccountStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := types.AccountStats{Total: len(m.accounts)}
	for _, a := range m.accounts {
		if types.IsBotName(a.Username) {
			stats.Bots++
		}
	}
	stats.Players = stats.Total - stats.Bots
	return stats, nil
}

func (m *memAccounts) Online(context.Context) ([]types.OnlineAccount, error) {
	return []types.OnlineAccount{}, nil
}

func (m *memAccounts) Characters(_ context.Context, id int64) ([]types.Character, error) {
	return []types.Character{{GUID: 10 * id, Name: "Thrall", Level: 80}}, nil
}

func (m *memAccounts) GMLevel(_ context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gm[id], nil
}

func (m *memAccounts) SetGMLevel(_ context.Context, id int64, level, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gm[id] = level
	return nil
}

type memMetas struct {
	mu   sync.Mutex
	rows map[int64]types.AccountMetadata
}

func newMemMetas() *memMetas {
	return &memMetas{rows: map[int64]types.AccountMetadata{}}
}

func (m *memMetas) ListAll(context.Context) (map[int64]types.AccountMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]types.AccountMetadata, len(m.rows))
	for k, v := range m.rows {
		out[k] = v
	}
	return out, nil
}

func (m *memMetas) Get(_ context.Context, id int64) (types.AccountMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.rows[id]
	if !ok {
		return types.AccountMetadata{}, store.ErrNotFound
	}
	return meta, nil
}

func (m *memMetas) Insert(_ context.Context, meta types.AccountMetadata) (types.AccountMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[meta.AccountID]; ok {
		return types.AccountMetadata{}, store.ErrDuplicate
	}
	m.rows[meta.AccountID] = meta
	return meta, nil
}

func (m *memMetas) Update(_ context.Context, id int64, update *store.MetadataUpdate) (types.AccountMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.rows[id]
	if !ok {
		return types.AccountMetadata{}, store.ErrNotFound
	}
	update.Apply(&meta)
	m.rows[id] = meta
	return meta, nil
}

type memOperators struct {
	mu   sync.Mutex
	rows []types.Operator
}

func (m *memOperators) GetByID(_ context.Context, id int) (types.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range m.rows {
		if op.ID == id {
			return op, nil
		}
	}
	return types.Operator{}, store.ErrNotFound
}

func (m *memOperators) GetByUsername(_ context.Context, username string) (types.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range m.rows {
		if op.Username == username {
			return op, nil
		}
	}
	return types.Operator{}, store.ErrNotFound
}

func (m *memOperators) Create(_ context.Context, op types.Operator) (types.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.Username == op.Username {
			return types.Operator{}, store.ErrDuplicate
		}
	}
	op.ID = len(m.rows) + 1
	op.CreatedAt = time.Now()
	op.UpdatedAt = op.CreatedAt
	m.rows = append(m.rows, op)
	return op, nil
}

func (m *memOperators) UpdatePassword(_ context.Context, id int, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].PasswordHash = hash
			return nil
		}
	}
	return store.ErrNotFound
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
