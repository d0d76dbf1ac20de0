package services

import (
	"context"
	"sync"

	"github.com/cerebro-dash/apiserver/internal/srp6"
	"github.com/cerebro-dash/apiserver/internal/store"
	"github.com/cerebro-dash/apiserver/types"
)

type fakeAccounts struct {
	mu       sync.Mutex
	accounts []types.Account
	creds    map[int64][2][]byte
	gm       map[int64]int
	nextID   int64
	listErr  error
	block    bool
}

func newFakeAccounts(usernames ...string) *fakeAccounts {
	f := &fakeAccounts{creds: map[int64][2][]byte{}, gm: map[int64]int{}}
	for _, name := range usernames {
		f.nextID++
		f.accounts = append(f.accounts, types.Account{ID: f.nextID, Username: name})
	}
	return f
}

func (f *fakeAccounts) List(ctx context.Context) ([]types.Account, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Account(nil), f.accounts...), nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id int64) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (f *fakeAccounts) GetByUsername(_ context.Context, username string) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (f *fakeAccounts) Create(_ context.Context, username string, salt, verifier []byte, email string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.accounts = append(f.accounts, types.Account{ID: f.nextID, Username: username, Email: email})
	f.creds[f.nextID] = [2][]byte{salt, verifier}
	return f.nextID, nil
}

func (f *fakeAccounts) UpdateCredential(_ context.Context, id int64, salt, verifier []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds[id] = [2][]byte{salt, verifier}
	return nil
}

func (f *fakeAccounts) Stats(context.Context) (types.AccountStats, error) {
	return types.AccountStats{Total: len(f.accounts)}, nil
}

func (f *fakeAccounts) Online(context.Context) ([]types.OnlineAccount, error) {
	return []types.OnlineAccount{}, nil
}

func (f *fakeAccounts) Characters(context.Context, int64) ([]types.Character, error) {
	return []types.Character{}, nil
}

func (f *fakeAccounts) GMLevel(_ context.Context, id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gm[id], nil
}

func (f *fakeAccounts) SetGMLevel(_ context.Context, id int64, level, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gm[id] = level
	return nil
}

type fakeMetas struct {
	mu          sync.Mutex
	rows        map[int64]types.AccountMetadata
	err         error
	dupOnInsert bool
}

func newFakeMetas() *fakeMetas {
	return &fakeMetas{rows: map[int64]types.AccountMetadata{}}
}

func (f *fakeMetas) ListAll(context.Context) (map[int64]types.AccountMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]types.AccountMetadata, len(f.rows))
	for k, v := range f.rows {
		out[k] = v
	}
	return out, nil
}

func (f *fakeMetas) Get(_ context.Context, id int64) (types.AccountMetadata, error) {
	if f.err != nil {
		return types.AccountMetadata{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.rows[id]
	if !ok {
		return types.AccountMetadata{}, store.ErrNotFound
	}
	return meta, nil
}

func (f *fakeMetas) Insert(_ context.Context, meta types.AccountMetadata) (types.AccountMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dupOnInsert {
		// Simulate a concurrent writer creating the row first.
		f.rows[meta.AccountID] = types.AccountMetadata{
			AccountID: meta.AccountID,
			Username:  meta.Username,
			Category:  types.CategoryAdmin,
			Tags:      []string{},
			Notes:     "theirs",
		}
		return types.AccountMetadata{}, store.ErrDuplicate
	}
	if _, ok := f.rows[meta.AccountID]; ok {
		return types.AccountMetadata{}, store.ErrDuplicate
	}
	f.rows[meta.AccountID] = meta
	return meta, nil
}

func (f *fakeMetas) Update(_ context.Context, id int64, update *store.MetadataUpdate) (types.AccountMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.rows[id]
	if !ok {
		return types.AccountMetadata{}, store.ErrNotFound
	}
	update.Apply(&meta)
	f.rows[id] = meta
	return meta, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.Event
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event types.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]string, len(p.events))
	for i, e := range p.events {
		kinds[i] = e.Kind
	}
	return kinds
}

type fixedDeriver struct {
	cred srp6.Credential
	err  error
}

func (d fixedDeriver) DeriveCredential(string, string) (srp6.Credential, error) {
	return d.cred, d.err
}

func usernames(entries []types.DirectoryEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Username
	}
	return names
}

func categoryPtr(c types.Category) *types.Category { return &c }
