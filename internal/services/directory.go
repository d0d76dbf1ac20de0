package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/cerebro-dash/apiserver/internal/store"
	"github.com/cerebro-dash/apiserver/types"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
)

// DefaultStoreTimeout bounds every directory read when none is configured.
const DefaultStoreTimeout = 5 * time.Second

// AccountReader reads accounts from the authoritative auth database.
type AccountReader interface {
	List(ctx context.Context) ([]types.Account, error)
	GetByID(ctx context.Context, id int64) (types.Account, error)
}

// MetadataStore persists the dashboard-owned side records.
type MetadataStore interface {
	ListAll(ctx context.Context) (map[int64]types.AccountMetadata, error)
	Get(ctx context.Context, accountID int64) (types.AccountMetadata, error)
	Insert(ctx context.Context, meta types.AccountMetadata) (types.AccountMetadata, error)
	Update(ctx context.Context, accountID int64, update *store.MetadataUpdate) (types.AccountMetadata, error)
}

// ListOptions filters a directory listing.
type ListOptions struct {
	IncludeBots bool
	// Category restricts the result when non-nil.
	Category *types.Category
}

// SearchOptions filters a ranked username search.
type SearchOptions struct {
	Query       string
	IncludeBots bool
	Category    *types.Category
}

// MetadataPatch is a partial metadata write. Nil fields are left unchanged.
type MetadataPatch struct {
	Category *types.Category `json:"category,omitempty"`
	Tags     *[]string       `json:"tags,omitempty"`
	Notes    *string         `json:"notes,omitempty"`
}

// DirectoryService joins accounts with their metadata and applies the
// directory's filtering and ranking rules.
type DirectoryService struct {
	accounts AccountReader
	metas    MetadataStore
	timeout  time.Duration
	events   *Notifier
}

func NewDirectoryService(accounts AccountReader, metas MetadataStore, timeout time.Duration, events *Notifier) *DirectoryService {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &DirectoryService{accounts: accounts, metas: metas, timeout: timeout, events: events}
}

// List returns every account visible under opts, ordered by account id.
func (s *DirectoryService) List(ctx context.Context, opts ListOptions) ([]types.DirectoryEntry, error) {
	if err := validateCategoryFilter(opts.Category); err != nil {
		return nil, err
	}
	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]types.DirectoryEntry, 0, len(entries))
	for _, entry := range entries {
		if visible(entry, opts.IncludeBots, opts.Category) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Search returns accounts whose username contains the query, ignoring case.
// Exact matches sort first, then prefix matches, then the rest; ties sort by
// username. Only the empty query matches every account; whitespace is matched
// literally.
func (s *DirectoryService) Search(ctx context.Context, opts SearchOptions) ([]types.DirectoryEntry, error) {
	if err := validateCategoryFilter(opts.Category); err != nil {
		return nil, err
	}
	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	query := strings.ToUpper(opts.Query)
	type ranked struct {
		entry types.DirectoryEntry
		rank  int
	}
	matches := make([]ranked, 0)
	for _, entry := range entries {
		if !visible(entry, opts.IncludeBots, opts.Category) {
			continue
		}
		rank, ok := matchRank(entry.Username, query)
		if !ok {
			continue
		}
		matches = append(matches, ranked{entry: entry, rank: rank})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].rank != matches[j].rank {
			return matches[i].rank < matches[j].rank
		}
		return matches[i].entry.Username < matches[j].entry.Username
	})

	out := make([]types.DirectoryEntry, len(matches))
	for i, m := range matches {
		out[i] = m.entry
	}
	return out, nil
}

// GetMetadata returns the stored metadata for an account, or the defaults
// when none has been written.
func (s *DirectoryService) GetMetadata(ctx context.Context, accountID int64) (types.AccountMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	meta, err := s.metas.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.DefaultMetadata(accountID), nil
		}
		return types.AccountMetadata{}, storeError("metadata", err)
	}
	return meta, nil
}

// SetMetadata applies patch to the account's metadata, creating the row with
// defaults if it does not exist yet.
func (s *DirectoryService) SetMetadata(ctx context.Context, accountID int64, patch MetadataPatch) (types.AccountMetadata, error) {
	update, err := patch.toUpdate()
	if err != nil {
		return types.AccountMetadata{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.AccountMetadata{}, accountNotFound(accountID)
		}
		return types.AccountMetadata{}, storeError("accounts", err)
	}

	meta, err := s.metas.Get(ctx, accountID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		meta, err = s.insertMetadata(ctx, account, update)
	case err == nil:
		if update.Empty() {
			return meta, nil
		}
		meta, err = s.metas.Update(ctx, accountID, update)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.AccountMetadata{}, accountNotFound(accountID)
		}
		return types.AccountMetadata{}, storeError("metadata", err)
	}

	s.events.notify(ctx, types.EventKindAccountMetaChanged, meta)
	return meta, nil
}

func (s *DirectoryService) insertMetadata(ctx context.Context, account types.Account, update *store.MetadataUpdate) (types.AccountMetadata, error) {
	meta := types.DefaultMetadata(account.ID)
	meta.Username = account.Username
	update.Apply(&meta)

	inserted, err := s.metas.Insert(ctx, meta)
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a race with a concurrent first write.
		return s.metas.Update(ctx, account.ID, update)
	}
	return inserted, err
}

// Categories lists the valid categories.
func (s *DirectoryService) Categories() []types.Category {
	return types.Categories()
}

// load reads both stores concurrently and joins them. Accounts without a
// metadata row get an inferred category.
func (s *DirectoryService) load(ctx context.Context) ([]types.DirectoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		accounts []types.Account
		metas    map[int64]types.AccountMetadata
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = s.accounts.List(gctx)
		if err != nil {
			return storeError("accounts", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		metas, err = s.metas.ListAll(gctx)
		if err != nil {
			return storeError("metadata", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]types.DirectoryEntry, 0, len(accounts))
	for _, account := range accounts {
		meta, ok := metas[account.ID]
		entries = append(entries, joinEntry(account, meta, ok))
	}
	return entries, nil
}

func joinEntry(account types.Account, meta types.AccountMetadata, hasMeta bool) types.DirectoryEntry {
	entry := types.DirectoryEntry{
		Account:  account,
		Category: types.CategoryUnknown,
		Tags:     []string{},
	}
	if hasMeta {
		entry.Category = meta.Category
		if meta.Tags != nil {
			entry.Tags = meta.Tags
		}
		entry.Notes = meta.Notes
	} else if types.IsBotName(account.Username) {
		entry.Category = types.CategoryBot
	}
	return entry
}

// visible applies the bot and category filters. A bot-named account always
// satisfies a bot category filter, whatever its stored category.
func visible(entry types.DirectoryEntry, includeBots bool, category *types.Category) bool {
	isBot := types.IsBotName(entry.Username)
	if isBot && !includeBots {
		return false
	}
	if category == nil || entry.Category == *category {
		return true
	}
	return *category == types.CategoryBot && isBot
}

func validateCategoryFilter(category *types.Category) error {
	if category != nil && !category.Valid() {
		return oops.Code("INVALID_CATEGORY").
			With("category", string(*category)).
			Wrap(ErrInvalidCategory)
	}
	return nil
}

func (p MetadataPatch) toUpdate() (*store.MetadataUpdate, error) {
	update := store.NewMetadataUpdate()
	if p.Category != nil {
		if err := validateCategoryFilter(p.Category); err != nil {
			return nil, err
		}
		update.SetCategory(*p.Category)
	}
	if p.Tags != nil {
		update.SetTags(normalizeTags(*p.Tags))
	}
	if p.Notes != nil {
		update.SetNotes(*p.Notes)
	}
	return update, nil
}

// normalizeTags trims each tag, drops empties and removes duplicates while
// keeping first-seen order.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
