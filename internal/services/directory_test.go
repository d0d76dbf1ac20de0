package services

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/cerebro-dash/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDirectory(accounts *fakeAccounts, metas *fakeMetas) *DirectoryService {
	return NewDirectoryService(accounts, metas, time.Second, nil)
}

func TestSearch_RanksExactBeforePrefix(t *testing.T) {
	svc := newDirectory(newFakeAccounts("BOB", "ALICEX", "ALICE"), newFakeMetas())

	got, err := svc.Search(context.Background(), SearchOptions{Query: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ALICE", "ALICEX"}, usernames(got))
}

func TestSearch_ThreeTierOrdering(t *testing.T) {
	svc := newDirectory(newFakeAccounts("XANA", "ANABEL", "ANA", "BANANA", "ANAIS"), newFakeMetas())

	got, err := svc.Search(context.Background(), SearchOptions{Query: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ANA", "ANABEL", "ANAIS", "BANANA", "XANA"}, usernames(got))
}

func TestSearch_EmptyQueryListsEverything(t *testing.T) {
	svc := newDirectory(newFakeAccounts("CAROL", "ALICE", "RNDBOT1"), newFakeMetas())

	got, err := svc.Search(context.Background(), SearchOptions{Query: ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"ALICE", "CAROL"}, usernames(got))
}

func TestSearch_WhitespaceQueryIsAFilter(t *testing.T) {
	svc := newDirectory(newFakeAccounts("CAROL", "ALICE"), newFakeMetas())

	got, err := svc.Search(context.Background(), SearchOptions{Query: "  "})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = svc.Search(context.Background(), SearchOptions{Query: " alice"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBotInference_ThenOverride(t *testing.T) {
	accounts := newFakeAccounts("RNDBOT7", "ALICE")
	svc := newDirectory(accounts, newFakeMetas())
	ctx := context.Background()

	listed, err := svc.List(ctx, ListOptions{IncludeBots: true})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, types.CategoryBot, listed[0].Category)
	assert.Equal(t, types.CategoryUnknown, listed[1].Category)

	found, err := svc.Search(ctx, SearchOptions{Query: "rndbot", IncludeBots: true})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, types.CategoryBot, found[0].Category)

	_, err = svc.SetMetadata(ctx, 1, MetadataPatch{Category: categoryPtr(types.CategoryFriend)})
	require.NoError(t, err)

	listed, err = svc.List(ctx, ListOptions{IncludeBots: true})
	require.NoError(t, err)
	assert.Equal(t, types.CategoryFriend, listed[0].Category)

	found, err = svc.Search(ctx, SearchOptions{Query: "RNDBOT7", IncludeBots: true})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, types.CategoryFriend, found[0].Category)
}

func TestList_Filters(t *testing.T) {
	accounts := newFakeAccounts("ALICE", "RNDBOT1", "BOB", "RNDBOT2")
	metas := newFakeMetas()
	metas.rows[1] = types.AccountMetadata{AccountID: 1, Category: types.CategoryFriend, Tags: []string{}}
	metas.rows[2] = types.AccountMetadata{AccountID: 2, Category: types.CategoryTest, Tags: []string{}}
	metas.rows[3] = types.AccountMetadata{AccountID: 3, Category: types.CategoryBot, Tags: []string{}}
	svc := newDirectory(accounts, metas)
	ctx := context.Background()

	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{"bots hidden by default", ListOptions{}, []string{"ALICE", "BOB"}},
		{"bots included", ListOptions{IncludeBots: true}, []string{"ALICE", "RNDBOT1", "BOB", "RNDBOT2"}},
		{"friend filter", ListOptions{Category: categoryPtr(types.CategoryFriend)}, []string{"ALICE"}},
		{"bot filter keeps prefixed names", ListOptions{IncludeBots: true, Category: categoryPtr(types.CategoryBot)}, []string{"RNDBOT1", "BOB", "RNDBOT2"}},
		{"bot filter without bots", ListOptions{Category: categoryPtr(types.CategoryBot)}, []string{"BOB"}},
		{"test filter drops bot-named test account when bots hidden", ListOptions{Category: categoryPtr(types.CategoryTest)}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.List(ctx, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, usernames(got))
		})
	}
}

func TestList_InvalidCategory(t *testing.T) {
	svc := newDirectory(newFakeAccounts("ALICE"), newFakeMetas())
	_, err := svc.List(context.Background(), ListOptions{Category: categoryPtr("wizard")})
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestList_UpstreamUnavailable(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		accounts := newFakeAccounts("ALICE")
		accounts.block = true
		svc := NewDirectoryService(accounts, newFakeMetas(), 20*time.Millisecond, nil)

		_, err := svc.List(context.Background(), ListOptions{})
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	})
	t.Run("connection refused", func(t *testing.T) {
		metas := newFakeMetas()
		metas.err = syscall.ECONNREFUSED
		svc := newDirectory(newFakeAccounts("ALICE"), metas)

		_, err := svc.List(context.Background(), ListOptions{})
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	})
	t.Run("other failure", func(t *testing.T) {
		accounts := newFakeAccounts("ALICE")
		accounts.listErr = errors.New("syntax error")
		svc := newDirectory(accounts, newFakeMetas())

		_, err := svc.List(context.Background(), ListOptions{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUpstreamUnavailable)
	})
}

func TestSetMetadata_PartialUpdateKeepsOtherFields(t *testing.T) {
	metas := newFakeMetas()
	metas.rows[1] = types.AccountMetadata{AccountID: 1, Username: "ALICE", Category: types.CategoryFriend, Tags: []string{}, Notes: "hi"}
	svc := newDirectory(newFakeAccounts("ALICE"), metas)

	tags := []string{"pvp"}
	meta, err := svc.SetMetadata(context.Background(), 1, MetadataPatch{Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, []string{"pvp"}, meta.Tags)
	assert.Equal(t, "hi", meta.Notes)
	assert.Equal(t, types.CategoryFriend, meta.Category)
}

func TestSetMetadata_InsertsDefaultsOverlaid(t *testing.T) {
	pub := &recordingPublisher{}
	metas := newFakeMetas()
	svc := NewDirectoryService(newFakeAccounts("ALICE"), metas, time.Second, NewNotifier(pub, nil))

	notes := "raid lead"
	meta, err := svc.SetMetadata(context.Background(), 1, MetadataPatch{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, types.CategoryUnknown, meta.Category)
	assert.Equal(t, []string{}, meta.Tags)
	assert.Equal(t, "raid lead", meta.Notes)
	assert.Equal(t, "ALICE", meta.Username)
	assert.Equal(t, []string{types.EventKindAccountMetaChanged}, pub.kinds())
}

func TestSetMetadata_DeduplicatesTags(t *testing.T) {
	svc := newDirectory(newFakeAccounts("ALICE"), newFakeMetas())

	tags := []string{"pvp", " raid ", "pvp", "", "raid"}
	meta, err := svc.SetMetadata(context.Background(), 1, MetadataPatch{Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, []string{"pvp", "raid"}, meta.Tags)
}

func TestSetMetadata_EmptyPatchReturnsExisting(t *testing.T) {
	pub := &recordingPublisher{}
	metas := newFakeMetas()
	existing := types.AccountMetadata{AccountID: 1, Category: types.CategoryAdmin, Tags: []string{"gm"}, Notes: "n"}
	metas.rows[1] = existing
	svc := NewDirectoryService(newFakeAccounts("ALICE"), metas, time.Second, NewNotifier(pub, nil))

	meta, err := svc.SetMetadata(context.Background(), 1, MetadataPatch{})
	require.NoError(t, err)
	assert.Equal(t, existing, meta)
	assert.Empty(t, pub.kinds())
}

func TestSetMetadata_Errors(t *testing.T) {
	svc := newDirectory(newFakeAccounts("ALICE"), newFakeMetas())
	ctx := context.Background()

	_, err := svc.SetMetadata(ctx, 42, MetadataPatch{Notes: new(string)})
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = svc.SetMetadata(ctx, 1, MetadataPatch{Category: categoryPtr("wizard")})
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestSetMetadata_InsertRaceFallsBackToUpdate(t *testing.T) {
	metas := newFakeMetas()
	metas.dupOnInsert = true
	svc := newDirectory(newFakeAccounts("ALICE"), metas)

	notes := "mine"
	meta, err := svc.SetMetadata(context.Background(), 1, MetadataPatch{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "mine", meta.Notes)
	assert.Equal(t, types.CategoryAdmin, meta.Category)
}

func TestGetMetadata_DefaultsWhenMissing(t *testing.T) {
	svc := newDirectory(newFakeAccounts("ALICE"), newFakeMetas())

	meta, err := svc.GetMetadata(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultMetadata(1), meta)
}

func TestCategories(t *testing.T) {
	svc := newDirectory(newFakeAccounts(), newFakeMetas())
	assert.Equal(t, types.Categories(), svc.Categories())
}

func TestMatchRank(t *testing.T) {
	tests := []struct {
		username string
		query    string
		rank     int
		ok       bool
	}{
		{"alice", "ALICE", rankExact, true},
		{"ALICEX", "ALICE", rankPrefix, true},
		{"MALICE", "ALICE", rankContains, true},
		{"BOB", "ALICE", 0, false},
		{"BOB", "", rankPrefix, true},
	}
	for _, tt := range tests {
		rank, ok := matchRank(tt.username, tt.query)
		assert.Equal(t, tt.ok, ok, tt.username)
		assert.Equal(t, tt.rank, rank, tt.username)
	}
}
