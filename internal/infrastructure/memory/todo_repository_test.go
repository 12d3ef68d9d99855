package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain_todo "github.com/hijjiri/todo-service/internal/domain/todo"
)

// fakeClock は呼ばれるたびに 1 秒進む。
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newRepo() (*TodoRepository, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 7, 14, 12, 0, 0, 0, time.UTC)}
	return NewTodoRepository(WithClock(clock.Now)), clock
}

func strPtr(s string) *string { return &s }

func TestCreateThenGet_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newRepo()

	in, err := domain_todo.NewTodo("Buy milk", strPtr("2%"), false, 1)
	require.NoError(t, err)

	created, err := repo.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, created.DateCreated, created.DateUpdated)
	assert.Equal(t, time.UTC, created.DateCreated.Location())

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCreate_DoesNotAliasCaller(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newRepo()

	in := &domain_todo.Todo{Title: "a", Description: strPtr("x"), UserID: 1}
	created, err := repo.Create(ctx, in)
	require.NoError(t, err)

	*in.Description = "mutated"
	*created.Description = "mutated too"

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", *got.Description)
}

func TestGetByID_NotFound(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo()

	_, err := repo.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, domain_todo.ErrNotFound)
}

func TestList_OrderedByIDAndEmptyIsNotError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newRepo()

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	for i, uid := range []int64{2, 1, 2, 1} {
		_, err := repo.Create(ctx, &domain_todo.Todo{Title: string(rune('a' + i)), UserID: uid})
		require.NoError(t, err)
	}

	list, err = repo.List(ctx)
	require.NoError(t, err)
	ids := make([]int64, 0, len(list))
	for _, td := range list {
		ids = append(ids, td.ID)
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)

	byUser, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, int64(2), byUser[0].ID)
	assert.Equal(t, int64(4), byUser[1].ID)

	none, err := repo.ListByUser(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdate_PartialPreservesUntouchedFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newRepo()

	created, err := repo.Create(ctx, &domain_todo.Todo{Title: "old", Description: strPtr("desc"), UserID: 1})
	require.NoError(t, err)

	updated, err := repo.Update(ctx, created.ID, domain_todo.Patch{IsCompleted: domain_todo.Some(true)})
	require.NoError(t, err)

	assert.True(t, updated.IsCompleted)
	assert.Equal(t, "old", updated.Title)
	assert.Equal(t, "desc", *updated.Description)
	assert.Equal(t, int64(1), updated.UserID)
	assert.Equal(t, created.DateCreated, updated.DateCreated)
	assert.True(t, updated.DateUpdated.After(created.DateUpdated))

	cleared, err := repo.Update(ctx, created.ID, domain_todo.Patch{Description: domain_todo.Some[*string](nil)})
	require.NoError(t, err)
	assert.Nil(t, cleared.Description)
	assert.True(t, cleared.IsCompleted)
}

func TestUpdate_DateUpdatedNeverMovesBackwards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	current := time.Date(2024, 7, 14, 12, 0, 0, 0, time.UTC)
	repo := NewTodoRepository(WithClock(func() time.Time { return current }))

	created, err := repo.Create(ctx, &domain_todo.Todo{Title: "a", UserID: 1})
	require.NoError(t, err)

	current = current.Add(-time.Hour)
	updated, err := repo.Update(ctx, created.ID, domain_todo.Patch{Title: domain_todo.Some("b")})
	require.NoError(t, err)
	assert.False(t, updated.DateUpdated.Before(created.DateUpdated))
}

func TestUpdate_NotFound(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo()

	_, err := repo.Update(context.Background(), 5, domain_todo.Patch{Title: domain_todo.Some("x")})
	assert.ErrorIs(t, err, domain_todo.ErrNotFound)
}

func TestDelete_SecondCallIsNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newRepo()

	created, err := repo.Create(ctx, &domain_todo.Todo{Title: "a", UserID: 1})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, created.ID))
	assert.ErrorIs(t, repo.Delete(ctx, created.ID), domain_todo.ErrNotFound)

	_, err = repo.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, domain_todo.ErrNotFound)
}

func TestCancelledContext_IsPersistenceError(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Create(ctx, &domain_todo.Todo{Title: "a", UserID: 1})
	assert.ErrorIs(t, err, domain_todo.ErrPersistence)
}
