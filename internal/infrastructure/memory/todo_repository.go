// Package memory は DB_DRIVER=memory 用のインメモリ Todo ストア。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain_todo "github.com/hijjiri/todo-service/internal/domain/todo"
)

type TodoRepository struct {
	mu    sync.Mutex
	next  int64
	items map[int64]*domain_todo.Todo
	now   func() time.Time
}

// Option は TodoRepository の設定を差し替える。
type Option func(*TodoRepository)

// WithClock はタイムスタンプ用の時計を差し替える（テスト用）。
func WithClock(now func() time.Time) Option {
	return func(r *TodoRepository) { r.now = now }
}

func NewTodoRepository(opts ...Option) *TodoRepository {
	r := &TodoRepository{
		next:  1,
		items: make(map[int64]*domain_todo.Todo),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *TodoRepository) Create(ctx context.Context, t *domain_todo.Todo) (*domain_todo.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain_todo.NewPersistenceError("create", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := t.Clone()
	stored.ID = r.next
	r.next++

	now := r.now().UTC()
	stored.DateCreated = now
	stored.DateUpdated = now

	r.items[stored.ID] = &stored
	out := stored.Clone()
	return &out, nil
}

func (r *TodoRepository) GetByID(ctx context.Context, id int64) (*domain_todo.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain_todo.NewPersistenceError("get", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.items[id]
	if !ok {
		return nil, domain_todo.ErrNotFound
	}
	out := t.Clone()
	return &out, nil
}

func (r *TodoRepository) List(ctx context.Context) ([]*domain_todo.Todo, error) {
	return r.filter(ctx, func(*domain_todo.Todo) bool { return true })
}

func (r *TodoRepository) ListByUser(ctx context.Context, userID int64) ([]*domain_todo.Todo, error) {
	return r.filter(ctx, func(t *domain_todo.Todo) bool { return t.UserID == userID })
}

func (r *TodoRepository) filter(ctx context.Context, keep func(*domain_todo.Todo) bool) ([]*domain_todo.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain_todo.NewPersistenceError("list", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	todos := make([]*domain_todo.Todo, 0, len(r.items))
	for _, t := range r.items {
		if !keep(t) {
			continue
		}
		c := t.Clone()
		todos = append(todos, &c)
	}
	// map の順番は保証されないので id 昇順に揃える
	sort.Slice(todos, func(i, j int) bool { return todos[i].ID < todos[j].ID })
	return todos, nil
}

func (r *TodoRepository) Update(ctx context.Context, id int64, p domain_todo.Patch) (*domain_todo.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain_todo.NewPersistenceError("update", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.items[id]
	if !ok {
		return nil, domain_todo.ErrNotFound
	}

	updated := p.Apply(*t)
	if now := r.now().UTC(); now.After(updated.DateUpdated) {
		updated.DateUpdated = now
	}
	r.items[id] = &updated

	out := updated.Clone()
	return &out, nil
}

func (r *TodoRepository) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return domain_todo.NewPersistenceError("delete", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain_todo.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

// NopTransactor はインメモリストア用。各操作がすでに mutex で直列化されている。
type NopTransactor struct{}

func (NopTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
