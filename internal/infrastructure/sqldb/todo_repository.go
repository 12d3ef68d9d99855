package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	domain_todo "github.com/hijjiri/todo-service/internal/domain/todo"
	"go.uber.org/zap"
)

const todoColumns = "id, title, description, is_completed, user_id, date_created, date_updated"

// querier は *sql.DB と *sql.Tx の共通部分
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type TodoRepository struct {
	db      *sql.DB
	dialect Dialect
	tx      *TxManager
	logger  *zap.Logger
	now     func() time.Time
}

func NewTodoRepository(db *sql.DB, dialect Dialect, logger *zap.Logger) *TodoRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TodoRepository{
		db:      db,
		dialect: dialect,
		tx:      NewTxManager(db, logger),
		logger:  logger,
		now:     time.Now,
	}
}

// ctx に Tx があればそちらを使う
func (r *TodoRepository) conn(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// DB 側の精度（DATETIME(6) / TIMESTAMPTZ）に合わせてマイクロ秒に丸める
func (r *TodoRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// Create は domain の Todo を受け取り、DBにINSERTしてIDとタイムスタンプを付けて返す
func (r *TodoRepository) Create(ctx context.Context, t *domain_todo.Todo) (*domain_todo.Todo, error) {
	now := r.timestamp()
	out := t.Clone()
	out.DateCreated = now
	out.DateUpdated = now

	query := "INSERT INTO todos (title, description, is_completed, user_id, date_created, date_updated) VALUES (?, ?, ?, ?, ?, ?)"
	args := []any{out.Title, nullString(out.Description), out.IsCompleted, out.UserID, now, now}

	if r.dialect.Returning {
		if err := r.conn(ctx).QueryRowContext(ctx, r.dialect.Rebind(query+" RETURNING id"), args...).Scan(&out.ID); err != nil {
			return nil, domain_todo.NewPersistenceError("create", err)
		}
		return &out, nil
	}

	res, err := r.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return nil, domain_todo.NewPersistenceError("create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, domain_todo.NewPersistenceError("create", err)
	}
	out.ID = id
	return &out, nil
}

func (r *TodoRepository) GetByID(ctx context.Context, id int64) (*domain_todo.Todo, error) {
	return r.getByID(ctx, "get", id, false)
}

func (r *TodoRepository) getByID(ctx context.Context, op string, id int64, forUpdate bool) (*domain_todo.Todo, error) {
	query := "SELECT " + todoColumns + " FROM todos WHERE id = ?"
	if forUpdate {
		query += " FOR UPDATE"
	}
	t, err := scanTodo(r.conn(ctx).QueryRowContext(ctx, r.dialect.Rebind(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain_todo.ErrNotFound
		}
		return nil, domain_todo.NewPersistenceError(op, err)
	}
	return t, nil
}

// List は DB から全件を id 昇順で取得する
func (r *TodoRepository) List(ctx context.Context) ([]*domain_todo.Todo, error) {
	return r.query(ctx, "SELECT "+todoColumns+" FROM todos ORDER BY id")
}

func (r *TodoRepository) ListByUser(ctx context.Context, userID int64) ([]*domain_todo.Todo, error) {
	return r.query(ctx, "SELECT "+todoColumns+" FROM todos WHERE user_id = ? ORDER BY id", userID)
}

func (r *TodoRepository) query(ctx context.Context, query string, args ...any) ([]*domain_todo.Todo, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, domain_todo.NewPersistenceError("list", err)
	}
	defer rows.Close()

	todos := make([]*domain_todo.Todo, 0)
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, domain_todo.NewPersistenceError("list", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain_todo.NewPersistenceError("list", err)
	}
	return todos, nil
}

// Update は行ロック → 部分 UPDATE → 再読込 を 1 トランザクションで行う。
// 呼び出し側がすでに Tx を貼っていればそれに乗る。
func (r *TodoRepository) Update(ctx context.Context, id int64, p domain_todo.Patch) (*domain_todo.Todo, error) {
	var out *domain_todo.Todo
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := r.getByID(ctx, "update", id, true)
		if err != nil {
			return err
		}

		updatedAt := r.timestamp()
		if updatedAt.Before(current.DateUpdated) {
			updatedAt = current.DateUpdated
		}

		set, args := buildUpdate(p, updatedAt)
		args = append(args, id)
		if _, err := r.conn(ctx).ExecContext(ctx, r.dialect.Rebind("UPDATE todos SET "+set+" WHERE id = ?"), args...); err != nil {
			return domain_todo.NewPersistenceError("update", err)
		}

		out, err = r.getByID(ctx, "update", id, false)
		return err
	})
	if err != nil {
		if errors.Is(err, domain_todo.ErrNotFound) || errors.Is(err, domain_todo.ErrPersistence) {
			return nil, err
		}
		// begin / commit の失敗
		return nil, domain_todo.NewPersistenceError("update", err)
	}
	return out, nil
}

// Delete は削除件数 0 なら ErrNotFound
func (r *TodoRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.conn(ctx).ExecContext(ctx, r.dialect.Rebind("DELETE FROM todos WHERE id = ?"), id)
	if err != nil {
		return domain_todo.NewPersistenceError("delete", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain_todo.NewPersistenceError("delete", err)
	}
	if affected == 0 {
		return domain_todo.ErrNotFound
	}
	return nil
}

// buildUpdate は Set されたフィールドだけの SET 句を作る。date_updated は常に入る。
func buildUpdate(p domain_todo.Patch, updatedAt time.Time) (string, []any) {
	var (
		cols []string
		args []any
	)
	if p.Title.Set {
		cols = append(cols, "title = ?")
		args = append(args, p.Title.Value)
	}
	if p.Description.Set {
		cols = append(cols, "description = ?")
		args = append(args, nullString(p.Description.Value))
	}
	if p.IsCompleted.Set {
		cols = append(cols, "is_completed = ?")
		args = append(args, p.IsCompleted.Value)
	}
	if p.UserID.Set {
		cols = append(cols, "user_id = ?")
		args = append(args, p.UserID.Value)
	}
	cols = append(cols, "date_updated = ?")
	args = append(args, updatedAt)
	return strings.Join(cols, ", "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(s scanner) (*domain_todo.Todo, error) {
	var (
		t    domain_todo.Todo
		desc sql.NullString
	)
	if err := s.Scan(&t.ID, &t.Title, &desc, &t.IsCompleted, &t.UserID, &t.DateCreated, &t.DateUpdated); err != nil {
		return nil, err
	}
	if desc.Valid {
		v := desc.String
		t.Description = &v
	}
	t.DateCreated = t.DateCreated.UTC()
	t.DateUpdated = t.DateUpdated.UTC()
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
