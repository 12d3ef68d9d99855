package httpadapter

import (
	"bytes"
	"encoding/json"
	"time"

	domain_todo "github.com/hijjiri/todo-service/internal/domain/todo"
	todo_usecase "github.com/hijjiri/todo-service/internal/usecase/todo"
)

// ---- request ----

type createTodoRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description"`
	IsCompleted bool    `json:"is_completed"`
	UserID      int64   `json:"user_id" binding:"required,gt=0"`
}

func (r createTodoRequest) command() todo_usecase.CreateTodoCommand {
	return todo_usecase.CreateTodoCommand{
		Title:       r.Title,
		Description: r.Description,
		IsCompleted: r.IsCompleted,
		UserID:      r.UserID,
	}
}

// Field は JSON の「キーが無い」「null」「値あり」を区別する。
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Null = true
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

// updateTodoRequest は部分更新。送られてきたキーだけが反映される。
type updateTodoRequest struct {
	Title       Field[string] `json:"title"`
	Description Field[string] `json:"description"`
	IsCompleted Field[bool]   `json:"is_completed"`
	UserID      Field[int64]  `json:"user_id"`
}

// patch は null を許すのは description だけ（null でクリア）。
func (r updateTodoRequest) patch() (domain_todo.Patch, error) {
	var p domain_todo.Patch

	if r.Title.Set {
		if r.Title.Null {
			return p, domain_todo.ErrNullTitle
		}
		p.Title = domain_todo.Some(r.Title.Value)
	}
	if r.Description.Set {
		if r.Description.Null {
			p.Description = domain_todo.Some[*string](nil)
		} else {
			v := r.Description.Value
			p.Description = domain_todo.Some(&v)
		}
	}
	if r.IsCompleted.Set {
		if r.IsCompleted.Null {
			return p, domain_todo.ErrNullIsComplete
		}
		p.IsCompleted = domain_todo.Some(r.IsCompleted.Value)
	}
	if r.UserID.Set {
		if r.UserID.Null {
			return p, domain_todo.ErrNullUserID
		}
		p.UserID = domain_todo.Some(r.UserID.Value)
	}
	return p, nil
}

// ---- response ----

type todoResponse struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	IsCompleted bool      `json:"is_completed"`
	UserID      int64     `json:"user_id"`
	DateCreated time.Time `json:"date_created"`
	DateUpdated time.Time `json:"date_updated"`
}

func toResponse(t *domain_todo.Todo) todoResponse {
	return todoResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		IsCompleted: t.IsCompleted,
		UserID:      t.UserID,
		DateCreated: t.DateCreated.UTC(),
		DateUpdated: t.DateUpdated.UTC(),
	}
}

func toResponses(ts []*domain_todo.Todo) []todoResponse {
	out := make([]todoResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toResponse(t))
	}
	return out
}

type errorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}
