package todo_usecase

import (
	"context"

	domain_todo "github.com/hijjiri/todo-service/internal/domain/todo"
)

// CreateTodoCommand は書き込みの意図。
type CreateTodoCommand struct {
	Title       string
	Description *string
	IsCompleted bool
	UserID      int64
}

// GetTodosByUserQuery は読み取りの意図。
type GetTodosByUserQuery struct {
	UserID int64
}

// CommandHandler / QueryHandler は Usecase の薄いラッパ。
// ロジックは持たず、結果は Usecase を直接呼んだ場合と同じになる。
type CommandHandler struct {
	uc Usecase
}

func NewCommandHandler(uc Usecase) *CommandHandler {
	return &CommandHandler{uc: uc}
}

func (h *CommandHandler) HandleCreate(ctx context.Context, cmd CreateTodoCommand) (*domain_todo.Todo, error) {
	return h.uc.Create(ctx, CreateInput(cmd))
}

type QueryHandler struct {
	uc Usecase
}

func NewQueryHandler(uc Usecase) *QueryHandler {
	return &QueryHandler{uc: uc}
}

func (h *QueryHandler) HandleGetByUser(ctx context.Context, q GetTodosByUserQuery) ([]*domain_todo.Todo, error) {
	return h.uc.ListByUser(ctx, q.UserID)
}
