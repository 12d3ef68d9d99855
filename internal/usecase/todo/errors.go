package todo_usecase

import (
	"errors"
	"fmt"

	domain_todo "github.com/hijjiri/todo-service/internal/domain/todo"
	"github.com/hijjiri/todo-service/internal/domain/user"
)

// UserNotFoundError は Users サービスが 404 を返したときのエラー。
type UserNotFoundError struct {
	UserID int64
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %d not found", e.UserID)
}

// DependencyUnavailableError は Users サービスに確認できなかったときのエラー。
// UserNotFoundError とは別物として扱う（存在するとも、しないとも仮定しない）。
type DependencyUnavailableError struct {
	UserID int64
	Reason *user.UnavailableError
}

func (e *DependencyUnavailableError) Error() string {
	return fmt.Sprintf("cannot verify user %d: %v", e.UserID, e.Reason)
}

func (e *DependencyUnavailableError) Unwrap() error { return e.Reason }

// Gateway は「相手は応答したがエラーだった」場合に true。false なら応答なし。
func (e *DependencyUnavailableError) Gateway() bool {
	return e.Reason != nil && e.Reason.Kind == user.KindGateway
}

// ErrorKind は境界で使う安定したエラー種別。
type ErrorKind string

const (
	KindValidation            ErrorKind = "validation_error"
	KindUserNotFound          ErrorKind = "user_not_found"
	KindDependencyUnavailable ErrorKind = "dependency_unavailable"
	KindTodoNotFound          ErrorKind = "todo_not_found"
	KindPersistence           ErrorKind = "persistence_error"
	KindInternal              ErrorKind = "internal_error"
)

// Kind は任意のエラーを ErrorKind に分類する。nil なら空文字。
func Kind(err error) ErrorKind {
	var (
		unf *UserNotFoundError
		dep *DependencyUnavailableError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unf):
		return KindUserNotFound
	case errors.As(err, &dep):
		return KindDependencyUnavailable
	case errors.Is(err, domain_todo.ErrNotFound):
		return KindTodoNotFound
	case errors.Is(err, domain_todo.ErrValidation):
		return KindValidation
	case errors.Is(err, domain_todo.ErrPersistence):
		return KindPersistence
	default:
		return KindInternal
	}
}
