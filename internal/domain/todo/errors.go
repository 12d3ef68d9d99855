package todo

import (
	"errors"
	"fmt"
)

// ---- ドメインエラー（sentinel error） ----

var (
	// 該当 ID の Todo が存在しない。
	ErrNotFound = errors.New("todo not found")

	// 入力の形が不正（Handler 手前で弾くのが基本だが、コア側でも定義しておく）。
	ErrValidation = errors.New("validation failed")

	// ローカルストレージ側の失敗（制約違反・接続断など）。
	ErrPersistence = errors.New("persistence failure")
)

var (
	ErrEmptyTitle     = &ValidationError{Field: "title", Reason: "must not be empty"}
	ErrTitleTooLong   = &ValidationError{Field: "title", Reason: "must be at most 255 characters"}
	ErrInvalidID      = &ValidationError{Field: "id", Reason: "must be positive"}
	ErrInvalidUserID  = &ValidationError{Field: "user_id", Reason: "must be positive"}
	ErrNullTitle      = &ValidationError{Field: "title", Reason: "must not be null"}
	ErrNullUserID     = &ValidationError{Field: "user_id", Reason: "must not be null"}
	ErrNullIsComplete = &ValidationError{Field: "is_completed", Reason: "must not be null"}
)

// ValidationError はどのフィールドがなぜ不正かを持つ。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PersistenceError はドライバのエラーを包む。
// 上位は errors.Is(err, ErrPersistence) で判定し、ドライバ固有の型には依存しない。
type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("todo store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }
