// Package user は外部 Users サービスに対する「存在確認」の契約。
// ユーザー自体はこのサービスでは永続化しない。
package user

import (
	"context"
	"fmt"
)

// Status は存在確認の 3 値。bool に潰さない（404 とネットワーク障害を区別するため）。
type Status int

const (
	StatusExists Status = iota + 1
	StatusNotFound
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusExists:
		return "exists"
	case StatusNotFound:
		return "not_found"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Kind は Unavailable の内訳。
type Kind int

const (
	// KindGateway: 相手は応答したがエラーステータス or 壊れたボディ
	KindGateway Kind = iota + 1
	// KindUnreachable: 応答なし（接続拒否・タイムアウト・キャンセル）
	KindUnreachable
)

func (k Kind) String() string {
	switch k {
	case KindGateway:
		return "gateway_error"
	case KindUnreachable:
		return "service_unreachable"
	default:
		return "unknown"
	}
}

// UnavailableError は存在確認ができなかった理由。
type UnavailableError struct {
	Kind       Kind
	StatusCode int // KindGateway のときだけ意味がある
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.Kind == KindGateway && e.StatusCode != 0 {
		return fmt.Sprintf("users service %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("users service %s: %v", e.Kind, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Result は 1 回の存在確認の結果。毎回新しく作られ、キャッシュしない。
type Result struct {
	Status Status
	// Status == StatusUnavailable のときだけ non-nil
	Err *UnavailableError
}

func Exists() Result   { return Result{Status: StatusExists} }
func NotFound() Result { return Result{Status: StatusNotFound} }

func Unavailable(kind Kind, statusCode int, err error) Result {
	return Result{
		Status: StatusUnavailable,
		Err:    &UnavailableError{Kind: kind, StatusCode: statusCode, Err: err},
	}
}

// Checker はユーザー ID の存在確認。
type Checker interface {
	CheckExists(ctx context.Context, userID int64) Result
}

// CheckerFunc は関数を Checker として使うためのアダプタ。
type CheckerFunc func(ctx context.Context, userID int64) Result

func (f CheckerFunc) CheckExists(ctx context.Context, userID int64) Result {
	return f(ctx, userID)
}
