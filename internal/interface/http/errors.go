package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	domain_todo "github.com/hijjiri/todo-service/internal/domain/todo"
	todo_usecase "github.com/hijjiri/todo-service/internal/usecase/todo"
)

const kindTimeout = "timeout"

// statusFor はエラー種別と HTTP ステータスの対応表。ここ以外でステータスを決めない。
func statusFor(err error) (int, errorResponse) {
	kind := todo_usecase.Kind(err)
	body := errorResponse{Error: err.Error(), Kind: string(kind)}

	switch kind {
	case todo_usecase.KindValidation:
		var ve *domain_todo.ValidationError
		if errors.As(err, &ve) {
			body.Field = ve.Field
			body.Reason = ve.Reason
		}
		return http.StatusBadRequest, body
	case todo_usecase.KindUserNotFound, todo_usecase.KindTodoNotFound:
		return http.StatusNotFound, body
	case todo_usecase.KindDependencyUnavailable:
		var dep *todo_usecase.DependencyUnavailableError
		errors.As(err, &dep)
		body.Error = "users service unavailable"
		if dep.Reason != nil {
			body.Reason = dep.Reason.Kind.String()
		}
		if dep.Gateway() {
			return http.StatusBadGateway, body
		}
		return http.StatusServiceUnavailable, body
	default:
		// 中身はログにだけ出す
		body.Error = "internal error"
		return http.StatusInternalServerError, body
	}
}

// writeError はエラーを JSON で返す。5xx はログに詳細を残す。
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("kind", body.Kind),
			zap.String("request_id", requestIDFrom(c)),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// writeBadRequest はバインド・パースの失敗用。
// クライアントには field / reason だけを返し、元のエラーはログに残す。
func writeBadRequest(c *gin.Context, logger *zap.Logger, err error) {
	logger.Info("bad request",
		zap.String("route", c.FullPath()),
		zap.String("request_id", requestIDFrom(c)),
		zap.Error(err),
	)
	_ = c.Error(err)

	ve := bindError(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Error:  ve.Error(),
		Kind:   string(todo_usecase.KindValidation),
		Field:  ve.Field,
		Reason: ve.Reason,
	})
}

// bindError は ShouldBindJSON のエラーを ValidationError に置き換える。
func bindError(err error) *domain_todo.ValidationError {
	var ve *domain_todo.ValidationError
	if errors.As(err, &ve) {
		return ve
	}

	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		fe := fields[0]
		return &domain_todo.ValidationError{Field: fe.Field(), Reason: validationReason(fe)}
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return &domain_todo.ValidationError{Field: field, Reason: "must be of type " + typeErr.Type.String()}
	}

	if errors.Is(err, io.EOF) {
		return &domain_todo.ValidationError{Field: "body", Reason: "must not be empty"}
	}
	return &domain_todo.ValidationError{Field: "body", Reason: "must be valid JSON"}
}

func validationReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

var registerFieldNames sync.Once

// useJSONFieldNames は validator のフィールド名を json タグの名前にする。
func useJSONFieldNames() {
	registerFieldNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}
