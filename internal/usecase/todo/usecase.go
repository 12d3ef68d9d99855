package todo_usecase

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	domain_todo "github.com/hijjiri/todo-service/internal/domain/todo"
	"github.com/hijjiri/todo-service/internal/domain/user"
)

const tracerName = "github.com/hijjiri/todo-service/internal/usecase/todo"

// ===== 外部に公開する Usecase インターフェース =====

type Usecase interface {
	Create(ctx context.Context, in CreateInput) (*domain_todo.Todo, error)
	Get(ctx context.Context, id int64) (*domain_todo.Todo, error)
	List(ctx context.Context) ([]*domain_todo.Todo, error)
	ListByUser(ctx context.Context, userID int64) ([]*domain_todo.Todo, error)
	Update(ctx context.Context, id int64, p domain_todo.Patch) (*domain_todo.Todo, error)
	Delete(ctx context.Context, id int64) error
}

// CreateInput は新規作成に必要な値。
type CreateInput struct {
	Title       string
	Description *string
	IsCompleted bool
	UserID      int64
}

// ===== 実装 =====

type usecase struct {
	repo   domain_todo.Repository
	users  user.Checker
	tx     domain_todo.Transactor
	logger *zap.Logger
	tracer trace.Tracer
}

func New(repo domain_todo.Repository, users user.Checker, tx domain_todo.Transactor, logger *zap.Logger) Usecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &usecase{
		repo:   repo,
		users:  users,
		tx:     tx,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Create: 存在確認 → 保存。2 つは同じトランザクションではない。
func (u *usecase) Create(ctx context.Context, in CreateInput) (_ *domain_todo.Todo, err error) {
	ctx, span := u.start(ctx, "todo.Create", attribute.Int64("user.id", in.UserID))
	defer endSpan(span, &err)

	t, err := domain_todo.NewTodo(in.Title, in.Description, in.IsCompleted, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := u.ensureUser(ctx, "create", in.UserID); err != nil {
		return nil, err
	}
	return u.repo.Create(ctx, t)
}

// Get は存在確認なしでストアに委譲する。
func (u *usecase) Get(ctx context.Context, id int64) (_ *domain_todo.Todo, err error) {
	ctx, span := u.start(ctx, "todo.Get", attribute.Int64("todo.id", id))
	defer endSpan(span, &err)

	if err := domain_todo.ValidateID(id); err != nil {
		return nil, err
	}
	return u.repo.GetByID(ctx, id)
}

func (u *usecase) List(ctx context.Context) (_ []*domain_todo.Todo, err error) {
	ctx, span := u.start(ctx, "todo.List")
	defer endSpan(span, &err)

	return u.repo.List(ctx)
}

// ListByUser はユーザーが存在するときだけ一覧を返す。0 件は正常。
func (u *usecase) ListByUser(ctx context.Context, userID int64) (_ []*domain_todo.Todo, err error) {
	ctx, span := u.start(ctx, "todo.ListByUser", attribute.Int64("user.id", userID))
	defer endSpan(span, &err)

	if err := domain_todo.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if err := u.ensureUser(ctx, "list_by_user", userID); err != nil {
		return nil, err
	}
	return u.repo.ListByUser(ctx, userID)
}

// Update:
//  1. Todo を読む（無ければ TodoNotFound）
//  2. 更新後の所有者を確認する（payload に user_id があればそれ、無ければ今の所有者）
//  3. トランザクションの中で書く
//
// 存在確認はトランザクションの外で行う（リモート呼び出し中にコネクションを握らない）。
func (u *usecase) Update(ctx context.Context, id int64, p domain_todo.Patch) (_ *domain_todo.Todo, err error) {
	ctx, span := u.start(ctx, "todo.Update", attribute.Int64("todo.id", id))
	defer endSpan(span, &err)

	if err := domain_todo.ValidateID(id); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	current, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	owner := current.UserID
	if p.UserID.Set {
		owner = p.UserID.Value
	}
	span.SetAttributes(attribute.Int64("user.id", owner))
	if err := u.ensureUser(ctx, "update", owner); err != nil {
		return nil, err
	}

	var updated *domain_todo.Todo
	err = u.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = u.repo.Update(ctx, id, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete は存在確認なしでストアに委譲する。2 回目は TodoNotFound。
func (u *usecase) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := u.start(ctx, "todo.Delete", attribute.Int64("todo.id", id))
	defer endSpan(span, &err)

	if err := domain_todo.ValidateID(id); err != nil {
		return err
	}
	return u.repo.Delete(ctx, id)
}

// ensureUser は Exists のときだけ nil を返す。
// NotFound / Unavailable はどちらも書き込み前に中断する。
func (u *usecase) ensureUser(ctx context.Context, op string, userID int64) error {
	res := u.users.CheckExists(ctx, userID)
	switch res.Status {
	case user.StatusExists:
		return nil

	case user.StatusNotFound:
		u.logger.Info("user not found",
			zap.String("op", op),
			zap.Int64("user_id", userID),
		)
		return &UserNotFoundError{UserID: userID}

	default:
		reason := res.Err
		if reason == nil {
			reason = &user.UnavailableError{Kind: user.KindUnreachable, Err: context.Cause(ctx)}
		}
		u.logger.Warn("user existence check unavailable",
			zap.String("op", op),
			zap.Int64("user_id", userID),
			zap.String("kind", reason.Kind.String()),
			zap.Error(reason),
		)
		return &DependencyUnavailableError{UserID: userID, Reason: reason}
	}
}

func (u *usecase) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return u.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, string(Kind(*err)))
	}
	span.End()
}
