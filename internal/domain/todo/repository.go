package todo

import "context"

// Repository は Todo の永続化を抽象化する（Todo Store）。
// ユーザーの存在は知らない。トランザクションは ctx 経由で呼び出し側が与える。
type Repository interface {
	// Create は ID と両タイムスタンプを採番して保存する。
	Create(ctx context.Context, t *Todo) (*Todo, error)
	// GetByID は見つからなければ ErrNotFound。
	GetByID(ctx context.Context, id int64) (*Todo, error)
	// List は id 昇順。0 件は空スライスでエラーではない。
	List(ctx context.Context) ([]*Todo, error)
	// ListByUser も id 昇順。0 件でもユーザーが存在しないことは意味しない。
	ListByUser(ctx context.Context, userID int64) ([]*Todo, error)
	// Update は Set されたフィールドだけを書き、date_updated を更新する。
	Update(ctx context.Context, id int64, p Patch) (*Todo, error)
	// Delete は見つからなければ ErrNotFound。2 回目の削除も ErrNotFound。
	Delete(ctx context.Context, id int64) error
}

// Transactor は ctx にトランザクションをぶら下げて fn を実行する。
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
