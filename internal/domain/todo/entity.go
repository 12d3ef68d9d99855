package todo

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength はタイトルの最大文字数（バイトではなく rune で数える）。
const MaxTitleLength = 255

// Todo は Todo 集約のルートエンティティ。
// UserID は Users サービス側の ID なので、ローカルでは外部キー制約をかけない。
type Todo struct {
	ID          int64
	Title       string
	Description *string
	IsCompleted bool
	UserID      int64
	DateCreated time.Time
	DateUpdated time.Time
}

// Optional は「フィールドが送られてきたか」と「その値」を分けて持つ。
// Set=false なら変更しない。Description のように値が nil でも Set=true なら「明示的にクリア」。
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some は Set 済みの Optional を作る。
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Patch は部分更新の内容。Set されたフィールドだけが反映される。
type Patch struct {
	Title       Optional[string]
	Description Optional[*string]
	IsCompleted Optional[bool]
	UserID      Optional[int64]
}

// IsEmpty は何も変更しない Patch かどうか。
func (p Patch) IsEmpty() bool {
	return !p.Title.Set && !p.Description.Set && !p.IsCompleted.Set && !p.UserID.Set
}

// Validate は Patch の不変条件をチェックする。
// タイトルは空にできず、所有者の user_id も空にはできない。
func (p *Patch) Validate() error {
	if p.Title.Set {
		title, err := normalizeTitle(p.Title.Value)
		if err != nil {
			return err
		}
		p.Title.Value = title
	}
	if p.UserID.Set {
		if err := ValidateUserID(p.UserID.Value); err != nil {
			return err
		}
	}
	return nil
}

// Apply は Patch を t に反映した新しい値を返す（t 自体は変更しない）。
func (p Patch) Apply(t Todo) Todo {
	out := t
	if p.Title.Set {
		out.Title = p.Title.Value
	}
	if p.Description.Set {
		out.Description = cloneString(p.Description.Value)
	}
	if p.IsCompleted.Set {
		out.IsCompleted = p.IsCompleted.Value
	}
	if p.UserID.Set {
		out.UserID = p.UserID.Value
	}
	return out
}

// ---- ファクトリ / バリデーション ----

// NewTodo は「新規作成用」のコンストラクタ。
// ID とタイムスタンプはストアが採番する。
func NewTodo(title string, description *string, isCompleted bool, userID int64) (*Todo, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	return &Todo{
		Title:       title,
		Description: cloneString(description),
		IsCompleted: isCompleted,
		UserID:      userID,
	}, nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", ErrTitleTooLong
	}
	return title, nil
}

// ValidateID は ID まわりの共通バリデーション。
func ValidateID(id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	return nil
}

// ValidateUserID は所有者 ID のバリデーション。
func ValidateUserID(id int64) error {
	if id <= 0 {
		return ErrInvalidUserID
	}
	return nil
}

// Clone は Description のポインタも含めて複製する。
func (t Todo) Clone() Todo {
	t.Description = cloneString(t.Description)
	return t
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
