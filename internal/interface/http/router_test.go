package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hijjiri/todo-service/internal/domain/user"
	"github.com/hijjiri/todo-service/internal/infrastructure/memory"
	"github.com/hijjiri/todo-service/internal/observability"
	todo_usecase "github.com/hijjiri/todo-service/internal/usecase/todo"
)

// fakeUsers: 1..99 は存在、999 は存在しない、500 は応答なし、502 はゲートウェイエラー
func fakeUsers(calls *atomic.Int32) user.Checker {
	return user.CheckerFunc(func(ctx context.Context, id int64) user.Result {
		calls.Add(1)
		switch {
		case id == 500:
			return user.Unavailable(user.KindUnreachable, 0, context.DeadlineExceeded)
		case id == 502:
			return user.Unavailable(user.KindGateway, http.StatusBadGateway, errors.New("bad gateway"))
		case id > 0 && id < 100:
			return user.Exists()
		default:
			return user.NotFound()
		}
	})
}

type e2e struct {
	t       *testing.T
	router  http.Handler
	metrics *observability.Metrics
	checks  *atomic.Int32
}

func newE2E(t *testing.T) *e2e {
	t.Helper()

	checks := &atomic.Int32{}
	clock := time.Date(2024, 7, 14, 9, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	repo := memory.NewTodoRepository(memory.WithClock(func() time.Time {
		return clock.Add(time.Duration(tick.Add(1)) * time.Second)
	}))
	uc := todo_usecase.New(repo, fakeUsers(checks), memory.NopTransactor{}, zap.NewNop())

	m := observability.NewMetrics()
	return &e2e{
		t:       t,
		router:  NewRouter(uc, RouterConfig{Metrics: m, RequestTimeout: time.Second}),
		metrics: m,
		checks:  checks,
	}
}

func (e *e2e) do(method, target, body string) *httptest.ResponseRecorder {
	e.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *e2e) todo(rec *httptest.ResponseRecorder) todoResponse {
	e.t.Helper()
	var got todoResponse
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func TestE2E_Lifecycle(t *testing.T) {
	t.Parallel()
	e := newE2E(t)

	// 作成
	rec := e.do(http.MethodPost, "/todos", `{"title":"Buy milk","description":"2%","is_completed":false,"user_id":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := e.todo(rec)
	assert.Positive(t, created.ID)
	assert.False(t, created.IsCompleted)
	assert.True(t, created.DateCreated.Equal(created.DateUpdated))

	// 取得
	rec = e.do(http.MethodGet, fmt.Sprintf("/todos/%d", created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, e.todo(rec))

	// 部分更新: description をクリアして完了にする
	rec = e.do(http.MethodPut, fmt.Sprintf("/todos/%d", created.ID), `{"description":null,"is_completed":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := e.todo(rec)
	assert.Equal(t, "Buy milk", updated.Title)
	assert.Nil(t, updated.Description)
	assert.True(t, updated.IsCompleted)
	assert.Equal(t, int64(1), updated.UserID)
	assert.True(t, updated.DateCreated.Equal(created.DateCreated))
	assert.True(t, updated.DateUpdated.After(created.DateUpdated))

	// ユーザー単位の一覧
	rec = e.do(http.MethodGet, "/todos/user/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Buy milk"`)

	// 削除は 1 回だけ成功する
	rec = e.do(http.MethodDelete, fmt.Sprintf("/todos/%d", created.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(http.MethodDelete, fmt.Sprintf("/todos/%d", created.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "todo_not_found", decodeError(t, rec).Kind)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.HTTPRequests.WithLabelValues(http.MethodPost, "/todos", "201")))
}

func TestE2E_ExistenceGate(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		userID     int64
		wantStatus int
		wantKind   string
	}{
		"not found":   {userID: 999, wantStatus: http.StatusNotFound, wantKind: "user_not_found"},
		"unreachable": {userID: 500, wantStatus: http.StatusServiceUnavailable, wantKind: "dependency_unavailable"},
		"gateway":     {userID: 502, wantStatus: http.StatusBadGateway, wantKind: "dependency_unavailable"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			e := newE2E(t)

			rec := e.do(http.MethodPost, "/todos", fmt.Sprintf(`{"title":"A","user_id":%d}`, tc.userID))
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantKind, decodeError(t, rec).Kind)

			rec = e.do(http.MethodGet, fmt.Sprintf("/users/%d/todos", tc.userID), "")
			assert.Equal(t, tc.wantStatus, rec.Code)

			// どれも保存されていない
			rec = e.do(http.MethodGet, "/todos", "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `[]`, rec.Body.String())
		})
	}
}

func TestE2E_UpdateValidatesOwner(t *testing.T) {
	t.Parallel()
	e := newE2E(t)

	rec := e.do(http.MethodPost, "/todos", `{"title":"A","user_id":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := e.todo(rec).ID

	// 存在しないユーザーへの付け替えは拒否され、元の値のまま
	rec = e.do(http.MethodPut, fmt.Sprintf("/todos/%d", id), `{"user_id":999,"title":"B"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user_not_found", decodeError(t, rec).Kind)

	rec = e.do(http.MethodGet, fmt.Sprintf("/todos/%d", id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := e.todo(rec)
	assert.Equal(t, "A", got.Title)
	assert.Equal(t, int64(2), got.UserID)

	// 存在しない todo は存在確認より先に 404
	before := e.checks.Load()
	rec = e.do(http.MethodPut, "/todos/12345", `{"title":"C"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "todo_not_found", decodeError(t, rec).Kind)
	assert.Equal(t, before, e.checks.Load())
}

func TestE2E_TitleLengthLimit(t *testing.T) {
	t.Parallel()
	e := newE2E(t)

	tooLong := strings.Repeat("a", 300)

	rec := e.do(http.MethodPost, "/todos", fmt.Sprintf(`{"title":%q,"user_id":1}`, tooLong))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	got := decodeError(t, rec)
	assert.Equal(t, "validation_error", got.Kind)
	assert.Equal(t, "title", got.Field)
	assert.Equal(t, int32(0), e.checks.Load())

	// 255 文字ちょうど（マルチバイト）は作成できる
	atLimit := strings.Repeat("あ", 255)
	rec = e.do(http.MethodPost, "/todos", fmt.Sprintf(`{"title":%q,"user_id":1}`, atLimit))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := e.todo(rec)
	assert.Equal(t, atLimit, created.Title)

	// 更新でも同じ制限がかかり、ストアには届かない
	before := e.checks.Load()
	rec = e.do(http.MethodPut, fmt.Sprintf("/todos/%d", created.ID), fmt.Sprintf(`{"title":%q}`, tooLong))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	got = decodeError(t, rec)
	assert.Equal(t, "validation_error", got.Kind)
	assert.Equal(t, "title", got.Field)
	assert.Equal(t, before, e.checks.Load())

	rec = e.do(http.MethodGet, fmt.Sprintf("/todos/%d", created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, atLimit, e.todo(rec).Title)
}

func TestE2E_EmptyListForExistingUser(t *testing.T) {
	t.Parallel()
	e := newE2E(t)

	rec := e.do(http.MethodGet, "/todos/user/42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestE2E_ReadsDoNotCheckUsers(t *testing.T) {
	t.Parallel()
	e := newE2E(t)

	e.do(http.MethodGet, "/todos", "")
	e.do(http.MethodGet, "/todos/1", "")
	e.do(http.MethodDelete, "/todos/1", "")
	assert.Equal(t, int32(0), e.checks.Load())
}

func TestE2E_MetricsEndpoint(t *testing.T) {
	t.Parallel()
	e := newE2E(t)

	e.do(http.MethodGet, "/todos", "")
	rec := e.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "todo_service_http_requests_total")
}
