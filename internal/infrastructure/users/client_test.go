package users

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hijjiri/todo-service/internal/domain/user"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	t.Parallel()

	for name, raw := range map[string]string{
		"empty":     "",
		"no scheme": "users:8000",
		"ftp":       "ftp://users",
		"no host":   "http://",
	} {
		_, err := NewClient(raw)
		assert.Error(t, err, name)
	}
}

// writeUserNotFound は Users サービスが返す 404 と同じ形で返す。
func writeUserNotFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"detail":"User not found"}`))
}

func TestCheckExists_Outcomes(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		handler    http.HandlerFunc
		wantStatus user.Status
		wantKind   user.Kind
		wantCode   int
	}{
		"200 with user": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id": 1, "username": "alice"}`))
			},
			wantStatus: user.StatusExists,
		},
		"404 with json body": {
			handler:    writeUserNotFound,
			wantStatus: user.StatusNotFound,
		},
		"404 with problem+json body": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/problem+json; charset=utf-8")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"title":"not found"}`))
			},
			wantStatus: user.StatusNotFound,
		},
		"404 html from proxy": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`<html><body>404 Not Found</body></html>`))
			},
			wantStatus: user.StatusUnavailable,
			wantKind:   user.KindGateway,
			wantCode:   http.StatusNotFound,
		},
		"404 plain text": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "404 page not found", http.StatusNotFound)
			},
			wantStatus: user.StatusUnavailable,
			wantKind:   user.KindGateway,
			wantCode:   http.StatusNotFound,
		},
		"404 json content type with broken body": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"detail":`))
			},
			wantStatus: user.StatusUnavailable,
			wantKind:   user.KindGateway,
			wantCode:   http.StatusNotFound,
		},
		"500": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus: user.StatusUnavailable,
			wantKind:   user.KindGateway,
			wantCode:   http.StatusInternalServerError,
		},
		"400 is not treated as not found": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
			wantStatus: user.StatusUnavailable,
			wantKind:   user.KindGateway,
			wantCode:   http.StatusBadRequest,
		},
		"200 with malformed body": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			wantStatus: user.StatusUnavailable,
			wantKind:   user.KindGateway,
			wantCode:   http.StatusOK,
		},
		"200 without id": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
			wantStatus: user.StatusUnavailable,
			wantKind:   user.KindGateway,
			wantCode:   http.StatusOK,
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, tc.handler)
			res := c.CheckExists(context.Background(), 1)

			assert.Equal(t, tc.wantStatus, res.Status)
			if tc.wantStatus != user.StatusUnavailable {
				assert.Nil(t, res.Err)
				return
			}
			require.NotNil(t, res.Err)
			assert.Equal(t, tc.wantKind, res.Err.Kind)
			assert.Equal(t, tc.wantCode, res.Err.StatusCode)
		})
	}
}

func TestCheckExists_RequestShape(t *testing.T) {
	t.Parallel()

	var gotPath, gotAccept string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"id": 42}`))
	})

	res := c.CheckExists(context.Background(), 42)
	assert.Equal(t, user.StatusExists, res.Status)
	assert.Equal(t, "/users/42", gotPath)
	assert.Equal(t, "application/json", gotAccept)
}

func TestCheckExists_BaseURLWithPathPrefix(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		writeUserNotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL + "/api/v1/")
	require.NoError(t, err)

	res := c.CheckExists(context.Background(), 7)
	assert.Equal(t, user.StatusNotFound, res.Status)
	assert.Equal(t, "/api/v1/users/7", gotPath)
}

func TestCheckExists_TimeoutIsUnreachable(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	start := time.Now()
	res := c.CheckExists(context.Background(), 1)

	assert.Equal(t, user.StatusUnavailable, res.Status)
	require.NotNil(t, res.Err)
	assert.Equal(t, user.KindUnreachable, res.Err.Kind)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCheckExists_ConnectionRefusedIsUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url)
	require.NoError(t, err)

	res := c.CheckExists(context.Background(), 1)
	assert.Equal(t, user.StatusUnavailable, res.Status)
	require.NotNil(t, res.Err)
	assert.Equal(t, user.KindUnreachable, res.Err.Kind)
}

func TestCheckExists_CountsOutcomes(t *testing.T) {
	t.Parallel()

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_user_checks_total"}, []string{"outcome"})
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"id": 1}`))
			return
		}
		writeUserNotFound(w, r)
	}, WithOutcomeCounter(counter))

	c.CheckExists(context.Background(), 1)
	c.CheckExists(context.Background(), 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("exists")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("not_found")))
}
