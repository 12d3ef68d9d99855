// Package users は Users マイクロサービスへの HTTP クライアント。
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hijjiri/todo-service/internal/domain/user"
)

const (
	DefaultTimeout = 2 * time.Second

	// 200 のボディは小さいはずなので上限を決めておく
	maxBodyBytes = 1 << 20

	tracerName = "github.com/hijjiri/todo-service/internal/infrastructure/users"
)

// userPayload は 200 のときに最低限必要なフィールド
type userPayload struct {
	ID *int64 `json:"id"`
}

// Client は GET {base}/users/{id} でユーザーの存在を確認する。
// リトライはしない（必要なら RetryingChecker で包む）。
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	timeout  time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer
	outcomes *prometheus.CounterVec
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout は 1 回の確認にかける上限時間。0 以下なら DefaultTimeout。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithOutcomeCounter は結果ごとのカウンタ（ラベル: outcome）。
func WithOutcomeCounter(cv *prometheus.CounterVec) Option {
	return func(c *Client) { c.outcomes = cv }
}

// NewClient は baseURL（例: http://users:8000）を必須に取る。デフォルト値は持たない。
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("users service base url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse users service base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("users service base url must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("users service base url has no host: %q", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CheckExists は 1 回だけリモートに問い合わせ、3 値の結果を返す。
func (c *Client) CheckExists(ctx context.Context, userID int64) user.Result {
	ctx, span := c.tracer.Start(ctx, "users.CheckExists",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	start := time.Now()
	res := c.check(ctx, userID)

	outcome := res.Status.String()
	if res.Err != nil {
		outcome = res.Err.Kind.String()
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		c.logger.Warn("users service unavailable",
			zap.Int64("user_id", userID),
			zap.String("kind", res.Err.Kind.String()),
			zap.Int("status_code", res.Err.StatusCode),
			zap.Duration("duration", time.Since(start)),
			zap.Error(res.Err.Err),
		)
	}
	span.SetAttributes(attribute.String("users.outcome", outcome))
	if c.outcomes != nil {
		c.outcomes.WithLabelValues(outcome).Inc()
	}
	return res
}

func (c *Client) check(ctx context.Context, userID int64) user.Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL.JoinPath("users", strconv.FormatInt(userID, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return user.Unavailable(user.KindUnreachable, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		// 接続拒否・DNS・タイムアウト・キャンセルはすべて「応答なし」
		return user.Unavailable(user.KindUnreachable, 0, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		var p userPayload
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&p); err != nil {
			if ctx.Err() != nil {
				return user.Unavailable(user.KindUnreachable, 0, ctx.Err())
			}
			return user.Unavailable(user.KindGateway, resp.StatusCode, fmt.Errorf("decode user payload: %w", err))
		}
		if p.ID == nil {
			return user.Unavailable(user.KindGateway, resp.StatusCode, errors.New("user payload has no id"))
		}
		return user.Exists()

	case http.StatusNotFound:
		// JSON で返ってきた 404 だけを「存在しない」とみなす。
		// プロキシの HTML 404 やベースパスの誤りはゲートウェイ側の異常として扱う。
		if err := decodeNotFound(resp); err != nil {
			if ctx.Err() != nil {
				return user.Unavailable(user.KindUnreachable, 0, ctx.Err())
			}
			return user.Unavailable(user.KindGateway, resp.StatusCode, err)
		}
		return user.NotFound()

	default:
		return user.Unavailable(user.KindGateway, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

func decodeNotFound(resp *http.Response) error {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || (mediaType != "application/json" && !strings.HasSuffix(mediaType, "+json")) {
		return fmt.Errorf("not found response is not JSON (content-type %q)", resp.Header.Get("Content-Type"))
	}
	var body json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return fmt.Errorf("decode not found body: %w", err)
	}
	return nil
}
