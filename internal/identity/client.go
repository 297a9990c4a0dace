package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opendreams/opendreams/internal/apperror"
	"github.com/opendreams/opendreams/internal/sanitize"
)

// tracerName identifies spans emitted by the gateway client.
const tracerName = "github.com/opendreams/opendreams/internal/identity"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// defaultTimeout bounds a single call when no WithTimeout option is given.
const defaultTimeout = 10 * time.Second

// Client implements Gateway over the identity service's HTTP API.
type Client struct {
	endpoint   string
	http       *http.Client
	timeout    time.Duration
	jar        TokenJar
	redirector Redirector
	tracer     trace.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-call deadline. Non-positive values are ignored.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTokenJar sets where the bearer token is kept between calls.
// Default: an in-memory jar that does not survive restarts.
func WithTokenJar(jar TokenJar) ClientOption {
	return func(c *Client) {
		c.jar = jar
	}
}

// WithRedirector enables social sign-in.
func WithRedirector(r Redirector) ClientOption {
	return func(c *Client) {
		c.redirector = r
	}
}

// NewClient creates a gateway client for the service at baseURL, with the
// auth API mounted under basePath (e.g. "/api/auth").
func NewClient(baseURL, basePath string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/" + strings.Trim(basePath, "/"),
		http:     &http.Client{},
		timeout:  defaultTimeout,
		jar:      &memoryJar{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignInEmail authenticates with email and password.
func (c *Client) SignInEmail(ctx context.Context, creds EmailCredentials) (*AuthData, error) {
	var data AuthData
	if err := c.call(ctx, "sign_in_email", http.MethodPost, "/sign-in/email", creds, &data); err != nil {
		return nil, err
	}
	return c.adopt(ctx, &data)
}

// SignUpEmail registers a new account and signs it in.
func (c *Client) SignUpEmail(ctx context.Context, req SignUpRequest) (*AuthData, error) {
	var data AuthData
	if err := c.call(ctx, "sign_up_email", http.MethodPost, "/sign-up/email", req, &data); err != nil {
		return nil, err
	}
	return c.adopt(ctx, &data)
}

// SignInSocial starts the provider handshake, waits for the redirector to
// deliver the session token from the callback, then fetches the session.
// The wait for the user is bounded by the redirector, not the call timeout.
func (c *Client) SignInSocial(ctx context.Context, provider, callbackURL string) (*AuthData, error) {
	if c.redirector == nil {
		return nil, apperror.NewInternal(errors.New("social sign-in has no redirector configured"))
	}

	var start socialResponse
	body := socialRequest{Provider: provider, CallbackURL: callbackURL}
	if err := c.call(ctx, "sign_in_social", http.MethodPost, "/sign-in/social", body, &start); err != nil {
		return nil, err
	}
	if start.URL == "" {
		return nil, apperror.NewInternal(errors.New("identity service returned no authorization URL"))
	}

	token, err := c.redirector.Redirect(ctx, start.URL, callbackURL)
	if err != nil {
		return nil, err
	}

	// The jar keeps the previous token until the new one is confirmed.
	var data *AuthData
	if err := c.send(ctx, "get_session", http.MethodGet, "/get-session", token, nil, &data); err != nil {
		return nil, err
	}
	if !data.Complete() {
		return nil, apperror.NewUnauthorized(fmt.Sprintf("%s sign in did not complete", providerLabel(provider)))
	}
	if err := c.jar.SetToken(ctx, token); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("storing session token: %w", err))
	}
	return data, nil
}

// SignOut revokes the session on the service. The local token is dropped
// whatever the outcome.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.call(ctx, "sign_out", http.MethodPost, "/sign-out", struct{}{}, nil)
	if clearErr := c.jar.Clear(ctx); clearErr != nil {
		slog.Warn("failed to clear session token", slog.Any("error", clearErr))
	}
	return err
}

// GetSession returns the live session, or (nil, nil) when the service has
// none for the current token.
func (c *Client) GetSession(ctx context.Context) (*AuthData, error) {
	var data *AuthData
	if err := c.call(ctx, "get_session", http.MethodGet, "/get-session", nil, &data); err != nil {
		return nil, err
	}
	if !data.Complete() {
		if err := c.jar.Clear(ctx); err != nil {
			slog.Warn("failed to clear session token", slog.Any("error", err))
		}
		return nil, nil
	}
	return data, nil
}

// adopt validates a sign-in response and remembers its token.
func (c *Client) adopt(ctx context.Context, data *AuthData) (*AuthData, error) {
	if !data.Complete() {
		return nil, apperror.NewInternal(errors.New("identity service returned an incomplete session"))
	}
	if err := c.jar.SetToken(ctx, data.Session.Token); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("storing session token: %w", err))
	}
	return data, nil
}

// call performs one request against the auth API, presenting the token
// held in the jar.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	token, err := c.jar.Token(ctx)
	if err != nil {
		slog.Warn("failed to read session token", slog.String("op", op), slog.Any("error", err))
	}
	return c.send(ctx, op, method, path, token, in, out)
}

// send performs one request under the per-call timeout with an explicit
// bearer token (none when empty). A non-nil out receives the decoded 2xx body.
func (c *Client) send(ctx context.Context, op, method, path, token string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "identity."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return apperror.NewInternal(fmt.Errorf("encoding %s request: %w", op, err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("building %s request: %w", op, err))
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.String("request.id", requestID),
	)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return apperror.NewTimeout(fmt.Errorf("%s: %w", op, err))
		}
		return apperror.NewUnavailable(fmt.Errorf("%s: %w", op, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperror.NewUnavailable(fmt.Errorf("reading %s response: %w", op, err))
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	slog.Debug("identity call",
		slog.String("op", op),
		slog.String("request_id", requestID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperror.NewInternal(fmt.Errorf("decoding %s response: %w", op, err))
	}
	return nil
}

// statusError maps a non-2xx response to an apperror carrying the
// service's message where one is safe to show.
func statusError(status int, raw []byte) error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	message := sanitize.Text(body.Message)
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		return apperror.NewUnauthorized(message)
	case status == http.StatusForbidden:
		return apperror.NewForbidden(message)
	case status == http.StatusConflict:
		return apperror.NewConflict(message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperror.NewValidation(message)
	case status == http.StatusTooManyRequests:
		return apperror.NewRateLimited(message)
	case status >= 500:
		return apperror.NewUnavailable(fmt.Errorf("identity service returned %d: %s", status, message))
	default:
		return apperror.NewBadRequest(message)
	}
}

// providerLabel turns a provider id into a display name.
func providerLabel(provider string) string {
	if provider == "" {
		return "Social"
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}

// memoryJar is the default TokenJar. It forgets everything on restart.
type memoryJar struct {
	mu    sync.Mutex
	token string
}

func (j *memoryJar) Token(ctx context.Context) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.token, nil
}

func (j *memoryJar) SetToken(ctx context.Context, token string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.token = token
	return nil
}

func (j *memoryJar) Clear(ctx context.Context) error {
	return j.SetToken(ctx, "")
}
