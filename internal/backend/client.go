package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storefront/internal/platform/tracer"
	"storefront/internal/session/models"
	dErrors "storefront/pkg/domain-errors"
)

const (
	loginPath  = "/api/auth/login"
	signupPath = "/users"
	usersPath  = "/users/"

	// maxErrorBody bounds how much of an error response we read for messages.
	maxErrorBody = 64 << 10
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type authResponse struct {
	Token string             `json:"token"`
	User  models.UserPayload `json:"user"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	tracer  tracer.Tracer
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. The session manager's
// client must use a plain transport; the application's data client carries
// the invalidation interceptor instead.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer overrides the tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New constructs a backend client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  slog.Default(),
		tracer:  tracer.NewNoop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Login exchanges credentials for a bearer token and the user object.
func (c *Client) Login(ctx context.Context, email, password string) (res AuthResult, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanBackendCall,
		tracer.String(tracer.AttrEndpoint, loginPath))
	defer func() { span.End(err) }()

	return c.authenticate(ctx, loginPath, loginRequest{Email: email, Password: password})
}

// Signup registers a new account and returns a bearer token and the user
// object, exactly like Login. Only self-assignable roles are accepted.
func (c *Client) Signup(ctx context.Context, name, email, password string, role models.Role) (res AuthResult, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanBackendCall,
		tracer.String(tracer.AttrEndpoint, signupPath))
	defer func() { span.End(err) }()

	if !role.SelfAssignable() {
		return AuthResult{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("role %q cannot be chosen at signup", role))
	}
	return c.authenticate(ctx, signupPath, signupRequest{Name: name, Email: email, Password: password, Role: string(role)})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (AuthResult, error) {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return AuthResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := readErrorMessage(resp.Body)
		if msg == "" {
			msg = "authentication failed"
		}
		c.logger.WarnContext(ctx, "backend rejected authentication",
			"endpoint", path,
			"status", resp.StatusCode,
		)
		return AuthResult{}, dErrors.New(dErrors.CodeInvalidCredentials, msg)
	}

	var payload authResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return AuthResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode auth response")
	}
	if payload.Token == "" {
		return AuthResult{}, dErrors.New(dErrors.CodeInternal, "auth response missing token")
	}

	user, err := payload.User.Normalize()
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: payload.Token, User: user}, nil
}

// FetchUser confirms the credential with the backend and returns the
// normalized identity for the given user id.
func (c *Client) FetchUser(ctx context.Context, cred, userID string) (ident models.Identity, err error) {
	endpoint := usersPath + userID
	ctx, span := c.tracer.Start(ctx, tracer.SpanBackendCall,
		tracer.String(tracer.AttrEndpoint, usersPath+"{id}"))
	defer func() { span.End(err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return models.Identity{}, dErrors.Wrap(err, dErrors.CodeInternal, "build user request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred)

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Identity{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "backend unreachable")
	}
	defer resp.Body.Close()

	span.SetAttributes(tracer.Int64(tracer.AttrHTTPCode, int64(resp.StatusCode)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.Identity{}, dErrors.New(dErrors.CodeNotFound, "user not found")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		msg := readErrorMessage(resp.Body)
		if msg == "" {
			msg = "credential rejected"
		}
		return models.Identity{}, dErrors.New(dErrors.CodeUnauthorized, msg)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return models.Identity{}, dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("backend returned status %d", resp.StatusCode))
	}

	var payload models.UserPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.Identity{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode user response")
	}
	return payload.Normalize()
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "backend unreachable")
	}
	return resp, nil
}

// readErrorMessage extracts {message} (fallback {error}) from an error body.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	var body errorResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}

var _ API = (*Client)(nil)
