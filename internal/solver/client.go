package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Commands understood by the solver proxy
const (
	cmdSessionsList   = "sessions.list"
	cmdSessionsCreate = "sessions.create"
	cmdRequestGet     = "request.get"
	cmdRequestPost    = "request.post"
)

// StatusError reports a non-success answer from the solver or, for relayed
// requests, from the target site behind it.
type StatusError struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
}

type command struct {
	Cmd        string `json:"cmd"`
	Session    string `json:"session,omitempty"`
	URL        string `json:"url,omitempty"`
	MaxTimeout int64  `json:"maxTimeout,omitempty"`
	PostData   string `json:"postData,omitempty"`
}

type reply struct {
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	Sessions []string  `json:"sessions"`
	Solution *Solution `json:"solution"`
}

// Solution is what the solver returns for a relayed request
type Solution struct {
	URL       string           `json:"url"`
	Status    int              `json:"status"`
	Response  string           `json:"response"`
	UserAgent string           `json:"userAgent"`
	Cookies   []SolutionCookie `json:"cookies"`
}

// SolutionCookie is a browser cookie as reported by the solver. Depending on
// the solver build the expiry arrives as "expires" or "expiry" (unix seconds).
type SolutionCookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain"`
	Path     string   `json:"path"`
	Expires  *float64 `json:"expires,omitempty"`
	Expiry   *float64 `json:"expiry,omitempty"`
	HTTPOnly bool     `json:"httpOnly"`
	Secure   bool     `json:"secure"`
	SameSite string   `json:"sameSite"`
}

// Client talks to a FlareSolverr compatible challenge-solving proxy
type Client struct {
	endpoint   string
	session    string
	maxTimeout time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a solver client bound to one named session
func NewClient(endpoint, session string, maxTimeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   endpoint,
		session:    session,
		maxTimeout: maxTimeout,
		httpClient: &http.Client{Timeout: maxTimeout},
		logger:     logger,
	}
}

// Session returns the name of the solver session this client uses
func (c *Client) Session() string {
	return c.session
}

// ListSessions returns the names of the sessions the solver keeps open
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	r, err := c.do(ctx, command{Cmd: cmdSessionsList})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return r.Sessions, nil
}

// CreateSession opens the client's named session on the solver
func (c *Client) CreateSession(ctx context.Context) error {
	if _, err := c.do(ctx, command{Cmd: cmdSessionsCreate, Session: c.session}); err != nil {
		return fmt.Errorf("create session %s: %w", c.session, err)
	}
	return nil
}

// EnsureSession reuses the named session if the solver already has it and
// creates it otherwise. Solving a challenge is expensive, so the session is
// shared by every crawl that talks to the same solver process.
func (c *Client) EnsureSession(ctx context.Context) (created bool, err error) {
	sessions, err := c.ListSessions(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range sessions {
		if s == c.session {
			c.logger.Info("reusing solver session", "session", c.session)
			return false, nil
		}
	}

	c.logger.Info("solver session not found, creating it", "session", c.session)
	if err := c.CreateSession(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Get relays a GET of targetURL through the solver session
func (c *Client) Get(ctx context.Context, targetURL string) (*Solution, error) {
	return c.relay(ctx, command{
		Cmd:        cmdRequestGet,
		URL:        targetURL,
		Session:    c.session,
		MaxTimeout: c.maxTimeout.Milliseconds(),
	})
}

// Post relays a form POST of targetURL through the solver session
func (c *Client) Post(ctx context.Context, targetURL string, form url.Values) (*Solution, error) {
	return c.relay(ctx, command{
		Cmd:        cmdRequestPost,
		URL:        targetURL,
		Session:    c.session,
		MaxTimeout: c.maxTimeout.Milliseconds(),
		PostData:   form.Encode(),
	})
}

func (c *Client) relay(ctx context.Context, cmd command) (*Solution, error) {
	r, err := c.do(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", cmd.Cmd, cmd.URL, err)
	}
	if r.Solution == nil {
		return nil, fmt.Errorf("%s %s: reply has no solution", cmd.Cmd, cmd.URL)
	}
	if s := r.Solution.Status; s != 0 && (s < 200 || s > 299) {
		return nil, &StatusError{URL: cmd.URL, StatusCode: s, Message: "target responded through solver"}
	}
	return r.Solution, nil
}

func (c *Client) do(ctx context.Context, cmd command) (*reply, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("solver command", "cmd", cmd.Cmd, "url", cmd.URL, "session", cmd.Session)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}

	var r reply
	decodeErr := json.Unmarshal(data, &r)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: c.endpoint, StatusCode: resp.StatusCode, Message: r.Message}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode reply: %w", decodeErr)
	}
	if r.Status != "" && r.Status != "ok" {
		return nil, fmt.Errorf("solver status %q: %s", r.Status, r.Message)
	}
	return &r, nil
}
