package solver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/julianbeese/bds_crawler/internal/domain"
)

// Bootstrap acquires the named solver session, lets the solver clear the
// challenge on targetURL and returns the resulting browser session.
func (c *Client) Bootstrap(ctx context.Context, targetURL string) (*domain.ChallengeSession, error) {
	if _, err := c.EnsureSession(ctx); err != nil {
		return nil, err
	}

	sol, err := c.Get(ctx, targetURL)
	if err != nil {
		return nil, fmt.Errorf("solve challenge: %w", err)
	}
	c.logger.Info("challenge solved", "url", targetURL, "cookies", len(sol.Cookies))

	session := &domain.ChallengeSession{
		Name:        c.session,
		UserAgent:   sol.UserAgent,
		Cookies:     make([]domain.Cookie, 0, len(sol.Cookies)),
		LandingHTML: sol.Response,
	}
	for _, sc := range sol.Cookies {
		session.Cookies = append(session.Cookies, sc.toDomain())
	}
	return session, nil
}

func (sc SolutionCookie) toDomain() domain.Cookie {
	cookie := domain.Cookie{
		Name:     sc.Name,
		Value:    sc.Value,
		Domain:   sc.Domain,
		Path:     sc.Path,
		HTTPOnly: sc.HTTPOnly,
		Secure:   sc.Secure,
		SameSite: sc.SameSite,
	}
	expiry := sc.Expiry
	if expiry == nil {
		expiry = sc.Expires
	}
	// negative expiry marks a session cookie
	if expiry != nil && *expiry > 0 {
		cookie.Expires = time.Unix(int64(*expiry), 0)
	}
	return cookie
}

// NewHTTPClient builds an HTTP client that presents itself with the solved
// user agent and carries the solved cookies for targetURL.
func NewHTTPClient(session *domain.ChallengeSession, targetURL string) (*http.Client, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	cookies := make([]*http.Cookie, 0, len(session.Cookies))
	for _, c := range session.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	jar.SetCookies(u, cookies)

	return &http.Client{
		Jar: jar,
		Transport: &userAgentTransport{
			userAgent: session.UserAgent,
			base:      http.DefaultTransport,
		},
	}, nil
}

type userAgentTransport struct {
	userAgent string
	base      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}
