package batdongsan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/julianbeese/bds_crawler/internal/domain"
	"github.com/julianbeese/bds_crawler/internal/solver"
)

// fetcher retrieves pages of the target site by path.
type fetcher interface {
	get(ctx context.Context, path string) ([]byte, error)
	post(ctx context.Context, path string, form url.Values) ([]byte, error)
}

func (e *Engine) fetcherFor(s domain.FetchStrategy) fetcher {
	if s == domain.FetchRelayed {
		return &relayedFetcher{solver: e.solver, baseURL: e.cfg.BaseURL}
	}
	return &directFetcher{client: e.httpClient, baseURL: e.cfg.BaseURL}
}

// directFetcher replays the solved session from this process.
type directFetcher struct {
	client  *http.Client
	baseURL string
}

func (f *directFetcher) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL(f.baseURL, path), nil)
	if err != nil {
		return nil, err
	}
	return f.do(req)
}

func (f *directFetcher) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(f.baseURL, path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req)
}

func (f *directFetcher) do(req *http.Request) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &solver.StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL, err)
	}
	return toUTF8(body, resp.Header.Get("Content-Type"))
}

// relayedFetcher sends every request through the solver session.
type relayedFetcher struct {
	solver  *solver.Client
	baseURL string
}

func (f *relayedFetcher) get(ctx context.Context, path string) ([]byte, error) {
	sol, err := f.solver.Get(ctx, joinURL(f.baseURL, path))
	if err != nil {
		return nil, err
	}
	return []byte(sol.Response), nil
}

func (f *relayedFetcher) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	sol, err := f.solver.Post(ctx, joinURL(f.baseURL, path), form)
	if err != nil {
		return nil, err
	}
	return []byte(sol.Response), nil
}

func toUTF8(body []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	return io.ReadAll(r)
}

// joinURL resolves a site path against the base url. Absolute urls are
// returned as they are.
func joinURL(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
