package batdongsan

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/julianbeese/bds_crawler/internal/solver"
)

const landingForm = `
<form id="boxSearchForm">
  <ul class="re__product-type-tab js__product-type">
    <li data-type="38"> Nhà đất bán </li>
    <li data-type="49">Nhà đất cho thuê</li>
    <li data-type="7">Dự án</li>
  </ul>
  <div class="re__direction">
    <div data-value="1">Đông</div>
    <div data-value="5">Đông - Nam</div>
    <div data-value="3">Nam</div>
    <div>no code</div>
  </div>
  <div class="re__city">
    <div><span>Tất cả Tỉnh/Thành</span></div>
    <ul>
      <li value="SG">Hồ Chí Minh</li>
      <li value="HN">Hà Nội</li>
      <li>Xem thêm</li>
    </ul>
  </div>
  <div class="js__sell-price-select-list">
    <ul><li value="-1">Tất cả mức giá</li><li value="1">Dưới 500 triệu</li><li value="2">500 - 800 triệu</li></ul>
  </div>
  <div class="js__rent-price-select-list">
    <ul><li value="1">Dưới 1 triệu</li><li value="2"> </li></ul>
  </div>
  <div class="re__area">
    <div><span>Tất cả diện tích</span></div>
    <ul><li value="1">Dưới 30 m²</li><li value="2">30 - 50 m²</li></ul>
  </div>
</form>`

func landingPage(form string) string {
	return "<html><head><title>Batdongsan</title></head><body>" + form + "</body></html>"
}

func cardHTML(id, imgPrefix string) string {
	return fmt.Sprintf(`
<div class="js__card">
  <a class="js__product-link-for-product-id" data-product-id="%[1]s" href="/ban-nha-rieng/pr%[1]s">
    <div class="re__card-image">
      <img src="%[2]scrop/200x200/2024/01/%[1]s-a.jpg">
      <img data-src="%[2]sresize/600x400/2024/01/%[1]s-b.png">
      <img alt="placeholder">
    </div>
    <div class="re__card-info" title="Nhà %[1]s quận 1">
      <div class="re__card-config js__card-config">
        <span class="re__card-config-price">5,5 tỷ</span>
        <span class="re__card-config-area">1.234,5 m²</span>
        <span class="re__card-config-bedroom">3</span>
      </div>
      <div class="re__card-location"><span>·</span><span>Quận 1, Hồ Chí Minh</span></div>
      <span class="re__card-published-info-published-at" aria-label="05/03/2024">Hôm nay</span>
    </div>
  </a>
</div>`, id, imgPrefix)
}

func resultPage(next string, cards ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body>
<div class="re__suggestion"><div>
  <a class="js__product-link-for-product-id re__card-suggest" data-product-id="999" href="/suggest">suggested</a>
</div></div>
<div id="product-lists-web">`)
	for _, c := range cards {
		b.WriteString(c)
	}
	b.WriteString(`</div>`)
	if next != "" {
		fmt.Fprintf(&b, `<div class="re__pagination-group"><a class="re__pagination-icon" href="%s"><i class="re__icon-chevron-right--sm"></i></a></div>`, next)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

const emptyPage = `<html><body><div class="re__srp-empty js__srp-empty">Không tìm thấy</div></body></html>`

// fakeSite stands in for the target site, the solver in front of it and
// the image host.
type fakeSite struct {
	t *testing.T

	mu       sync.Mutex
	landing  string
	pages    map[string]string // "METHOD /path" -> html
	direct   []string
	relayed  []string
	images   []string
	forms    []url.Values
	badImage bool

	target *httptest.Server
	solver *httptest.Server
	img    *httptest.Server
}

const (
	testUserAgent = "Mozilla/5.0 (solved)"
	testCookie    = "cf_clearance"
)

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	s := &fakeSite{t: t, landing: landingPage(landingForm), pages: map[string]string{}}

	s.target = httptest.NewServer(http.HandlerFunc(s.serveTarget))
	s.solver = httptest.NewServer(http.HandlerFunc(s.serveSolver))
	s.img = httptest.NewServer(http.HandlerFunc(s.serveImage))
	t.Cleanup(func() {
		s.target.Close()
		s.solver.Close()
		s.img.Close()
	})
	return s
}

func (s *fakeSite) imgPrefix() string {
	return s.img.URL + "/"
}

func (s *fakeSite) page(method, path, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[method+" "+path] = html
}

func (s *fakeSite) lookup(method, path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	html, ok := s.pages[method+" "+path]
	return html, ok
}

func (s *fakeSite) serveTarget(w http.ResponseWriter, r *http.Request) {
	if r.UserAgent() != testUserAgent {
		http.Error(w, "bad user agent", http.StatusForbidden)
		return
	}
	if _, err := r.Cookie(testCookie); err != nil {
		http.Error(w, "challenge", http.StatusForbidden)
		return
	}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	s.mu.Lock()
	s.direct = append(s.direct, r.Method+" "+r.URL.Path)
	if r.Method == http.MethodPost {
		s.forms = append(s.forms, r.PostForm)
	}
	s.mu.Unlock()

	html, ok := s.lookup(r.Method, r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

type solverCommand struct {
	Cmd      string `json:"cmd"`
	Session  string `json:"session"`
	URL      string `json:"url"`
	PostData string `json:"postData"`
}

func (s *fakeSite) serveSolver(w http.ResponseWriter, r *http.Request) {
	var cmd solverCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out := map[string]any{"status": "ok", "message": ""}
	switch cmd.Cmd {
	case "sessions.list":
		out["sessions"] = []string{}
	case "sessions.create":
	case "request.get", "request.post":
		u, err := url.Parse(cmd.URL)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		method := http.MethodGet
		if cmd.Cmd == "request.post" {
			method = http.MethodPost
		}

		var html string
		status := http.StatusOK
		if method == http.MethodGet && (u.Path == "" || u.Path == "/") {
			html = s.landing
		} else {
			s.mu.Lock()
			s.relayed = append(s.relayed, method+" "+u.Path)
			if cmd.PostData != "" {
				form, _ := url.ParseQuery(cmd.PostData)
				s.forms = append(s.forms, form)
			}
			s.mu.Unlock()

			var ok bool
			if html, ok = s.lookup(method, u.Path); !ok {
				status = http.StatusNotFound
			}
		}
		out["solution"] = map[string]any{
			"url":       cmd.URL,
			"status":    status,
			"response":  html,
			"userAgent": testUserAgent,
			"cookies": []map[string]any{
				{"name": testCookie, "value": "solved", "path": "/", "expiry": float64(time.Now().Add(time.Hour).Unix()), "httpOnly": true},
			},
		}
	default:
		http.Error(w, "unknown command", http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (s *fakeSite) serveImage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.images = append(s.images, r.URL.Path)
	bad := s.badImage
	s.mu.Unlock()

	if bad {
		http.Error(w, "gone", http.StatusGone)
		return
	}
	_, _ = io.WriteString(w, "image:"+r.URL.Path)
}

func (s *fakeSite) solverClient() *solver.Client {
	return solver.NewClient(s.solver.URL+"/v1", "test_solver", 10*time.Second, discardLogger())
}

func (s *fakeSite) config() Config {
	return Config{
		BaseURL:     s.target.URL,
		ImagePrefix: s.imgPrefix(),
	}
}

func (s *fakeSite) directRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.direct...)
}

func (s *fakeSite) relayedRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.relayed...)
}

func (s *fakeSite) imageRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.images...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
