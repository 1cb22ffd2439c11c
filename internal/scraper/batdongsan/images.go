package batdongsan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/julianbeese/bds_crawler/internal/solver"
)

const defaultImageExt = "jpg"

// imageDownloader fetches original images over plain HTTP. The image host
// is not behind the challenge, so neither the session nor the solver is used.
type imageDownloader struct {
	client *http.Client
	prefix string
	logger *slog.Logger
}

// download saves every referenced image of a listing into dir and returns
// the local file names in encounter order.
func (d *imageDownloader) download(ctx context.Context, listingID string, refs []ImageRef, dir string) ([]string, error) {
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		src := OriginalImageURL(ref.Source, d.prefix)
		name := fmt.Sprintf("%s-%d.%s", listingID, ref.Ordinal, imageExt(src))

		if err := d.fetch(ctx, src, filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("image %s of listing %s: %w", src, listingID, err)
		}
		d.logger.Debug("image saved", "listing", listingID, "file", name)
		names = append(names, name)
	}
	return names, nil
}

func (d *imageDownloader) fetch(ctx context.Context, src, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &solver.StatusError{URL: src, StatusCode: resp.StatusCode}
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return f.Close()
}

// imageExt is the extension of the last path segment, "jpg" when there is none.
func imageExt(src string) string {
	p := src
	if u, err := url.Parse(src); err == nil {
		p = u.Path
	}
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if ext == "" {
		return defaultImageExt
	}
	return ext
}
