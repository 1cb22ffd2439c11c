package batdongsan

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/julianbeese/bds_crawler/internal/domain"
)

// crawlState is local to one Crawl call
type crawlState struct {
	records  []domain.Listing
	doc      *goquery.Document
	body     []byte
	page     int
	nextPath string
}

// Crawl runs a search with the given filter and follows result pages until
// the site runs out of pages or MaxResult listings have been collected.
// Pages are fetched strictly in order with the filter's fetch strategy.
func (e *Engine) Crawl(ctx context.Context, filter domain.SearchFilter) ([]domain.Listing, error) {
	f := e.fetcherFor(filter.Strategy)
	startPage := max(filter.StartPage, 1)

	form := BuildSearchForm(filter, e.options.ProductIDs)
	e.logger.Info("searching",
		"product_type", filter.ProductType,
		"form", form.Encode(),
		"strategy", filter.Strategy.String(),
		"start_page", startPage,
	)

	if err := e.cfg.RateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := f.post(ctx, e.cfg.SearchPath, form)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	st := &crawlState{body: body, page: 1}
	for !ceilingReached(st, filter.MaxResult) {
		st.doc, err = goquery.NewDocumentFromReader(bytes.NewReader(st.body))
		if err != nil {
			return nil, fmt.Errorf("parse page %d: %w", st.page, err)
		}

		if st.doc.Find(selEmptyResult).Length() > 0 {
			e.logger.Warn("no result found", "page", st.page)
			break
		}

		if st.page >= startPage {
			if err := e.parsePage(ctx, st, filter); err != nil {
				return nil, err
			}
		} else {
			e.logger.Debug("skipping page", "page", st.page)
		}

		if ceilingReached(st, filter.MaxResult) {
			break
		}

		next, ok := nextPagePath(st.doc)
		if !ok {
			break
		}
		st.nextPath = next

		if err := e.cfg.RateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		st.body, err = f.get(ctx, st.nextPath)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", st.page+1, err)
		}
		st.page++
	}

	e.logger.Info("crawl finished", "results", len(st.records), "pages", st.page)
	return st.records, nil
}

func (e *Engine) parsePage(ctx context.Context, st *crawlState, filter domain.SearchFilter) error {
	cards, err := genuineCards(st.doc)
	if err != nil {
		return fmt.Errorf("page %d: %w", st.page, err)
	}

	var parseErr error
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if ceilingReached(st, filter.MaxResult) {
			return false
		}
		listing, refs, err := ParseCard(card)
		if err != nil {
			parseErr = err
			return false
		}
		listing.Images, err = e.images.download(ctx, listing.ID, refs, filter.OutputDir)
		if err != nil {
			parseErr = err
			return false
		}
		st.records = append(st.records, *listing)
		return true
	})
	if parseErr != nil {
		return fmt.Errorf("page %d: %w", st.page, parseErr)
	}
	e.logger.Info("page parsed", "page", st.page, "cards", cards.Length(), "total", len(st.records))

	if filter.Debug {
		name := filepath.Join(filter.OutputDir, fmt.Sprintf("%d.html", len(st.records)))
		if err := os.WriteFile(name, st.body, 0o644); err != nil {
			return fmt.Errorf("write debug page: %w", err)
		}
		e.logger.Debug("page dumped", "file", name)
	}
	return nil
}

// genuineCards isolates the real results from suggestion cards. The first
// anchor carrying only the card-link class is always a real result; every
// card link under its grandparent is one too.
func genuineCards(doc *goquery.Document) (*goquery.Selection, error) {
	first := doc.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
		classes := strings.Fields(s.AttrOr("class", ""))
		return len(classes) == 1 && classes[0] == classCardLink
	}).First()
	if first.Length() == 0 {
		return nil, missing(classCardLink)
	}
	return first.Parent().Parent().Find(selCardLinks), nil
}

func nextPagePath(doc *goquery.Document) (string, bool) {
	icon := doc.Find(selNextPage).First()
	if icon.Length() == 0 {
		return "", false
	}
	href, ok := icon.Parent().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", false
	}
	return href, true
}

func ceilingReached(st *crawlState, maxResult int) bool {
	return maxResult > 0 && len(st.records) >= maxResult
}
