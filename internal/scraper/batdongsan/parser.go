package batdongsan

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/julianbeese/bds_crawler/internal/domain"
)

// ImageRef is an image found on a card, before download.
// Ordinal is the 1-based position of the img element inside the card.
type ImageRef struct {
	Ordinal int
	Source  string
}

// ParseCard extracts one listing from a genuine result card anchor.
// Images are returned as references; downloading them is up to the caller.
func ParseCard(card *goquery.Selection) (*domain.Listing, []ImageRef, error) {
	listing := &domain.Listing{
		ID:  strings.TrimSpace(card.AttrOr(attrProductID, "")),
		URL: card.AttrOr("href", ""),
	}
	if listing.ID == "" {
		return nil, nil, missing(attrProductID)
	}

	if err := parseCardBody(card, listing); err != nil {
		return nil, nil, fmt.Errorf("listing %s: %w", listing.ID, err)
	}
	return listing, imageRefs(card), nil
}

func parseCardBody(card *goquery.Selection, l *domain.Listing) error {
	title, ok := card.Find(selCardInfo).First().Attr(attrTitle)
	if !ok {
		return missing(selCardInfo)
	}
	l.Title = title

	config := card.Find(selCardConfig).First()
	if config.Length() == 0 {
		return missing(selCardConfig)
	}
	l.Price = strings.TrimSpace(config.Find(selCardPrice).First().Text())

	area := config.Find(selCardArea).First()
	if area.Length() == 0 {
		return missing(selCardArea)
	}
	areaText := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(area.Text()), areaSuffix))
	m2, err := ParseNumber(areaText)
	if err != nil {
		return fmt.Errorf("area: %w", err)
	}
	l.AreaM2 = m2

	if l.Rooms, err = optionalInt(config, selCardBedroom); err != nil {
		return fmt.Errorf("bedrooms: %w", err)
	}
	if l.Bathrooms, err = optionalInt(config, selCardToilet); err != nil {
		return fmt.Errorf("toilets: %w", err)
	}

	if l.District, l.City, err = parseLocation(card); err != nil {
		return err
	}

	if l.PublishedAt, err = parsePublished(card); err != nil {
		return err
	}
	return nil
}

// ParseNumber reads a number written with "." as thousands separator and
// "," as decimal mark, e.g. "1.234,5".
func ParseNumber(s string) (float64, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	clean = strings.ReplaceAll(clean, ",", ".")
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedNumber, s)
	}
	return v, nil
}

func optionalInt(parent *goquery.Selection, selector string) (*int, error) {
	el := parent.Find(selector).First()
	if el.Length() == 0 {
		return nil, nil
	}
	raw := strings.TrimSpace(el.Text())
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedNumber, raw)
	}
	return &n, nil
}

func parseLocation(card *goquery.Selection) (district, city string, err error) {
	loc := card.Find(selCardLocation).First()
	if loc.Length() == 0 {
		return "", "", missing(selCardLocation)
	}
	spans := loc.Find("span")
	if spans.Length() == 0 {
		return "", "", missing(selCardLocation + " span")
	}
	raw := strings.TrimSpace(spans.Last().Text())
	parts := strings.Split(raw, locationSep)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedLocation, raw)
	}
	return parts[0], parts[1], nil
}

// parsePublished reads the d/m/y publish date. Cards without one yield the
// zero time.
func parsePublished(card *goquery.Selection) (time.Time, error) {
	label, ok := card.Find(selCardPublished).First().Attr(attrPublished)
	if !ok {
		return time.Time{}, nil
	}
	label = strings.TrimSpace(label)
	t, err := time.Parse(dateLayout, label)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, label)
	}
	return t, nil
}

func imageRefs(card *goquery.Selection) []ImageRef {
	var refs []ImageRef
	card.Find(selCardImages).Each(func(i int, img *goquery.Selection) {
		for _, attr := range imageSourceAttrs {
			if src, ok := img.Attr(attr); ok {
				refs = append(refs, ImageRef{Ordinal: i + 1, Source: src})
				return
			}
		}
	})
	return refs
}

// OriginalImageURL turns a cropped or resized image url
// ({prefix}crop/{size}/{rest} or {prefix}resize/{size}/{rest}) into the
// url of the original upload ({prefix}{rest}). Anything else is returned
// unchanged, so applying it twice is the same as applying it once.
func OriginalImageURL(src, prefix string) string {
	rest, ok := strings.CutPrefix(src, prefix)
	if !ok {
		return src
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) == 3 && (parts[0] == "crop" || parts[0] == "resize") {
		return prefix + parts[2]
	}
	return src
}
