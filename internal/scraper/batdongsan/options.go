package batdongsan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/julianbeese/bds_crawler/internal/domain"
)

// ExtractOptions reads every option taxonomy from the landing page search form.
func ExtractOptions(form *goquery.Selection) (*domain.Options, error) {
	ids, err := productTypeIDs(form)
	if err != nil {
		return nil, err
	}

	opts := &domain.Options{ProductIDs: ids}

	if opts.Directions, err = directionMap(form); err != nil {
		return nil, err
	}
	if opts.Cities, err = bracketMap(form, labelAllCities, false); err != nil {
		return nil, err
	}
	if opts.PriceSell, err = listMap(form, selSellPriceItems); err != nil {
		return nil, err
	}
	if opts.PriceRent, err = listMap(form, selRentPriceItems); err != nil {
		return nil, err
	}
	if opts.Areas, err = bracketMap(form, labelAllAreas, true); err != nil {
		return nil, err
	}
	return opts, nil
}

func productTypeIDs(form *goquery.Selection) (domain.ProductTypeIDs, error) {
	var ids domain.ProductTypeIDs

	tabs := form.Find(selProductTabs)
	if tabs.Length() == 0 {
		return ids, missing(selProductTabs)
	}

	var parseErr error
	tabs.EachWithBreak(func(_ int, li *goquery.Selection) bool {
		var target *int
		switch normalizedText(li) {
		case normalize(labelSell):
			target = &ids.Sell
		case normalize(labelRent):
			target = &ids.Rent
		default:
			return true
		}
		raw := strings.TrimSpace(li.AttrOr(attrProductType, ""))
		n, err := strconv.Atoi(raw)
		if err != nil {
			parseErr = &StructuralError{Anchor: attrProductType, Err: fmt.Errorf("non-numeric product type %q", raw)}
			return false
		}
		*target = n
		return true
	})
	if parseErr != nil {
		return ids, parseErr
	}

	if ids.Sell == 0 {
		return ids, missing(labelSell)
	}
	if ids.Rent == 0 {
		return ids, missing(labelRent)
	}
	return ids, nil
}

func directionMap(form *goquery.Selection) (domain.OptionMap, error) {
	anchor, ok := findByText(form, "div", labelDirection)
	if !ok {
		return nil, missing(labelDirection)
	}
	return collect(anchor.Parent().Find("div["+attrDirection+"]"), attrDirection, labelDirection, true)
}

// bracketMap handles the dropdowns whose "all" placeholder span sits two
// levels below the list of options.
func bracketMap(form *goquery.Selection, label string, numeric bool) (domain.OptionMap, error) {
	anchor, ok := findByText(form, "span", label)
	if !ok {
		return nil, missing(label)
	}
	return collect(anchor.Parent().Parent().Find(selValueItems), attrValue, label, numeric)
}

func listMap(form *goquery.Selection, selector string) (domain.OptionMap, error) {
	items := form.Find(selector)
	if items.Length() == 0 {
		return nil, missing(selector)
	}
	return collect(items, attrValue, selector, true)
}

func collect(items *goquery.Selection, attr, anchor string, numeric bool) (domain.OptionMap, error) {
	m := make(domain.OptionMap, items.Length())
	var err error
	items.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		code, ok := s.Attr(attr)
		if !ok {
			return true
		}
		code = strings.TrimSpace(code)
		if numeric {
			n, convErr := strconv.Atoi(code)
			if convErr != nil {
				err = &StructuralError{Anchor: anchor, Err: fmt.Errorf("non-numeric code %q", code)}
				return false
			}
			code = strconv.Itoa(n)
		}
		label := strings.TrimSpace(s.Text())
		if label == "" {
			return true
		}
		m[code] = label
		return true
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// findByText returns the first element of the given tag whose trimmed text
// equals label. Elements that contain another element of the same tag are
// skipped so the innermost match wins.
func findByText(root *goquery.Selection, tag, label string) (*goquery.Selection, bool) {
	want := normalize(label)
	match := root.Find(tag).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find(tag).Length() == 0 && normalizedText(s) == want
	}).First()
	return match, match.Length() > 0
}

func normalizedText(s *goquery.Selection) string {
	return normalize(s.Text())
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
