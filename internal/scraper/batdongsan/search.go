package batdongsan

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/julianbeese/bds_crawler/internal/domain"
)

// Search form field names. "Numers" is how the site spells it.
const (
	fieldProductType = "ProductType"
	fieldCityCode    = "CityCode"
	fieldPrice       = "PriceAsString"
	fieldArea        = "AreaAsString"
	fieldRooms       = "RoomNumersAsString"
	fieldDirections  = "DirectionsAsString"
)

// BuildSearchForm translates a filter into the search POST payload.
func BuildSearchForm(f domain.SearchFilter, ids domain.ProductTypeIDs) url.Values {
	form := url.Values{}
	form.Set(fieldProductType, strconv.Itoa(ids.For(f.ProductType)))
	form.Set(fieldCityCode, f.CityCode)
	form.Set(fieldPrice, rangeValue(f.PriceOption, f.MinPrice, f.MaxPrice))
	form.Set(fieldArea, rangeValue(f.AreaOption, f.MinArea, f.MaxArea))
	form.Set(fieldRooms, strings.Join(NormalizeRooms(f.Rooms), codeSep))
	form.Set(fieldDirections, JoinDirections(f.Directions))
	return form
}

// rangeValue prefers a bracket code, then an explicit [min,max] range.
// A range is only sent when max is known; min defaults to 0.
func rangeValue(option, lo, hi *int) string {
	if option != nil {
		return strconv.Itoa(*option)
	}
	if hi == nil {
		return ""
	}
	from := 0
	if lo != nil {
		from = *lo
	}
	return fmt.Sprintf("[%d,%d]", from, *hi)
}

// NormalizeRooms drops counts below 1, clamps anything above 5 to the "5+"
// code and removes duplicates keeping the first occurrence.
func NormalizeRooms(rooms []int) []string {
	var out []string
	seen := make(map[int]bool)
	for _, n := range rooms {
		if n < 1 {
			continue
		}
		n = min(n, maxRoomCode)
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, strconv.Itoa(n))
	}
	return out
}

// JoinDirections renders distinct direction codes in first-seen order.
func JoinDirections(directions []int) string {
	parts := make([]string, 0, len(directions))
	seen := make(map[int]bool)
	for _, d := range directions {
		if seen[d] {
			continue
		}
		seen[d] = true
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, codeSep)
}
