package domain

import (
	"sort"
	"strconv"
	"time"
)

// ProductType selects between the site's two search modes
type ProductType string

const (
	ProductSell ProductType = "sell"
	ProductRent ProductType = "rent"
)

// FetchStrategy selects how result pages are requested
type FetchStrategy int

const (
	// FetchDirect reuses the bootstrapped HTTP session
	FetchDirect FetchStrategy = iota
	// FetchRelayed routes every request through the solver proxy
	FetchRelayed
)

func (s FetchStrategy) String() string {
	if s == FetchRelayed {
		return "relayed"
	}
	return "direct"
}

// Cookie is one cookie returned by the challenge solver
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	HTTPOnly bool      `json:"http_only"`
	Secure   bool      `json:"secure"`
	SameSite string    `json:"same_site,omitempty"`
}

// ChallengeSession is the browser-equivalent session produced by bootstrap.
// It is never modified after creation.
type ChallengeSession struct {
	Name        string   `json:"name"`
	UserAgent   string   `json:"user_agent"`
	Cookies     []Cookie `json:"cookies"`
	LandingHTML string   `json:"-"`
}

// OptionMap maps a site code to its human readable label
type OptionMap map[string]string

// SortedKeys returns the codes ordered numerically where possible, then lexically.
func (m OptionMap) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

// ProductTypeIDs holds the numeric ids the search form uses for sell and rent
type ProductTypeIDs struct {
	Sell int `json:"sell"`
	Rent int `json:"rent"`
}

// For returns the id matching the given product type.
func (p ProductTypeIDs) For(t ProductType) int {
	if t == ProductRent {
		return p.Rent
	}
	return p.Sell
}

// Options is the taxonomy discovered from the landing page search form
type Options struct {
	ProductIDs ProductTypeIDs
	Directions OptionMap
	Cities     OptionMap
	PriceSell  OptionMap
	PriceRent  OptionMap
	Areas      OptionMap
}

// SearchFilter describes one crawl request
type SearchFilter struct {
	ProductType ProductType `json:"product_type"`
	CityCode    string      `json:"city_code,omitempty"`

	MinPrice    *int `json:"min_price,omitempty"`
	MaxPrice    *int `json:"max_price,omitempty"`
	PriceOption *int `json:"price_option,omitempty"`

	MinArea    *int `json:"min_area,omitempty"`
	MaxArea    *int `json:"max_area,omitempty"`
	AreaOption *int `json:"area_option,omitempty"`

	Rooms      []int `json:"rooms,omitempty"`
	Directions []int `json:"directions,omitempty"`

	MaxResult int           `json:"max_result"` // 0 means unbounded
	StartPage int           `json:"start_page"`
	Strategy  FetchStrategy `json:"strategy"`

	Debug     bool   `json:"debug"`
	OutputDir string `json:"output_dir"`
}

// Listing is one parsed search result card
type Listing struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"href"`
	Price       string    `json:"price"`
	AreaM2      float64   `json:"area_m2"`
	Rooms       *int      `json:"n_room,omitempty"`
	Bathrooms   *int      `json:"n_wc,omitempty"`
	District    string    `json:"district"`
	City        string    `json:"city"`
	PublishedAt time.Time `json:"published_date,omitempty"`
	Images      []string  `json:"image_path"`
}

// CrawlRun records one crawl invocation
type CrawlRun struct {
	ID          string      `json:"id"`
	ProductType ProductType `json:"product_type"`
	Filter      string      `json:"filter"` // JSON encoded SearchFilter
	Status      string      `json:"status"`
	ResultCount int         `json:"result_count"`
	NewCount    int         `json:"new_count"`
	ErrorMsg    string      `json:"error_msg,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at,omitempty"`
}

// ActivityLog for debugging and audit
type ActivityLog struct {
	ID         int64     `json:"id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	ErrorMsg   string    `json:"error_msg,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CrawlRun status constants
const (
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// ActivityAction constants
const (
	ActionBootstrap    = "bootstrap"
	ActionSearch       = "search"
	ActionListingFound = "listing_found"
	ActionError        = "error"
)
