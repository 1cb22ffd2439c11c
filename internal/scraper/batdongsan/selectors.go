package batdongsan

// Every markup anchor the engine depends on lives here. When the site
// changes its markup this is the only file that should need edits.
const (
	// landing page
	selSearchForm = "form#boxSearchForm"

	// option taxonomies inside the search form
	selProductTabs    = "ul.re__product-type-tab.js__product-type li"
	attrProductType   = "data-type"
	labelSell         = "Nhà đất bán"
	labelRent         = "Nhà đất cho thuê"
	labelDirection    = "Đông - Nam"
	attrDirection     = "data-value"
	labelAllCities    = "Tất cả Tỉnh/Thành"
	labelAllAreas     = "Tất cả diện tích"
	selSellPriceItems = "div.js__sell-price-select-list li[value]"
	selRentPriceItems = "div.js__rent-price-select-list li[value]"
	selValueItems     = "li[value]"
	attrValue         = "value"

	// result pages
	selEmptyResult = "div.re__srp-empty.js__srp-empty"
	classCardLink  = "js__product-link-for-product-id"
	selCardLinks   = "a.js__product-link-for-product-id"
	selNextPage    = "a.re__pagination-icon > i.re__icon-chevron-right--sm"

	// result card
	attrProductID    = "data-product-id"
	selCardInfo      = "div.re__card-info"
	attrTitle        = "title"
	selCardConfig    = "div.re__card-config.js__card-config"
	selCardPrice     = "span.re__card-config-price"
	selCardArea      = "span.re__card-config-area"
	selCardBedroom   = "span.re__card-config-bedroom"
	selCardToilet    = "span.re__card-config-toilet"
	selCardLocation  = "div.re__card-location"
	selCardPublished = "span.re__card-published-info-published-at"
	attrPublished    = "aria-label"
	selCardImages    = "div.re__card-image img"
)

// image source attributes in priority order
var imageSourceAttrs = []string{"src", "data-src", "data-img"}

const (
	areaSuffix  = "m²"
	dateLayout  = "2/1/2006"
	locationSep = ", "
	maxRoomCode = 5
	codeSep     = ";"
)
