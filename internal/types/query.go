package types

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// RegionType is the kind of geographic region a query targets. The numeric
// values are the ones the bulk endpoint expects in region_type.
type RegionType int

const (
	RegionNeighborhood RegionType = 1
	RegionZip          RegionType = 2
	RegionCounty       RegionType = 5
	RegionCity         RegionType = 6
)

func (r RegionType) String() string {
	switch r {
	case RegionNeighborhood:
		return "neighborhood"
	case RegionZip:
		return "zip"
	case RegionCounty:
		return "county"
	case RegionCity:
		return "city"
	default:
		return fmt.Sprintf("region(%d)", int(r))
	}
}

// Valid reports whether r is one of the known region kinds.
func (r RegionType) Valid() bool {
	switch r {
	case RegionNeighborhood, RegionZip, RegionCounty, RegionCity:
		return true
	}
	return false
}

// ParseRegionType accepts either the numeric code or the region name.
func ParseRegionType(s string) (RegionType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		r := RegionType(n)
		if !r.Valid() {
			return 0, fmt.Errorf("%w: region type %d", ErrInvalidQuery, n)
		}
		return r, nil
	}
	switch s {
	case "neighborhood":
		return RegionNeighborhood, nil
	case "zip", "zipcode":
		return RegionZip, nil
	case "county":
		return RegionCounty, nil
	case "city":
		return RegionCity, nil
	}
	return 0, fmt.Errorf("%w: region type %q", ErrInvalidQuery, s)
}

const (
	DefaultStatus   = 1
	DefaultNumHomes = 350
)

// Query is one set of search criteria against the bulk endpoint.
// Nil pointer fields are unset and never sent.
type Query struct {
	Name       string     `mapstructure:"name"        yaml:"name"`
	RegionID   int        `mapstructure:"region_id"   yaml:"region_id"`
	RegionType RegionType `mapstructure:"region_type" yaml:"region_type"`

	MinPrice     *int     `mapstructure:"min_price"      yaml:"min_price,omitempty"`
	MaxPrice     *int     `mapstructure:"max_price"      yaml:"max_price,omitempty"`
	MinBeds      *int     `mapstructure:"min_beds"       yaml:"min_beds,omitempty"`
	MaxBeds      *int     `mapstructure:"max_beds"       yaml:"max_beds,omitempty"`
	MinBaths     *float64 `mapstructure:"min_baths"      yaml:"min_baths,omitempty"`
	MaxBaths     *float64 `mapstructure:"max_baths"      yaml:"max_baths,omitempty"`
	MinSqft      *int     `mapstructure:"min_sqft"       yaml:"min_sqft,omitempty"`
	MaxSqft      *int     `mapstructure:"max_sqft"       yaml:"max_sqft,omitempty"`
	MinLotSize   *int     `mapstructure:"min_lot_size"   yaml:"min_lot_size,omitempty"`
	MaxLotSize   *int     `mapstructure:"max_lot_size"   yaml:"max_lot_size,omitempty"`
	MinYearBuilt *int     `mapstructure:"min_year_built" yaml:"min_year_built,omitempty"`
	MaxYearBuilt *int     `mapstructure:"max_year_built" yaml:"max_year_built,omitempty"`
	MinStories   *int     `mapstructure:"min_stories"    yaml:"min_stories,omitempty"`
	MaxStories   *int     `mapstructure:"max_stories"    yaml:"max_stories,omitempty"`

	PropertyType      string `mapstructure:"property_type"        yaml:"property_type,omitempty"` // uipt codes, e.g. "1,2,3"
	Status            int    `mapstructure:"status"               yaml:"status,omitempty"`
	HOA               *int   `mapstructure:"hoa"                  yaml:"hoa,omitempty"`
	TimeOnMarketRange string `mapstructure:"time_on_market_range" yaml:"time_on_market_range,omitempty"`
	Garage            bool   `mapstructure:"garage"               yaml:"garage,omitempty"`
	MinParking        *int   `mapstructure:"min_parking"          yaml:"min_parking,omitempty"`
	NumHomes          int    `mapstructure:"num_homes"            yaml:"num_homes,omitempty"`

	ExtraParams map[string]string `mapstructure:"extra_params" yaml:"extra_params,omitempty"`
}

// Validate checks the fields the bulk endpoint requires.
func (q *Query) Validate() error {
	if strings.TrimSpace(q.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidQuery)
	}
	if q.RegionID <= 0 {
		return fmt.Errorf("%w: region_id must be > 0, got %d", ErrInvalidQuery, q.RegionID)
	}
	if !q.RegionType.Valid() {
		return fmt.Errorf("%w: unknown region_type %d", ErrInvalidQuery, int(q.RegionType))
	}
	return nil
}

// ToParams maps the query onto the bulk endpoint's parameter names. The
// result depends only on the query's field values.
func (q *Query) ToParams() url.Values {
	status := q.Status
	if status == 0 {
		status = DefaultStatus
	}
	numHomes := q.NumHomes
	if numHomes == 0 {
		numHomes = DefaultNumHomes
	}

	p := url.Values{}
	p.Set("al", "1")
	p.Set("sp", "true")
	p.Set("status", strconv.Itoa(status))
	p.Set("num_homes", strconv.Itoa(numHomes))
	p.Set("region_id", strconv.Itoa(q.RegionID))
	p.Set("region_type", strconv.Itoa(int(q.RegionType)))
	p.Set("v", "8")

	setInt(p, "min_price", q.MinPrice)
	setInt(p, "max_price", q.MaxPrice)
	setInt(p, "min_num_beds", q.MinBeds)
	setInt(p, "max_num_beds", q.MaxBeds)
	setFloat(p, "min_num_baths", q.MinBaths)
	setFloat(p, "max_num_baths", q.MaxBaths)
	setInt(p, "min_listing_approx_size", q.MinSqft)
	setInt(p, "max_listing_approx_size", q.MaxSqft)
	setInt(p, "min_parcel_size", q.MinLotSize)
	setInt(p, "max_parcel_size", q.MaxLotSize)
	setInt(p, "min_year_built", q.MinYearBuilt)
	setInt(p, "max_year_built", q.MaxYearBuilt)
	setInt(p, "min_stories", q.MinStories)
	setInt(p, "max_stories", q.MaxStories)
	if q.PropertyType != "" {
		p.Set("uipt", q.PropertyType)
	}
	setInt(p, "hoa", q.HOA)
	if q.TimeOnMarketRange != "" {
		p.Set("time_on_market_range", q.TimeOnMarketRange)
	}
	if q.Garage {
		p.Set("gar", "true")
	}
	setInt(p, "min_num_park", q.MinParking)

	keys := make([]string, 0, len(q.ExtraParams))
	for k := range q.ExtraParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.Set(k, q.ExtraParams[k])
	}
	return p
}

// SafeName returns the query name with path-hostile characters replaced,
// for use in artifact file names.
func (q *Query) SafeName() string {
	return SafeName(q.Name)
}

// SafeName replaces spaces and slashes with underscores.
func SafeName(name string) string {
	return strings.NewReplacer(" ", "_", "/", "_").Replace(name)
}

func setInt(p url.Values, key string, v *int) {
	if v != nil {
		p.Set(key, strconv.Itoa(*v))
	}
}

func setFloat(p url.Values, key string, v *float64) {
	if v != nil {
		p.Set(key, strconv.FormatFloat(*v, 'f', -1, 64))
	}
}

// Int returns a pointer to v, for building queries in code.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
