// Package normalize maps bulk export headers onto the stable internal field
// set and coerces numeric columns.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/IshaanNene/homestalk/internal/types"
)

// Internal field names.
const (
	FieldSaleType       = "sale_type"
	FieldSoldDate       = "sold_date"
	FieldPropertyType   = "property_type"
	FieldAddress        = "address"
	FieldCity           = "city"
	FieldState          = "state"
	FieldZip            = "zip"
	FieldPrice          = "price"
	FieldBeds           = "beds"
	FieldBaths          = "baths"
	FieldLocation       = "location"
	FieldSqft           = "sqft"
	FieldLotSize        = "lot_size"
	FieldYearBuilt      = "year_built"
	FieldDOM            = "dom"
	FieldPricePerSqft   = "price_per_sqft"
	FieldHOAMonthly     = "hoa_monthly"
	FieldStatus         = "status"
	FieldOpenHouseStart = "open_house_start"
	FieldOpenHouseEnd   = "open_house_end"
	FieldURL            = "url"
	FieldSource         = "source"
	FieldMLSID          = "mls_id"
	FieldFavorite       = "favorite"
	FieldInterested     = "interested"
	FieldLatitude       = "latitude"
	FieldLongitude      = "longitude"
)

// aliases is keyed by the trimmed, upper-cased source header.
var aliases = map[string]string{
	"SALE TYPE":                  FieldSaleType,
	"SOLD DATE":                  FieldSoldDate,
	"PROPERTY TYPE":              FieldPropertyType,
	"ADDRESS":                    FieldAddress,
	"CITY":                       FieldCity,
	"STATE OR PROVINCE":          FieldState,
	"STATE":                      FieldState,
	"ZIP OR POSTAL CODE":         FieldZip,
	"ZIP":                        FieldZip,
	"PRICE":                      FieldPrice,
	"BEDS":                       FieldBeds,
	"BATHS":                      FieldBaths,
	"LOCATION":                   FieldLocation,
	"SQUARE FEET":                FieldSqft,
	"LOT SIZE":                   FieldLotSize,
	"YEAR BUILT":                 FieldYearBuilt,
	"DAYS ON MARKET":             FieldDOM,
	"$/SQUARE FEET":              FieldPricePerSqft,
	"HOA/MONTH":                  FieldHOAMonthly,
	"STATUS":                     FieldStatus,
	"NEXT OPEN HOUSE START TIME": FieldOpenHouseStart,
	"NEXT OPEN HOUSE END TIME":   FieldOpenHouseEnd,
	"URL (SEE HTTPS://WWW.REDFIN.COM/BUY-A-HOME/COMPARATIVE-MARKET-ANALYSIS FOR INFO ON PRICING)": FieldURL,
	"URL (SEE HTTP://WWW.REDFIN.COM/BUY-A-HOME/COMPARATIVE-MARKET-ANALYSIS FOR INFO ON PRICING)":  FieldURL,
	"SOURCE":     FieldSource,
	"MLS#":       FieldMLSID,
	"FAVORITE":   FieldFavorite,
	"INTERESTED": FieldInterested,
	"LATITUDE":   FieldLatitude,
	"LONGITUDE":  FieldLongitude,
}

var numericFields = map[string]bool{
	FieldPrice:        true,
	FieldBeds:         true,
	FieldBaths:        true,
	FieldSqft:         true,
	FieldLotSize:      true,
	FieldYearBuilt:    true,
	FieldDOM:          true,
	FieldPricePerSqft: true,
	FieldHOAMonthly:   true,
	FieldLatitude:     true,
	FieldLongitude:    true,
}

// CanonicalName maps a source header onto its internal field name. Unknown
// headers are lower-cased. Internal names map to themselves.
func CanonicalName(header string) string {
	h := strings.TrimSpace(header)
	if name, ok := aliases[strings.ToUpper(h)]; ok {
		return name
	}
	return strings.ToLower(h)
}

// IsNumeric reports whether field is coerced to a number.
func IsNumeric(field string) bool {
	return numericFields[field]
}

// Normalize converts a raw export into a normalized table. When several
// source headers collapse onto one field, the first non-blank cell wins.
func Normalize(raw *types.RawTable) *types.Table {
	out := &types.Table{}
	if raw == nil {
		return out
	}

	names := make([]string, len(raw.Columns))
	seen := make(map[string]bool, len(raw.Columns))
	for j, h := range raw.Columns {
		name := CanonicalName(h)
		names[j] = name
		if !seen[name] {
			seen[name] = true
			out.Columns = append(out.Columns, name)
		}
	}

	out.Rows = make([]types.Record, 0, len(raw.Rows))
	for i := range raw.Rows {
		rec := make(types.Record, len(out.Columns))
		for j, name := range names {
			cell := strings.TrimSpace(raw.Cell(i, j))
			if prev, ok := rec[name]; ok && !prev.IsNull() {
				continue
			}
			rec[name] = Coerce(name, cell)
		}
		out.Rows = append(out.Rows, rec)
	}
	return out
}

// NormalizeTable renames the columns of an already-typed table. Applying it
// to a normalized table returns an equal table.
func NormalizeTable(t *types.Table) *types.Table {
	out := &types.Table{}
	if t == nil {
		return out
	}
	seen := make(map[string]bool, len(t.Columns))
	rename := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		name := CanonicalName(c)
		rename[c] = name
		if !seen[name] {
			seen[name] = true
			out.Columns = append(out.Columns, name)
		}
	}
	out.Rows = make([]types.Record, 0, len(t.Rows))
	for _, r := range t.Rows {
		rec := make(types.Record, len(r))
		for _, c := range t.Columns {
			name := rename[c]
			if prev, ok := rec[name]; ok && !prev.IsNull() {
				continue
			}
			v := r.Get(c)
			if IsNumeric(name) && v.Kind == types.KindString {
				v = Coerce(name, v.Str)
			}
			rec[name] = v
		}
		out.Rows = append(out.Rows, rec)
	}
	return out
}

// Coerce converts one cell for field. Numeric fields that fail to parse
// become null rather than an error.
func Coerce(field, cell string) types.Value {
	if cell == "" {
		return types.Null
	}
	if !IsNumeric(field) {
		return types.String(cell)
	}
	f, ok := ParseNumber(cell)
	if !ok {
		return types.Null
	}
	return types.Number(f)
}

// ParseNumber parses export-style numbers such as "$1,250,000" or " 3.5 ".
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
