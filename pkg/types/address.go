package types

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// DefaultCountry is assumed when an address arrives without one.
const DefaultCountry = "BR"

// Address mirrors the address_t composite Postgres type.
type Address struct {
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	GeoHash    *string `json:"geohash,omitempty"`
}

// Value renders the address as an address_t row literal.
func (a Address) Value() (driver.Value, error) {
	required := [][2]string{
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r[1]) == "" {
			return nil, fmt.Errorf("address: missing %s", r[0])
		}
	}
	country := strings.TrimSpace(a.Country)
	if country == "" {
		country = DefaultCountry
	}
	lat := strconv.FormatFloat(a.Lat, 'f', -1, 64)
	lng := strconv.FormatFloat(a.Lng, 'f', -1, 64)
	return formatComposite(&a.Line1, a.Line2, &a.City, &a.State, &a.PostalCode, &country, &lat, &lng, a.GeoHash), nil
}

// Scan decodes an address_t row literal.
func (a *Address) Scan(value any) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*a = Address{}
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("address: unsupported scan type %T", value)
	}

	f, err := parseComposite(raw, 9)
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	lat, err := parseCoordinate("lat", f[6])
	if err != nil {
		return err
	}
	lng, err := parseCoordinate("lng", f[7])
	if err != nil {
		return err
	}
	country := strings.TrimSpace(f[5].text)
	if f[5].null || country == "" {
		country = DefaultCountry
	}

	*a = Address{
		Line1:      f[0].text,
		Line2:      f[1].ptr(),
		City:       f[2].text,
		State:      f[3].text,
		PostalCode: f[4].text,
		Country:    country,
		Lat:        lat,
		Lng:        lng,
		GeoHash:    f[8].ptr(),
	}
	return nil
}

func parseCoordinate(name string, f compositeField) (float64, error) {
	if f.null || strings.TrimSpace(f.text) == "" {
		return 0, fmt.Errorf("address: %s missing", name)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(f.text), 64)
	if err != nil {
		return 0, fmt.Errorf("address: parse %s: %w", name, err)
	}
	return v, nil
}

// HasCoordinates reports whether the address was geocoded.
func (a Address) HasCoordinates() bool {
	return a.Lat != 0 || a.Lng != 0
}

// Label is the single-line form shown to couriers.
func (a Address) Label() string {
	parts := []string{strings.TrimSpace(a.Line1)}
	if a.Line2 != nil && strings.TrimSpace(*a.Line2) != "" {
		parts = append(parts, strings.TrimSpace(*a.Line2))
	}
	parts = append(parts, fmt.Sprintf("%s - %s", strings.TrimSpace(a.City), strings.TrimSpace(a.State)))
	if pc := strings.TrimSpace(a.PostalCode); pc != "" {
		parts = append(parts, pc)
	}
	return strings.Join(parts, ", ")
}
