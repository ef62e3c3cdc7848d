package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestAddressValueScanRoundTripKeepsNullsAndQuotes(t *testing.T) {
	in := Address{
		Line1:      `Rua "Augusta", 1500`,
		City:       "São Paulo",
		State:      "SP",
		PostalCode: "01304-001",
		Lat:        -23.5558,
		Lng:        -46.6623,
		GeoHash:    strPtr(""),
	}
	v, err := in.Value()
	require.NoError(t, err)

	var out Address
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in.Line1, out.Line1)
	assert.Nil(t, out.Line2, "NULL line2 must stay nil")
	require.NotNil(t, out.GeoHash, "empty string is not NULL")
	assert.Equal(t, "", *out.GeoHash)
	assert.Equal(t, DefaultCountry, out.Country)
	assert.InDelta(t, in.Lat, out.Lat, 1e-9)
	assert.InDelta(t, in.Lng, out.Lng, 1e-9)
}

func TestAddressScanPostgresOutput(t *testing.T) {
	var a Address
	require.NoError(t, a.Scan([]byte(`("Av. Paulista, 1000",,"São Paulo",SP,01310-100,BR,-23.56,-46.65,)`)))
	assert.Equal(t, "Av. Paulista, 1000", a.Line1)
	assert.Nil(t, a.Line2)
	assert.Nil(t, a.GeoHash)
	assert.Equal(t, "01310-100", a.PostalCode)
}

func TestAddressScanRejectsBadLiterals(t *testing.T) {
	cases := map[string]any{
		"wrong type":      42,
		"not a row":       "Av. Paulista",
		"too few fields":  "(a,b,c)",
		"missing lat":     `(a,,c,d,e,BR,,1,)`,
		"unterminated":    `("a,b,c,d,e,f,g,h,i)`,
		"non-numeric lng": `(a,,c,d,e,BR,1,x,)`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var a Address
			assert.Error(t, a.Scan(raw))
		})
	}
}

func TestAddressValueRequiresLines(t *testing.T) {
	_, err := Address{City: "Recife", State: "PE", PostalCode: "50000-000"}.Value()
	assert.ErrorContains(t, err, "line1")
}

func TestAddressLabel(t *testing.T) {
	a := Address{Line1: "Rua A, 10", Line2: strPtr("apto 3"), City: "Recife", State: "PE", PostalCode: "50000-000"}
	assert.Equal(t, "Rua A, 10, apto 3, Recife - PE, 50000-000", a.Label())
}
