package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue_RoundTrip(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"$1,234.50", 1234.50},
		{"1.2M", 1_200_000},
		{"USD 500", 500},
		{"500K", 500_000},
		{"1B", 1_000_000_000},
	}

	for _, c := range cases {
		got := ParseValue(c.raw)
		require.NotNil(t, got, "raw=%q", c.raw)
		assert.InDelta(t, c.want, *got, 0.001, "raw=%q", c.raw)
	}
}

func TestParseValue_Unparseable(t *testing.T) {
	for _, raw := range []string{"", "contact us", "TBD", "n/a"} {
		assert.Nil(t, ParseValue(raw), "raw=%q", raw)
	}
}
