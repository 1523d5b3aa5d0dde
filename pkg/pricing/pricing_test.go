package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name  string
		class string
		size  int64
		want  float64
	}{
		{"standard one gib", "STANDARD", BytesPerGB, 0.023},
		{"lower case class", "standard_ia", BytesPerGB, 0.0125},
		{"one zone", "ONEZONE_IA", 2 * BytesPerGB, 0.02},
		{"glacier", "GLACIER", BytesPerGB, 0.004},
		{"deep archive", "Deep_Archive", BytesPerGB, 0.00099},
		{"unknown tier falls back to standard", "UNKNOWN_TIER", BytesPerGB, 1 * 0.023},
		{"empty class is standard", "", BytesPerGB, 0.023},
		{"zero bytes", "GLACIER", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateCost(tt.class, tt.size), 1e-12)
		})
	}
}

func TestRateFor(t *testing.T) {
	assert.Equal(t, 0.023, RateFor("REDUCED_REDUNDANCY"))
	assert.Equal(t, 0.004, RateFor("glacier_ir"))
	assert.True(t, Known("intelligent_tiering"))
	assert.False(t, Known("EXPRESS_ONEZONE"))
}

func TestNormalizeClass(t *testing.T) {
	assert.Equal(t, "STANDARD", NormalizeClass(""))
	assert.Equal(t, "STANDARD_IA", NormalizeClass(" standard_ia "))
}
