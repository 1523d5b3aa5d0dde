// Package units converts raw byte counts into report display units.
//
// Unknown unit names never fail: they fall back to megabytes so a typo in a
// flag still produces a readable report.
package units

import (
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// Recognized display units.
const (
	Bytes = "bytes"
	KB    = "kb"
	MB    = "mb"
	GB    = "gb"
)

// DefaultUnit is used when a unit is empty or not recognized.
const DefaultUnit = MB

var divisors = map[string]float64{
	Bytes: 1,
	KB:    1024,
	MB:    1024 * 1024,
	GB:    1024 * 1024 * 1024,
}

// Normalize lower-cases unit and maps unknown values to DefaultUnit.
func Normalize(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if _, ok := divisors[u]; ok {
		return u
	}
	return DefaultUnit
}

// IsKnown reports whether unit names one of the recognized display units.
func IsKnown(unit string) bool {
	_, ok := divisors[strings.ToLower(strings.TrimSpace(unit))]
	return ok
}

// Divisor returns the byte divisor for unit.
func Divisor(unit string) float64 {
	return divisors[Normalize(unit)]
}

// FormatSize converts bytes into unit, rounded to 3 decimal places.
func FormatSize(bytes int64, unit string) float64 {
	return Round(float64(bytes)/Divisor(unit), 3)
}

// Label returns the column label for unit, e.g. "MB" or "BYTES".
func Label(unit string) string {
	return strings.ToUpper(Normalize(unit))
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Human renders a byte count as an IEC string ("1.5 GiB") for log output.
func Human(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}
