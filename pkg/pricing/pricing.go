// Package pricing estimates monthly storage cost from published per-GB rates.
//
// Estimates are deliberately rough. Request charges, retrieval fees, minimum
// object sizes and regional price differences are ignored.
package pricing

import "strings"

// BytesPerGB is the divisor used to convert byte counts to billed gigabytes.
const BytesPerGB = 1024 * 1024 * 1024

// DefaultStorageClass is assumed for objects that report no storage class.
const DefaultStorageClass = "STANDARD"

// Per-GB monthly rates in USD (approximate, us-east-1).
var ratesPerGB = map[string]float64{
	"STANDARD":            0.023,
	"INTELLIGENT_TIERING": 0.023,
	"STANDARD_IA":         0.0125,
	"ONEZONE_IA":          0.01,
	"GLACIER":             0.004,
	"GLACIER_IR":          0.004,
	"DEEP_ARCHIVE":        0.00099,
}

// NormalizeClass upper-cases a storage class name and maps empty to STANDARD.
func NormalizeClass(storageClass string) string {
	c := strings.ToUpper(strings.TrimSpace(storageClass))
	if c == "" {
		return DefaultStorageClass
	}
	return c
}

// RateFor returns the per-GB rate for storageClass.
// Unrecognized classes are billed at the STANDARD rate.
func RateFor(storageClass string) float64 {
	if rate, ok := ratesPerGB[NormalizeClass(storageClass)]; ok {
		return rate
	}
	return ratesPerGB[DefaultStorageClass]
}

// Known reports whether storageClass has its own entry in the rate table.
func Known(storageClass string) bool {
	_, ok := ratesPerGB[NormalizeClass(storageClass)]
	return ok
}

// EstimateCost returns the estimated monthly cost of sizeBytes stored in
// storageClass. The result is not rounded.
func EstimateCost(storageClass string, sizeBytes int64) float64 {
	return (float64(sizeBytes) / BytesPerGB) * RateFor(storageClass)
}
