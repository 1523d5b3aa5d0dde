package fleet

import (
	"fmt"
	"sort"
	"strings"

	"github.com/3leaps/bucketscan/pkg/inventory"
)

// Grouping selects how a report is partitioned for presentation.
type Grouping int

const (
	// GroupNone renders one ungrouped table.
	GroupNone Grouping = iota
	// GroupRegion partitions summaries by Region.
	GroupRegion
	// GroupEncryption partitions summaries by dominant encryption type.
	GroupEncryption
)

// String returns the grouping's flag value.
func (g Grouping) String() string {
	switch g {
	case GroupRegion:
		return "region"
	case GroupEncryption:
		return "encryption"
	default:
		return "none"
	}
}

// Header returns the label printed above each group, e.g. "Region".
func (g Grouping) Header() string {
	switch g {
	case GroupRegion:
		return "Region"
	case GroupEncryption:
		return "Encryption Type"
	default:
		return ""
	}
}

// ParseGrouping parses "", "none", "region" or "encryption".
func ParseGrouping(s string) (Grouping, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return GroupNone, nil
	case "region":
		return GroupRegion, nil
	case "encryption", "encryption-type":
		return GroupEncryption, nil
	default:
		return GroupNone, fmt.Errorf("unknown grouping %q (want none, region or encryption)", s)
	}
}

// Group is a labelled partition of a report. Key is empty for GroupNone.
type Group struct {
	Key       string                     `json:"key" yaml:"key"`
	Summaries []*inventory.BucketSummary `json:"buckets" yaml:"buckets"`
}

// GroupBy partitions summaries according to mode.
func GroupBy(mode Grouping, summaries []*inventory.BucketSummary) []Group {
	switch mode {
	case GroupRegion:
		return GroupByRegion(summaries)
	case GroupEncryption:
		return GroupByEncryption(summaries)
	default:
		return Flat(summaries)
	}
}

// Flat returns a single group with an empty key holding every summary.
func Flat(summaries []*inventory.BucketSummary) []Group {
	return []Group{{Summaries: summaries}}
}

// GroupByRegion partitions summaries by Region. Groups are ordered by key and
// keep the input order of their members.
func GroupByRegion(summaries []*inventory.BucketSummary) []Group {
	return groupBy(summaries, func(s *inventory.BucketSummary) string { return s.Region })
}

// GroupByEncryption partitions summaries by their dominant encryption type.
func GroupByEncryption(summaries []*inventory.BucketSummary) []Group {
	return groupBy(summaries, (*inventory.BucketSummary).DominantEncryption)
}

func groupBy(summaries []*inventory.BucketSummary, key func(*inventory.BucketSummary) string) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, s := range summaries {
		k := key(s)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Key: k})
		}
		groups[i].Summaries = append(groups[i].Summaries, s)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}
