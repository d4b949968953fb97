package analytics

import (
	"sort"

	"github.com/netsight/reportd/internal/report"
)

// minuteLayout is the bucketing granularity for chart series. Lexicographic
// order of the formatted key matches chronological order.
const minuteLayout = "2006-01-02 15:04"

type SeriesPoint struct {
	Time    string `json:"time"`
	Clients int    `json:"clients"`
}

type deviceKey struct {
	site   string
	device string
}

type minuteDeviceKey struct {
	minute string
	key    deviceKey
}

// TimeSeries buckets records into minutes and sums client counts across
// devices. Overlapping file windows produce near-duplicate readings for the
// same device in the same minute; the max per (site, device, minute) wins so
// duplicates collapse instead of double-counting.
func TimeSeries(records []report.Record) []SeriesPoint {
	maxPerDevice := make(map[minuteDeviceKey]int)
	for _, r := range records {
		k := minuteDeviceKey{
			minute: r.Timestamp.Format(minuteLayout),
			key:    deviceKey{site: r.Site, device: r.Device},
		}
		if cur, ok := maxPerDevice[k]; !ok || r.Clients > cur {
			maxPerDevice[k] = r.Clients
		}
	}

	totals := make(map[string]int)
	for k, clients := range maxPerDevice {
		totals[k.minute] += clients
	}

	points := make([]SeriesPoint, 0, len(totals))
	for minute, clients := range totals {
		points = append(points, SeriesPoint{Time: minute, Clients: clients})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Time < points[j].Time
	})
	return points
}

type DistributionEntry struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Distribution counts occurrences of a field's distinct values after
// collapsing to the latest record per (site, device, minute).
func Distribution(records []report.Record, field func(report.Record) string) []DistributionEntry {
	latest := make(map[minuteDeviceKey]report.Record)
	for _, r := range records {
		k := minuteDeviceKey{
			minute: r.Timestamp.Format(minuteLayout),
			key:    deviceKey{site: r.Site, device: r.Device},
		}
		if prev, ok := latest[k]; !ok || r.Timestamp.After(prev.Timestamp) {
			latest[k] = r
		}
	}

	counts := make(map[string]int)
	for _, r := range latest {
		counts[field(r)]++
	}

	entries := make([]DistributionEntry, 0, len(counts))
	for name, value := range counts {
		entries = append(entries, DistributionEntry{Name: name, Value: value})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// HealthOf and StateOf select distribution fields.
func HealthOf(r report.Record) string { return r.Health }
func StateOf(r report.Record) string  { return r.State }
