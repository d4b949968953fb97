package analytics

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Dashboard heuristics. Their origin is undocumented, so they are kept
// configurable rather than re-derived.
var DefaultUpStates = []string{
	"up", "online", "connected", "good", "active", "normal", "stable", "1", "true",
}

const (
	DefaultHealthAlertThreshold = 70.0
	DefaultSummarySampleSize    = 2000
)

// Summary is the deduplicated global health snapshot shown on the dashboard
// header.
type Summary struct {
	Connectivity string `json:"connectivity"`
	Alerts       int    `json:"alerts"`
	TotalClients int    `json:"total_clients"`
}

// Summary reduces the most recent records to the latest reading per
// (site, device) and classifies each device against the up vocabulary.
//
// The sample is capped at the configured size rather than scanning the full
// collection; device counts are small relative to reporting frequency, so
// recent records cover all active devices. A site with more devices than the
// sample size would be under-counted; that case is unsupported.
func (e *Engine) Summary(ctx context.Context, allowedSites []string) (Summary, error) {
	records, err := e.source.LatestRecords(ctx, allowedSites, e.sampleSize)
	if err != nil {
		return Summary{}, fmt.Errorf("loading summary sample: %w", err)
	}

	if len(records) == 0 {
		return Summary{Connectivity: "0%", Alerts: 0, TotalClients: 0}, nil
	}

	// Records arrive newest-first, so first-seen per device is the latest.
	latest := make(map[deviceKey]int)
	order := make([]int, 0, 64)
	for i, r := range records {
		k := deviceKey{site: r.Site, device: r.Device}
		if _, ok := latest[k]; !ok {
			latest[k] = i
			order = append(order, i)
		}
	}

	var upDevices, alerts, totalClients int
	for _, i := range order {
		r := records[i]
		totalClients += r.Clients

		state := strings.ToLower(strings.TrimSpace(r.State))
		if _, up := e.upStates[state]; !up {
			alerts++
			continue
		}

		upDevices++
		if health, ok := parseHealth(r.Health); ok && health < e.healthThreshold {
			alerts++
		}
	}

	connectivity := float64(upDevices) / float64(len(order)) * 100

	e.logger.Debug("computed global summary",
		zap.Int("sample", len(records)),
		zap.Int("devices", len(order)),
		zap.Int("up", upDevices),
		zap.Int("alerts", alerts),
	)

	return Summary{
		Connectivity: fmt.Sprintf("%.1f%%", connectivity),
		Alerts:       alerts,
		TotalClients: totalClients,
	}, nil
}

// parseHealth extracts a numeric health value from strings like "85%" or
// "92.5". Non-numeric health text is simply not alertable.
func parseHealth(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
