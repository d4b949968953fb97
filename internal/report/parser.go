package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FileMeta is the timestamp and site recovered from a report filename.
type FileMeta struct {
	Timestamp time.Time
	Site      string
}

// metaStrategy attempts to recover FileMeta from a filename. Strategies are
// tried in order and the first match wins. Intentionally lossy: filenames are
// operator-supplied and inconsistent, so a low-fidelity guess beats dropping
// the file.
type metaStrategy func(name string, now time.Time) (FileMeta, bool)

var (
	datePattern = regexp.MustCompile(`\d{1,4}[-./]\d{1,2}[-./]\d{1,4}`)
	timePattern = regexp.MustCompile(`\d{1,2}[h:]\d{1,2}`)

	// Day-first is tried before year-first since most site exports use it.
	timestampLayouts = []string{"2-1-2006 15:4", "2006-1-2 15:4"}
)

// patternMeta matches filenames carrying both a date-like and a time-like
// token, e.g. "SiteA-15.03.2024 14h30.xlsx". The site is whatever precedes
// the date token.
func patternMeta(name string, _ time.Time) (FileMeta, bool) {
	dateLoc := datePattern.FindStringIndex(name)
	timeStr := timePattern.FindString(name)
	if dateLoc == nil || timeStr == "" {
		return FileMeta{}, false
	}

	dateStr := name[dateLoc[0]:dateLoc[1]]
	dateStr = strings.NewReplacer(".", "-", "/", "-").Replace(dateStr)
	timeStr = strings.ReplaceAll(timeStr, "h", ":")

	meta := FileMeta{Site: UnknownSite}
	if site := strings.Trim(name[:dateLoc[0]], " -_"); site != "" {
		meta.Site = site
	}

	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, dateStr+" "+timeStr)
		if err == nil {
			meta.Timestamp = ts
			return meta, true
		}
	}
	return FileMeta{}, false
}

// fallbackMeta always succeeds: current wall clock and the text before the
// first dash, if any.
func fallbackMeta(name string, now time.Time) (FileMeta, bool) {
	meta := FileMeta{Timestamp: now, Site: UnknownSite}
	if idx := strings.Index(name, "-"); idx >= 0 {
		if site := strings.TrimSpace(name[:idx]); site != "" {
			meta.Site = site
		}
	}
	return meta, true
}

type Parser struct {
	logger     *zap.Logger
	now        func() time.Time
	strategies []metaStrategy
}

type ParserOption func(*Parser)

func WithLogger(logger *zap.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = logger
	}
}

// WithClock overrides the wall clock used by the fallback strategy.
func WithClock(now func() time.Time) ParserOption {
	return func(p *Parser) {
		p.now = now
	}
}

func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		logger: zap.NewNop(),
		now:    time.Now,
		strategies: []metaStrategy{
			patternMeta,
			fallbackMeta,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Meta recovers the file-level timestamp and site from a filename.
func (p *Parser) Meta(name string) FileMeta {
	now := p.now()
	for _, strategy := range p.strategies {
		if meta, ok := strategy(name, now); ok {
			return meta
		}
	}
	// fallbackMeta never declines, so this is unreachable.
	return FileMeta{Timestamp: now, Site: UnknownSite}
}

// Parse converts one report file into canonical records. Rows without a
// usable device identifier are dropped. An empty slice with a nil error means
// the file held no usable rows.
func (p *Parser) Parse(name string, data []byte) ([]Record, error) {
	meta := p.Meta(name)

	table, err := loadTable(name, data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	if len(table) < 2 {
		return nil, nil
	}

	header := make([]string, len(table[0]))
	for i, col := range table[0] {
		header[i] = titleCase(strings.TrimSpace(col))
	}

	var records []Record
	for _, row := range table[1:] {
		cells := indexRow(header, row)

		device := strings.TrimSpace(firstCell(cells, "Device", "Name"))
		switch strings.ToLower(device) {
		case "", "device", "nan":
			continue
		}

		records = append(records, Record{
			Timestamp: meta.Timestamp,
			Site:      meta.Site,
			Device:    device,
			Clients:   parseClients(cells["Clients"]),
			Health:    cells["Health"],
			State:     cells["State"],
			Model:     cells["Model"],
			IP:        firstCell(cells, "Ip Address", "Ip"),
		})
	}

	p.logger.Debug("parsed report file",
		zap.String("file", name),
		zap.String("site", meta.Site),
		zap.Time("timestamp", meta.Timestamp),
		zap.Int("records", len(records)),
	)

	return records, nil
}

// parseClients coerces a client count through floating point, defaulting to 0
// on any failure. Exports frequently render counts as "12.0".
func parseClients(raw string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(f)
}

func indexRow(header, row []string) map[string]string {
	cells := make(map[string]string, len(header))
	for i, col := range header {
		if i < len(row) {
			cells[col] = row[i]
		}
	}
	return cells
}

func firstCell(cells map[string]string, names ...string) string {
	for _, name := range names {
		if v := cells[name]; v != "" {
			return v
		}
	}
	return ""
}

// titleCase upper-cases the first letter of every word and lower-cases the
// rest, matching how headers were normalized historically ("IP ADDRESS" and
// "ip address" both become "Ip Address").
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	startOfWord := true
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t':
			startOfWord = true
			b.WriteRune(r)
		case startOfWord:
			b.WriteString(strings.ToUpper(string(r)))
			startOfWord = false
		default:
			b.WriteString(strings.ToLower(string(r)))
		}
	}
	return b.String()
}
