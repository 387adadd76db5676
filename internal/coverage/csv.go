package coverage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ErrMissingColumns is returned when a coverage CSV lacks required columns.
var ErrMissingColumns = errors.New("coverage: missing required columns")

// Column names of the classified coverage file produced by the ETL.
const (
	colCommodity    = "commodity"
	colChapter      = "hs2_chapter"
	colSection      = "sitc_section"
	colCategory     = "sitc_category"
	colTotalYears   = "total_years"
	colCoveredYears = "ons_covered_years"
	colPct          = "ons_coverage_pct"
	colClass        = "coverage_class"
)

var csvHeader = []string{
	colCommodity, colChapter, colSection, colCategory,
	colTotalYears, colCoveredYears, colPct, colClass,
}

// ReadCSV parses a coverage file. Only commodity and ons_coverage_pct are
// required. When coverage_class is absent or unparseable the class is derived
// from the percentage with bp.
func ReadCSV(r io.Reader, bp Breakpoints) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumns)
		}
		return nil, fmt.Errorf("read coverage header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[normalizeColumn(h)] = i
	}

	var missing []string
	for _, col := range []string{colCommodity, colPct} {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	field := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []Record
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read coverage line %d: %w", line, err)
		}

		code, err := ParseCommodity(field(row, colCommodity))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		pct, err := parseFloat(field(row, colPct))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s: %w", line, colPct, err)
		}

		rec := Record{
			Commodity:    code,
			HS2Chapter:   parseIntOr(field(row, colChapter), 0),
			SITCSection:  parseIntOr(field(row, colSection), NoSection),
			Category:     field(row, colCategory),
			TotalYears:   parseIntOr(field(row, colTotalYears), 0),
			CoveredYears: parseIntOr(field(row, colCoveredYears), 0),
			CoveragePct:  pct,
		}

		if cls, err := ParseClass(field(row, colClass)); err == nil {
			rec.Class = cls
		} else {
			rec.Class = bp.Classify(pct)
		}

		records = append(records, rec.Normalize())
	}

	return records, nil
}

// WriteCSV writes records in the classified coverage layout, ordered by
// commodity code.
func WriteCSV(w io.Writer, records []Record) error {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Commodity < sorted[j].Commodity })

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range sorted {
		if err := cw.Write([]string{
			strconv.Itoa(r.Commodity),
			strconv.Itoa(r.HS2Chapter),
			strconv.Itoa(r.SITCSection),
			r.Category,
			strconv.Itoa(r.TotalYears),
			strconv.Itoa(r.CoveredYears),
			strconv.FormatFloat(r.CoveragePct, 'f', -1, 64),
			r.Class.String(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// normalizeColumn lowercases a header and replaces spaces and hyphens with
// underscores, so "ONS Coverage Pct" matches ons_coverage_pct.
func normalizeColumn(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.ReplaceAll(h, " ", "_")
	return strings.ReplaceAll(h, "-", "_")
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseIntOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	// Spreadsheet exports write integers as "12.0".
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return fallback
}
