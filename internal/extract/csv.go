package extract

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/acme/dialplan-sync/internal/domain"
	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
)

var rawHeader = []string{"catalog", "routestring", "pattern", "usage"}

// SkippedRow records an input row that could not be parsed.
type SkippedRow struct {
	Line int
	Err  error
}

// WriteRaw writes raw patterns as CSV with a header row.
func WriteRaw(w io.Writer, patterns []domain.RawPattern) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rawHeader); err != nil {
		return fmt.Errorf("extract: write header: %w", err)
	}
	for _, p := range patterns {
		record := []string{p.Catalog, p.RouteString, p.Pattern, strconv.Itoa(int(p.Usage))}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("extract: write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRaw reads the raw pattern CSV. Malformed rows are returned as
// skipped rows rather than failing the read; a missing or wrong header
// fails the whole file. A UTF-8 BOM on the first line is tolerated.
func ReadRaw(r io.Reader) ([]domain.RawPattern, []SkippedRow, error) {
	cr := csv.NewReader(stripBOM(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("extract: empty input: %w", pkgerrors.ErrParse)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("extract: read header: %w: %w", pkgerrors.ErrParse, err)
	}
	if !headerMatches(header) {
		return nil, nil, fmt.Errorf("extract: unexpected header %v: %w", header, pkgerrors.ErrParse)
	}

	var patterns []domain.RawPattern
	var skipped []SkippedRow
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped = append(skipped, SkippedRow{
					Line: line,
					Err:  fmt.Errorf("line %d: %w: %w", line, pkgerrors.ErrParse, err),
				})
				continue
			}
			return patterns, skipped, fmt.Errorf("extract: read: %w", err)
		}
		if len(record) != len(rawHeader) {
			skipped = append(skipped, SkippedRow{
				Line: line,
				Err:  fmt.Errorf("line %d: expected %d fields, got %d: %w", line, len(rawHeader), len(record), pkgerrors.ErrParse),
			})
			continue
		}
		usage, err := strconv.Atoi(record[3])
		if err != nil {
			skipped = append(skipped, SkippedRow{
				Line: line,
				Err:  fmt.Errorf("line %d: bad usage code %q: %w", line, record[3], pkgerrors.ErrParse),
			})
			continue
		}
		patterns = append(patterns, domain.RawPattern{
			Catalog:     record[0],
			RouteString: record[1],
			Pattern:     record[2],
			Usage:       domain.PatternUsage(usage),
		})
	}
	return patterns, skipped, nil
}

func headerMatches(header []string) bool {
	if len(header) != len(rawHeader) {
		return false
	}
	for i, h := range header {
		if h != rawHeader[i] {
			return false
		}
	}
	return true
}

// stripBOM drops a leading UTF-8 byte order mark, which Excel exports of
// the pattern report carry.
func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && b[0] == 0xef && b[1] == 0xbb && b[2] == 0xbf {
		_, _ = br.Discard(3)
	}
	return br
}
