package normalizer

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/acme/dialplan-sync/internal/domain"
	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
)

var normalizedHeader = []string{"dialplan", "pattern", "type", "action"}

// SkippedRow records an input row that could not be parsed.
type SkippedRow struct {
	Line int
	Err  error
}

// WriteCSV writes normalized patterns with a header row, preserving the
// given order.
func WriteCSV(w io.Writer, patterns []domain.NormalizedPattern) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(normalizedHeader); err != nil {
		return fmt.Errorf("normalize: write header: %w", err)
	}
	for _, p := range patterns {
		record := []string{p.DialPlan, p.Pattern, string(p.Type), string(p.Action)}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("normalize: write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a normalized pattern CSV. Malformed rows are returned as
// skipped rows; a wrong header fails the whole file. A UTF-8 BOM on the
// first line is tolerated.
func ReadCSV(r io.Reader) ([]domain.NormalizedPattern, []SkippedRow, error) {
	cr := csv.NewReader(stripBOM(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("normalize: empty input: %w", pkgerrors.ErrParse)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("normalize: read header: %w: %w", pkgerrors.ErrParse, err)
	}
	if !headerMatches(header) {
		return nil, nil, fmt.Errorf("normalize: unexpected header %v: %w", header, pkgerrors.ErrParse)
	}

	var patterns []domain.NormalizedPattern
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
			return patterns, skipped, fmt.Errorf("normalize: read: %w", err)
		}
		if len(record) != len(normalizedHeader) || record[0] == "" || record[1] == "" {
			skipped = append(skipped, SkippedRow{
				Line: line,
				Err:  fmt.Errorf("line %d: malformed record %v: %w", line, record, pkgerrors.ErrParse),
			})
			continue
		}
		patterns = append(patterns, domain.NormalizedPattern{
			DialPlan: record[0],
			Pattern:  record[1],
			Type:     domain.PatternType(record[2]),
			Action:   domain.PatternAction(record[3]),
		})
	}
	return patterns, skipped, nil
}

func headerMatches(header []string) bool {
	if len(header) != len(normalizedHeader) {
		return false
	}
	for i, h := range header {
		if h != normalizedHeader[i] {
			return false
		}
	}
	return true
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && b[0] == 0xef && b[1] == 0xbb && b[2] == 0xbf {
		_, _ = br.Discard(3)
	}
	return br
}
