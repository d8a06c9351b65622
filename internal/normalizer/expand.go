package normalizer

import (
	"fmt"
	"strings"

	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
)

// maxExpansions bounds the cartesian product of digit classes in one
// pattern. Learned patterns normally carry one class, so the bound only
// guards against degenerate input.
const maxExpansions = 10000

// expandClasses substitutes every digit class with the digits it matches,
// producing the cartesian expansion of the pattern. A pattern without
// classes expands to itself. Expansions are ordered by position and digit.
func expandClasses(pattern string) ([]string, error) {
	if !strings.ContainsRune(pattern, '[') {
		return []string{pattern}, nil
	}

	results := []string{""}
	rest := pattern
	for len(rest) > 0 {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			results = appendLiteral(results, rest)
			break
		}
		results = appendLiteral(results, rest[:open])

		closing := strings.IndexByte(rest[open:], ']')
		if closing < 0 {
			return nil, fmt.Errorf("unterminated digit class: %w", pkgerrors.ErrParse)
		}
		digits, err := parseClass(rest[open+1 : open+closing])
		if err != nil {
			return nil, err
		}
		if len(results)*len(digits) > maxExpansions {
			return nil, fmt.Errorf("digit class expansion exceeds %d patterns: %w",
				maxExpansions, pkgerrors.ErrParse)
		}

		next := make([]string, 0, len(results)*len(digits))
		for _, prefix := range results {
			for _, d := range digits {
				next = append(next, prefix+string(d))
			}
		}
		results = next
		rest = rest[open+closing+1:]
	}
	return results, nil
}

func appendLiteral(results []string, literal string) []string {
	if literal == "" {
		return results
	}
	for i := range results {
		results[i] += literal
	}
	return results
}

// parseClass reads the body of a digit class ("2-9", "^01", "13579") and
// returns the matched digits in ascending order.
func parseClass(body string) ([]byte, error) {
	negate := false
	if strings.HasPrefix(body, "^") {
		negate = true
		body = body[1:]
	}
	if body == "" {
		return nil, fmt.Errorf("empty digit class: %w", pkgerrors.ErrParse)
	}

	var matched [10]bool
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("illegal character %q in digit class: %w", c, pkgerrors.ErrParse)
		}
		if i+2 < len(body) && body[i+1] == '-' {
			hi := body[i+2]
			if hi < '0' || hi > '9' || hi < c {
				return nil, fmt.Errorf("invalid digit range %q: %w", body[i:i+3], pkgerrors.ErrParse)
			}
			for d := c; d <= hi; d++ {
				matched[d-'0'] = true
			}
			i += 2
			continue
		}
		matched[c-'0'] = true
	}

	var digits []byte
	for d := 0; d < 10; d++ {
		if matched[d] != negate {
			digits = append(digits, byte('0'+d))
		}
	}
	if len(digits) == 0 {
		return nil, fmt.Errorf("digit class matches nothing: %w", pkgerrors.ErrParse)
	}
	return digits, nil
}
