// Package normalizer rewrites learned call manager patterns into the
// pattern grammar accepted by the target calling service's dial plans.
// The target grammar only knows digits, X wildcards and a leading plus,
// so access codes are stripped, digit classes are expanded and anything
// else is dropped with a warning.
package normalizer

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/acme/dialplan-sync/internal/domain"
	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
	"github.com/acme/dialplan-sync/pkg/logger"
)

// Normalizer is a stateless single pass transform. The same input always
// yields the same output.
type Normalizer struct {
	planByCatalog map[string]string
	defaultRegion string
	logger        *logger.Logger
}

// New creates a normalizer. planByCatalog maps catalog route strings to
// dial plan names, defaultRegion is the region used to classify plain
// numbers.
func New(planByCatalog map[string]string, defaultRegion string, lg *logger.Logger) *Normalizer {
	return &Normalizer{
		planByCatalog: planByCatalog,
		defaultRegion: defaultRegion,
		logger:        lg,
	}
}

// Drop records one input record excluded from the output and the reason.
type Drop struct {
	Raw    domain.RawPattern
	Reason error
}

// Result is the outcome of one normalization run. Patterns preserves the
// input ordering of the surviving records. Dropped holds the records
// excluded as malformed or unmapped, exactly one entry per input record.
// Notes reports duplicate and conflict eliminations, which do not count
// as failures.
type Result struct {
	Patterns []domain.NormalizedPattern
	Dropped  []Drop
	Notes    []string
}

// origin is one surviving input record and its expansion state.
type origin struct {
	index    int
	raw      domain.RawPattern
	plan     string
	expanded []string
	keep     map[string]bool
}

// Run normalizes raw in input order.
func (n *Normalizer) Run(raw []domain.RawPattern) Result {
	var res Result
	var origins []*origin

	seen := make(map[string]bool)
	for i, r := range raw {
		dupeKey := r.RouteString + "\x00" + r.Pattern
		if seen[dupeKey] {
			res.Notes = append(res.Notes,
				fmt.Sprintf("duplicate pattern %q in catalog %q ignored", r.Pattern, r.RouteString))
			continue
		}
		seen[dupeKey] = true

		plan, ok := n.planByCatalog[r.RouteString]
		if !ok {
			n.drop(&res, r, fmt.Errorf("no dial plan configured for catalog %q: %w",
				r.RouteString, pkgerrors.ErrMapping))
			continue
		}

		stripped, _ := SplitAccessCode(r.Pattern)
		stripped = strings.ToUpper(strings.TrimPrefix(stripped, `\`))

		if err := validatePattern(stripped); err != nil {
			n.drop(&res, r, err)
			continue
		}

		expanded, err := expandClasses(stripped)
		if err != nil {
			n.drop(&res, r, err)
			continue
		}

		o := &origin{index: i, raw: r, plan: plan, expanded: expanded, keep: make(map[string]bool, len(expanded))}
		for _, p := range expanded {
			o.keep[p] = true
		}
		origins = append(origins, o)
	}

	res.Notes = append(res.Notes, resolveConflicts(origins)...)

	for _, o := range origins {
		for _, p := range o.expanded {
			if !o.keep[p] {
				continue
			}
			res.Patterns = append(res.Patterns, domain.NormalizedPattern{
				DialPlan: o.plan,
				Pattern:  p,
				Type:     classify(p, n.defaultRegion, o.raw.Usage),
				Action:   domain.PatternActionRoute,
			})
		}
	}

	for _, note := range res.Notes {
		n.logger.Info("normalize: " + note)
	}
	return res
}

func (n *Normalizer) drop(res *Result, r domain.RawPattern, reason error) {
	res.Dropped = append(res.Dropped, Drop{Raw: r, Reason: reason})
	n.logger.Warn("normalize: pattern dropped",
		zap.String("catalog", r.RouteString),
		zap.String("pattern", r.Pattern),
		zap.Error(reason))
}

// SplitAccessCode cuts the access code off a pattern. The call manager
// marks the end of the access code with the PreDot separator; everything
// through the first dot is the access code. The split is invertible:
// access + rest restores the source pattern.
func SplitAccessCode(pattern string) (rest, access string) {
	if i := strings.IndexByte(pattern, '.'); i >= 0 {
		return pattern[i+1:], pattern[:i+1]
	}
	return pattern, ""
}

// validatePattern checks the stripped pattern against the supported
// grammar: an optional leading plus, digits, X wildcards and digit
// classes. Everything else is unsupported in the target grammar.
func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern: %w", pkgerrors.ErrParse)
	}

	rest := strings.TrimPrefix(pattern, "+")
	inClass := false
	for _, c := range rest {
		if inClass {
			switch {
			case c == ']':
				inClass = false
			case c >= '0' && c <= '9', c == '-', c == '^':
			default:
				return fmt.Errorf("illegal character %q in digit class: %w", c, pkgerrors.ErrParse)
			}
			continue
		}
		switch {
		case c >= '0' && c <= '9', c == 'X':
		case c == '[':
			inClass = true
		default:
			return fmt.Errorf("illegal character %q in pattern: %w", c, pkgerrors.ErrParse)
		}
	}
	if inClass {
		return fmt.Errorf("unterminated digit class: %w", pkgerrors.ErrParse)
	}
	return nil
}
