package normalizer

import (
	"strings"
	"testing"

	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
)

func TestExpandClasses(t *testing.T) {
	cases := []struct {
		pattern string
		want    []string
	}{
		{pattern: "1408555XXXX", want: []string{"1408555XXXX"}},
		{pattern: "[2-4]XX", want: []string{"2XX", "3XX", "4XX"}},
		{pattern: "8[05]1", want: []string{"801", "851"}},
		{pattern: "[^2-9]X", want: []string{"0X", "1X"}},
		{pattern: "[13]X[78]", want: []string{"1X7", "1X8", "3X7", "3X8"}},
		{pattern: "+49[68]9X", want: []string{"+4969X", "+4989X"}},
		{pattern: "[2-35-6]", want: []string{"2", "3", "5", "6"}},
	}
	for _, tc := range cases {
		got, err := expandClasses(tc.pattern)
		if err != nil {
			t.Errorf("%q: unexpected error %v", tc.pattern, err)
			continue
		}
		if len(got) != len(tc.want) {
			t.Errorf("%q: expected %v, got %v", tc.pattern, tc.want, got)
			continue
		}
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Errorf("%q: position %d: expected %q, got %q", tc.pattern, i, tc.want[i], got[i])
			}
		}
	}
}

func TestExpandClassesErrors(t *testing.T) {
	cases := []string{
		"1[2-",
		"1[]X",
		"1[9-2]X",
		"1[2-9",
		"1[^0-9]X",
	}
	for _, pattern := range cases {
		if _, err := expandClasses(pattern); err == nil {
			t.Errorf("%q: expected error", pattern)
		} else if !pkgerrors.Is(err, pkgerrors.ErrParse) {
			t.Errorf("%q: expected parse error, got %v", pattern, err)
		}
	}
}

func TestExpandClassesBoundsFanOut(t *testing.T) {
	pattern := strings.Repeat("[0-9]", 5)
	_, err := expandClasses(pattern)
	if err == nil {
		t.Fatal("expected fan-out bound to trip")
	}
	if !pkgerrors.Is(err, pkgerrors.ErrParse) {
		t.Errorf("expected parse error, got %v", err)
	}
}
