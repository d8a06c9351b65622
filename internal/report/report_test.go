package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestReportExitCode(t *testing.T) {
	r := New("provision")
	r.Add("DP-EAST/85XXX", OpAdd, nil)
	r.Add("DP-EAST/86XXX", OpSkip, nil)

	if r.HasFailures() {
		t.Error("expected no failures")
	}
	if code := r.ExitCode(); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}

	r.Add("DP-WEST/87XXX", OpAdd, errors.New("rejected"))
	if !r.HasFailures() {
		t.Error("expected failures after adding an error")
	}
	if code := r.ExitCode(); code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
	if got := len(r.Failures()); got != 1 {
		t.Errorf("expected 1 failure, got %d", got)
	}
}

func TestReportSummary(t *testing.T) {
	r := New("provision")
	r.Add("a", OpAdd, nil)
	r.Add("b", OpAdd, nil)
	r.Add("c", OpDelete, nil)
	r.Add("DP-EAST", OpCreateDialPlan, nil)

	counts := r.Summary()
	if counts[OpAdd] != 2 || counts[OpDelete] != 1 || counts[OpCreateDialPlan] != 1 {
		t.Errorf("unexpected summary: %v", counts)
	}
}

func TestReportWrite(t *testing.T) {
	r := New("normalize")
	r.Add("85XXX", OpAdd, nil)
	r.Add("12AB", OpDrop, errors.New("illegal character"))

	var buf bytes.Buffer
	if err := r.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "normalize run "+r.RunID.String()) {
		t.Errorf("missing run header in %q", out)
	}
	if !strings.Contains(out, "add") || !strings.Contains(out, "drop") {
		t.Errorf("missing op counts in %q", out)
	}
	if !strings.Contains(out, "FAILED drop 12AB: illegal character") {
		t.Errorf("missing failure line in %q", out)
	}
}

func TestReportRunIDsAreUnique(t *testing.T) {
	if New("extract").RunID == New("extract").RunID {
		t.Error("expected distinct run ids")
	}
}
