// Package report collects per-record outcomes of a pipeline stage and
// turns them into a summary, an exit code and structured log output.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/dialplan-sync/pkg/logger"
)

// Op names the operation applied to one record.
type Op string

const (
	OpAdd            Op = "add"
	OpDelete         Op = "delete"
	OpSkip           Op = "skip"
	OpDrop           Op = "drop"
	OpCreateDialPlan Op = "create_dialplan"
	OpUpdateRouting  Op = "update_routing"
	OpDeleteDialPlan Op = "delete_dialplan"
)

// Record is one operation outcome. Err is nil on success.
type Record struct {
	Key string
	Op  Op
	Err error
}

// Report accumulates the outcomes of one stage run.
type Report struct {
	RunID   uuid.UUID
	Stage   string
	Started time.Time
	Records []Record
}

// New creates an empty report for a stage with a fresh run ID.
func New(stage string) *Report {
	return &Report{
		RunID:   uuid.New(),
		Stage:   stage,
		Started: time.Now(),
	}
}

// Add appends one outcome.
func (r *Report) Add(key string, op Op, err error) {
	r.Records = append(r.Records, Record{Key: key, Op: op, Err: err})
}

// Failures returns the records that carry an error.
func (r *Report) Failures() []Record {
	var failed []Record
	for _, rec := range r.Records {
		if rec.Err != nil {
			failed = append(failed, rec)
		}
	}
	return failed
}

// HasFailures reports whether any record carries an error.
func (r *Report) HasFailures() bool {
	for _, rec := range r.Records {
		if rec.Err != nil {
			return true
		}
	}
	return false
}

// ExitCode maps the report onto a process exit code: 0 when every record
// succeeded, 1 otherwise.
func (r *Report) ExitCode() int {
	if r.HasFailures() {
		return 1
	}
	return 0
}

// Summary counts records per operation.
func (r *Report) Summary() map[Op]int {
	counts := make(map[Op]int)
	for _, rec := range r.Records {
		counts[rec.Op]++
	}
	return counts
}

// Write renders the report for a terminal: run header, per-operation
// counts in stable order, then every failed record.
func (r *Report) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s run %s: %d records in %s\n",
		r.Stage, r.RunID, len(r.Records), time.Since(r.Started).Round(time.Millisecond)); err != nil {
		return err
	}

	counts := r.Summary()
	ops := make([]string, 0, len(counts))
	for op := range counts {
		ops = append(ops, string(op))
	}
	sort.Strings(ops)
	for _, op := range ops {
		if _, err := fmt.Fprintf(w, "  %-16s %d\n", op, counts[Op(op)]); err != nil {
			return err
		}
	}

	for _, rec := range r.Failures() {
		if _, err := fmt.Fprintf(w, "  FAILED %s %s: %v\n", rec.Op, rec.Key, rec.Err); err != nil {
			return err
		}
	}
	return nil
}

// Log emits the summary and every failure through the structured logger.
// The logger is expected to carry the stage and run fields already.
func (r *Report) Log(lg *logger.Logger) {
	fields := []zap.Field{zap.Int("records", len(r.Records))}
	for op, count := range r.Summary() {
		fields = append(fields, zap.Int(string(op), count))
	}
	lg.Info("run complete", fields...)

	for _, rec := range r.Failures() {
		lg.Error("record failed",
			zap.String("op", string(rec.Op)),
			zap.String("key", rec.Key),
			zap.Error(rec.Err))
	}
}
