package provisioner

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/acme/dialplan-sync/internal/config"
	"github.com/acme/dialplan-sync/internal/domain"
	"github.com/acme/dialplan-sync/internal/report"
	"github.com/acme/dialplan-sync/internal/webex"
	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
	"github.com/acme/dialplan-sync/pkg/logger"
)

// fakeAPI is an in-memory provisioning surface recording every call.
type fakeAPI struct {
	trunks      []webex.Trunk
	routeGroups []webex.RouteGroup
	plans       []webex.DialPlan
	patterns    map[string][]string

	rejectAdd map[string]webex.DialPatternStatus
	addErr    error
	addErrFor string

	calls  []string
	nextID int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		trunks:   []webex.Trunk{{ID: "trunk-1", Name: "lgw-east-1"}},
		patterns: make(map[string][]string),
	}
}

func (f *fakeAPI) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeAPI) Trunks(ctx context.Context) ([]webex.Trunk, error) {
	return f.trunks, nil
}

func (f *fakeAPI) RouteGroups(ctx context.Context) ([]webex.RouteGroup, error) {
	return f.routeGroups, nil
}

func (f *fakeAPI) DialPlans(ctx context.Context) ([]webex.DialPlan, error) {
	return append([]webex.DialPlan(nil), f.plans...), nil
}

func (f *fakeAPI) CreateDialPlan(ctx context.Context, name, routeID string, routeType domain.RouteType) (string, error) {
	f.nextID++
	id := fmt.Sprintf("dp-%d", f.nextID)
	f.plans = append(f.plans, webex.DialPlan{
		ID:                id,
		Name:              name,
		RouteIdentityID:   routeID,
		RouteIdentityType: routeType.Identity(),
	})
	f.record("create:%s", name)
	return id, nil
}

func (f *fakeAPI) UpdateDialPlanRouting(ctx context.Context, dialPlanID, routeID string, routeType domain.RouteType) error {
	for i := range f.plans {
		if f.plans[i].ID == dialPlanID {
			f.plans[i].RouteIdentityID = routeID
			f.plans[i].RouteIdentityType = routeType.Identity()
		}
	}
	f.record("update:%s", dialPlanID)
	return nil
}

func (f *fakeAPI) DeleteDialPlan(ctx context.Context, dialPlanID string) error {
	kept := f.plans[:0]
	for _, dp := range f.plans {
		if dp.ID != dialPlanID {
			kept = append(kept, dp)
		}
	}
	f.plans = kept
	delete(f.patterns, dialPlanID)
	f.record("deleteplan:%s", dialPlanID)
	return nil
}

func (f *fakeAPI) DialPlanPatterns(ctx context.Context, dialPlanID string) ([]string, error) {
	return append([]string(nil), f.patterns[dialPlanID]...), nil
}

func (f *fakeAPI) AddPatterns(ctx context.Context, dialPlanID string, patterns []string) ([]webex.DialPatternStatus, error) {
	f.record("add:%s:%s", dialPlanID, strings.Join(patterns, ","))
	if f.addErr != nil && (f.addErrFor == "" || f.addErrFor == dialPlanID) {
		return nil, f.addErr
	}
	var rejected []webex.DialPatternStatus
	for _, p := range patterns {
		if status, bad := f.rejectAdd[p]; bad {
			rejected = append(rejected, status)
			continue
		}
		f.patterns[dialPlanID] = append(f.patterns[dialPlanID], p)
	}
	return rejected, nil
}

func (f *fakeAPI) DeletePatterns(ctx context.Context, dialPlanID string, patterns []string) ([]webex.DialPatternStatus, error) {
	f.record("deletepatterns:%s:%s", dialPlanID, strings.Join(patterns, ","))
	drop := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		drop[p] = true
	}
	kept := f.patterns[dialPlanID][:0]
	for _, p := range f.patterns[dialPlanID] {
		if !drop[p] {
			kept = append(kept, p)
		}
	}
	f.patterns[dialPlanID] = kept
	return nil, nil
}

func testConfig(plans ...config.DialPlanConfig) *config.Config {
	return &config.Config{DialPlans: plans}
}

func eastPlan() config.DialPlanConfig {
	return config.DialPlanConfig{
		Name:        "DP-EAST",
		RouteType:   domain.RouteTypeTrunk,
		RouteChoice: "lgw-east-1",
		Catalogs:    []string{"east-cluster"},
	}
}

func eastPatterns(patterns ...string) []domain.NormalizedPattern {
	out := make([]domain.NormalizedPattern, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, domain.NormalizedPattern{
			DialPlan: "DP-EAST",
			Pattern:  p,
			Type:     domain.PatternTypeExtension,
			Action:   domain.PatternActionRoute,
		})
	}
	return out
}

func TestRunCreatesMissingPlan(t *testing.T) {
	api := newFakeAPI()
	p := New(api, testConfig(eastPlan()), logger.NewNop())

	rep, err := p.Run(context.Background(), eastPatterns("85XXX", "86XXX"), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.HasFailures() {
		t.Fatalf("unexpected failures: %v", rep.Failures())
	}

	counts := rep.Summary()
	if counts[report.OpCreateDialPlan] != 1 || counts[report.OpAdd] != 2 {
		t.Errorf("unexpected summary %v", counts)
	}
	if got := api.patterns["dp-1"]; len(got) != 2 {
		t.Errorf("expected 2 patterns on the new plan, got %v", got)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	cfg := testConfig(eastPlan())
	input := eastPatterns("85XXX", "86XXX")

	if _, err := New(api, cfg, logger.NewNop()).Run(context.Background(), input, Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	api.calls = nil

	rep, err := New(api, cfg, logger.NewNop()).Run(context.Background(), input, Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep.HasFailures() {
		t.Fatalf("unexpected failures: %v", rep.Failures())
	}

	counts := rep.Summary()
	if counts[report.OpCreateDialPlan] != 0 || counts[report.OpAdd] != 0 {
		t.Errorf("second run must not create or add, got %v", counts)
	}
	if counts[report.OpSkip] != 2 {
		t.Errorf("expected 2 skips, got %v", counts)
	}
	for _, call := range api.calls {
		if strings.HasPrefix(call, "create:") || strings.HasPrefix(call, "add:") {
			t.Errorf("unexpected mutating call %q", call)
		}
	}
}

func TestRunRecordsMappingErrorForUnknownPlan(t *testing.T) {
	api := newFakeAPI()
	p := New(api, testConfig(eastPlan()), logger.NewNop())

	input := append(eastPatterns("85XXX"), domain.NormalizedPattern{
		DialPlan: "DP-GHOST",
		Pattern:  "87XXX",
	})
	rep, err := p.Run(context.Background(), input, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	failures := rep.Failures()
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", failures)
	}
	if failures[0].Op != report.OpDrop || !pkgerrors.Is(failures[0].Err, pkgerrors.ErrMapping) {
		t.Errorf("expected mapping drop, got %+v", failures[0])
	}
	// The mapped plan still gets its pattern.
	if got := api.patterns["dp-1"]; len(got) != 1 || got[0] != "85XXX" {
		t.Errorf("expected 85XXX on dp-1, got %v", got)
	}
}

func TestRunSkipsPlanOnUnknownRouteChoice(t *testing.T) {
	api := newFakeAPI()
	ghost := config.DialPlanConfig{
		Name:        "DP-GHOST",
		RouteType:   domain.RouteTypeTrunk,
		RouteChoice: "missing-trunk",
	}
	p := New(api, testConfig(ghost, eastPlan()), logger.NewNop())

	rep, err := p.Run(context.Background(), eastPatterns("85XXX"), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var skipErr error
	for _, rec := range rep.Records {
		if rec.Key == "DP-GHOST" && rec.Op == report.OpSkip {
			skipErr = rec.Err
		}
	}
	if !pkgerrors.Is(skipErr, pkgerrors.ErrMapping) {
		t.Errorf("expected mapping error skip for DP-GHOST, got %v", skipErr)
	}
	for _, call := range api.calls {
		if call == "create:DP-GHOST" {
			t.Error("plan with unknown route choice must not be created")
		}
	}
	if _, ok := api.patterns["dp-1"]; !ok {
		t.Error("remaining plan must still be provisioned")
	}
}

func TestRunUpdatesChangedRouting(t *testing.T) {
	api := newFakeAPI()
	api.trunks = append(api.trunks, webex.Trunk{ID: "trunk-2", Name: "lgw-east-2"})
	api.plans = []webex.DialPlan{{
		ID:                "dp-old",
		Name:              "DP-EAST",
		RouteIdentityID:   "trunk-2",
		RouteIdentityType: "TRUNK",
	}}

	p := New(api, testConfig(eastPlan()), logger.NewNop())
	rep, err := p.Run(context.Background(), eastPatterns("85XXX"), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.HasFailures() {
		t.Fatalf("unexpected failures: %v", rep.Failures())
	}

	if rep.Summary()[report.OpUpdateRouting] != 1 {
		t.Errorf("expected a routing update, got %v", rep.Summary())
	}
	if api.plans[0].RouteIdentityID != "trunk-1" {
		t.Errorf("routing not updated: %+v", api.plans[0])
	}
}

func TestRunKeepsRoutingWhenUnchanged(t *testing.T) {
	api := newFakeAPI()
	api.plans = []webex.DialPlan{{
		ID:                "dp-old",
		Name:              "DP-EAST",
		RouteIdentityID:   "trunk-1",
		RouteIdentityType: "TRUNK",
	}}

	p := New(api, testConfig(eastPlan()), logger.NewNop())
	rep, err := p.Run(context.Background(), eastPatterns("85XXX"), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Summary()[report.OpUpdateRouting] != 0 {
		t.Errorf("expected no routing update, got %v", rep.Summary())
	}
}

func TestRunFatalOnOnePlanContinuesOthers(t *testing.T) {
	api := newFakeAPI()
	api.trunks = append(api.trunks, webex.Trunk{ID: "trunk-9", Name: "lgw-west-1"})
	api.addErr = fmt.Errorf("provision: add patterns: %w", pkgerrors.ErrRemoteFatal)
	api.addErrFor = "dp-1"

	west := config.DialPlanConfig{
		Name:        "DP-WEST",
		RouteType:   domain.RouteTypeTrunk,
		RouteChoice: "lgw-west-1",
	}
	input := append(eastPatterns("85XXX"), domain.NormalizedPattern{DialPlan: "DP-WEST", Pattern: "86XXX"})

	p := New(api, testConfig(eastPlan(), west), logger.NewNop())
	rep, err := p.Run(context.Background(), input, Options{})
	if err != nil {
		t.Fatalf("run must not abort on a per plan failure: %v", err)
	}

	if !rep.HasFailures() {
		t.Fatal("expected recorded failure")
	}
	if rep.ExitCode() != 1 {
		t.Errorf("expected exit code 1, got %d", rep.ExitCode())
	}
	if got := api.patterns["dp-2"]; len(got) != 1 || got[0] != "86XXX" {
		t.Errorf("second plan must still be provisioned, got %v", got)
	}
}

func TestRunRecordsRejectedPatterns(t *testing.T) {
	api := newFakeAPI()
	api.rejectAdd = map[string]webex.DialPatternStatus{
		"86XXX": {Pattern: "86XXX", Status: "INVALID", Message: "pattern not accepted"},
	}

	p := New(api, testConfig(eastPlan()), logger.NewNop())
	rep, err := p.Run(context.Background(), eastPatterns("85XXX", "86XXX"), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	failures := rep.Failures()
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", failures)
	}
	if failures[0].Key != "DP-EAST/86XXX" || !pkgerrors.Is(failures[0].Err, pkgerrors.ErrRemoteFatal) {
		t.Errorf("unexpected failure %+v", failures[0])
	}
	if got := api.patterns["dp-1"]; len(got) != 1 || got[0] != "85XXX" {
		t.Errorf("accepted pattern must still land, got %v", got)
	}
}

func TestRunWithoutPruneLeavesStalePatterns(t *testing.T) {
	api := newFakeAPI()
	api.plans = []webex.DialPlan{{
		ID: "dp-old", Name: "DP-EAST", RouteIdentityID: "trunk-1", RouteIdentityType: "TRUNK",
	}}
	api.patterns["dp-old"] = []string{"79XXX"}

	p := New(api, testConfig(eastPlan()), logger.NewNop())
	if _, err := p.Run(context.Background(), eastPatterns("85XXX"), Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := api.patterns["dp-old"]
	if len(got) != 2 {
		t.Fatalf("expected stale pattern kept plus new one, got %v", got)
	}
	for _, call := range api.calls {
		if strings.HasPrefix(call, "deletepatterns:") {
			t.Errorf("unexpected delete call %q", call)
		}
	}
}

func TestRunPruneDeletesStaleBeforeAnyAdd(t *testing.T) {
	api := newFakeAPI()
	api.trunks = append(api.trunks, webex.Trunk{ID: "trunk-9", Name: "lgw-west-1"})
	// 85XXX moves from DP-EAST to DP-WEST.
	api.plans = []webex.DialPlan{
		{ID: "dp-east", Name: "DP-EAST", RouteIdentityID: "trunk-1", RouteIdentityType: "TRUNK"},
		{ID: "dp-west", Name: "DP-WEST", RouteIdentityID: "trunk-9", RouteIdentityType: "TRUNK"},
	}
	api.patterns["dp-east"] = []string{"85XXX"}

	west := config.DialPlanConfig{
		Name:        "DP-WEST",
		RouteType:   domain.RouteTypeTrunk,
		RouteChoice: "lgw-west-1",
	}
	input := []domain.NormalizedPattern{{DialPlan: "DP-WEST", Pattern: "85XXX"}}

	p := New(api, testConfig(eastPlan(), west), logger.NewNop())
	rep, err := p.Run(context.Background(), input, Options{Prune: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.HasFailures() {
		t.Fatalf("unexpected failures: %v", rep.Failures())
	}

	deleteIdx, addIdx := -1, -1
	for i, call := range api.calls {
		if strings.HasPrefix(call, "deletepatterns:dp-east") && deleteIdx < 0 {
			deleteIdx = i
		}
		if strings.HasPrefix(call, "add:dp-west") && addIdx < 0 {
			addIdx = i
		}
	}
	if deleteIdx < 0 || addIdx < 0 {
		t.Fatalf("expected both delete and add calls, got %v", api.calls)
	}
	if deleteIdx > addIdx {
		t.Errorf("delete pass must run before adds: %v", api.calls)
	}
	if got := api.patterns["dp-east"]; len(got) != 0 {
		t.Errorf("stale pattern not pruned: %v", got)
	}
	if got := api.patterns["dp-west"]; len(got) != 1 || got[0] != "85XXX" {
		t.Errorf("moved pattern not added: %v", got)
	}
}

func TestDeletePlansIgnoresAbsent(t *testing.T) {
	api := newFakeAPI()
	api.plans = []webex.DialPlan{{ID: "dp-east", Name: "DP-EAST"}}

	west := config.DialPlanConfig{
		Name:        "DP-WEST",
		RouteType:   domain.RouteTypeTrunk,
		RouteChoice: "lgw-west-1",
	}
	p := New(api, testConfig(eastPlan(), west), logger.NewNop())

	rep, err := p.DeletePlans(context.Background())
	if err != nil {
		t.Fatalf("delete plans: %v", err)
	}
	if rep.HasFailures() {
		t.Fatalf("unexpected failures: %v", rep.Failures())
	}

	counts := rep.Summary()
	if counts[report.OpDeleteDialPlan] != 1 || counts[report.OpSkip] != 1 {
		t.Errorf("unexpected summary %v", counts)
	}
	if len(api.plans) != 0 {
		t.Errorf("plan not deleted: %v", api.plans)
	}
}
