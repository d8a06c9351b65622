// Package provisioner reconciles normalized patterns against the dial
// plans of the target organization: it creates missing plans, fixes
// their routing, adds missing patterns and optionally prunes stale
// ones. Plans are processed sequentially; a fatal error on one plan
// aborts that plan only.
package provisioner

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/dialplan-sync/internal/config"
	"github.com/acme/dialplan-sync/internal/domain"
	"github.com/acme/dialplan-sync/internal/report"
	"github.com/acme/dialplan-sync/internal/webex"
	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
	"github.com/acme/dialplan-sync/pkg/logger"
)

// API is the provisioning surface the reconciler drives.
type API interface {
	DialPlans(ctx context.Context) ([]webex.DialPlan, error)
	CreateDialPlan(ctx context.Context, name, routeID string, routeType domain.RouteType) (string, error)
	UpdateDialPlanRouting(ctx context.Context, dialPlanID, routeID string, routeType domain.RouteType) error
	DeleteDialPlan(ctx context.Context, dialPlanID string) error
	DialPlanPatterns(ctx context.Context, dialPlanID string) ([]string, error)
	AddPatterns(ctx context.Context, dialPlanID string, patterns []string) ([]webex.DialPatternStatus, error)
	DeletePatterns(ctx context.Context, dialPlanID string, patterns []string) ([]webex.DialPatternStatus, error)
	Trunks(ctx context.Context) ([]webex.Trunk, error)
	RouteGroups(ctx context.Context) ([]webex.RouteGroup, error)
}

// Provisioner reconciles configured dial plans.
type Provisioner struct {
	api    API
	cfg    *config.Config
	logger *logger.Logger
}

// New creates a provisioner.
func New(api API, cfg *config.Config, lg *logger.Logger) *Provisioner {
	return &Provisioner{api: api, cfg: cfg, logger: lg}
}

// Options adjust one provisioning run.
type Options struct {
	// Prune removes remote patterns absent from the input. Deletions
	// run as a separate pass over all plans before any additions, so a
	// pattern moving between plans is removed before it is re-added.
	Prune bool
}

// planState is the resolved work for one configured dial plan.
type planState struct {
	cfg     config.DialPlanConfig
	routeID string
	remote  *webex.DialPlan
	desired []string
}

// Run reconciles the given patterns against the configured dial plans.
// Patterns naming an unconfigured plan are recorded as mapping failures
// and skipped. The report carries one record per operation.
func (p *Provisioner) Run(ctx context.Context, patterns []domain.NormalizedPattern, opts Options) (*report.Report, error) {
	rep := report.New("provision")

	planByName := p.cfg.PlanByName()
	byPlan := make(map[string]map[string]bool)
	for _, pat := range patterns {
		if _, ok := planByName[pat.DialPlan]; !ok {
			rep.Add(pat.DialPlan+"/"+pat.Pattern, report.OpDrop,
				fmt.Errorf("provision: no dial plan %q in configuration: %w",
					pat.DialPlan, pkgerrors.ErrMapping))
			continue
		}
		set := byPlan[pat.DialPlan]
		if set == nil {
			set = make(map[string]bool)
			byPlan[pat.DialPlan] = set
		}
		set[pat.Pattern] = true
	}

	states, err := p.resolve(ctx, byPlan, rep)
	if err != nil {
		return rep, err
	}

	if opts.Prune {
		for _, st := range states {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			p.prunePlan(ctx, st, rep)
		}
	}
	for _, st := range states {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		p.syncPlan(ctx, st, rep)
	}
	return rep, nil
}

// resolve fetches the org wide state once and binds each configured
// plan to its route identity and remote counterpart. An unknown route
// choice skips that plan with a mapping failure.
func (p *Provisioner) resolve(ctx context.Context, byPlan map[string]map[string]bool, rep *report.Report) ([]*planState, error) {
	trunks, err := p.api.Trunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("provision: list trunks: %w", err)
	}
	trunkIDs := make(map[string]string, len(trunks))
	for _, t := range trunks {
		trunkIDs[t.Name] = t.ID
	}

	routeGroups, err := p.api.RouteGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("provision: list route groups: %w", err)
	}
	routeGroupIDs := make(map[string]string, len(routeGroups))
	for _, rg := range routeGroups {
		routeGroupIDs[rg.Name] = rg.ID
	}

	plans, err := p.api.DialPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("provision: list dial plans: %w", err)
	}
	remote := make(map[string]webex.DialPlan, len(plans))
	for _, dp := range plans {
		remote[dp.Name] = dp
	}

	var states []*planState
	for _, dp := range p.cfg.DialPlans {
		var routeID string
		var ok bool
		if dp.RouteType == domain.RouteTypeTrunk {
			routeID, ok = trunkIDs[dp.RouteChoice]
		} else {
			routeID, ok = routeGroupIDs[dp.RouteChoice]
		}
		if !ok {
			rep.Add(dp.Name, report.OpSkip,
				fmt.Errorf("provision: %s: unknown route choice %q (%s): %w",
					dp.Name, dp.RouteChoice, dp.RouteType, pkgerrors.ErrMapping))
			continue
		}

		desired := make([]string, 0, len(byPlan[dp.Name]))
		for pat := range byPlan[dp.Name] {
			desired = append(desired, pat)
		}
		sort.Strings(desired)

		st := &planState{cfg: dp, routeID: routeID, desired: desired}
		if dp, ok := remote[dp.Name]; ok {
			st.remote = &dp
		}
		states = append(states, st)
	}
	return states, nil
}

// prunePlan deletes remote patterns absent from the desired set.
func (p *Provisioner) prunePlan(ctx context.Context, st *planState, rep *report.Report) {
	if st.remote == nil {
		return
	}

	tracer := otel.Tracer("dialplan.provisioner")
	ctx, span := tracer.Start(ctx, "provision.prune", trace.WithAttributes(
		attribute.String("dialplan", st.cfg.Name),
	))
	defer span.End()

	existing, err := p.api.DialPlanPatterns(ctx, st.remote.ID)
	if err != nil {
		span.RecordError(err)
		rep.Add(st.cfg.Name, report.OpDelete,
			fmt.Errorf("provision: %s: list patterns: %w", st.cfg.Name, err))
		return
	}

	desired := make(map[string]bool, len(st.desired))
	for _, pat := range st.desired {
		desired[pat] = true
	}
	var stale []string
	for _, pat := range existing {
		if !desired[pat] {
			stale = append(stale, pat)
		}
	}
	sort.Strings(stale)
	if len(stale) == 0 {
		return
	}

	rejected, err := p.api.DeletePatterns(ctx, st.remote.ID, stale)
	if err != nil {
		span.RecordError(err)
		rep.Add(st.cfg.Name, report.OpDelete,
			fmt.Errorf("provision: %s: delete patterns: %w", st.cfg.Name, err))
		return
	}
	refused := statusByPattern(rejected)
	for _, pat := range stale {
		rep.Add(st.cfg.Name+"/"+pat, report.OpDelete, refused[pat])
	}
	p.logger.Info("stale patterns deleted",
		zap.String("dialplan", st.cfg.Name),
		zap.Int("count", len(stale)-len(refused)))
}

// syncPlan ensures the dial plan exists with the configured routing and
// adds the missing patterns. Any error aborts this plan's remaining
// operations.
func (p *Provisioner) syncPlan(ctx context.Context, st *planState, rep *report.Report) {
	tracer := otel.Tracer("dialplan.provisioner")
	ctx, span := tracer.Start(ctx, "provision.sync", trace.WithAttributes(
		attribute.String("dialplan", st.cfg.Name),
		attribute.Int("desired", len(st.desired)),
	))
	defer span.End()

	var planID string
	var existing []string
	if st.remote == nil {
		id, err := p.api.CreateDialPlan(ctx, st.cfg.Name, st.routeID, st.cfg.RouteType)
		rep.Add(st.cfg.Name, report.OpCreateDialPlan, err)
		if err != nil {
			span.RecordError(err)
			return
		}
		planID = id
		p.logger.Info("dial plan created",
			zap.String("dialplan", st.cfg.Name),
			zap.String("id", id))
	} else {
		planID = st.remote.ID
		if st.remote.RouteIdentityType != st.cfg.RouteType.Identity() ||
			st.remote.RouteIdentityID != st.routeID {
			err := p.api.UpdateDialPlanRouting(ctx, planID, st.routeID, st.cfg.RouteType)
			rep.Add(st.cfg.Name, report.OpUpdateRouting, err)
			if err != nil {
				span.RecordError(err)
				return
			}
			p.logger.Info("dial plan routing updated",
				zap.String("dialplan", st.cfg.Name),
				zap.String("route_choice", st.cfg.RouteChoice))
		}

		patterns, err := p.api.DialPlanPatterns(ctx, planID)
		if err != nil {
			span.RecordError(err)
			rep.Add(st.cfg.Name, report.OpAdd,
				fmt.Errorf("provision: %s: list patterns: %w", st.cfg.Name, err))
			return
		}
		existing = patterns
	}

	present := make(map[string]bool, len(existing))
	for _, pat := range existing {
		present[pat] = true
	}

	var toAdd []string
	for _, pat := range st.desired {
		if present[pat] {
			rep.Add(st.cfg.Name+"/"+pat, report.OpSkip, nil)
			continue
		}
		toAdd = append(toAdd, pat)
	}
	if len(toAdd) == 0 {
		return
	}

	rejected, err := p.api.AddPatterns(ctx, planID, toAdd)
	if err != nil {
		span.RecordError(err)
		rep.Add(st.cfg.Name, report.OpAdd,
			fmt.Errorf("provision: %s: add patterns: %w", st.cfg.Name, err))
		return
	}
	refused := statusByPattern(rejected)
	for _, pat := range toAdd {
		rep.Add(st.cfg.Name+"/"+pat, report.OpAdd, refused[pat])
	}
	p.logger.Info("patterns added",
		zap.String("dialplan", st.cfg.Name),
		zap.Int("count", len(toAdd)-len(refused)))
}

// statusByPattern indexes bulk update refusals as per pattern errors.
func statusByPattern(statuses []webex.DialPatternStatus) map[string]error {
	if len(statuses) == 0 {
		return nil
	}
	m := make(map[string]error, len(statuses))
	for _, s := range statuses {
		m[s.Pattern] = fmt.Errorf("provision: pattern refused: %s: %s: %w",
			s.Status, s.Message, pkgerrors.ErrRemoteFatal)
	}
	return m
}

// DeletePlans removes every configured dial plan from the organization,
// ignoring plans already absent.
func (p *Provisioner) DeletePlans(ctx context.Context) (*report.Report, error) {
	rep := report.New("delete")

	plans, err := p.api.DialPlans(ctx)
	if err != nil {
		return rep, fmt.Errorf("provision: list dial plans: %w", err)
	}
	remote := make(map[string]webex.DialPlan, len(plans))
	for _, dp := range plans {
		remote[dp.Name] = dp
	}

	for _, dp := range p.cfg.DialPlans {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		wxc, ok := remote[dp.Name]
		if !ok {
			rep.Add(dp.Name, report.OpSkip, nil)
			continue
		}
		err := p.api.DeleteDialPlan(ctx, wxc.ID)
		rep.Add(dp.Name, report.OpDeleteDialPlan, err)
		if err != nil {
			continue
		}
		p.logger.Info("dial plan deleted", zap.String("dialplan", dp.Name))
	}
	return rep, nil
}
