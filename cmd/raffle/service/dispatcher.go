package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/common/logger"
	"github.com/openraffle/raffle/common/ratelimit"
)

// Action is a cycle step the trigger endpoint can run
type Action string

const (
	ActionFreeze Action = "freeze"
	ActionDraw   Action = "draw"
	ActionReset  Action = "reset"
	ActionStatus Action = "status"
	ActionPrune  Action = "prune"
)

var actionNames = map[string]Action{
	"freeze":      ActionFreeze,
	"congelar":    ActionFreeze,
	"draw":        ActionDraw,
	"sorteio":     ActionDraw,
	"reset":       ActionReset,
	"resetar":     ActionReset,
	"status":      ActionStatus,
	"diagnostico": ActionStatus,
	"prune":       ActionPrune,
	"limpar":      ActionPrune,
}

// ParseAction resolves an action name or its alias
func ParseAction(name string) (Action, error) {
	if a, ok := actionNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return a, nil
	}
	return "", &ValidationError{Field: "action", Message: "unknown action"}
}

// Step is the outcome of one stage of an action
type Step struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// StepResult is everything an action did, in order
type StepResult struct {
	Action  Action             `json:"action"`
	Steps   []Step             `json:"steps"`
	Outcome *Outcome           `json:"outcome,omitempty"`
	Draw    *models.DrawRecord `json:"draw,omitempty"`
	Status  *Status            `json:"status,omitempty"`
	Checks  map[string]string  `json:"checks,omitempty"`
	Pruned  *int64             `json:"pruned,omitempty"`
	Limits  []LimitInfo        `json:"limits,omitempty"`
}

// LimitInfo describes one per-origin rate limit in status output
type LimitInfo struct {
	Operation     ratelimit.Operation `json:"operation"`
	MaxRequests   int                 `json:"max_requests"`
	WindowSeconds int                 `json:"window_seconds"`
	Description   string              `json:"description"`
}

func limitInfos() []LimitInfo {
	ops := ratelimit.GetAllOperations()
	out := make([]LimitInfo, 0, len(ops))
	for _, op := range ops {
		out = append(out, LimitInfo{
			Operation:     op.Operation,
			MaxRequests:   op.Limit.MaxRequests,
			WindowSeconds: int(op.Limit.Window / time.Second),
			Description:   op.Description,
		})
	}
	return out
}

func (r *StepResult) add(name, status, detail string) {
	r.Steps = append(r.Steps, Step{Name: name, Status: status, Detail: detail})
}

// DispatcherService authenticates trigger calls and sequences cycle steps.
// Every step is idempotent, so a scheduler and an operator may both call
// it without coordinating.
type DispatcherService struct {
	cycles    *CycleService
	draws     *DrawService
	archive   *ArchiveService
	limiter   Limiter
	checks    map[string]Pinger
	secret    string
	retention time.Duration
	timeout   time.Duration
	log       *logger.Logger
}

// DispatcherConfig holds the dispatcher's settings
type DispatcherConfig struct {
	Secret    string
	Retention time.Duration
	Timeout   time.Duration
	// Checks are pinged by the status action, keyed by name
	Checks map[string]Pinger
}

// NewDispatcherService creates a new dispatcher
func NewDispatcherService(cycles *CycleService, draws *DrawService, archive *ArchiveService, limiter Limiter, cfg DispatcherConfig, log *logger.Logger) *DispatcherService {
	return &DispatcherService{
		cycles:    cycles,
		draws:     draws,
		archive:   archive,
		limiter:   limiter,
		checks:    cfg.Checks,
		secret:    cfg.Secret,
		retention: cfg.Retention,
		timeout:   cfg.Timeout,
		log:       log,
	}
}

// Authenticate checks a bearer token against the draw secret
func (s *DispatcherService) Authenticate(token string) bool {
	return SecretMatches(s.secret, token)
}

// Run executes one action. On error the result still carries every step
// that ran; a *PartialPostDrawError means a winner is recorded and stands.
func (s *DispatcherService) Run(ctx context.Context, action Action) (*StepResult, error) {
	s.log.Info("running cycle action", "action", action)

	switch action {
	case ActionFreeze:
		return s.runFreeze(ctx)
	case ActionDraw:
		return s.runDraw(ctx)
	case ActionReset:
		return s.runReset(ctx)
	case ActionStatus:
		return s.Diagnostics(ctx)
	case ActionPrune:
		return s.runPrune(ctx)
	default:
		return nil, &ValidationError{Field: "action", Message: "unknown action"}
	}
}

func (s *DispatcherService) runFreeze(ctx context.Context) (*StepResult, error) {
	res := &StepResult{Action: ActionFreeze}
	if err := s.freeze(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

func (s *DispatcherService) freeze(ctx context.Context, res *StepResult) error {
	fr, err := s.cycles.Freeze(ctx)
	if err != nil {
		res.add("freeze", "failed", err.Error())
		return err
	}
	if fr.Changed {
		res.add("freeze", "frozen", "")
	} else {
		res.add("freeze", "unchanged", string(fr.State))
	}
	return nil
}

func (s *DispatcherService) runReset(ctx context.Context) (*StepResult, error) {
	res := &StepResult{Action: ActionReset}
	rr, err := s.cycles.Reset(ctx)
	if err != nil {
		res.add("reset", "failed", err.Error())
		return res, err
	}
	res.add("reset", "reset", pluralEntries(rr.Cleared))
	return res, nil
}

func (s *DispatcherService) runDraw(ctx context.Context) (*StepResult, error) {
	res := &StepResult{Action: ActionDraw}

	if err := s.freeze(ctx, res); err != nil {
		return res, err
	}

	// A drawn cycle means an earlier invocation stopped after its claim
	out, err := s.draws.Recover(ctx)
	if err != nil {
		res.add("draw", "failed", err.Error())
		return res, err
	}
	if out != nil {
		res.add("draw", "resumed", out.Draw.ID.String())
		return s.finishDraw(ctx, res, out)
	}

	out, err = s.draws.Draw(ctx)
	if err != nil {
		res.add("draw", "failed", err.Error())
		return res, err
	}
	res.Outcome = out

	if out.AlreadyDrawn {
		// the winning invocation may still be archiving; finishing its work
		// here is safe because every write below is idempotent
		resumed, err := s.draws.Recover(ctx)
		if err != nil {
			res.add("draw", "failed", err.Error())
			return res, err
		}
		if resumed == nil {
			res.add("draw", "already_drawn", out.Reason)
			return res, nil
		}
		res.add("draw", "resumed", resumed.Draw.ID.String())
		res.Outcome = resumed
		return s.finishDraw(ctx, res, resumed)
	}

	if !out.Realized {
		res.add("draw", "not_realized", out.Reason)
		return res, nil
	}

	res.add("draw", "realized", out.Draw.ID.String())
	return s.finishDraw(ctx, res, out)
}

// finishDraw archives then resets. Neither failure retracts the draw.
func (s *DispatcherService) finishDraw(ctx context.Context, res *StepResult, out *Outcome) (*StepResult, error) {
	res.Draw = out.Draw
	log := s.log.WithDrawID(out.Draw.ID.String())

	ar, err := s.archive.Archive(ctx, out.Draw, out.Roster)
	if err != nil {
		log.Error("CRITICAL: draw recorded but archive failed; reset skipped",
			"severity", "critical",
			"error", err)
		res.add("archive", "failed", err.Error())
		return res, &PartialPostDrawError{Draw: out.Draw, Stage: "archive", Err: err}
	}
	res.add("archive", "archived", ar.Strategy)

	rr, err := s.cycles.ResetAfterDraw(ctx, out.Draw.ID)
	if err != nil {
		log.Error("CRITICAL: draw archived but reset failed",
			"severity", "critical",
			"error", err)
		res.add("reset", "failed", err.Error())
		return res, &PartialPostDrawError{Draw: out.Draw, Stage: "reset", Err: err}
	}
	if rr.Skipped {
		res.add("reset", "skipped", "cycle already reset")
	} else {
		res.add("reset", "reset", pluralEntries(rr.Cleared))
	}

	return res, nil
}

// Diagnostics returns the cycle status and pings every store. It never
// mutates anything.
func (s *DispatcherService) Diagnostics(ctx context.Context) (*StepResult, error) {
	res := &StepResult{
		Action: ActionStatus,
		Checks: make(map[string]string, len(s.checks)),
		Limits: limitInfos(),
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed []error
	for _, name := range names {
		pingCtx, cancel := bounded(ctx, s.timeout)
		err := s.checks[name].Ping(pingCtx)
		cancel()
		if err != nil {
			s.log.Warn("connectivity check failed", "check", name, "error", err)
			res.Checks[name] = "unavailable"
			failed = append(failed, err)
			continue
		}
		res.Checks[name] = "ok"
	}

	status, err := s.cycles.Status(ctx)
	if err != nil {
		res.add("status", "failed", err.Error())
		return res, err
	}
	res.Status = status
	res.add("status", "ok", string(status.State))

	if len(failed) > 0 {
		res.add("connectivity", "degraded", errors.Join(failed...).Error())
	} else {
		res.add("connectivity", "ok", "")
	}
	return res, nil
}

func (s *DispatcherService) runPrune(ctx context.Context) (*StepResult, error) {
	res := &StepResult{Action: ActionPrune}

	pruneCtx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	n, err := s.limiter.Prune(pruneCtx, s.retention)
	if err != nil {
		res.add("prune", "failed", err.Error())
		return res, storeError("prune", err)
	}
	res.Pruned = &n
	res.add("prune", "pruned", "")
	return res, nil
}

func pluralEntries(n int64) string {
	if n == 1 {
		return "1 entry cleared"
	}
	return strconv.FormatInt(n, 10) + " entries cleared"
}
