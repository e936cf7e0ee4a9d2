package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/concord-collective/concord/internal/catalog"
	"github.com/concord-collective/concord/internal/directory"
	"github.com/concord-collective/concord/internal/eligibility"
	"github.com/concord-collective/concord/internal/gateway"
	"github.com/concord-collective/concord/internal/observability"
	"github.com/concord-collective/concord/internal/permissions"
	"github.com/concord-collective/concord/internal/shared"
)

// ErrUnknownFlag rejects requests naming flags outside the catalog.
var ErrUnknownFlag = errors.New("unknown flag")

// membershipScanLimit bounds the concurrent per-tenant membership reads.
const membershipScanLimit = 8

// Request is one reconciliation invocation: the acting operator, the
// subject being modified, an optional tenant context, and the full desired
// flag set among the operator's eligible options.
type Request struct {
	OperatorID string   `json:"operator_id" validate:"required"`
	SubjectID  string   `json:"subject_id" validate:"required"`
	TenantID   string   `json:"tenant_id"`
	Flags      []string `json:"flags"`

	// RunID identifies the pass across queue retries so a re-executed
	// task records the same audit row. Empty means mint a fresh one.
	// Never taken from the request body.
	RunID string `json:"-"`
}

// AuditEntry records one completed reconciliation for the audit trail.
type AuditEntry struct {
	ID         string
	OperatorID string
	SubjectID  string
	TenantID   string
	Requested  []string
	Applied    []string
	Outcomes   []Outcome
	StartedAt  time.Time
	Duration   time.Duration
}

// Recorder persists audit entries. Recording is best-effort: a failed
// write is logged, never surfaced to the operator.
type Recorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// Service is the reconciliation orchestrator: resolver, diff, projector,
// concurrent dispatch. It holds no mutable state of its own; every pass
// re-reads current state and writes only deltas.
type Service struct {
	central directory.Client
	gateway gateway.Client
	catalog *catalog.Provider
	locker  *shared.SubjectLocker
	audit   Recorder
	metrics *observability.Metrics
	logger  *slog.Logger
}

// ServiceConfig collects the orchestrator's dependencies. Locker, audit
// recorder, and metrics are optional.
type ServiceConfig struct {
	Central directory.Client
	Gateway gateway.Client
	Catalog *catalog.Provider
	Locker  *shared.SubjectLocker
	Audit   Recorder
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// NewService constructs the orchestrator.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		central: cfg.Central,
		gateway: cfg.Gateway,
		catalog: cfg.Catalog,
		locker:  cfg.Locker,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// Eligibility resolves the operator's option set without writing anything.
func (s *Service) Eligibility(ctx context.Context, operatorID, subjectID, tenantID string) (eligibility.Eligibility, error) {
	operator, subject, tenant, err := s.readPrincipals(ctx, operatorID, subjectID, tenantID)
	if err != nil {
		return eligibility.Eligibility{}, err
	}
	return eligibility.Resolve(*operator, *subject, tenant)
}

// Reconcile runs one full pass: fresh reads, eligibility, central-state
// diff, per-tenant projection, and concurrent all-settled dispatch of the
// resulting intents. It returns an error only when the pass could not
// start (bad request, authorization denial, lock contention, read
// failure); individual write failures are reported in the Result.
func (s *Service) Reconcile(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	for _, name := range req.Flags {
		if _, err := permissions.Parse(name); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFlag, name)
		}
	}

	if err := s.locker.Acquire(ctx, req.SubjectID, runID); err != nil {
		return nil, err
	}
	defer s.locker.Release(ctx, req.SubjectID, runID)

	operator, subject, tenant, err := s.readPrincipals(ctx, req.OperatorID, req.SubjectID, req.TenantID)
	if err != nil {
		return nil, err
	}

	elig, err := eligibility.Resolve(*operator, *subject, tenant)
	if err != nil {
		s.observeReconciliation("denied")
		return nil, err
	}

	plan := BuildPlan(*subject, tenant, elig, req.Flags)

	memberIntents, err := s.projectMemberships(ctx, plan, req.SubjectID)
	if err != nil {
		s.observeReconciliation("failed")
		return nil, err
	}

	intents := append(plan.Intents, memberIntents...)
	result := &Result{ID: runID, Applied: plan.Requested}
	result.Outcomes = s.dispatch(ctx, intents)

	status := "ok"
	if len(result.Failed()) > 0 {
		status = "partial"
	}
	s.observeReconciliation(status)

	s.record(ctx, AuditEntry{
		ID:         runID,
		OperatorID: req.OperatorID,
		SubjectID:  req.SubjectID,
		TenantID:   req.TenantID,
		Requested:  req.Flags,
		Applied:    plan.Requested,
		Outcomes:   result.Outcomes,
		StartedAt:  started,
		Duration:   time.Since(started),
	})

	return result, nil
}

// readPrincipals performs the fail-fast initial reads. A missing subject
// or tenant aborts before any write.
func (s *Service) readPrincipals(ctx context.Context, operatorID, subjectID, tenantID string) (*directory.Subject, *directory.Subject, *directory.Tenant, error) {
	operator, err := s.central.Subject(ctx, operatorID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read operator: %w", err)
	}
	subject, err := s.central.Subject(ctx, subjectID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read subject: %w", err)
	}
	var tenant *directory.Tenant
	if tenantID != "" {
		tenant, err = s.central.Tenant(ctx, tenantID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("read tenant: %w", err)
		}
	}
	return operator, subject, tenant, nil
}

// projectMemberships scans the tenant catalog for live memberships and
// projects the target role set for each one. The scan is parallel and
// fail-fast: a read error aborts the pass before any write goes out.
func (s *Service) projectMemberships(ctx context.Context, plan *Plan, subjectID string) ([]Intent, error) {
	snapshot, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	tenants := make([]directory.Tenant, 0, snapshot.Len()+1)
	targetSeen := false
	for _, tenant := range snapshot.All() {
		if plan.Tenant != nil && tenant.ID == plan.Tenant.ID {
			tenants = append(tenants, *plan.Tenant)
			targetSeen = true
			continue
		}
		tenants = append(tenants, tenant)
	}
	if plan.Tenant != nil && !targetSeen {
		tenants = append(tenants, *plan.Tenant)
	}

	members := make([]*gateway.Member, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(membershipScanLimit)
	for i, tenant := range tenants {
		g.Go(func() error {
			member, err := s.gateway.Member(gctx, tenant.ID, subjectID)
			if errors.Is(err, gateway.ErrNotMember) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read membership %s: %w", tenant.ID, err)
			}
			members[i] = member
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var intents []Intent
	for i, member := range members {
		if member == nil {
			continue
		}
		projection := Project(plan.Subject, tenants[i], *member)
		if !projection.Changed {
			continue
		}
		intents = append(intents, SetMemberRoles{
			TenantID:  tenants[i].ID,
			SubjectID: subjectID,
			RoleIDs:   projection.RoleIDs,
		})
	}
	return intents, nil
}

// dispatch launches every intent without waiting on siblings and joins on
// an all-settled barrier. Failures are collected, not retried, and never
// cancel the others.
func (s *Service) dispatch(ctx context.Context, intents []Intent) []Outcome {
	env := Env{Central: s.central, Gateway: s.gateway}
	outcomes := make([]Outcome, len(intents))

	var wg sync.WaitGroup
	for i, intent := range intents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := intent.Execute(ctx, env)
			outcomes[i] = Outcome{Key: intent.Key(), Err: err}
			s.observeIntent(intent, err)
			if err != nil {
				s.logger.Error("write intent failed",
					slog.String("intent", intent.Key()),
					slog.Any("error", err))
			}
		}()
	}
	wg.Wait()
	return outcomes
}

func (s *Service) record(ctx context.Context, entry AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("audit record failed",
			slog.String("reconciliation", entry.ID),
			slog.Any("error", err))
	}
}

func (s *Service) observeReconciliation(status string) {
	if s.metrics != nil {
		s.metrics.ObserveReconciliation(status)
	}
}

func (s *Service) observeIntent(intent Intent, err error) {
	if s.metrics != nil {
		s.metrics.ObserveIntent(intentKind(intent), err)
	}
}

func intentKind(intent Intent) string {
	switch intent.(type) {
	case SetPermissionBits:
		return "permission_bits"
	case GrantCommittee, RevokeCommittee:
		return "committee"
	case PatchStructuralRoles:
		return "structural_roles"
	case SetMemberRoles:
		return "member_roles"
	default:
		return "unknown"
	}
}
