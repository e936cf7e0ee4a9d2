package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-collective/concord/internal/catalog"
	"github.com/concord-collective/concord/internal/directory"
	"github.com/concord-collective/concord/internal/eligibility"
	"github.com/concord-collective/concord/internal/gateway"
	"github.com/concord-collective/concord/internal/permissions"
	"github.com/concord-collective/concord/internal/shared"
)

// ============================================================================
// MOCK CLIENTS
// ============================================================================

type bitsWrite struct {
	subjectID string
	tenantID  string
	bits      permissions.Flags
}

type mockCentral struct {
	mu       sync.Mutex
	subjects map[string]directory.Subject
	tenants  map[string]directory.Tenant
	order    []string

	bitsWrites []bitsWrite
	grants     []string
	revokes    []string
	patches    map[string]directory.StructuralPatch

	subjectErr map[string]error
	bitsErr    error
	patchErr   error
}

func newMockCentral() *mockCentral {
	return &mockCentral{
		subjects:   make(map[string]directory.Subject),
		tenants:    make(map[string]directory.Tenant),
		patches:    make(map[string]directory.StructuralPatch),
		subjectErr: make(map[string]error),
	}
}

func (m *mockCentral) addTenant(t directory.Tenant) {
	m.tenants[t.ID] = t
	m.order = append(m.order, t.ID)
}

func (m *mockCentral) Subject(ctx context.Context, id string) (*directory.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.subjectErr[id]; err != nil {
		return nil, err
	}
	subject, ok := m.subjects[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := subject.Clone()
	return &clone, nil
}

func (m *mockCentral) Tenant(ctx context.Context, id string) (*directory.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenant, ok := m.tenants[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &tenant, nil
}

func (m *mockCentral) Tenants(ctx context.Context) ([]directory.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenants := make([]directory.Tenant, 0, len(m.order))
	for _, id := range m.order {
		tenants = append(tenants, m.tenants[id])
	}
	return tenants, nil
}

func (m *mockCentral) SetTenantBits(ctx context.Context, subjectID, tenantID string, bits permissions.Flags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bitsErr != nil {
		return m.bitsErr
	}
	m.bitsWrites = append(m.bitsWrites, bitsWrite{subjectID, tenantID, bits})
	return nil
}

func (m *mockCentral) GrantCommittee(ctx context.Context, subjectID string, flag directory.CommitteeFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants = append(m.grants, string(flag)+":"+subjectID)
	return nil
}

func (m *mockCentral) RevokeCommittee(ctx context.Context, subjectID string, flag directory.CommitteeFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokes = append(m.revokes, string(flag)+":"+subjectID)
	return nil
}

func (m *mockCentral) PatchTenantRoles(ctx context.Context, tenantID string, patch directory.StructuralPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.patchErr != nil {
		return m.patchErr
	}
	m.patches[tenantID] = patch
	return nil
}

type mockGateway struct {
	mu         sync.Mutex
	members    map[string]gateway.Member // tenantID -> member
	roleWrites map[string][]string
	memberErr  error
	writeErr   error
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		members:    make(map[string]gateway.Member),
		roleWrites: make(map[string][]string),
	}
}

func (m *mockGateway) Member(ctx context.Context, tenantID, subjectID string) (*gateway.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memberErr != nil {
		return nil, m.memberErr
	}
	member, ok := m.members[tenantID]
	if !ok || member.SubjectID != subjectID {
		return nil, gateway.ErrNotMember
	}
	return &member, nil
}

func (m *mockGateway) SetMemberRoles(ctx context.Context, tenantID, subjectID string, roleIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.roleWrites[tenantID] = roleIDs
	return nil
}

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (m *mockRecorder) Record(ctx context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// ============================================================================
// FIXTURE
// ============================================================================

type fixture struct {
	central  *mockCentral
	gateway  *mockGateway
	recorder *mockRecorder
	service  *Service
}

func newFixture(t *testing.T, withLock bool) *fixture {
	t.Helper()
	central := newMockCentral()
	gw := newMockGateway()
	recorder := &mockRecorder{}

	var locker *shared.SubjectLocker
	if withLock {
		mr := miniredis.RunT(t)
		locker = shared.NewSubjectLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	}

	service := NewService(ServiceConfig{
		Central: central,
		Gateway: gw,
		Catalog: catalog.NewProvider(central, nil, time.Minute, nil),
		Locker:  locker,
		Audit:   recorder,
	})
	return &fixture{central: central, gateway: gw, recorder: recorder, service: service}
}

func (f *fixture) seedNetwork() {
	f.central.subjects["op"] = directory.Subject{ID: "op", OwnerOf: "t1"}
	f.central.subjects["sub"] = directory.Subject{ID: "sub"}
	f.central.addTenant(directory.Tenant{
		ID:      "t1",
		Name:    "Mondstadt",
		OwnerID: "op",
		FlagRoles: map[string]string{
			permissions.NameTheory: "r-theory",
		},
		VoterRoleID: "r-voter",
		OwnerRoleID: "r-owner",
	})
	f.central.addTenant(directory.Tenant{
		ID:   "t2",
		Name: "Liyue",
	})
	f.gateway.members["t1"] = gateway.Member{SubjectID: "sub", TenantID: "t1"}
	f.gateway.members["t2"] = gateway.Member{SubjectID: "sub", TenantID: "t2"}
}

// ============================================================================
// TESTS
// ============================================================================

func TestReconcileGrantsTheoryAndVoterEndToEnd(t *testing.T) {
	f := newFixture(t, false)
	f.seedNetwork()

	result, err := f.service.Reconcile(context.Background(), Request{
		OperatorID: "op",
		SubjectID:  "sub",
		TenantID:   "t1",
		Flags:      []string{permissions.NameTheory, permissions.NameVoter},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Failed())
	assert.Equal(t, []string{permissions.NameTheory, permissions.NameVoter}, result.Applied)

	// Central: bitmask carries THEORY only; the patch assigns VOTER.
	require.Len(t, f.central.bitsWrites, 1)
	assert.Equal(t, bitsWrite{"sub", "t1", permissions.FlagTheory}, f.central.bitsWrites[0])

	patch, ok := f.central.patches["t1"]
	require.True(t, ok)
	require.NotNil(t, patch.VoterID)
	assert.Equal(t, "sub", *patch.VoterID)

	// Platform: only t1 gets a role update; t2 has nothing to change.
	assert.ElementsMatch(t, []string{"r-theory", "r-voter"}, f.gateway.roleWrites["t1"])
	_, touched := f.gateway.roleWrites["t2"]
	assert.False(t, touched)
}

func TestReconcileRevokesExecWithoutBitmaskWrite(t *testing.T) {
	f := newFixture(t, false)
	f.seedNetwork()
	f.central.subjects["op"] = directory.Subject{ID: "op", Exec: true}
	f.central.subjects["sub"] = directory.Subject{ID: "sub", Exec: true}

	result, err := f.service.Reconcile(context.Background(), Request{
		OperatorID: "op",
		SubjectID:  "sub",
		Flags:      nil,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Failed())

	assert.Equal(t, []string{"exec:sub"}, f.central.revokes)
	assert.Empty(t, f.central.grants)
	assert.Empty(t, f.central.bitsWrites)
	assert.Empty(t, f.central.patches)
}

func TestReconcileIdempotentPassWritesNothing(t *testing.T) {
	f := newFixture(t, false)
	f.seedNetwork()
	f.central.subjects["sub"] = directory.Subject{
		ID:         "sub",
		TenantBits: map[string]permissions.Flags{"t1": permissions.FlagTheory},
		VoterOf:    "t1",
	}
	tenant := f.central.tenants["t1"]
	tenant.VoterID = "sub"
	f.central.tenants["t1"] = tenant
	f.gateway.members["t1"] = gateway.Member{
		SubjectID: "sub",
		TenantID:  "t1",
		RoleIDs:   []string{"r-theory", "r-voter"},
	}

	result, err := f.service.Reconcile(context.Background(), Request{
		OperatorID: "op",
		SubjectID:  "sub",
		TenantID:   "t1",
		Flags:      []string{permissions.NameTheory, permissions.NameVoter},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Outcomes)
	assert.Empty(t, f.central.bitsWrites)
	assert.Empty(t, f.central.patches)
	assert.Empty(t, f.gateway.roleWrites)
}

func TestReconcilePartialFailureReportsPerIntent(t *testing.T) {
	f := newFixture(t, false)
	f.seedNetwork()
	f.central.bitsErr = errors.New("backend 502")

	result, err := f.service.Reconcile(context.Background(), Request{
		OperatorID: "op",
		SubjectID:  "sub",
		TenantID:   "t1",
		Flags:      []string{permissions.NameTheory, permissions.NameVoter},
	})
	require.NoError(t, err)

	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "central:bits:sub:t1", failed[0].Key)
	assert.True(t, result.Partial())

	// Siblings still applied.
	assert.Contains(t, f.central.patches, "t1")
	assert.ElementsMatch(t, []string{"r-theory", "r-voter"}, f.gateway.roleWrites["t1"])
}

func TestReconcileAbortsBeforeWritesOnMissingSubject(t *testing.T) {
	f := newFixture(t, false)
	f.seedNetwork()
	delete(f.central.subjects, "sub")

	_, err := f.service.Reconcile(context.Background(), Request{
		OperatorID: "op",
		SubjectID:  "sub",
		TenantID:   "t1",
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, f.central.bitsWrites)
	assert.Empty(t, f.gateway.roleWrites)
}

func TestReconcileAbortsOnMembershipReadFailure(t *testing.T) {
	f := newFixture(t, false)
	f.seedNetwork()
	f.gateway.memberErr = errors.New("gateway down")

	_, err := f.service.Reconcile(context.Background(), Request{
		OperatorID: "op",
		SubjectID:  "sub",
		TenantID:   "t1",
		Flags:      []string{permissions.NameTheory},
	})
	require.Error(t, err)
	// Fail-fast on reads: nothing was written anywhere.
	assert.Empty(t, f.central.bitsWrites)
	assert.Empty(t, f.central.patches)
}

func TestReconcileDeniedForUnauthorizedOperator(t *testing.T) {
	f := newFixture(t, false)
	f.seedNetwork()
	f.central.subjects["op"] = directory.Subject{ID: "op"}

	_, err := f.service.Reconcile(context.Background(), Request{
		OperatorID: "op",
		SubjectID:  "sub",
		TenantID:   "t1",
	})
	assert.ErrorIs(t, err, eligibility.ErrNotAuthorized)

	_, err = f.service.Reconcile(context.Background(), Request{
		OperatorID: "op",
		SubjectID:  "sub",
	})
	assert.ErrorIs(t, err, eligibility.ErrNoTenant)
}

func TestReconcileRejectsUnknownFlag(t *testing.T) {
	f := newFixture(t, false)
	f.seedNetwork()

	_, err := f.service.Reconcile(context.Background(), Request{
		OperatorID: "op",
		SubjectID:  "sub",
		TenantID:   "t1",
		Flags:      []string{"JANITOR"},
	})
	assert.ErrorIs(t, err, ErrUnknownFlag)
}

func TestReconcileSerializedPerSubject(t *testing.T) {
	f := newFixture(t, true)
	f.seedNetwork()

	// Simulate an in-flight reconciliation holding the subject lock.
	locker := f.service.locker
	require.NoError(t, locker.Acquire(context.Background(), "sub", "other-run"))

	_, err := f.service.Reconcile(context.Background(), Request{
		OperatorID: "op",
		SubjectID:  "sub",
		TenantID:   "t1",
	})
	assert.ErrorIs(t, err, shared.ErrLocked)

	locker.Release(context.Background(), "sub", "other-run")
	_, err = f.service.Reconcile(context.Background(), Request{
		OperatorID: "op",
		SubjectID:  "sub",
		TenantID:   "t1",
	})
	assert.NoError(t, err)
}

func TestReconcileRecordsAudit(t *testing.T) {
	f := newFixture(t, false)
	f.seedNetwork()

	result, err := f.service.Reconcile(context.Background(), Request{
		OperatorID: "op",
		SubjectID:  "sub",
		TenantID:   "t1",
		Flags:      []string{permissions.NameTheory},
	})
	require.NoError(t, err)

	require.Len(t, f.recorder.entries, 1)
	entry := f.recorder.entries[0]
	assert.Equal(t, result.ID, entry.ID)
	assert.Equal(t, "op", entry.OperatorID)
	assert.Equal(t, "sub", entry.SubjectID)
	assert.Equal(t, []string{permissions.NameTheory}, entry.Applied)
	assert.Len(t, entry.Outcomes, len(result.Outcomes))
}

func TestEligibilityPreview(t *testing.T) {
	f := newFixture(t, false)
	f.seedNetwork()

	elig, err := f.service.Eligibility(context.Background(), "op", "sub", "t1")
	require.NoError(t, err)
	assert.True(t, elig.Eligible(permissions.NameOwner))
	assert.True(t, elig.Eligible(permissions.NameTheory))
	assert.False(t, elig.Eligible(permissions.NameExec))
}

func TestReconcileReusesSuppliedRunID(t *testing.T) {
	f := newFixture(t, false)
	f.seedNetwork()

	req := Request{
		OperatorID: "op",
		SubjectID:  "sub",
		TenantID:   "t1",
		Flags:      []string{permissions.NameTheory},
		RunID:      "run-fixed",
	}

	first, err := f.service.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", first.ID)

	// A queue retry replays the same request; the audit record keeps the
	// original id so the second insert dedupes instead of duplicating.
	second, err := f.service.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", second.ID)

	require.Len(t, f.recorder.entries, 2)
	assert.Equal(t, "run-fixed", f.recorder.entries[0].ID)
	assert.Equal(t, "run-fixed", f.recorder.entries[1].ID)
}

func TestReconcileMintsRunIDWhenAbsent(t *testing.T) {
	f := newFixture(t, false)
	f.seedNetwork()

	result, err := f.service.Reconcile(context.Background(), Request{
		OperatorID: "op",
		SubjectID:  "sub",
		TenantID:   "t1",
		Flags:      []string{permissions.NameTheory},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ID)
}
