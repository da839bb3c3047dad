package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdesk/marketdesk/internal/authz"
	jobmetrics "github.com/marketdesk/marketdesk/internal/jobs"
	"github.com/marketdesk/marketdesk/internal/rbac"
	"github.com/marketdesk/marketdesk/internal/shared"
	_ "github.com/marketdesk/marketdesk/testing"
)

type memAudit struct {
	records  []shared.AuditLog
	pruned   time.Duration
	failNext bool
}

func (m *memAudit) Record(_ context.Context, log shared.AuditLog) error {
	if m.failNext {
		m.failNext = false
		return errors.New("db down")
	}
	m.records = append(m.records, log)
	return nil
}

func (m *memAudit) Prune(_ context.Context, retention time.Duration) (int64, error) {
	m.pruned = retention
	return 3, nil
}

type memKeys struct {
	keys    map[string]bool
	cleaned time.Duration
}

func (m *memKeys) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memKeys) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func (m *memKeys) Cleanup(_ context.Context, olderThan time.Duration) error {
	m.cleaned = olderThan
	return nil
}

type memSessions struct{ cutoff time.Time }

func (m *memSessions) PruneSessions(_ context.Context, cutoff time.Time) (int64, error) {
	m.cutoff = cutoff
	return 2, nil
}

type memPrincipals struct{ ids []int64 }

func (m *memPrincipals) Invalidate(_ context.Context, userID int64) error {
	m.ids = append(m.ids, userID)
	return nil
}

type captureEnqueuer struct {
	tasks []*asynq.Task
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (c *captureEnqueuer) Close() error { return nil }

func denyTask(t *testing.T, event rbac.DenyEvent) *asynq.Task {
	t.Helper()
	enq := &captureEnqueuer{}
	require.NoError(t, NewClientWith(enq).RecordDeny(context.Background(), event))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskDenyAudit, enq.tasks[0].Type())
	return enq.tasks[0]
}

func TestDenyAuditWritesOnce(t *testing.T) {
	audit := &memAudit{}
	keys := &memKeys{keys: map[string]bool{}}
	p := &Processors{Audit: audit, Idempotency: keys}
	task := denyTask(t, rbac.DenyEvent{PrincipalID: "9", Role: "vendor", Capability: "stores.edit", Decision: "deny_wrong_tenant", TenantID: "42", Method: http.MethodPatch, Path: "/api/stores/42"})

	require.NoError(t, p.HandleDenyAudit(context.Background(), task))
	require.NoError(t, p.HandleDenyAudit(context.Background(), task))

	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	assert.Equal(t, "authz.deny", rec.Action)
	assert.Equal(t, "store", rec.Entity)
	assert.Equal(t, "42", rec.EntityID)
	assert.Equal(t, "9", rec.ActorID)
	assert.Equal(t, "deny_wrong_tenant", rec.Meta["decision"])
}

func TestDenyAuditReleasesKeyOnFailure(t *testing.T) {
	audit := &memAudit{failNext: true}
	keys := &memKeys{keys: map[string]bool{}}
	p := &Processors{Audit: audit, Idempotency: keys}
	task := denyTask(t, rbac.DenyEvent{Capability: "pages.admin", Decision: "deny_unauthenticated", Method: http.MethodGet, Path: "/admin/dashboard"})

	require.Error(t, p.HandleDenyAudit(context.Background(), task))
	assert.Empty(t, keys.keys)

	require.NoError(t, p.HandleDenyAudit(context.Background(), task))
	require.Len(t, audit.records, 1)
	assert.Equal(t, "route", audit.records[0].Entity)
	assert.Equal(t, "GET /admin/dashboard", audit.records[0].EntityID)
}

func TestMalformedPayloadsSkipRetry(t *testing.T) {
	p := &Processors{Audit: &memAudit{}, Principals: &memPrincipals{}}
	for _, task := range []*asynq.Task{
		asynq.NewTask(TaskDenyAudit, []byte("{")),
		asynq.NewTask(TaskDenyAudit, []byte(`{"event":{}}`)),
	} {
		assert.ErrorIs(t, p.HandleDenyAudit(context.Background(), task), asynq.SkipRetry)
	}
	assert.ErrorIs(t, p.HandleAuditPrune(context.Background(), asynq.NewTask(TaskAuditPrune, []byte(`{"retention":0}`))), asynq.SkipRetry)
	assert.ErrorIs(t, p.HandlePrincipalInvalidate(context.Background(), asynq.NewTask(TaskPrincipalInvalidate, []byte(`{"user_id":-1}`))), asynq.SkipRetry)
}

func TestAuditPrune(t *testing.T) {
	audit := &memAudit{}
	keys := &memKeys{keys: map[string]bool{}}
	sessions := &memSessions{}
	p := &Processors{Audit: audit, Idempotency: keys, Sessions: sessions, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	task, err := NewAuditPruneTask(90 * 24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, p.HandleAuditPrune(context.Background(), task))
	assert.Equal(t, 90*24*time.Hour, audit.pruned)
	assert.Equal(t, 90*24*time.Hour, keys.cleaned)
	assert.WithinDuration(t, time.Now(), sessions.cutoff, time.Minute)

	_, err = NewAuditPruneTask(0)
	assert.Error(t, err)
}

func TestPrincipalInvalidate(t *testing.T) {
	principals := &memPrincipals{}
	p := &Processors{Principals: principals}
	enq := &captureEnqueuer{}
	_, err := NewClientWith(enq).EnqueuePrincipalInvalidate(context.Background(), 12)
	require.NoError(t, err)
	require.NoError(t, p.HandlePrincipalInvalidate(context.Background(), enq.tasks[0]))
	assert.Equal(t, []int64{12}, principals.ids)

	_, err = NewClientWith(enq).EnqueuePrincipalInvalidate(context.Background(), 0)
	assert.Error(t, err)
}

func TestProcessorsHandlers(t *testing.T) {
	types := make([]string, 0)
	for _, h := range (&Processors{}).Handlers() {
		types = append(types, h.Type)
	}
	assert.ElementsMatch(t, []string{TaskDenyAudit, TaskAuditPrune, TaskPrincipalInvalidate}, types)
}

type fakeInspector map[string]*asynq.QueueInfo

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := f[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

type roleHeader struct{}

func (roleHeader) Resolve(r *http.Request) (*authz.Principal, error) {
	if role := r.Header.Get("X-Role"); role != "" {
		return authz.NewPrincipal("1", role), nil
	}
	return nil, nil
}

func TestJobsHealth(t *testing.T) {
	mw := rbac.Middleware{Guard: authz.NewGuard(), Resolver: roleHeader{}}
	h := NewHandler(fakeInspector{QueueDefault: {Queue: QueueDefault, Pending: 4, Retry: 1}}, slog.New(slog.NewTextHandler(io.Discard, nil)), mw)
	r := chi.NewRouter()
	r.Route("/api/jobs", h.MountRoutes)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/health", nil)
	req.Header.Set("X-Role", "vendor")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("X-Role", "admin")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []QueueHealth
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []QueueHealth{{Queue: QueueDefault, Pending: 4, Retry: 1}, {Queue: QueueAudit}}, body.Data)
}

func TestTrackedHandlersCountRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := &Processors{Audit: &memAudit{}, Metrics: jobmetrics.NewMetrics(reg)}
	for _, h := range p.Handlers() {
		if h.Type != TaskAuditPrune {
			continue
		}
		task, err := NewAuditPruneTask(time.Hour)
		require.NoError(t, err)
		require.NoError(t, h.Handler(context.Background(), task))
	}
	count, err := testutil.GatherAndCount(reg, "marketdesk_jobs_total", "marketdesk_retention_pruned_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
