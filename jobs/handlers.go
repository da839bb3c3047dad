package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/marketdesk/marketdesk/internal/jobs"
	"github.com/marketdesk/marketdesk/internal/shared"
)

// idempotencyModule namespaces deny-audit keys in idempotency_keys.
const idempotencyModule = "authz.deny"

// AuditWriter writes and prunes the audit trail; *shared.AuditLogger
// implements it.
type AuditWriter interface {
	Record(ctx context.Context, log shared.AuditLog) error
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// IdempotencyGuard remembers processed keys; *shared.IdempotencyStore
// implements it.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// SessionPruner deletes expired session records.
type SessionPruner interface {
	PruneSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// PrincipalInvalidator drops cached principals.
type PrincipalInvalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// Processors implements the task handlers.
type Processors struct {
	Audit       AuditWriter
	Idempotency IdempotencyGuard
	Sessions    SessionPruner
	Principals  PrincipalInvalidator
	Metrics     *jobmetrics.Metrics
	Logger      *slog.Logger
}

// Handlers lists the task handlers for the worker, each tracked in the job
// metrics.
func (p *Processors) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskDenyAudit, Handler: p.tracked(TaskDenyAudit, p.HandleDenyAudit)},
		{Type: TaskAuditPrune, Handler: p.tracked(TaskAuditPrune, p.HandleAuditPrune)},
		{Type: TaskPrincipalInvalidate, Handler: p.tracked(TaskPrincipalInvalidate, p.HandlePrincipalInvalidate)},
	}
}

func (p *Processors) tracked(job string, fn asynq.HandlerFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return p.Metrics.Track(job).End(fn(ctx, t))
	}
}

// HandleDenyAudit processes TaskDenyAudit tasks. A retried task whose event
// was already written is acknowledged without writing again.
func (p *Processors) HandleDenyAudit(ctx context.Context, t *asynq.Task) error {
	var payload DenyAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.EventID == "" {
		return fmt.Errorf("decode deny audit: %w", asynq.SkipRetry)
	}
	if p.Idempotency != nil {
		if err := p.Idempotency.CheckAndInsert(ctx, payload.EventID, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil
			}
			return err
		}
	}

	event := payload.Event
	entityID := event.TenantID
	entity := "store"
	if entityID == "" {
		entity, entityID = "route", event.Method+" "+event.Path
	}
	err := p.Audit.Record(ctx, shared.AuditLog{
		ActorID:  event.PrincipalID,
		Action:   "authz.deny",
		Entity:   entity,
		EntityID: entityID,
		At:       event.At,
		Meta: map[string]any{
			"capability": event.Capability,
			"decision":   event.Decision,
			"role":       event.Role,
			"path":       event.Path,
			"request_id": event.RequestID,
		},
	})
	if err != nil && p.Idempotency != nil {
		if delErr := p.Idempotency.Delete(ctx, payload.EventID); delErr != nil {
			p.warn("release idempotency key", delErr)
		}
	}
	return err
}

// HandleAuditPrune processes TaskAuditPrune tasks.
func (p *Processors) HandleAuditPrune(ctx context.Context, t *asynq.Task) error {
	var payload AuditPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Retention <= 0 {
		return fmt.Errorf("decode audit prune: %w", asynq.SkipRetry)
	}
	audits, err := p.Audit.Prune(ctx, payload.Retention)
	if err != nil {
		return fmt.Errorf("prune audit logs: %w", err)
	}
	var sessions int64
	if p.Sessions != nil {
		if sessions, err = p.Sessions.PruneSessions(ctx, time.Now()); err != nil {
			return fmt.Errorf("prune sessions: %w", err)
		}
	}
	if p.Idempotency != nil {
		if err := p.Idempotency.Cleanup(ctx, payload.Retention); err != nil {
			return fmt.Errorf("prune idempotency keys: %w", err)
		}
	}
	p.Metrics.AddPruned("audit_logs", audits)
	p.Metrics.AddPruned("auth_sessions", sessions)
	if p.Logger != nil {
		p.Logger.Info("audit prune done", slog.Int64("audit_rows", audits), slog.Int64("sessions", sessions), slog.Duration("retention", payload.Retention))
	}
	return nil
}

// HandlePrincipalInvalidate processes TaskPrincipalInvalidate tasks.
func (p *Processors) HandlePrincipalInvalidate(ctx context.Context, t *asynq.Task) error {
	var payload PrincipalInvalidatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.UserID <= 0 {
		return fmt.Errorf("decode principal invalidate: %w", asynq.SkipRetry)
	}
	if p.Principals == nil {
		return fmt.Errorf("principal store not configured: %w", asynq.SkipRetry)
	}
	return p.Principals.Invalidate(ctx, payload.UserID)
}

func (p *Processors) warn(msg string, err error) {
	if p.Logger != nil {
		p.Logger.Warn(msg, slog.Any("error", err))
	}
}
