package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/marketdesk/marketdesk/internal/rbac"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit receives deny-audit events.
	QueueAudit = "audit"

	// TaskDenyAudit persists one access deny in the audit trail.
	TaskDenyAudit = "authz:deny-audit"
	// TaskAuditPrune deletes audit rows and session records past retention.
	TaskAuditPrune = "audit:prune"
	// TaskPrincipalInvalidate drops a cached principal.
	TaskPrincipalInvalidate = "principal:invalidate"
)

// DenyAuditPayload wraps a deny event with a unique id used to apply it once.
type DenyAuditPayload struct {
	EventID string         `json:"event_id"`
	Event   rbac.DenyEvent `json:"event"`
}

// NewDenyAuditTask constructs an Asynq task for a deny event.
func NewDenyAuditTask(event rbac.DenyEvent) (*asynq.Task, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(DenyAuditPayload{EventID: id.String(), Event: event})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDenyAudit, data, asynq.Queue(QueueAudit), asynq.MaxRetry(5), asynq.TaskID(id.String())), nil
}

// AuditPrunePayload configures a prune run.
type AuditPrunePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditPruneTask constructs a prune task.
func NewAuditPruneTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		return nil, errors.New("jobs: retention must be positive")
	}
	data, err := json.Marshal(AuditPrunePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPrune, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// PrincipalInvalidatePayload names the user whose principal is dropped.
type PrincipalInvalidatePayload struct {
	UserID int64 `json:"user_id"`
}

// NewPrincipalInvalidateTask constructs an invalidation task.
func NewPrincipalInvalidateTask(userID int64) (*asynq.Task, error) {
	if userID <= 0 {
		return nil, errors.New("jobs: user id must be positive")
	}
	data, err := json.Marshal(PrincipalInvalidatePayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPrincipalInvalidate, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
