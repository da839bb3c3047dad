package cli

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdesk/marketdesk/jobs"
	_ "github.com/marketdesk/marketdesk/testing"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

type fakeInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func (fakeInspector) Close() error { return nil }

func TestTriggerEnqueuesSupportedJobs(t *testing.T) {
	enq := &recordingEnqueuer{}
	c := NewJobsCLIWith(jobs.NewClientWith(enq), nil)

	info, err := c.Trigger(context.Background(), jobs.TaskAuditPrune, TriggerOptions{Retention: 48 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskAuditPrune, info.Type)

	_, err = c.Trigger(context.Background(), jobs.TaskPrincipalInvalidate, TriggerOptions{UserID: 7})
	require.NoError(t, err)

	require.Len(t, enq.tasks, 2)
	var payload jobs.PrincipalInvalidatePayload
	require.NoError(t, json.Unmarshal(enq.tasks[1].Payload(), &payload))
	assert.Equal(t, int64(7), payload.UserID)
}

func TestTriggerRejectsBadInput(t *testing.T) {
	c := NewJobsCLIWith(jobs.NewClientWith(&recordingEnqueuer{}), nil)

	_, err := c.Trigger(context.Background(), "fx:backfill", TriggerOptions{})
	assert.Error(t, err)
	_, err = c.Trigger(context.Background(), jobs.TaskPrincipalInvalidate, TriggerOptions{})
	assert.Error(t, err)
	_, err = c.Trigger(context.Background(), jobs.TaskAuditPrune, TriggerOptions{})
	assert.Error(t, err)

	var nilCLI *JobsCLI
	_, err = nilCLI.Trigger(context.Background(), jobs.TaskAuditPrune, TriggerOptions{Retention: time.Hour})
	assert.Error(t, err)
}

func TestInspectQueues(t *testing.T) {
	c := NewJobsCLIWith(nil, fakeInspector{infos: map[string]*asynq.QueueInfo{
		jobs.QueueAudit: {Queue: jobs.QueueAudit, Pending: 4, Retry: 1},
	}})
	stats, err := c.InspectQueues(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, QueueStats{Queue: jobs.QueueAudit, Pending: 4, Retry: 1}, stats[0])
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault}, stats[1])

	c = NewJobsCLIWith(nil, fakeInspector{err: errors.New("redis down")})
	_, err = c.InspectQueues(context.Background())
	assert.Error(t, err)
}
