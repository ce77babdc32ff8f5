// Package scheduler runs the periodic jobs over asynq: the incremental
// reconciliation every two hours and the daily TOP3 alarm push.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSyncIncremental = "sync.incremental"

const TaskTop3Push = "top3.push"

// SyncIncrementalPayload parameterizes a scheduled reconciliation run.
// Empty Sources means all configured sources.
type SyncIncrementalPayload struct {
	Sources []string `json:"sources"`
	Days    int      `json:"days"`
}

func NewSyncIncrementalTask(payload SyncIncrementalPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncIncremental, data), nil
}

func ParseSyncIncrementalPayload(task *asynq.Task) (SyncIncrementalPayload, error) {
	var payload SyncIncrementalPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SyncIncrementalPayload{}, err
	}
	return payload, nil
}

func NewTop3PushTask() *asynq.Task {
	return asynq.NewTask(TaskTop3Push, nil)
}
