package jobs

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerRepair re-projects documents missing their ledger entries.
	TaskLedgerRepair = "ledger:repair"
	// TaskOutboxDispatch drains pending outbox events.
	TaskOutboxDispatch = "outbox:dispatch"
)

// LedgerRepairPayload scopes a repair run. A zero CompanyID repairs every company.
type LedgerRepairPayload struct {
	CompanyID int64 `json:"company_id"`
}

// NewLedgerRepairTask constructs an Asynq task.
func NewLedgerRepairTask(companyID int64) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerRepairPayload{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRepair, data), nil
}

// NewOutboxDispatchTask constructs an Asynq task.
func NewOutboxDispatchTask() *asynq.Task {
	return asynq.NewTask(TaskOutboxDispatch, []byte("{}"))
}

// TaskNames lists the task types operators may trigger by hand.
func TaskNames() []string {
	names := []string{TaskLedgerRepair, TaskOutboxDispatch}
	sort.Strings(names)
	return names
}

// NewTaskByName builds the task registered under name.
func NewTaskByName(name string, companyID int64) (*asynq.Task, error) {
	switch name {
	case TaskLedgerRepair:
		return NewLedgerRepairTask(companyID)
	case TaskOutboxDispatch:
		return NewOutboxDispatchTask(), nil
	}
	return nil, fmt.Errorf("jobs: unknown task %q", name)
}
