package core

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus tracks a task through its state machine. Terminal states are
// final: once set they never change.
type TaskStatus string

const (
	TaskRunning         TaskStatus = "running"
	TaskWaitingApproval TaskStatus = "waiting_approval"
	TaskCompleted       TaskStatus = "completed"
	TaskCancelled       TaskStatus = "cancelled"
	TaskFailed          TaskStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskCancelled, TaskFailed:
		return true
	}
	return false
}

// Task is one run of the orchestrator control loop. Steps holds the ordered
// Observation ids produced by the run; FinalObservationID identifies the
// triggering observation when the task terminates abnormally.
type Task struct {
	ID                 string     `json:"id"`
	Goal               string     `json:"goal"`
	StartedAt          time.Time  `json:"started_at"`
	Status             TaskStatus `json:"status"`
	Steps              []string   `json:"steps"`
	FailReason         string     `json:"fail_reason,omitempty"`
	FinalObservationID string     `json:"final_observation_id,omitempty"`
}

// NewTask creates a running task for the given goal.
func NewTask(goal string) *Task {
	return &Task{
		ID:        uuid.New().String(),
		Goal:      goal,
		StartedAt: time.Now(),
		Status:    TaskRunning,
	}
}
