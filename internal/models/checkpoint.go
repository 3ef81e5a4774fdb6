package models

import (
	"time"

	"gorm.io/datatypes"
)

// StepOutcome records how a workflow step ended
type StepOutcome string

const (
	StepCompleted StepOutcome = "completed"
	StepSkipped   StepOutcome = "skipped"
)

// StepCheckpoint is the durable record of one finished workflow step.
// State holds the full run state after the step so a restart can resume.
type StepCheckpoint struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	RunKey      string         `json:"run_key" gorm:"not null;size:128;uniqueIndex:idx_checkpoint_run_step"`
	StepIndex   int            `json:"step_index" gorm:"not null;uniqueIndex:idx_checkpoint_run_step"`
	StepName    string         `json:"step_name" gorm:"not null;size:64"`
	Outcome     StepOutcome    `json:"outcome" gorm:"not null;size:16"`
	State       datatypes.JSON `json:"state"`
	Error       string         `json:"error,omitempty" gorm:"type:text"`
	CompletedAt time.Time      `json:"completed_at" gorm:"index"`
}

func (StepCheckpoint) TableName() string {
	return "step_checkpoints"
}
