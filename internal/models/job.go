package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// JobStatus represents the status of a job in the queue
type JobStatus string

const (
	JobStatusPending           JobStatus = "pending"
	JobStatusProcessing        JobStatus = "processing"
	JobStatusCompleted         JobStatus = "completed"
	JobStatusFailed            JobStatus = "failed"
	JobStatusPermanentlyFailed JobStatus = "permanently_failed"
	JobStatusCancelled         JobStatus = "cancelled"
)

// JobType represents the type of job to be processed
type JobType string

const (
	JobTypePodcastGeneration JobType = "podcast_generation"
	JobTypeEmailNotification JobType = "email_notification"
	JobTypeFeedbackAnalysis  JobType = "feedback_analysis"
)

// Payload keys shared by producers and processors
const (
	PayloadUserID    = "user_id"
	PayloadEpisodeID = "episode_id"
	PayloadTrigger   = "trigger"
	PayloadNotify    = "notify"
)

// Generation triggers
const (
	TriggerDaily  = "daily"
	TriggerManual = "manual"
)

// JobErrorType represents the category of error that occurred
type JobErrorType string

const (
	ErrorTypeValidation JobErrorType = "validation" // Bad payload or profile; retrying cannot help
	ErrorTypeCapability JobErrorType = "capability" // LLM, TTS, image, storage or email provider failed
	ErrorTypeSystem     JobErrorType = "system"     // Database, worker, or other system error
	ErrorTypeNotFound   JobErrorType = "not_found"  // Referenced record is gone
	ErrorTypeRunFailed  JobErrorType = "run_failed" // A fatal generation step failed and the episode is marked failed
)

// StructuredJobError carries classification information for a failed job
type StructuredJobError struct {
	Type     JobErrorType
	Code     string
	Message  string
	Details  string
	Original error
}

func (e *StructuredJobError) Error() string {
	return e.Message
}

func (e *StructuredJobError) Unwrap() error {
	return e.Original
}

// Permanent reports whether retrying the job is pointless
func (e *StructuredJobError) Permanent() bool {
	return e.Type == ErrorTypeValidation || e.Type == ErrorTypeNotFound || e.Type == ErrorTypeRunFailed
}

func newJobError(t JobErrorType, code, message string, original error) *StructuredJobError {
	details := ""
	if original != nil {
		details = original.Error()
	}
	return &StructuredJobError{Type: t, Code: code, Message: message, Details: details, Original: original}
}

func NewValidationError(code, message string, original error) *StructuredJobError {
	return newJobError(ErrorTypeValidation, code, message, original)
}

func NewCapabilityError(code, message string, original error) *StructuredJobError {
	return newJobError(ErrorTypeCapability, code, message, original)
}

func NewSystemError(code, message string, original error) *StructuredJobError {
	return newJobError(ErrorTypeSystem, code, message, original)
}

func NewNotFoundError(code, message string, original error) *StructuredJobError {
	return newJobError(ErrorTypeNotFound, code, message, original)
}

func NewRunFailedError(code, message string, original error) *StructuredJobError {
	return newJobError(ErrorTypeRunFailed, code, message, original)
}

// Job represents a background job in the queue
type Job struct {
	gorm.Model
	Type         JobType    `json:"type" gorm:"not null;index:idx_jobs_type_status"`
	Status       JobStatus  `json:"status" gorm:"default:'pending';index:idx_jobs_type_status;index:idx_jobs_status_priority"`
	Payload      JobPayload `json:"payload" gorm:"type:json"`
	Priority     int        `json:"priority" gorm:"default:0;index:idx_jobs_status_priority"`
	MaxRetries   int        `json:"max_retries" gorm:"default:3"`
	RetryCount   int        `json:"retry_count" gorm:"default:0"`
	Progress     int        `json:"progress" gorm:"default:0"` // 0-100
	AvailableAt  time.Time  `json:"available_at" gorm:"index"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	LastFailedAt *time.Time `json:"last_failed_at"`
	Error        string     `json:"error,omitempty"`
	Result       JobResult  `json:"result,omitempty" gorm:"type:json"`
	WorkerID     string     `json:"worker_id,omitempty"`

	ErrorType    string `json:"error_type,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`

	// Owning user for user-initiated jobs, "system" for scheduled ones
	CreatedBy string `json:"created_by,omitempty" gorm:"index"`

	// Set for jobs enqueued as unique; at most one active job holds a key
	UniqueKey *string `json:"-" gorm:"size:191;uniqueIndex:idx_jobs_active_unique,where:unique_key IS NOT NULL AND status <> 'completed' AND status <> 'permanently_failed' AND status <> 'cancelled'"`
}

// BeforeCreate makes a new job claimable immediately
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.AvailableAt.IsZero() {
		j.AvailableAt = time.Now().UTC()
	}
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	return nil
}

// JobPayload represents the input data for a job
type JobPayload map[string]interface{}

func (p JobPayload) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *JobPayload) Scan(value interface{}) error {
	return scanJSONMap(value, (*map[string]interface{})(p))
}

// JobResult represents the output data from a completed job
type JobResult map[string]interface{}

func (r JobResult) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *JobResult) Scan(value interface{}) error {
	return scanJSONMap(value, (*map[string]interface{})(r))
}

// scanJSONMap decodes a JSON column; drivers hand back either []byte or string
func scanJSONMap(value interface{}, dst *map[string]interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*dst = make(map[string]interface{})
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
	if len(raw) == 0 {
		*dst = make(map[string]interface{})
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// IsRetryable returns true if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// RetryDelay is the exponential backoff before the next attempt: base * 2^(retries-1)
func (j *Job) RetryDelay(base time.Duration) time.Duration {
	if j.RetryCount <= 1 {
		return base
	}
	shift := j.RetryCount - 1
	if shift > 10 {
		shift = 10
	}
	return base * time.Duration(1<<uint(shift))
}

func (j *Job) CanProcess() bool {
	return j.Status == JobStatusPending
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted ||
		j.Status == JobStatusCancelled ||
		j.Status == JobStatusPermanentlyFailed
}

// GetPayloadValue safely retrieves a value from the payload
func (j *Job) GetPayloadValue(key string) (interface{}, bool) {
	if j.Payload == nil {
		return nil, false
	}
	val, ok := j.Payload[key]
	return val, ok
}

func (j *Job) GetPayloadString(key string) (string, bool) {
	val, ok := j.GetPayloadValue(key)
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetPayloadUint handles the numeric types a payload holds before and after a JSON round trip
func (j *Job) GetPayloadUint(key string) (uint, bool) {
	val, ok := j.GetPayloadValue(key)
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}

func (j *Job) GetPayloadBool(key string) bool {
	val, ok := j.GetPayloadValue(key)
	if !ok {
		return false
	}
	b, ok := val.(bool)
	return ok && b
}

// SetResult sets a result value
func (j *Job) SetResult(key string, value interface{}) {
	if j.Result == nil {
		j.Result = make(JobResult)
	}
	j.Result[key] = value
}

// SetErrorDetails sets error classification information
func (j *Job) SetErrorDetails(errorType JobErrorType, errorCode, errorMsg, errorDetails string) {
	j.ErrorType = string(errorType)
	j.ErrorCode = errorCode
	j.Error = errorMsg
	j.ErrorDetails = errorDetails
}

func (Job) TableName() string {
	return "jobs"
}
