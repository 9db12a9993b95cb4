package ipc

import "squeeze/internal/api"

// QueueItem mirrors the HTTP API queue DTO for IPC callers.
type QueueItem = api.QueueItem

// QualityResult mirrors the HTTP API quality result DTO.
type QualityResult = api.QualityResult

// FailureRecord mirrors the HTTP API failure DTO.
type FailureRecord = api.FailureRecord

// StageSnapshot mirrors the HTTP API stage snapshot DTO.
type StageSnapshot = api.StageSnapshot

// StageHealth describes readiness of a pipeline stage.
type StageHealth = api.StageHealth

// DependencyStatus describes availability of an external binary.
type DependencyStatus = api.DependencyStatus

// CheckResult describes one startup preflight outcome.
type CheckResult = api.CheckResult

// Event mirrors the HTTP API pipeline event DTO.
type Event = api.Event

// PingRequest checks daemon liveness.
type PingRequest struct{}

// PingResponse carries the daemon's process id.
type PingResponse struct {
	PID int `json:"pid"`
}

// StartRequest triggers pipeline startup.
type StartRequest struct{}

// StartResponse indicates whether the pipeline was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops pipeline processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and pipeline status.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	LockPath     string             `json:"lock_path"`
	QueueDBPath  string             `json:"queue_db_path"`
	QueueStats   map[string]int     `json:"queue_stats"`
	Stages       []StageSnapshot    `json:"stages"`
	StageHealth  []StageHealth      `json:"stage_health"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Checks       []CheckResult      `json:"checks"`
}

// PauseRequest suspends one stage, or every stage when Stage is empty.
type PauseRequest struct {
	Stage string `json:"stage"`
}

// PauseResponse confirms the pause request was accepted.
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// ResumeRequest reverses a pause with the same stage semantics.
type ResumeRequest struct {
	Stage string `json:"stage"`
}

// ResumeResponse confirms the resume request was accepted.
type ResumeResponse struct {
	Resumed bool `json:"resumed"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueDescribeRequest fetches a single queue item by id.
type QueueDescribeRequest struct {
	ID int64 `json:"id"`
}

// QueueDescribeResponse contains one queue entry with its quality results.
type QueueDescribeResponse struct {
	Item    QueueItem       `json:"item"`
	Results []QualityResult `json:"results"`
}

// EnqueueRequest adds a file to the queue by path.
type EnqueueRequest struct {
	Path string `json:"path"`
}

// EnqueueResponse reports the queued item. Created is false when the path
// was already registered.
type EnqueueResponse struct {
	Item    QueueItem `json:"item"`
	Created bool      `json:"created"`
}

// RequeueRequest retries failed items. An empty list means all failed items.
type RequeueRequest struct {
	IDs []int64 `json:"ids"`
}

// RequeueResponse reports number of requeued items.
type RequeueResponse struct {
	Updated int64 `json:"updated"`
}

// QueueClearRequest removes all items not currently processing.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearCompletedRequest removes encoded items.
type QueueClearCompletedRequest struct{}

// QueueClearCompletedResponse reports number of removed entries.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearFailedRequest removes failed items.
type QueueClearFailedRequest struct{}

// QueueClearFailedResponse reports number of removed entries.
type QueueClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// FailuresRequest lists failure records. With a zero ItemID it returns all
// unresolved records; otherwise the full history of one item.
type FailuresRequest struct {
	ItemID int64 `json:"item_id"`
}

// FailuresResponse contains failure ledger entries.
type FailuresResponse struct {
	Failures []FailureRecord `json:"failures"`
}

// FailureShowRequest fetches a single failure record by id.
type FailureShowRequest struct {
	ID int64 `json:"id"`
}

// FailureShowResponse contains one failure record.
type FailureShowResponse struct {
	Failure FailureRecord `json:"failure"`
}

// QueueHealthRequest fetches aggregate queue counts.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalItems       int      `json:"total_items"`
	Error            string   `json:"error"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// EventsTailRequest fetches pipeline events after a sequence cursor. With
// Wait set the daemon holds the call until something past Since arrives or
// WaitMillis elapses.
type EventsTailRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Wait       bool   `json:"wait"`
	WaitMillis int    `json:"wait_millis"`
}

// EventsTailResponse returns events and the cursor for the next fetch.
type EventsTailResponse struct {
	Events []Event `json:"events"`
	Next   uint64  `json:"next"`
}
