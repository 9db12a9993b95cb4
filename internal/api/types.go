package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a queue entry in a transport-friendly format.
type QueueItem struct {
	ID              int64         `json:"id"`
	DisplayName     string        `json:"displayName"`
	SourcePath      string        `json:"sourcePath"`
	Status          string        `json:"status"`
	Progress        QueueProgress `json:"progress"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`
	VideoCodec      string        `json:"videoCodec,omitempty"`
	Resolution      string        `json:"resolution,omitempty"`
	DurationSeconds float64       `json:"durationSeconds,omitempty"`
	SizeBytes       int64         `json:"sizeBytes,omitempty"`
	BitrateKbps     int64         `json:"bitrateKbps,omitempty"`
	FinalPath       string        `json:"finalPath,omitempty"`
	CreatedAt       string        `json:"createdAt,omitempty"`
	UpdatedAt       string        `json:"updatedAt,omitempty"`
}

// QueueProgress captures stage progress information for a queue entry.
type QueueProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// QualityResult describes one CRF sample from a quality search.
type QualityResult struct {
	CRF                     float64 `json:"crf"`
	PredictedScore          float64 `json:"predictedScore"`
	PredictedSizeBytes      int64   `json:"predictedSizeBytes"`
	PredictedSavingsPercent float64 `json:"predictedSavingsPercent"`
	Chosen                  bool    `json:"chosen"`
}

// FailureRecord describes one failure ledger entry.
type FailureRecord struct {
	ID         int64             `json:"id"`
	ItemID     int64             `json:"itemId"`
	Stage      string            `json:"stage"`
	Category   string            `json:"category"`
	Code       string            `json:"code,omitempty"`
	Message    string            `json:"message"`
	Context    map[string]string `json:"context,omitempty"`
	RetryCount int               `json:"retryCount"`
	Resolved   bool              `json:"resolved"`
	ResolvedAt string            `json:"resolvedAt,omitempty"`
	CreatedAt  string            `json:"createdAt,omitempty"`
}

// StageSnapshot mirrors a dispatcher's operational view of one stage.
type StageSnapshot struct {
	Stage                   string `json:"stage"`
	Status                  string `json:"status"`
	Demand                  int    `json:"demand"`
	InFlightItemID          int64  `json:"inFlightItemId,omitempty"`
	ManualQueueDepth        int    `json:"manualQueueDepth"`
	ConsecutiveUnresponsive int    `json:"consecutiveUnresponsive"`
	LastItemID              int64  `json:"lastItemId,omitempty"`
	LastError               string `json:"lastError,omitempty"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// PipelineStatus summarizes pipeline execution state.
type PipelineStatus struct {
	Running     bool            `json:"running"`
	Stages      []StageSnapshot `json:"stages"`
	QueueStats  map[string]int  `json:"queueStats"`
	StageHealth []StageHealth   `json:"stageHealth"`
}

// DependencyStatus captures availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult captures the outcome of a startup preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Pipeline     PipelineStatus     `json:"pipeline"`
	Dependencies []DependencyStatus `json:"dependencies,omitempty"`
	Checks       []CheckResult      `json:"checks,omitempty"`
}

// QueueListResponse wraps a collection of queue items for API responses.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueItemResponse wraps a single queue item with its quality results.
type QueueItemResponse struct {
	Item    QueueItem       `json:"item"`
	Results []QualityResult `json:"results,omitempty"`
}

// FailureListResponse wraps failure ledger entries.
type FailureListResponse struct {
	Failures []FailureRecord `json:"failures"`
}

// Event is one pipeline event on the wire.
type Event struct {
	Sequence  uint64 `json:"seq"`
	Timestamp string `json:"ts"`
	Kind      string `json:"kind"`
	Stage     string `json:"stage,omitempty"`
	ItemID    int64  `json:"itemId,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Category  string `json:"category,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Depth     int    `json:"depth,omitempty"`
}

// EventsResponse carries a page of pipeline events plus the cursor for the
// next fetch.
type EventsResponse struct {
	Events []Event `json:"events"`
	Next   uint64  `json:"next"`
}
