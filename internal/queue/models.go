package queue

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusNeedsAnalysis    Status = "needs_analysis"
	StatusAnalyzed         Status = "analyzed"
	StatusQualitySearching Status = "quality_searching"
	StatusQualitySearched  Status = "quality_searched"
	StatusEncoding         Status = "encoding"
	StatusEncoded          Status = "encoded"
	StatusFailed           Status = "failed"
)

var allStatuses = []Status{
	StatusNeedsAnalysis,
	StatusAnalyzed,
	StatusQualitySearching,
	StatusQualitySearched,
	StatusEncoding,
	StatusEncoded,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusQualitySearching: {},
	StatusEncoding:         {},
}

// forwardStatus maps each status to its single legal successor.
var forwardStatus = map[Status]Status{
	StatusNeedsAnalysis:    StatusAnalyzed,
	StatusAnalyzed:         StatusQualitySearching,
	StatusQualitySearching: StatusQualitySearched,
	StatusQualitySearched:  StatusEncoding,
	StatusEncoding:         StatusEncoded,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status Status) bool {
	return status == StatusEncoded || status == StatusFailed
}

// IsProcessingStatus reports whether a status reflects an in-flight claim by
// a stage worker.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// CanTransition reports whether moving an item between two statuses is a
// legal pipeline edge. Legal edges are the single forward step for the
// current status plus the jump to failed from any non-terminal status. The
// failed to needs_analysis edge is deliberately absent here; it exists only
// behind Store.Requeue.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	if to == StatusFailed {
		return !IsTerminal(from)
	}
	next, ok := forwardStatus[from]
	return ok && next == to
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID              int64
	SourcePath      string
	DisplayName     string
	Status          Status
	VideoCodec      string
	Width           int
	Height          int
	DurationSeconds float64
	SizeBytes       int64
	BitrateKbps     int64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	// FinalPath is where the encoded artifact landed; empty until the item
	// reaches encoded.
	FinalPath string
}

// IsProcessing returns true when the item is claimed by a stage worker.
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// Resolution renders the probed dimensions for display, or empty when the
// item has not been analyzed yet.
func (i Item) Resolution() string {
	if i.Width <= 0 || i.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", i.Width, i.Height)
}

// StagingRoot returns the per-item staging directory rooted at base.
func (i Item) StagingRoot(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return filepath.Join(base, fmt.Sprintf("item-%d", i.ID))
}

// QualityResult records one quality-search sample for an item. At most one
// result per item carries the chosen marker; that row is the encoder's input.
type QualityResult struct {
	ID                      int64
	ItemID                  int64
	CRF                     float64
	PredictedScore          float64
	PredictedSizeBytes      int64
	PredictedSavingsPercent float64
	Chosen                  bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// FailureRecord is one entry in the failure ledger. Records are never
// deleted; they survive their item and are marked resolved when the item
// later succeeds or is cleared.
type FailureRecord struct {
	ID         int64
	ItemID     int64
	Stage      string
	Category   FailureCategory
	Code       string
	Message    string
	Context    map[string]string
	RetryCount int
	Resolved   bool
	ResolvedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}

// DisplayNameFromPath derives a human-readable name from a source path.
func DisplayNameFromPath(path string) string {
	base := strings.TrimSpace(filepath.Base(path))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "Unnamed Item"
	}
	cleaned := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if cleaned == "" {
		return "Unnamed Item"
	}
	return cleaned
}
