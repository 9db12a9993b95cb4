package pipeline

// StageStatus is the operational status of one pipeline stage, independent of
// any particular item. It answers "what is this stage doing right now".
type StageStatus string

const (
	// StatusStopped is the initial status before the supervisor starts.
	StatusStopped StageStatus = "stopped"
	// StatusIdle means the stage is waiting for eligible work to appear.
	StatusIdle StageStatus = "idle"
	// StatusRunning means the stage is armed and actively seeking work.
	StatusRunning StageStatus = "running"
	// StatusProcessing means one item is in flight at the external worker.
	StatusProcessing StageStatus = "processing"
	// StatusPausing means a pause was requested while work was in flight;
	// the current item finishes, then the stage parks.
	StatusPausing StageStatus = "pausing"
	// StatusPaused means the stage dispatches nothing until resumed.
	StatusPaused StageStatus = "paused"
)

// stageEdges is the full set of legal operational transitions. Idle never
// moves straight to processing; dispatch passes through running first.
var stageEdges = map[StageStatus][]StageStatus{
	StatusStopped:    {StatusIdle},
	StatusIdle:       {StatusRunning, StatusPaused},
	StatusRunning:    {StatusProcessing, StatusPaused},
	StatusProcessing: {StatusRunning, StatusIdle, StatusPausing},
	StatusPausing:    {StatusPaused},
	StatusPaused:     {StatusRunning},
}

// CanChange reports whether a stage may move between two operational
// statuses.
func CanChange(from, to StageStatus) bool {
	for _, next := range stageEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllStageStatuses returns every operational status in a stable order.
func AllStageStatuses() []StageStatus {
	return []StageStatus{
		StatusStopped,
		StatusIdle,
		StatusRunning,
		StatusProcessing,
		StatusPausing,
		StatusPaused,
	}
}

var stageStatusStrings = func() []string {
	statuses := AllStageStatuses()
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}()
