package stage

// Health summarizes the readiness of a pipeline stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Availability is what probing a stage worker observed. Busy is a normal
// state, not an error; Unresponsive means the probe timed out or the worker
// could not be reached.
type Availability string

const (
	Available    Availability = "available"
	Busy         Availability = "busy"
	Unresponsive Availability = "unresponsive"
)

func (a Availability) String() string {
	return string(a)
}
