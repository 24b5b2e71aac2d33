package component

import "time"

// Component is an external artifact the backend needs to run environments.
type Component struct {
	ID       string `yaml:"id" toml:"id" json:"id"`
	Name     string `yaml:"name" toml:"name" json:"name"`
	URL      string `yaml:"url" toml:"url" json:"url"`
	Size     string `yaml:"size" toml:"size" json:"size"`
	Extract  bool   `yaml:"extract" toml:"extract" json:"extract"`
	Optional bool   `yaml:"optional" toml:"optional" json:"optional"`
	// StagePath overrides <downloads>/<id>; relative paths are resolved
	// against the downloads directory.
	StagePath string `yaml:"stagePath" toml:"stagePath" json:"stagePath,omitempty"`
	// Entrypoint is a doublestar pattern selecting the file Locate returns.
	Entrypoint string `yaml:"entrypoint" toml:"entrypoint" json:"entrypoint,omitempty"`
}

// Descriptor is the client-facing summary of a component.
type Descriptor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size string `json:"size"`
	URL  string `json:"url"`
}

// Descriptor returns the summary of c.
func (c Component) Descriptor() Descriptor {
	return Descriptor{ID: c.ID, Name: c.Name, Size: c.Size, URL: c.URL}
}

// State is a component's acquisition state.
type State string

const (
	StatePending  State = "pending"
	StateFetching State = "fetching"
	StateStaging  State = "staging"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

// Status is a snapshot of one component's acquisition progress.
type Status struct {
	ID         string    `json:"id"`
	State      State     `json:"state"`
	Progress   int       `json:"progress"`
	BytesDone  int64     `json:"bytesDone"`
	BytesTotal int64     `json:"bytesTotal"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Result classifies how a component ended in a pipeline run.
type Result string

const (
	ResultReady   Result = "ready"   // fetched and staged in this run
	ResultCached  Result = "cached"  // already staged, nothing done
	ResultFailed  Result = "failed"  // fetch or staging failed
	ResultSkipped Result = "skipped" // not attempted after a required failure
)

// Outcome is the per-component entry of a pipeline report.
type Outcome struct {
	ID     string `json:"id"`
	Result Result `json:"result"`
	Path   string `json:"path,omitempty"`
	Files  int    `json:"files,omitempty"`
	Bytes  int64  `json:"bytes,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report summarises a pipeline run in manifest order.
type Report struct {
	Outcomes []Outcome `json:"outcomes"`
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Count returns how many outcomes have the given result.
func (r *Report) Count(result Result) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Result == result {
			n++
		}
	}
	return n
}

// Find returns the outcome for id.
func (r *Report) Find(id string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return Outcome{}, false
}
