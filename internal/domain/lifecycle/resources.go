package lifecycle

import (
	"errors"
	"io/fs"
	"time"

	"github.com/prometheus/procfs"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/environment"
	"github.com/GriffinCanCode/MixOS/backend/internal/shared/apperr"
)

// Usage is one sample of a backing process, in the units ps reports.
type Usage struct {
	PID           int     `json:"pid"`
	State         string  `json:"state"`
	Threads       int     `json:"threads"`
	CPUSeconds    float64 `json:"cpuSeconds"`
	CPUPercent    float64 `json:"cpuPercent"` // lifetime average, as ps -o %cpu
	RSSBytes      int64   `json:"rssBytes"`
	VirtualBytes  uint64  `json:"virtualBytes"`
	MemoryPercent float64 `json:"memoryPercent"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// Resources reports an environment's process usage. Usage is nil unless
// the environment has a live process.
type Resources struct {
	EnvironmentID string             `json:"environmentId"`
	Status        environment.Status `json:"status"`
	Running       bool               `json:"running"`
	Usage         *Usage             `json:"usage,omitempty"`
	SampledAt     time.Time          `json:"sampledAt"`
}

// Resources samples the process bound to id.
func (m *Manager) Resources(id string) (Resources, error) {
	env, err := m.store.Get(id)
	if err != nil {
		return Resources{}, err
	}

	res := Resources{EnvironmentID: id, Status: env.Status, SampledAt: time.Now().UTC()}
	if env.Status != environment.StatusRunning || env.PID == nil {
		return res, nil
	}

	usage, err := sampleProcess(*env.PID, res.SampledAt)
	if errors.Is(err, fs.ErrNotExist) {
		// exited since the record was read
		return res, nil
	}
	if err != nil {
		return res, apperr.New(apperr.KindInternal, "resources", id, err)
	}

	res.Running = true
	res.Usage = usage
	return res, nil
}

func sampleProcess(pid int, now time.Time) (*Usage, error) {
	pfs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}
	proc, err := pfs.Proc(pid)
	if err != nil {
		return nil, err
	}
	stat, err := proc.Stat()
	if err != nil {
		return nil, err
	}

	u := &Usage{
		PID:          pid,
		State:        stat.State,
		Threads:      stat.NumThreads,
		CPUSeconds:   stat.CPUTime(),
		RSSBytes:     int64(stat.ResidentMemory()),
		VirtualBytes: uint64(stat.VirtualMemory()),
	}

	if started, err := stat.StartTime(); err == nil {
		u.UptimeSeconds = float64(now.UnixNano())/1e9 - started
		if u.UptimeSeconds > 0 {
			u.CPUPercent = 100 * u.CPUSeconds / u.UptimeSeconds
		}
	}
	if mem, err := pfs.Meminfo(); err == nil && mem.MemTotal != nil && *mem.MemTotal > 0 {
		u.MemoryPercent = 100 * float64(u.RSSBytes) / float64(*mem.MemTotal*1024)
	}
	return u, nil
}
