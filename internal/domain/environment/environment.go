package environment

import (
	"strings"
	"time"
)

// Kind selects the backing process of an environment.
type Kind string

const (
	KindQEMU       Kind = "qemu"
	KindShell      Kind = "shell"
	KindCodeServer Kind = "code-server"
	KindNix        Kind = "nix"
	KindUbuntu     Kind = "ubuntu"
)

// Known reports whether k is a declared kind. Declared kinds without a
// launcher are accepted here and rejected at start.
func (k Kind) Known() bool {
	switch k {
	case KindQEMU, KindShell, KindCodeServer, KindNix, KindUbuntu:
		return true
	}
	return false
}

// Status is the lifecycle state of an environment.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
)

// Resource defaults applied when a request leaves a hint unset.
const (
	DefaultCPUCores   = 1
	DefaultMemoryMB   = 512
	DefaultDiskSizeGB = 5
)

// Environment is a sandboxed execution context backed by one OS process
// while running.
type Environment struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Kind          Kind      `json:"kind"`
	Status        Status    `json:"status"`
	CPUCores      int       `json:"cpuCores"`
	MemoryMB      int       `json:"memoryMB"`
	DiskSizeGB    int       `json:"diskSizeGB"`
	KernelPath    string    `json:"kernelPath,omitempty"`
	RootfsPath    string    `json:"rootfsPath,omitempty"`
	InitramfsPath string    `json:"initramfsPath,omitempty"`
	PID           *int      `json:"pid,omitempty"`
	LastError     string    `json:"lastError,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (e *Environment) clone() Environment {
	c := *e
	if e.PID != nil {
		pid := *e.PID
		c.PID = &pid
	}
	return c
}

// CreateRequest describes a new environment. Type is accepted as an alias
// of Kind.
type CreateRequest struct {
	Name          string  `json:"name"`
	Kind          Kind    `json:"kind"`
	Type          Kind    `json:"type"`
	CPUCores      *int    `json:"cpuCores"`
	MemoryMB      *int    `json:"memoryMB"`
	DiskSizeGB    *int    `json:"diskSizeGB"`
	KernelPath    *string `json:"kernelPath"`
	RootfsPath    *string `json:"rootfsPath"`
	InitramfsPath *string `json:"initramfsPath"`
}

// ResolvedKind returns Kind, falling back to Type.
func (r CreateRequest) ResolvedKind() Kind {
	if r.Kind != "" {
		return Kind(strings.ToLower(string(r.Kind)))
	}
	return Kind(strings.ToLower(string(r.Type)))
}

// Patch is a partial update of display metadata and resource hints. Nil
// fields are left unchanged.
type Patch struct {
	Name          *string `json:"name"`
	CPUCores      *int    `json:"cpuCores"`
	MemoryMB      *int    `json:"memoryMB"`
	DiskSizeGB    *int    `json:"diskSizeGB"`
	KernelPath    *string `json:"kernelPath"`
	RootfsPath    *string `json:"rootfsPath"`
	InitramfsPath *string `json:"initramfsPath"`
}
