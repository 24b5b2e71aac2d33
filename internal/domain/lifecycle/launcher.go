package lifecycle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/environment"
)

// Spec describes the process backing an environment.
type Spec struct {
	Path string
	Args []string
	Dir  string
	Env  []string // appended to the server's environment
	PTY  bool
}

// Launcher builds the process spec for an environment kind.
type Launcher interface {
	Prepare(env environment.Environment) (*Spec, error)
}

// Cleaner is implemented by launchers that leave per-environment files
// behind. Cleanup runs when the environment is destroyed.
type Cleaner interface {
	Cleanup(env environment.Environment) error
}

// Locator resolves the path of a staged component.
type Locator interface {
	Locate(id string) (string, error)
}

// QEMULauncher boots a virtual machine from the staged kernel and
// initramfs.
type QEMULauncher struct {
	Bin          string
	DownloadsDir string
	DataDir      string
	Components   Locator // optional
}

// Prepare resolves boot images and creates the environment's disk.
func (l *QEMULauncher) Prepare(env environment.Environment) (*Spec, error) {
	kernel := l.resolve(env.KernelPath, "kernel",
		filepath.Join(l.DownloadsDir, "linux-6.6.10", "arch", "x86", "boot", "bzImage"))
	initrd := l.resolve(env.InitramfsPath, "initramfs",
		filepath.Join(l.DownloadsDir, "initramfs.cpio.gz"))

	disk := env.RootfsPath
	if disk == "" {
		var err error
		if disk, err = l.ensureDisk(env); err != nil {
			return nil, err
		}
	}

	return &Spec{
		Path: l.Bin,
		Args: []string{
			"-kernel", kernel,
			"-initrd", initrd,
			"-append", "console=ttyS0 root=/dev/ram0",
			"-m", strconv.Itoa(env.MemoryMB),
			"-smp", strconv.Itoa(env.CPUCores),
			"-drive", "file=" + disk + ",format=raw",
			"-net", "nic,model=virtio",
			"-net", "user",
			"-serial", "stdio",
			"-display", "none",
		},
	}, nil
}

// resolve prefers the environment override, then the staged component,
// then the conventional location.
func (l *QEMULauncher) resolve(override, component, fallback string) string {
	if override != "" {
		return override
	}
	if l.Components != nil {
		if path, err := l.Components.Locate(component); err == nil {
			return path
		}
	}
	return fallback
}

func (l *QEMULauncher) diskPath(id string) string {
	return filepath.Join(l.DataDir, "disks", id+".img")
}

// ensureDisk creates a sparse raw disk of DiskSizeGB unless one exists.
func (l *QEMULauncher) ensureDisk(env environment.Environment) (string, error) {
	path := l.diskPath(env.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create disk dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return path, nil
	}
	if err != nil {
		return "", fmt.Errorf("create disk: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(int64(env.DiskSizeGB) << 30); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("size disk: %w", err)
	}
	return path, nil
}

// Cleanup removes the environment's disk.
func (l *QEMULauncher) Cleanup(env environment.Environment) error {
	err := os.Remove(l.diskPath(env.ID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ShellLauncher runs an interactive shell on a PTY.
type ShellLauncher struct {
	Bin     string
	DataDir string
}

func (l *ShellLauncher) workspace(id string) string {
	return filepath.Join(l.DataDir, "workspaces", id)
}

// Prepare creates the workspace directory.
func (l *ShellLauncher) Prepare(env environment.Environment) (*Spec, error) {
	dir := l.workspace(env.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Spec{
		Path: l.Bin,
		Dir:  dir,
		Env: []string{
			"TERM=xterm-256color",
			"HOME=" + dir,
			"MIXOS_ENVIRONMENT=" + env.ID,
		},
		PTY: true,
	}, nil
}

// Cleanup removes the workspace.
func (l *ShellLauncher) Cleanup(env environment.Environment) error {
	return os.RemoveAll(l.workspace(env.ID))
}

// CodeServerLauncher serves a browser IDE from the staged code-server
// component.
type CodeServerLauncher struct {
	Bin        string // overrides the staged entrypoint
	Host       string
	Port       int
	DataDir    string
	Components Locator
}

func (l *CodeServerLauncher) userData(id string) string {
	return filepath.Join(l.DataDir, "code-server", id)
}

// Prepare resolves the binary and creates the environment's user data
// directory.
func (l *CodeServerLauncher) Prepare(env environment.Environment) (*Spec, error) {
	bin := l.Bin
	if bin == "" {
		if l.Components == nil {
			return nil, errors.New("code-server binary not configured")
		}
		path, err := l.Components.Locate("code-server")
		if err != nil {
			return nil, fmt.Errorf("code-server is not staged: %w", err)
		}
		bin = path
	}

	dir := l.userData(env.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create user data dir: %w", err)
	}

	host := l.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := l.Port
	if port == 0 {
		port = 8080
	}

	return &Spec{
		Path: bin,
		Args: []string{
			"--host", host,
			"--port", strconv.Itoa(port),
			"--user-data-dir", dir,
		},
		Dir: dir,
		Env: []string{"MIXOS_ENVIRONMENT=" + env.ID},
	}, nil
}

// Cleanup removes the user data directory.
func (l *CodeServerLauncher) Cleanup(env environment.Environment) error {
	return os.RemoveAll(l.userData(env.ID))
}
