package lifecycle

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/environment"
	"github.com/GriffinCanCode/MixOS/backend/internal/domain/events"
	"github.com/GriffinCanCode/MixOS/backend/internal/shared/apperr"
)

type mapLocator map[string]string

func (l mapLocator) Locate(id string) (string, error) {
	if path, ok := l[id]; ok {
		return path, nil
	}
	return "", apperr.NotFound("locate", id)
}

func argValue(t *testing.T, args []string, flag string) string {
	t.Helper()
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	t.Fatalf("flag %s not in %v", flag, args)
	return ""
}

func TestQEMULauncherArgs(t *testing.T) {
	dir := t.TempDir()
	l := &QEMULauncher{
		Bin:          "qemu-system-x86_64",
		DownloadsDir: filepath.Join(dir, "downloads"),
		DataDir:      filepath.Join(dir, "data"),
		Components:   mapLocator{"kernel": "/staged/bzImage"},
	}
	env := environment.Environment{ID: "env-1", Kind: environment.KindQEMU, CPUCores: 2, MemoryMB: 1024, DiskSizeGB: 5}

	spec, err := l.Prepare(env)
	require.NoError(t, err)

	assert.Equal(t, "qemu-system-x86_64", spec.Path)
	assert.False(t, spec.PTY)
	assert.Equal(t, "/staged/bzImage", argValue(t, spec.Args, "-kernel"))
	assert.Equal(t, filepath.Join(dir, "downloads", "initramfs.cpio.gz"), argValue(t, spec.Args, "-initrd"))
	assert.Equal(t, "console=ttyS0 root=/dev/ram0", argValue(t, spec.Args, "-append"))
	assert.Equal(t, "1024", argValue(t, spec.Args, "-m"))
	assert.Equal(t, "2", argValue(t, spec.Args, "-smp"))
	assert.Equal(t, "stdio", argValue(t, spec.Args, "-serial"))
	assert.Equal(t, "none", argValue(t, spec.Args, "-display"))

	disk := filepath.Join(dir, "data", "disks", "env-1.img")
	assert.Equal(t, "file="+disk+",format=raw", argValue(t, spec.Args, "-drive"))

	info, err := os.Stat(disk)
	require.NoError(t, err)
	assert.Equal(t, int64(5)<<30, info.Size())

	// A second prepare reuses the disk.
	_, err = l.Prepare(env)
	require.NoError(t, err)

	require.NoError(t, l.Cleanup(env))
	assert.NoFileExists(t, disk)
	assert.NoError(t, l.Cleanup(env))
}

func TestQEMULauncherOverrides(t *testing.T) {
	dir := t.TempDir()
	l := &QEMULauncher{Bin: "qemu", DownloadsDir: dir, DataDir: dir}
	env := environment.Environment{
		ID:            "env-2",
		CPUCores:      1,
		MemoryMB:      512,
		DiskSizeGB:    1,
		KernelPath:    "/custom/vmlinuz",
		InitramfsPath: "/custom/initrd",
		RootfsPath:    "/custom/rootfs.img",
	}

	spec, err := l.Prepare(env)
	require.NoError(t, err)

	assert.Equal(t, "/custom/vmlinuz", argValue(t, spec.Args, "-kernel"))
	assert.Equal(t, "/custom/initrd", argValue(t, spec.Args, "-initrd"))
	assert.Equal(t, "file=/custom/rootfs.img,format=raw", argValue(t, spec.Args, "-drive"))
	assert.NoFileExists(t, filepath.Join(dir, "disks", "env-2.img"))
}

func TestQEMULauncherConventionalKernel(t *testing.T) {
	dir := t.TempDir()
	l := &QEMULauncher{Bin: "qemu", DownloadsDir: dir, DataDir: dir, Components: mapLocator{}}

	spec, err := l.Prepare(environment.Environment{ID: "env-3", CPUCores: 1, MemoryMB: 512, DiskSizeGB: 1})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "linux-6.6.10", "arch", "x86", "boot", "bzImage"), argValue(t, spec.Args, "-kernel"))
}

func TestLineWriterSplitsLines(t *testing.T) {
	rec := &recorder{}
	w := newLineWriter("env-1", events.OriginStdout, rec)

	_, _ = w.Write([]byte("one\r\ntw"))
	_, _ = w.Write([]byte("o\n\nthree"))
	assert.Equal(t, []string{"one", "two"}, rec.lines())

	w.Flush()
	assert.Equal(t, []string{"one", "two", "three"}, rec.lines())
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Line)
	}
	return out
}

func TestCodeServerLauncherUsesStagedEntrypoint(t *testing.T) {
	dir := t.TempDir()
	l := &CodeServerLauncher{
		DataDir:    dir,
		Components: mapLocator{"code-server": "/staged/code-server-4.22.1/bin/code-server"},
	}
	env := environment.Environment{ID: "env-7", Kind: environment.KindCodeServer}

	spec, err := l.Prepare(env)
	require.NoError(t, err)

	assert.Equal(t, "/staged/code-server-4.22.1/bin/code-server", spec.Path)
	assert.False(t, spec.PTY)
	assert.Equal(t, "0.0.0.0", argValue(t, spec.Args, "--host"))
	assert.Equal(t, "8080", argValue(t, spec.Args, "--port"))

	userData := filepath.Join(dir, "code-server", "env-7")
	assert.Equal(t, userData, argValue(t, spec.Args, "--user-data-dir"))
	assert.DirExists(t, userData)

	require.NoError(t, l.Cleanup(env))
	assert.NoDirExists(t, userData)
}

func TestCodeServerLauncherOverrides(t *testing.T) {
	l := &CodeServerLauncher{
		Bin:        "/opt/code-server/bin/code-server",
		Host:       "127.0.0.1",
		Port:       9090,
		DataDir:    t.TempDir(),
		Components: mapLocator{},
	}

	spec, err := l.Prepare(environment.Environment{ID: "env-8", Kind: environment.KindCodeServer})
	require.NoError(t, err)

	assert.Equal(t, "/opt/code-server/bin/code-server", spec.Path)
	assert.Equal(t, "127.0.0.1", argValue(t, spec.Args, "--host"))
	assert.Equal(t, "9090", argValue(t, spec.Args, "--port"))
}

func TestCodeServerLauncherRequiresStagedComponent(t *testing.T) {
	l := &CodeServerLauncher{DataDir: t.TempDir(), Components: mapLocator{}}

	_, err := l.Prepare(environment.Environment{ID: "env-9", Kind: environment.KindCodeServer})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code-server is not staged")
}
