package pulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/godbus/dbus"
	"github.com/sqp/pulseaudio"

	"pushtotalk/internal/domain"
	"pushtotalk/internal/ports"
)

const (
	// SourceName is the pulseaudio identifier of the virtual microphone.
	SourceName = "GlobalPushToTalkVirtualMicrophone"
	// SourceDescription is the label other applications display for it.
	SourceDescription = "Global Push-to-Talk Virtual Microphone"

	pipeFileName = "ptt-virtualmic.pipe"

	coreInterface   = "org.PulseAudio.Core1"
	moduleInterface = "org.PulseAudio.Core1.Module"
)

// Manager talks to PulseAudio over its D-Bus API. It enumerates capture
// sources and owns the lifecycle of the pipe-backed virtual microphone.
type Manager struct {
	log     *slog.Logger
	pipeDir string

	mu     sync.Mutex
	client *pulseaudio.Client
}

func NewManager(log *slog.Logger, pipeDir string) *Manager {
	if pipeDir == "" {
		pipeDir = os.TempDir()
	}
	return &Manager{log: log, pipeDir: pipeDir}
}

// ListSources returns the capture devices a user can pick from. Monitor
// sources and the virtual microphone itself are not selectable inputs.
func (m *Manager) ListSources(ctx context.Context) ([]domain.MicrophoneDevice, error) {
	client, err := m.connect()
	if err != nil {
		return nil, err
	}

	paths, err := client.Core().ListPath("Sources")
	if err != nil {
		return nil, fmt.Errorf("failed to list pulseaudio sources: %w", err)
	}

	devices := make([]domain.MicrophoneDevice, 0, len(paths))
	for _, path := range paths {
		source := client.Device(path)

		var name string
		if err := source.Get("Name", &name); err != nil {
			m.log.Debug("skipping unreadable source", "path", string(path), "error", err)
			continue
		}
		props, err := source.MapString("PropertyList")
		if err != nil {
			m.log.Debug("skipping unreadable source", "path", string(path), "error", err)
			continue
		}
		if !isPhysicalSource(name, props) {
			continue
		}

		var rate uint32
		_ = source.Get("SampleRate", &rate)
		var channels []uint32
		_ = source.Get("Channels", &channels)

		devices = append(devices, domain.MicrophoneDevice{
			ID:         name,
			Name:       sourceLabel(name, props),
			SampleRate: int(rate),
			Channels:   len(channels),
		})
	}
	return devices, nil
}

// CreateVirtualMic loads a pipe-backed source other applications can pick
// as their microphone and returns the write side of its pipe. A stale
// instance left over from a previous run is unloaded first.
func (m *Manager) CreateVirtualMic(ctx context.Context, cfg ports.VirtualMicConfig) (ports.VirtualMic, error) {
	client, err := m.connect()
	if err != nil {
		return nil, err
	}

	if err := m.unloadExisting(client); err != nil {
		return nil, err
	}

	pipePath := filepath.Join(m.pipeDir, pipeFileName)
	if err := os.Remove(pipePath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale pipe %s: %w", pipePath, err)
	}
	if err := syscall.Mkfifo(pipePath, 0o600); err != nil {
		return nil, fmt.Errorf("failed to create pipe %s: %w", pipePath, err)
	}

	var modulePath dbus.ObjectPath
	call := client.Core().Call(coreInterface+".LoadModule", 0, "module-pipe-source", pipeSourceArgs(cfg, pipePath))
	if err := call.Store(&modulePath); err != nil {
		_ = os.Remove(pipePath)
		return nil, fmt.Errorf("%w: pulseaudio refused module-pipe-source: %v", domain.ErrSystemRejected, err)
	}

	// The module holds the read end open from the moment LoadModule
	// returns, so this does not block.
	sink, err := os.OpenFile(pipePath, os.O_WRONLY, 0)
	if err != nil {
		_ = unloadModule(client, modulePath)
		_ = os.Remove(pipePath)
		return nil, fmt.Errorf("failed to open virtual microphone pipe: %w", err)
	}

	m.log.Info("virtual microphone created", "source", SourceName, "pipe", pipePath)
	return &virtualMic{
		client:     client,
		modulePath: modulePath,
		pipePath:   pipePath,
		sink:       sink,
	}, nil
}

func (m *Manager) connect() (*pulseaudio.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return m.client, nil
	}
	client, err := pulseaudio.New()
	if err != nil {
		return nil, fmt.Errorf("%w: pulseaudio bus is unreachable: %v", domain.ErrDeviceUnavailable, err)
	}
	m.client = client
	return client, nil
}

// unloadExisting drops a leftover virtual source from a previous run so
// two instances never pile up under the same name.
func (m *Manager) unloadExisting(client *pulseaudio.Client) error {
	paths, err := client.Core().ListPath("Sources")
	if err != nil {
		return fmt.Errorf("failed to list pulseaudio sources: %w", err)
	}
	for _, path := range paths {
		source := client.Device(path)

		var name string
		if err := source.Get("Name", &name); err != nil || name != SourceName {
			continue
		}
		var owner dbus.ObjectPath
		if err := source.Get("OwnerModule", &owner); err != nil {
			return fmt.Errorf("failed to resolve stale virtual microphone module: %w", err)
		}

		m.log.Warn("unloading stale virtual microphone", "module", string(owner))
		if err := unloadModule(client, owner); err != nil {
			return fmt.Errorf("failed to unload stale virtual microphone: %w", err)
		}
	}
	return nil
}

func unloadModule(client *pulseaudio.Client, path dbus.ObjectPath) error {
	return client.Device(path).Call(moduleInterface+".Unload", 0).Err
}

// isPhysicalSource keeps sound-class devices and drops monitors plus the
// virtual microphone this process creates.
func isPhysicalSource(name string, props map[string]string) bool {
	if name == SourceName {
		return false
	}
	return props["device.class"] == "sound"
}

func sourceLabel(name string, props map[string]string) string {
	if description := props["device.description"]; description != "" {
		return description
	}
	return name
}

// pipeSourceArgs builds the module-pipe-source argument list. The format
// is pinned to s16le, matching the frames the bridge writes.
func pipeSourceArgs(cfg ports.VirtualMicConfig, pipePath string) map[string]string {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 48000
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	return map[string]string{
		"source_name":       SourceName,
		"file":              pipePath,
		"format":            "s16le",
		"rate":              strconv.Itoa(rate),
		"channels":          strconv.Itoa(channels),
		"source_properties": "device.description='" + SourceDescription + "'",
	}
}

type virtualMic struct {
	client     *pulseaudio.Client
	modulePath dbus.ObjectPath
	pipePath   string

	mu     sync.Mutex
	sink   *os.File
	closed bool
}

func (v *virtualMic) WriteFrame(frame []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return errors.New("virtual microphone is closed")
	}
	if _, err := v.sink.Write(frame); err != nil {
		return fmt.Errorf("failed to write to virtual microphone pipe: %w", err)
	}
	return nil
}

// Close stops feeding the pipe, unloads the module and removes the pipe
// file. Calling it again is a no-op.
func (v *virtualMic) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true

	var firstErr error
	if err := v.sink.Close(); err != nil {
		firstErr = fmt.Errorf("failed to close virtual microphone pipe: %w", err)
	}
	if err := unloadModule(v.client, v.modulePath); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to unload virtual microphone module: %w", err)
	}
	if err := os.Remove(v.pipePath); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = fmt.Errorf("failed to remove pipe %s: %w", v.pipePath, err)
	}
	return firstErr
}
