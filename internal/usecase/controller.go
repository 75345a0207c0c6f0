package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"pushtotalk/internal/domain"
	"pushtotalk/internal/ports"
)

// Config controls the push-to-talk session behavior.
type Config struct {
	Audio           ports.AudioConfig
	FrameDuration   time.Duration
	ReleaseDebounce time.Duration
}

// Controller orchestrates the hotkey stream, the gate, the virtual
// microphone and the audio bridge. Enable and Disable serialize against
// each other; the audio and hotkey loops run free in between.
type Controller struct {
	capture ports.AudioCapture
	devices ports.DeviceManager
	hotkeys ports.HotkeySource
	events  ports.EventSink
	log     *slog.Logger
	cfg     Config

	mu      sync.Mutex
	current *activeSession
}

func NewController(
	capture ports.AudioCapture,
	devices ports.DeviceManager,
	hotkeys ports.HotkeySource,
	events ports.EventSink,
	log *slog.Logger,
	cfg Config,
) *Controller {
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 10 * time.Millisecond
	}
	if cfg.ReleaseDebounce < 0 {
		cfg.ReleaseDebounce = 30 * time.Millisecond
	}
	return &Controller{
		capture: capture,
		devices: devices,
		hotkeys: hotkeys,
		events:  events,
		log:     log,
		cfg:     cfg,
	}
}

// Enable creates the virtual microphone, starts the hotkey session and
// begins bridging audio from the selected device. Calling it again with
// the same device while healthy is a no-op; with a different device it
// swaps the capture source and keeps the virtual microphone as is. A
// session whose hotkey backend died is torn down and rebuilt.
func (c *Controller) Enable(ctx context.Context, deviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		if c.hotkeys.Err() == nil {
			if c.current.device.ID == deviceID {
				return nil
			}
			return c.swapCapture(deviceID)
		}
		c.teardown(c.current)
		c.current = nil
	}

	device, err := c.lookupDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	mic, err := c.devices.CreateVirtualMic(ctx, ports.VirtualMicConfig{
		SampleRate: c.cfg.Audio.SampleRate,
		Channels:   c.cfg.Audio.Channels,
	})
	if err != nil {
		return fmt.Errorf("create virtual microphone: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)

	edges, err := c.hotkeys.Start(sessionCtx)
	if err != nil {
		_ = mic.Close()
		cancel()
		return fmt.Errorf("start hotkey backend: %w", err)
	}

	audioCfg := c.cfg.Audio
	audioCfg.InputDevice = device.ID
	audioCfg.FragmentBytes = frameSizeBytes(audioCfg, c.cfg.FrameDuration)
	audioSession, err := c.capture.Start(sessionCtx, audioCfg)
	if err != nil {
		_ = c.hotkeys.Stop()
		_ = mic.Close()
		cancel()
		return fmt.Errorf("start audio capture: %w", err)
	}

	active := &activeSession{
		ctx:       sessionCtx,
		cancel:    cancel,
		audio:     audioSession,
		mic:       mic,
		gate:      NewGate(c.cfg.ReleaseDebounce, c.events),
		device:    device,
		counters:  &bridgeCounters{},
		keysDone:  make(chan struct{}),
		audioDone: make(chan struct{}),
	}
	c.current = active

	go consumeKeyEdges(edges, c.hotkeys, active.gate, c.events, active.keysDone)
	go pumpFrames(active.audio, active.mic, active.gate, audioCfg.FragmentBytes, active.counters, c.events, c.log, active.audioDone)

	c.log.Info("push-to-talk enabled", "device", device.ID, "backend", c.hotkeys.Kind())
	c.events.BackendChanged(domain.BackendStatus{Kind: c.hotkeys.Kind(), State: domain.BackendStateActive})
	c.events.HotkeyChanged(c.hotkeys.Description())
	return nil
}

// Disable stops the bridge, destroys the virtual microphone and ends the
// hotkey session, in that order. Calling it while disabled is a no-op.
func (c *Controller) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil
	}

	err := c.teardown(c.current)
	c.current = nil

	c.log.Info("push-to-talk disabled")
	c.events.BackendChanged(domain.BackendStatus{Kind: c.hotkeys.Kind(), State: domain.BackendStateNotStarted})
	return err
}

// Status returns the current runtime status.
func (c *Controller) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.Status{
		Gate:    domain.GateStateMuted,
		Backend: domain.BackendStatus{Kind: c.hotkeys.Kind(), State: domain.BackendStateNotStarted},
		Hotkey:  c.hotkeys.Description(),
	}
	if c.current == nil {
		return status
	}

	status.Enabled = true
	status.Gate = c.current.gate.State()
	status.Bridge = c.current.counters.snapshot()
	device := c.current.device
	status.Device = &device

	if err := c.hotkeys.Err(); err != nil {
		status.Backend.State = domain.BackendStateLost
		status.Backend.Detail = err.Error()
	} else {
		status.Backend.State = domain.BackendStateActive
	}
	return status
}

// ListDevices enumerates the selectable physical capture devices.
func (c *Controller) ListDevices(ctx context.Context) ([]domain.MicrophoneDevice, error) {
	return c.devices.ListSources(ctx)
}

// HotkeyDescription reports the human-readable trigger for display.
func (c *Controller) HotkeyDescription() string {
	return c.hotkeys.Description()
}

func (c *Controller) lookupDevice(ctx context.Context, id string) (domain.MicrophoneDevice, error) {
	devices, err := c.devices.ListSources(ctx)
	if err != nil {
		return domain.MicrophoneDevice{}, fmt.Errorf("list capture devices: %w", err)
	}
	device, ok := lo.Find(devices, func(d domain.MicrophoneDevice) bool { return d.ID == id })
	if !ok {
		return domain.MicrophoneDevice{}, fmt.Errorf("%w: no such capture device %q", domain.ErrDeviceUnavailable, id)
	}
	return device, nil
}

// swapCapture replaces the physical source of the running session. The
// new capture is started before the old bridge is stopped, so a failure
// leaves the session on its previous device.
func (c *Controller) swapCapture(deviceID string) error {
	active := c.current

	device, err := c.lookupDevice(active.ctx, deviceID)
	if err != nil {
		return err
	}

	audioCfg := c.cfg.Audio
	audioCfg.InputDevice = device.ID
	audioCfg.FragmentBytes = frameSizeBytes(audioCfg, c.cfg.FrameDuration)
	audioSession, err := c.capture.Start(active.ctx, audioCfg)
	if err != nil {
		return fmt.Errorf("start audio capture: %w", err)
	}

	_ = active.audio.Stop()
	<-active.audioDone

	active.audio = audioSession
	active.device = device
	active.audioDone = make(chan struct{})
	go pumpFrames(active.audio, active.mic, active.gate, audioCfg.FragmentBytes, active.counters, c.events, c.log, active.audioDone)

	c.log.Info("capture device swapped", "device", device.ID)
	return nil
}

// teardown stops a session: bridge production first, then the virtual
// device, then the hotkey listener. The gate is muted up front so no
// passthrough frame can slip out while the pieces come down.
func (c *Controller) teardown(active *activeSession) error {
	active.gate.disable(domain.GateReasonBridgeStopped)

	var firstErr error

	if err := active.audio.Stop(); err != nil {
		firstErr = fmt.Errorf("stop audio capture: %w", err)
	}
	<-active.audioDone

	if err := active.mic.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("destroy virtual microphone: %w", err)
	}

	if err := c.hotkeys.Stop(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("stop hotkey backend: %w", err)
	}
	<-active.keysDone

	active.cancel()

	if firstErr != nil {
		c.events.SessionError(domain.ErrorCodeShutdown, firstErr.Error())
	}
	return firstErr
}
