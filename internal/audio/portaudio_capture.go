package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"pushtotalk/internal/ports"
)

// PortaudioCapture reads microphone PCM through portaudio instead of an
// ffmpeg subprocess. Device matching is by name substring against the
// portaudio device list; when nothing matches (device identifiers from
// the sound server rarely line up with portaudio names) it falls back to
// the system default input.
type PortaudioCapture struct{}

func NewPortaudioCapture() *PortaudioCapture {
	return &PortaudioCapture{}
}

func (c *PortaudioCapture) Start(_ context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	framesPerBuffer := framesPerBufferFor(cfg)

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	device, err := lookupInputDevice(cfg.InputDevice)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = cfg.Channels
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = framesPerBuffer

	samples := make([]int16, framesPerBuffer*cfg.Channels)
	stream, err := portaudio.OpenStream(params, samples)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	return &portaudioSession{
		stream:  stream,
		samples: samples,
		buf:     make([]byte, 2*len(samples)),
	}, nil
}

// framesPerBufferFor sizes the capture buffer to the bridge's fragment
// when one is requested, one hundredth of a second otherwise.
func framesPerBufferFor(cfg ports.AudioConfig) int {
	frames := cfg.SampleRate / 100
	if cfg.FragmentBytes > 0 {
		frames = cfg.FragmentBytes / (2 * cfg.Channels)
	}
	if frames <= 0 {
		frames = 480
	}
	return frames
}

func encodeSamples(samples []int16, buf []byte) {
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(sample))
	}
}

func lookupInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" || name == "default" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list portaudio devices: %w", err)
	}
	wanted := strings.ToLower(name)
	for _, device := range devices {
		if device.MaxInputChannels <= 0 {
			continue
		}
		if strings.Contains(strings.ToLower(device.Name), wanted) {
			return device, nil
		}
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("no input device matches %q and no default input: %w", name, err)
	}
	return device, nil
}

type portaudioSession struct {
	stream  *portaudio.Stream
	samples []int16
	buf     []byte
	pending []byte

	stopped  atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

func (s *portaudioSession) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		if s.stopped.Load() {
			return 0, io.EOF
		}
		if err := s.stream.Read(); err != nil {
			if s.stopped.Load() {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("portaudio read failed: %w", err)
		}
		encodeSamples(s.samples, s.buf)
		s.pending = s.buf
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *portaudioSession) Close() error {
	return s.Stop()
}

func (s *portaudioSession) Stop() error {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		if err := s.stream.Abort(); err != nil {
			s.stopErr = err
		}
		if err := s.stream.Close(); err != nil && s.stopErr == nil {
			s.stopErr = err
		}
		if err := portaudio.Terminate(); err != nil && s.stopErr == nil {
			s.stopErr = err
		}
	})
	return s.stopErr
}
