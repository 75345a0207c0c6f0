package usecase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"pushtotalk/internal/domain"
	"pushtotalk/internal/ports"
)

type bridgeCounters struct {
	read     atomic.Uint64
	written  atomic.Uint64
	silenced atomic.Uint64
}

func (c *bridgeCounters) snapshot() domain.BridgeStats {
	return domain.BridgeStats{
		FramesRead:     c.read.Load(),
		FramesWritten:  c.written.Load(),
		FramesSilenced: c.silenced.Load(),
	}
}

// frameSizeBytes returns the byte length of one s16le frame.
func frameSizeBytes(cfg ports.AudioConfig, frame time.Duration) int {
	samples := int(frame * time.Duration(cfg.SampleRate) / time.Second)
	return samples * cfg.Channels * 2
}

// pumpFrames moves capture audio into the virtual microphone one frame at
// a time. Every completed read produces exactly one write; frames read
// while the gate is closed, and short tail reads, go out as silence.
func pumpFrames(
	audio ports.AudioSession,
	mic ports.VirtualMic,
	gate *Gate,
	frameSize int,
	counters *bridgeCounters,
	events ports.EventSink,
	log *slog.Logger,
	done chan struct{},
) {
	defer close(done)

	if frameSize <= 0 {
		frameSize = 960
	}

	buf := make([]byte, frameSize)
	silence := make([]byte, frameSize)
	for {
		n, err := io.ReadFull(audio, buf)
		if n > 0 {
			counters.read.Add(1)
			muted := gate.State() != domain.GateStatePassthrough
			if n < frameSize {
				log.Debug("short capture read", "bytes", n, "frame", frameSize)
				muted = true
			}
			out := buf
			if muted {
				out = silence
				counters.silenced.Add(1)
			}
			if werr := mic.WriteFrame(out); werr != nil {
				events.SessionError(domain.ErrorCodeDeviceUnavailable, fmt.Sprintf("failed to feed virtual microphone: %v", werr))
				return
			}
			counters.written.Add(1)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				events.SessionError(domain.ErrorCodeCapture, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}
