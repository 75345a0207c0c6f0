package usecase

import (
	"context"

	"pushtotalk/internal/domain"
	"pushtotalk/internal/ports"
)

type activeSession struct {
	ctx    context.Context
	cancel context.CancelFunc

	audio  ports.AudioSession
	mic    ports.VirtualMic
	gate   *Gate
	device domain.MicrophoneDevice

	counters *bridgeCounters

	keysDone  chan struct{}
	audioDone chan struct{}
}
