package usecase

import (
	"time"

	"pushtotalk/internal/domain"
	"pushtotalk/internal/ports"
)

// consumeKeyEdges drains the hotkey backend, collapses repeated edges,
// stamps each surviving edge and hands it to the gate. When the backend
// channel closes it synthesizes the terminal Disabled transition, so the
// gate is muted before the loss is reported to the UI.
func consumeKeyEdges(
	edges <-chan domain.KeyEdge,
	source ports.HotkeySource,
	gate *Gate,
	events ports.EventSink,
	done chan struct{},
) {
	defer close(done)

	var last domain.KeyEdge
	for edge := range edges {
		if edge != domain.KeyEdgePressed && edge != domain.KeyEdgeReleased {
			continue
		}
		if edge == last {
			continue
		}
		last = edge
		gate.Apply(domain.KeyTransition{Edge: edge, At: time.Now()})
	}

	gate.Apply(domain.KeyTransition{Edge: domain.KeyEdgeDisabled, At: time.Now()})

	if err := source.Err(); err != nil {
		events.BackendChanged(domain.BackendStatus{
			Kind:   source.Kind(),
			State:  domain.BackendStateLost,
			Detail: err.Error(),
		})
		events.SessionError(domain.ErrorCodeSessionLost, err.Error())
	}
}
