package x11

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.design/x/hotkey"

	"pushtotalk/internal/domain"
)

// Config controls the X11 key grab.
type Config struct {
	// Combo is the key combination to grab, e.g. "insert" or "ctrl+alt+space".
	Combo string
	// RepeatFilter is how long a key-up may wait for the key-down half of
	// an auto-repeat pair before it counts as a real release. Zero turns
	// the filter off.
	RepeatFilter time.Duration
}

// Source grabs a global key combination directly from the X server and
// implements ports.HotkeySource.
type Source struct {
	combo        combo
	repeatFilter time.Duration
	log          *slog.Logger

	mu      sync.Mutex
	session *grabSession
}

func NewSource(cfg Config, log *slog.Logger) (*Source, error) {
	parsed, err := parseCombo(cfg.Combo)
	if err != nil {
		return nil, err
	}
	if cfg.RepeatFilter < 0 {
		cfg.RepeatFilter = 12 * time.Millisecond
	}
	return &Source{
		combo:        parsed,
		repeatFilter: cfg.RepeatFilter,
		log:          log,
	}, nil
}

func (x *Source) Start(ctx context.Context) (<-chan domain.KeyEdge, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.session != nil {
		return nil, errors.New("x11 hotkey session already running")
	}

	hk := hotkey.New(x.combo.mods, x.combo.key)
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("failed to grab %q on the x server: %w", x.combo.label, err)
	}

	session := &grabSession{
		hk:     hk,
		edges:  make(chan domain.KeyEdge, 16),
		filter: x.repeatFilter,
		stop:   make(chan struct{}),
	}
	x.session = session

	go session.run()
	go func() {
		select {
		case <-ctx.Done():
			session.shutdown()
		case <-session.stop:
		}
	}()

	x.log.Info("x11 key grab registered", "combo", x.combo.label)
	return session.edges, nil
}

func (x *Source) Stop() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.session == nil {
		return nil
	}
	x.session.shutdown()
	x.session = nil
	return nil
}

// Err reports the terminal session error. A registered grab has no
// asynchronous failure channel; the X session only ever ends through Stop.
func (x *Source) Err() error { return nil }

func (x *Source) Kind() domain.BackendKind { return domain.BackendKindX11Grab }

func (x *Source) Description() string { return x.combo.label }

type grabSession struct {
	hk     *hotkey.Hotkey
	edges  chan domain.KeyEdge
	filter time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

func (s *grabSession) run() {
	defer close(s.edges)
	defer func() { _ = s.hk.Unregister() }()

	squashRepeats(s.hk.Keydown(), s.hk.Keyup(), s.filter, s.emit, s.stop)
}

func (s *grabSession) shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *grabSession) emit(edge domain.KeyEdge) {
	select {
	case s.edges <- edge:
	case <-s.stop:
	}
}

// squashRepeats turns the raw keydown/keyup stream into hold edges. While
// a key is held, X fires synthetic release/press pairs at the keyboard
// repeat rate; a release only counts once no press follows it within the
// filter window.
func squashRepeats(
	down <-chan hotkey.Event,
	up <-chan hotkey.Event,
	filter time.Duration,
	emit func(domain.KeyEdge),
	stop <-chan struct{},
) {
	held := false

	var pending *time.Timer
	var pendingC <-chan time.Time
	cancelPending := func() {
		if pending == nil {
			return
		}
		pending.Stop()
		pending = nil
		pendingC = nil
	}
	defer cancelPending()

	for {
		select {
		case <-stop:
			return
		case _, ok := <-down:
			if !ok {
				return
			}
			cancelPending()
			if !held {
				held = true
				emit(domain.KeyEdgePressed)
			}
		case _, ok := <-up:
			if !ok {
				return
			}
			if !held {
				continue
			}
			if filter <= 0 {
				held = false
				emit(domain.KeyEdgeReleased)
				continue
			}
			cancelPending()
			pending = time.NewTimer(filter)
			pendingC = pending.C
		case <-pendingC:
			pending = nil
			pendingC = nil
			held = false
			emit(domain.KeyEdgeReleased)
		}
	}
}
