package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"pushtotalk/internal/domain"
)

const (
	portalBusName    = "org.freedesktop.portal.Desktop"
	portalObjectPath = "/org/freedesktop/portal/desktop"

	shortcutsInterface = "org.freedesktop.portal.GlobalShortcuts"
	requestInterface   = "org.freedesktop.portal.Request"
	sessionInterface   = "org.freedesktop.portal.Session"

	shortcutID          = "push-to-talk"
	shortcutDescription = "Activate push-to-talk"

	createSessionTimeout = 25 * time.Second
	// Binding may pop a compositor dialog the user has to approve.
	bindShortcutsTimeout = 2 * time.Minute
)

// Config controls the GlobalShortcuts portal session.
type Config struct {
	// Combo hints which binding the compositor should suggest. The user
	// owns the actual binding through system settings.
	Combo string
	// OnTriggerChanged, when set, observes binding changes the compositor
	// pushes while a session is live.
	OnTriggerChanged func(string)
}

// Source negotiates a GlobalShortcuts portal session and implements
// ports.HotkeySource on top of its Activated/Deactivated signals.
type Source struct {
	combo            string
	onTriggerChanged func(string)
	log              *slog.Logger

	mu      sync.Mutex
	session *portalSession

	descMu      sync.Mutex
	description string

	errMu sync.Mutex
	err   error
}

func NewSource(cfg Config, log *slog.Logger) *Source {
	return &Source{
		combo:            cfg.Combo,
		onTriggerChanged: cfg.OnTriggerChanged,
		log:              log,
	}
}

func (p *Source) Start(ctx context.Context) (<-chan domain.KeyEdge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		return nil, errors.New("portal hotkey session already running")
	}
	p.resetErr()

	conn, err := connectSessionBus()
	if err != nil {
		return nil, err
	}

	signals := make(chan *dbus.Signal, 64)
	conn.Signal(signals)

	sessionPath, err := p.createSession(ctx, conn, signals)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := subscribeSession(conn, sessionPath); err != nil {
		_ = conn.Close()
		return nil, err
	}
	trigger, err := p.bindShortcut(ctx, conn, signals, sessionPath)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if trigger != "" {
		p.setDescription(trigger)
	}

	session := &portalSession{
		conn:        conn,
		signals:     signals,
		edges:       make(chan domain.KeyEdge, 16),
		sessionPath: sessionPath,
		log:         p.log,
		setErr:      p.setErr,
		onTrigger: func(desc string) {
			p.setDescription(desc)
			p.log.Info("shortcut binding changed", "trigger", desc)
			if p.onTriggerChanged != nil {
				p.onTriggerChanged(desc)
			}
		},
		stop: make(chan struct{}),
	}
	p.session = session

	go session.run()
	go func() {
		select {
		case <-ctx.Done():
			session.shutdown()
		case <-session.stop:
		}
	}()

	p.log.Info("portal shortcut session established", "session", string(sessionPath), "trigger", p.Description())
	return session.edges, nil
}

func (p *Source) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil
	}
	p.session.shutdown()
	p.session = nil
	return nil
}

// Err reports the terminal session error, if the portal session died
// rather than being stopped.
func (p *Source) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *Source) Kind() domain.BackendKind { return domain.BackendKindPortal }

// Description reports the trigger the compositor confirmed, or an empty
// string while the binding is only known to system settings.
func (p *Source) Description() string {
	p.descMu.Lock()
	defer p.descMu.Unlock()
	return p.description
}

func (p *Source) setDescription(desc string) {
	p.descMu.Lock()
	p.description = desc
	p.descMu.Unlock()
}

func (p *Source) setErr(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

func (p *Source) resetErr() {
	p.errMu.Lock()
	p.err = nil
	p.errMu.Unlock()
}

func (p *Source) createSession(ctx context.Context, conn *dbus.Conn, signals <-chan *dbus.Signal) (dbus.ObjectPath, error) {
	token := newToken()
	watched, err := watchRequest(conn, token)
	if err != nil {
		return "", err
	}

	options := map[string]dbus.Variant{
		"handle_token":         dbus.MakeVariant(token),
		"session_handle_token": dbus.MakeVariant(newToken()),
	}

	var request dbus.ObjectPath
	call := conn.Object(portalBusName, portalObjectPath).CallWithContext(ctx, shortcutsInterface+".CreateSession", 0, options)
	if err := call.Store(&request); err != nil {
		return "", fmt.Errorf("%w: the global shortcuts portal is unavailable: %v", domain.ErrBackendUnavailable, err)
	}
	if watched, err = alsoWatch(conn, watched, request); err != nil {
		return "", err
	}

	results, err := awaitResponse(ctx, signals, watched, createSessionTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to create a portal session: %w", err)
	}
	return sessionPathFromResults(results)
}

func (p *Source) bindShortcut(ctx context.Context, conn *dbus.Conn, signals <-chan *dbus.Signal, session dbus.ObjectPath) (string, error) {
	token := newToken()
	watched, err := watchRequest(conn, token)
	if err != nil {
		return "", err
	}

	shortcutOptions := map[string]dbus.Variant{
		"description": dbus.MakeVariant(shortcutDescription),
	}
	if trigger := portalTrigger(p.combo); trigger != "" {
		shortcutOptions["preferred_trigger"] = dbus.MakeVariant(trigger)
	}
	shortcuts := []portalShortcut{{ID: shortcutID, Options: shortcutOptions}}
	options := map[string]dbus.Variant{"handle_token": dbus.MakeVariant(token)}

	var request dbus.ObjectPath
	call := conn.Object(portalBusName, portalObjectPath).CallWithContext(ctx, shortcutsInterface+".BindShortcuts", 0, session, shortcuts, "", options)
	if err := call.Store(&request); err != nil {
		return "", fmt.Errorf("failed to bind the shortcut: %w", err)
	}
	if watched, err = alsoWatch(conn, watched, request); err != nil {
		return "", err
	}

	results, err := awaitResponse(ctx, signals, watched, bindShortcutsTimeout)
	if err != nil {
		return "", fmt.Errorf("the compositor did not confirm the shortcut: %w", err)
	}
	return triggerFromResults(results), nil
}

type portalSession struct {
	conn        *dbus.Conn
	signals     chan *dbus.Signal
	edges       chan domain.KeyEdge
	sessionPath dbus.ObjectPath
	log         *slog.Logger

	setErr    func(error)
	onTrigger func(string)

	stop     chan struct{}
	stopOnce sync.Once
}

func (s *portalSession) run() {
	defer close(s.edges)

	for {
		select {
		case <-s.stop:
			return
		case sig, ok := <-s.signals:
			if !ok {
				select {
				case <-s.stop:
				default:
					s.log.Warn("session bus connection dropped")
					s.setErr(fmt.Errorf("%w: the session bus connection dropped", domain.ErrSessionLost))
				}
				return
			}
			if s.handle(sig) {
				return
			}
		}
	}
}

// handle processes one bus signal and reports whether the session is over.
func (s *portalSession) handle(sig *dbus.Signal) bool {
	switch sig.Name {
	case shortcutsInterface + ".Activated":
		if s.matches(sig.Body) {
			s.emit(domain.KeyEdgePressed)
		}
	case shortcutsInterface + ".Deactivated":
		if s.matches(sig.Body) {
			s.emit(domain.KeyEdgeReleased)
		}
	case shortcutsInterface + ".ShortcutsChanged":
		if len(sig.Body) >= 2 && pathFromBody(sig.Body[0]) == s.sessionPath {
			if trigger := triggerFromShortcuts(sig.Body[1]); trigger != "" {
				s.onTrigger(trigger)
			}
		}
	case sessionInterface + ".Closed":
		if sig.Path == s.sessionPath {
			s.log.Warn("compositor closed the shortcut session")
			s.setErr(fmt.Errorf("%w: the compositor closed the shortcut session", domain.ErrSessionLost))
			return true
		}
	}
	return false
}

func (s *portalSession) matches(body []interface{}) bool {
	if len(body) < 2 {
		return false
	}
	id, _ := body[1].(string)
	return pathFromBody(body[0]) == s.sessionPath && id == shortcutID
}

func (s *portalSession) emit(edge domain.KeyEdge) {
	select {
	case s.edges <- edge:
	case <-s.stop:
	}
}

func (s *portalSession) shutdown() {
	s.stopOnce.Do(func() {
		close(s.stop)
		_ = s.conn.Object(portalBusName, s.sessionPath).Call(sessionInterface+".Close", 0).Err
		_ = s.conn.Close()
	})
}

// portalShortcut marshals as the (sa{sv}) tuples BindShortcuts takes.
type portalShortcut struct {
	ID      string
	Options map[string]dbus.Variant
}

func connectSessionBus() (*dbus.Conn, error) {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to reach the session bus: %v", domain.ErrBackendUnavailable, err)
	}
	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: session bus authentication failed: %v", domain.ErrBackendUnavailable, err)
	}
	if err := conn.Hello(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: session bus handshake failed: %v", domain.ErrBackendUnavailable, err)
	}
	return conn, nil
}

func subscribeSession(conn *dbus.Conn, session dbus.ObjectPath) error {
	for _, member := range []string{"Activated", "Deactivated", "ShortcutsChanged"} {
		if err := conn.AddMatchSignal(
			dbus.WithMatchInterface(shortcutsInterface),
			dbus.WithMatchMember(member),
		); err != nil {
			return fmt.Errorf("failed to subscribe to %s signals: %w", member, err)
		}
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(sessionInterface),
		dbus.WithMatchMember("Closed"),
		dbus.WithMatchObjectPath(session),
	); err != nil {
		return fmt.Errorf("failed to subscribe to session lifecycle signals: %w", err)
	}
	return nil
}

// watchRequest subscribes to the Response the portal will emit for a
// request token, before the request is made, so the reply cannot race
// the subscription.
func watchRequest(conn *dbus.Conn, token string) (map[dbus.ObjectPath]bool, error) {
	expected := requestPath(conn.Names()[0], token)
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember("Response"),
		dbus.WithMatchObjectPath(expected),
	); err != nil {
		return nil, fmt.Errorf("failed to subscribe to the portal response: %w", err)
	}
	return map[dbus.ObjectPath]bool{expected: true}, nil
}

// alsoWatch covers portals old enough to allocate request paths outside
// the token convention.
func alsoWatch(conn *dbus.Conn, watched map[dbus.ObjectPath]bool, path dbus.ObjectPath) (map[dbus.ObjectPath]bool, error) {
	if watched[path] {
		return watched, nil
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember("Response"),
		dbus.WithMatchObjectPath(path),
	); err != nil {
		return nil, fmt.Errorf("failed to subscribe to the portal response: %w", err)
	}
	watched[path] = true
	return watched, nil
}

func awaitResponse(ctx context.Context, signals <-chan *dbus.Signal, watched map[dbus.ObjectPath]bool, timeout time.Duration) (map[string]dbus.Variant, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, errors.New("timed out waiting for the portal response")
		case sig, ok := <-signals:
			if !ok {
				return nil, errors.New("the session bus closed during the handshake")
			}
			if sig.Name != requestInterface+".Response" || !watched[sig.Path] {
				continue
			}
			return parseResponse(sig.Body)
		}
	}
}

func parseResponse(body []interface{}) (map[string]dbus.Variant, error) {
	if len(body) < 2 {
		return nil, errors.New("malformed portal response")
	}
	code, ok := body[0].(uint32)
	if !ok {
		return nil, errors.New("malformed portal response code")
	}
	switch code {
	case 0:
	case 1:
		return nil, errors.New("the portal request was cancelled")
	default:
		return nil, fmt.Errorf("the portal request failed with code %d", code)
	}
	results, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, errors.New("malformed portal response results")
	}
	return results, nil
}

// requestPath predicts where the portal emits the Response for a request
// token: the caller's unique name with ':' dropped and '.' rewritten to
// '_', followed by the token.
func requestPath(uniqueName, token string) dbus.ObjectPath {
	sender := strings.TrimPrefix(uniqueName, ":")
	sender = strings.ReplaceAll(sender, ".", "_")
	return dbus.ObjectPath("/org/freedesktop/portal/desktop/request/" + sender + "/" + token)
}

func newToken() string {
	return "pushtotalk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func sessionPathFromResults(results map[string]dbus.Variant) (dbus.ObjectPath, error) {
	variant, ok := results["session_handle"]
	if !ok {
		return "", errors.New("the portal response carries no session handle")
	}
	switch value := variant.Value().(type) {
	case string:
		return dbus.ObjectPath(value), nil
	case dbus.ObjectPath:
		return value, nil
	}
	return "", fmt.Errorf("unexpected session handle type %T", variant.Value())
}

func triggerFromResults(results map[string]dbus.Variant) string {
	variant, ok := results["shortcuts"]
	if !ok {
		return ""
	}
	return triggerFromShortcuts(variant.Value())
}

// triggerFromShortcuts digs the human-readable trigger for our shortcut
// out of an a(sa{sv}) shortcut list.
func triggerFromShortcuts(value interface{}) string {
	entries, ok := value.([][]interface{})
	if !ok {
		return ""
	}
	for _, entry := range entries {
		if len(entry) != 2 {
			continue
		}
		id, _ := entry[0].(string)
		if id != shortcutID {
			continue
		}
		props, ok := entry[1].(map[string]dbus.Variant)
		if !ok {
			continue
		}
		if trigger, ok := props["trigger_description"].Value().(string); ok {
			return trigger
		}
	}
	return ""
}

func pathFromBody(value interface{}) dbus.ObjectPath {
	switch v := value.(type) {
	case dbus.ObjectPath:
		return v
	case string:
		return dbus.ObjectPath(v)
	}
	return ""
}

// portalTrigger maps a combo like "ctrl+alt+insert" onto the XDG
// shortcuts notation the portal accepts as a binding hint.
func portalTrigger(combo string) string {
	parts := strings.Split(combo, "+")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		switch part {
		case "":
			continue
		case "ctrl", "control":
			out = append(out, "CTRL")
		case "shift":
			out = append(out, "SHIFT")
		case "alt":
			out = append(out, "ALT")
		case "super", "win", "meta":
			out = append(out, "LOGO")
		default:
			out = append(out, xkbName(part))
		}
	}
	return strings.Join(out, "+")
}

func xkbName(key string) string {
	switch key {
	case "insert":
		return "Insert"
	case "delete":
		return "Delete"
	case "home":
		return "Home"
	case "end":
		return "End"
	case "pageup":
		return "Prior"
	case "pagedown":
		return "Next"
	case "enter", "return":
		return "Return"
	case "escape", "esc":
		return "Escape"
	case "tab":
		return "Tab"
	case "space":
		return "space"
	case "backspace":
		return "BackSpace"
	case "pause":
		return "Pause"
	case "up":
		return "Up"
	case "down":
		return "Down"
	case "left":
		return "Left"
	case "right":
		return "Right"
	}
	if len(key) > 1 && key[0] == 'f' {
		if _, err := strconv.Atoi(key[1:]); err == nil {
			return strings.ToUpper(key)
		}
	}
	return key
}
