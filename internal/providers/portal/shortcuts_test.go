package portal

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"

	"pushtotalk/internal/domain"
)

func TestRequestPathFollowsPortalAddressing(t *testing.T) {
	t.Parallel()

	got := requestPath(":1.42", "pushtotalk_abc")
	want := dbus.ObjectPath("/org/freedesktop/portal/desktop/request/1_42/pushtotalk_abc")
	if got != want {
		t.Fatalf("unexpected request path: %s", got)
	}
}

func TestNewTokenIsPathSafe(t *testing.T) {
	t.Parallel()

	token := newToken()
	if !strings.HasPrefix(token, "pushtotalk_") {
		t.Fatalf("unexpected token prefix: %q", token)
	}
	if strings.Contains(token, "-") {
		t.Fatalf("token must not contain dashes: %q", token)
	}
}

func TestParseResponseSuccess(t *testing.T) {
	t.Parallel()

	results, err := parseResponse([]interface{}{
		uint32(0),
		map[string]dbus.Variant{"session_handle": dbus.MakeVariant("/s1")},
	})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, ok := results["session_handle"]; !ok {
		t.Fatalf("results lost the session handle: %v", results)
	}
}

func TestParseResponseRejectsCancellationAndFailure(t *testing.T) {
	t.Parallel()

	if _, err := parseResponse([]interface{}{uint32(1), map[string]dbus.Variant{}}); err == nil {
		t.Fatalf("expected cancellation to fail")
	}
	if _, err := parseResponse([]interface{}{uint32(2), map[string]dbus.Variant{}}); err == nil {
		t.Fatalf("expected failure code to fail")
	}
	if _, err := parseResponse([]interface{}{uint32(0)}); err == nil {
		t.Fatalf("expected short body to fail")
	}
}

func TestSessionPathFromResults(t *testing.T) {
	t.Parallel()

	fromString, err := sessionPathFromResults(map[string]dbus.Variant{
		"session_handle": dbus.MakeVariant("/org/fdo/session/s1"),
	})
	if err != nil || fromString != "/org/fdo/session/s1" {
		t.Fatalf("unexpected string handle result: %s err=%v", fromString, err)
	}

	fromPath, err := sessionPathFromResults(map[string]dbus.Variant{
		"session_handle": dbus.MakeVariant(dbus.ObjectPath("/org/fdo/session/s2")),
	})
	if err != nil || fromPath != "/org/fdo/session/s2" {
		t.Fatalf("unexpected object path handle result: %s err=%v", fromPath, err)
	}

	if _, err := sessionPathFromResults(map[string]dbus.Variant{}); err == nil {
		t.Fatalf("expected missing handle to fail")
	}
}

func TestTriggerFromShortcutsFindsOurBinding(t *testing.T) {
	t.Parallel()

	shortcuts := [][]interface{}{
		{"other", map[string]dbus.Variant{"trigger_description": dbus.MakeVariant("CTRL+O")}},
		{"push-to-talk", map[string]dbus.Variant{"trigger_description": dbus.MakeVariant("INS")}},
	}
	if got := triggerFromShortcuts(shortcuts); got != "INS" {
		t.Fatalf("unexpected trigger: %q", got)
	}
	if got := triggerFromShortcuts("not-a-list"); got != "" {
		t.Fatalf("expected empty trigger for junk, got %q", got)
	}
	if got := triggerFromShortcuts([][]interface{}{{"push-to-talk", map[string]dbus.Variant{}}}); got != "" {
		t.Fatalf("expected empty trigger when the portal gave none, got %q", got)
	}
}

func TestPortalTriggerNotation(t *testing.T) {
	t.Parallel()

	if got := portalTrigger("ctrl+alt+insert"); got != "CTRL+ALT+Insert" {
		t.Fatalf("unexpected trigger: %q", got)
	}
	if got := portalTrigger("super+f13"); got != "LOGO+F13" {
		t.Fatalf("unexpected trigger: %q", got)
	}
	if got := portalTrigger("space"); got != "space" {
		t.Fatalf("unexpected trigger: %q", got)
	}
	if got := portalTrigger(""); got != "" {
		t.Fatalf("expected empty trigger, got %q", got)
	}
}

func TestHandleEmitsEdgesForOwnSession(t *testing.T) {
	t.Parallel()

	session := newTestSession(t)

	if terminal := session.handle(activationSignal("Activated", "/org/fdo/session/s1", "push-to-talk")); terminal {
		t.Fatalf("activation must not end the session")
	}
	if terminal := session.handle(activationSignal("Deactivated", "/org/fdo/session/s1", "push-to-talk")); terminal {
		t.Fatalf("deactivation must not end the session")
	}

	if edge := <-session.edges; edge != domain.KeyEdgePressed {
		t.Fatalf("expected pressed, got %q", edge)
	}
	if edge := <-session.edges; edge != domain.KeyEdgeReleased {
		t.Fatalf("expected released, got %q", edge)
	}
}

func TestHandleIgnoresForeignSessionsAndShortcuts(t *testing.T) {
	t.Parallel()

	session := newTestSession(t)

	session.handle(activationSignal("Activated", "/org/fdo/session/other", "push-to-talk"))
	session.handle(activationSignal("Activated", "/org/fdo/session/s1", "screenshot"))

	select {
	case edge := <-session.edges:
		t.Fatalf("unexpected edge %q", edge)
	default:
	}
}

func TestHandleSessionClosedIsTerminal(t *testing.T) {
	t.Parallel()

	var latched error
	session := newTestSession(t)
	session.setErr = func(err error) { latched = err }

	terminal := session.handle(&dbus.Signal{
		Name: sessionInterface + ".Closed",
		Path: "/org/fdo/session/s1",
	})
	if !terminal {
		t.Fatalf("expected session close to be terminal")
	}
	if !errors.Is(latched, domain.ErrSessionLost) {
		t.Fatalf("expected a session loss error, got %v", latched)
	}
}

func TestHandleShortcutsChangedUpdatesTrigger(t *testing.T) {
	t.Parallel()

	var seen string
	session := newTestSession(t)
	session.onTrigger = func(trigger string) { seen = trigger }

	session.handle(&dbus.Signal{
		Name: shortcutsInterface + ".ShortcutsChanged",
		Path: portalObjectPath,
		Body: []interface{}{
			dbus.ObjectPath("/org/fdo/session/s1"),
			[][]interface{}{
				{"push-to-talk", map[string]dbus.Variant{"trigger_description": dbus.MakeVariant("F9")}},
			},
		},
	})
	if seen != "F9" {
		t.Fatalf("expected the new trigger to be observed, got %q", seen)
	}
}

func newTestSession(t *testing.T) *portalSession {
	t.Helper()
	return &portalSession{
		edges:       make(chan domain.KeyEdge, 4),
		sessionPath: "/org/fdo/session/s1",
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		setErr:      func(error) {},
		onTrigger:   func(string) {},
		stop:        make(chan struct{}),
	}
}

func activationSignal(member string, session dbus.ObjectPath, id string) *dbus.Signal {
	return &dbus.Signal{
		Name: shortcutsInterface + "." + member,
		Path: portalObjectPath,
		Body: []interface{}{session, id, uint64(0), map[string]dbus.Variant{}},
	}
}
