package x11

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.design/x/hotkey"
)

type combo struct {
	mods  []hotkey.Modifier
	key   hotkey.Key
	label string
}

// Alt is Mod1 and Super is Mod4 on X11.
var modifierByName = map[string]hotkey.Modifier{
	"ctrl":    hotkey.ModCtrl,
	"control": hotkey.ModCtrl,
	"shift":   hotkey.ModShift,
	"alt":     hotkey.Mod1,
	"super":   hotkey.Mod4,
	"win":     hotkey.Mod4,
	"meta":    hotkey.Mod4,
}

// X keysyms the upstream key table does not name.
const (
	keyInsert    hotkey.Key = 0xff63
	keyPause     hotkey.Key = 0xff13
	keyHome      hotkey.Key = 0xff50
	keyEnd       hotkey.Key = 0xff57
	keyPageUp    hotkey.Key = 0xff55
	keyPageDown  hotkey.Key = 0xff56
	keyBackspace hotkey.Key = 0xff08
)

var namedKeys = map[string]hotkey.Key{
	"space":     hotkey.KeySpace,
	"enter":     hotkey.KeyReturn,
	"return":    hotkey.KeyReturn,
	"escape":    hotkey.KeyEscape,
	"esc":       hotkey.KeyEscape,
	"tab":       hotkey.KeyTab,
	"delete":    hotkey.KeyDelete,
	"backspace": keyBackspace,
	"insert":    keyInsert,
	"pause":     keyPause,
	"home":      keyHome,
	"end":       keyEnd,
	"pageup":    keyPageUp,
	"pagedown":  keyPageDown,
	"up":        hotkey.KeyUp,
	"down":      hotkey.KeyDown,
	"left":      hotkey.KeyLeft,
	"right":     hotkey.KeyRight,
}

// parseCombo turns a combo like "ctrl+alt+insert" into the grab
// registration plus a canonical display label. Modifiers come first and
// exactly one non-modifier key ends the combo.
func parseCombo(raw string) (combo, error) {
	if strings.TrimSpace(raw) == "" {
		return combo{}, errors.New("hotkey combo is empty")
	}

	var mods []hotkey.Modifier
	var label []string
	var key hotkey.Key
	haveKey := false

	for _, part := range strings.Split(raw, "+") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			return combo{}, fmt.Errorf("hotkey combo %q has an empty part", raw)
		}
		if haveKey {
			return combo{}, fmt.Errorf("hotkey combo %q continues past its key", raw)
		}
		if mod, ok := modifierByName[part]; ok {
			mods = append(mods, mod)
			label = append(label, part)
			continue
		}
		parsed, err := keyByName(part)
		if err != nil {
			return combo{}, err
		}
		key = parsed
		haveKey = true
		label = append(label, part)
	}
	if !haveKey {
		return combo{}, fmt.Errorf("hotkey combo %q has no key", raw)
	}
	return combo{mods: mods, key: key, label: strings.Join(label, "+")}, nil
}

func keyByName(name string) (hotkey.Key, error) {
	if len(name) == 1 {
		r := rune(name[0])
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			// Letter and digit keysyms match their ASCII values.
			return hotkey.Key(r), nil
		}
	}
	if key, ok := namedKeys[name]; ok {
		return key, nil
	}
	if strings.HasPrefix(name, "f") {
		if n, err := strconv.Atoi(name[1:]); err == nil && n >= 1 && n <= 20 {
			return hotkey.KeyF1 + hotkey.Key(n-1), nil
		}
	}
	return 0, fmt.Errorf("unknown hotkey key %q", name)
}
