// Package command holds the structured actions extracted from user speech.
package command

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"homevox/pkg/util"
)

// Preferred action keys. The extractor may return others for requests
// outside the home domain.
const (
	TurnOn         = "TURN_ON"
	TurnOff        = "TURN_OFF"
	Lock           = "LOCK"
	Unlock         = "UNLOCK"
	SetTemperature = "SET_TEMPERATURE"
)

// Command is one extracted action. Commands are never mutated after
// creation; a later turn replaces the whole list.
type Command struct {
	Summary     string         `json:"summary"`
	Action      string         `json:"action"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	MissingInfo string         `json:"missingInfo,omitempty"`
}

// NormalizeAction upper-cases an action key and joins words with underscores,
// so "set temperature" and "SET_TEMPERATURE" compare equal.
func NormalizeAction(action string) string {
	a := strings.ToUpper(strings.TrimSpace(action))
	a = strings.NewReplacer(" ", "_", "-", "_").Replace(a)
	return a
}

// Param returns the raw parameter value.
func (c Command) Param(key string) (any, bool) {
	v, ok := c.Parameters[key]
	return v, ok
}

// Text returns the parameter formatted as text, or "" when absent.
func (c Command) Text(key string) string {
	v, ok := c.Parameters[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Clone returns a copy whose parameter map is not shared with c.
func (c Command) Clone() Command {
	out := c
	if c.Parameters != nil {
		out.Parameters = make(map[string]any, len(c.Parameters))
		for k, v := range c.Parameters {
			out.Parameters[k] = v
		}
	}
	return out
}

// CloneAll copies a command list. A nil list stays nil.
func CloneAll(cmds []Command) []Command {
	if cmds == nil {
		return nil
	}
	out := make([]Command, len(cmds))
	for i, c := range cmds {
		out[i] = c.Clone()
	}
	return out
}

// Coerce turns a textual parameter value into a bool, a float64 or leaves it
// as a string.
func Coerce(raw string) any {
	s := strings.TrimSpace(raw)

	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}

	return s
}

// Number reports v as a float64 if it is numeric or numeric text.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Key is the identity of a command for comparison: its normalized action and
// its parameters sorted by key, each part quoted. Summary and MissingInfo do
// not take part.
func Key(c Command) string {
	keys := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(NormalizeAction(c.Action))
	for _, k := range keys {
		fmt.Fprintf(&b, "|%q=%q", k, fmt.Sprint(c.Parameters[k]))
	}
	return b.String()
}

// Equal reports whether two command lists carry the same actions and
// parameters, regardless of list order and parameter key order.
func Equal(a, b []Command) bool {
	return util.EqualSlices(a, b, Key, true)
}
