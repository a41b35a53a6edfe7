package device

import (
	"fmt"
	log "log/slog"
	"math"
	"slices"
	"strings"
	"sync"

	"homevox/internal/command"
)

// Result is what one Execute call did.
type Result struct {
	Summary string
	Changes []Change
	State   State
}

// Executor owns the device state. Matching of commands to devices is loose:
// the device parameter is free text from the language model.
type Executor struct {
	mu       sync.Mutex
	state    State
	onChange []func(State, []Change)
}

func NewExecutor(initial State) *Executor {
	return &Executor{state: initial}
}

// OnChange registers fn to be called after every Execute that changed
// something.
func (e *Executor) OnChange(fn func(State, []Change)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = append(e.onChange, fn)
}

func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Execute applies cmds in order; when two commands hit the same device the
// later one wins. Commands that match no device are skipped.
func (e *Executor) Execute(cmds []command.Command) Result {
	e.mu.Lock()

	var changes []Change
	for _, c := range cmds {
		applied := e.apply(c)
		if len(applied) == 0 {
			log.Debug("Command matched no device", "action", c.Action, "params", c.Parameters)
			continue
		}
		changes = append(changes, applied...)
	}

	state := e.state
	observers := slices.Clone(e.onChange)
	e.mu.Unlock()

	if len(changes) > 0 {
		for _, fn := range observers {
			fn(state, changes)
		}
	}

	return Result{
		Summary: summarize(cmds),
		Changes: changes,
		State:   state,
	}
}

func (e *Executor) apply(c command.Command) []Change {
	action := command.NormalizeAction(c.Action)
	dev := strings.ToLower(strings.TrimSpace(c.Text("device")))

	var changes []Change

	if isLight(dev) {
		switch action {
		case command.TurnOn:
			e.state.LivingRoomLight = true
			changes = append(changes, Change{Device: LivingRoomLight, Action: action})
		case command.TurnOff:
			e.state.LivingRoomLight = false
			changes = append(changes, Change{Device: LivingRoomLight, Action: action})
		}
	}

	if isDoor(dev) {
		switch action {
		case command.Lock:
			e.state.FrontDoorLocked = true
			changes = append(changes, Change{Device: FrontDoor, Action: action})
		case command.Unlock:
			e.state.FrontDoorLocked = false
			changes = append(changes, Change{Device: FrontDoor, Action: action})
		}
	}

	// SET_TEMPERATURE alone is enough to address the thermostat.
	if dev == Thermostat || action == command.SetTemperature {
		if temp, ok := temperature(c); ok {
			e.state.ThermostatTemp = temp
			changes = append(changes, Change{Device: Thermostat, Action: command.SetTemperature, Value: temp})
		}
	}

	return changes
}

func isLight(dev string) bool {
	if dev == LivingRoomLight {
		return true
	}
	return strings.Contains(dev, "living") &&
		(strings.Contains(dev, "light") || strings.Contains(dev, "lamp"))
}

func isDoor(dev string) bool {
	if dev == FrontDoor || dev == FrontDoorLock {
		return true
	}
	return strings.Contains(dev, "front") &&
		(strings.Contains(dev, "door") || strings.Contains(dev, "lock"))
}

func temperature(c command.Command) (int, bool) {
	for _, key := range []string{"temperature", "value"} {
		v, ok := c.Param(key)
		if !ok {
			continue
		}
		n, ok := command.Number(v)
		if !ok {
			continue
		}
		if math.IsNaN(n) || n < MinTemperature || n > MaxTemperature {
			log.Warn("Thermostat value out of range", "value", v)
			return 0, false
		}
		return int(math.Round(n)), true
	}
	return 0, false
}

func summarize(cmds []command.Command) string {
	if len(cmds) == 1 && strings.TrimSpace(cmds[0].Summary) != "" {
		return strings.TrimSpace(cmds[0].Summary)
	}
	if len(cmds) == 1 {
		return "Executed 1 command"
	}
	return fmt.Sprintf("Executed %d commands", len(cmds))
}
