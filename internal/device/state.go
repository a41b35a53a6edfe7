// Package device keeps the simulated home state and applies extracted
// commands to it.
package device

// Canonical device keys, as the extractor is asked to produce them.
const (
	LivingRoomLight = "living_room_light"
	FrontDoor       = "front_door"
	FrontDoorLock   = "front_door_lock"
	Thermostat      = "thermostat"
)

// Thermostat set points outside this range are rejected.
const (
	MinTemperature = 40
	MaxTemperature = 100
)

type State struct {
	LivingRoomLight bool `json:"livingRoomLight"`
	FrontDoorLocked bool `json:"frontDoorLocked"`
	ThermostatTemp  int  `json:"thermostatTemp"`
}

// DefaultState is the state the daemon boots with.
func DefaultState() State {
	return State{
		LivingRoomLight: false,
		FrontDoorLocked: true,
		ThermostatTemp:  72,
	}
}

// Change records one applied command.
type Change struct {
	Device string `json:"device"`
	Action string `json:"action"`
	Value  int    `json:"value,omitempty"`
}
