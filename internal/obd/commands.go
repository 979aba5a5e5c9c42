// Package obd defines the sensor command registry and the decoding of raw
// ELM327 replies into canonical readings: SAE J1979 mode 01 PIDs, mode 03
// trouble codes and mode 09 vehicle identification.
package obd

import (
	"time"

	"obd-go-gateway/internal/config"
)

// SensorCommand is an immutable descriptor of one pollable value: the wire
// request, the expected reply shape, the canonical unit and the plausible
// range. Values decoded outside [Min, Max] are rejected as invalid.
type SensorCommand struct {
	Name    string // registry name, used in config (disabled, ranges)
	Field   string // frame field name
	Request string // wire request, e.g. "010C"
	Unit    string
	Bytes   int // expected data bytes in the reply
	Min     float64
	Max     float64
	Decode  func(data []byte) float64
	Slow    bool // polled every Nth cycle instead of every cycle
}

// Reading is the outcome of polling one command in one cycle. Invalid
// readings keep their field in the frame with a null value.
type Reading struct {
	Name      string
	Field     string
	Value     float64
	Unit      string
	Valid     bool
	Timestamp time.Time
}

// mphPerKmh converts the adapter-reported km/h into the wire schema's mph.
const mphPerKmh = 0.621371

func a(data []byte) float64  { return float64(data[0]) }
func ab(data []byte) float64 { return float64(data[0])*256 + float64(data[1]) }

func percent(data []byte) float64  { return float64(data[0]) * 100 / 255 }
func tempC(data []byte) float64    { return float64(data[0]) - 40 }
func rpm(data []byte) float64      { return ab(data) / 4 }
func speedMph(data []byte) float64 { return a(data) * mphPerKmh }
func mafGs(data []byte) float64    { return ab(data) / 100 }
func voltage(data []byte) float64  { return ab(data) / 1000 }
func timingDeg(data []byte) float64 {
	return float64(data[0])/2 - 64
}

// Registry returns the polled command set in cycle order, with config
// overrides applied: disabled commands removed, range overrides folded in.
func Registry(cfg config.CommandConfig) []SensorCommand {
	disabled := make(map[string]bool, len(cfg.Disabled))
	for _, name := range cfg.Disabled {
		disabled[name] = true
	}

	cmds := make([]SensorCommand, 0, len(defaultRegistry))
	for _, cmd := range defaultRegistry {
		if disabled[cmd.Name] {
			continue
		}
		if r, ok := cfg.Ranges[cmd.Field]; ok {
			cmd.Min, cmd.Max = r.Min, r.Max
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

// defaultRegistry lists every supported PID. Cheap, fast-changing values
// come first and run every cycle; Slow commands run every Nth cycle to bound
// adapter load. Ranges are the physical limits of each PID's encoding.
var defaultRegistry = []SensorCommand{
	{Name: "RPM", Field: "rpm", Request: "010C", Unit: "rpm", Bytes: 2, Min: 0, Max: 16383.75, Decode: rpm},
	{Name: "SPEED", Field: "speed", Request: "010D", Unit: "mph", Bytes: 1, Min: 0, Max: 158.45, Decode: speedMph},
	{Name: "COOLANT_TEMP", Field: "coolant_temp", Request: "0105", Unit: "celsius", Bytes: 1, Min: -40, Max: 215, Decode: tempC},
	{Name: "THROTTLE_POS", Field: "throttle_pos", Request: "0111", Unit: "%", Bytes: 1, Min: 0, Max: 100, Decode: percent},
	{Name: "FUEL_LEVEL", Field: "fuel_level", Request: "012F", Unit: "%", Bytes: 1, Min: 0, Max: 100, Decode: percent},
	{Name: "ENGINE_LOAD", Field: "engine_load", Request: "0104", Unit: "%", Bytes: 1, Min: 0, Max: 100, Decode: percent},
	{Name: "INTAKE_TEMP", Field: "intake_temp", Request: "010F", Unit: "celsius", Bytes: 1, Min: -40, Max: 215, Decode: tempC},
	{Name: "MAF", Field: "maf", Request: "0110", Unit: "grams/sec", Bytes: 2, Min: 0, Max: 655.35, Decode: mafGs},
	{Name: "INTAKE_PRESSURE", Field: "manifold_pressure", Request: "010B", Unit: "kPa", Bytes: 1, Min: 0, Max: 255, Decode: a},
	{Name: "BAROMETRIC_PRESSURE", Field: "baro_pressure", Request: "0133", Unit: "kPa", Bytes: 1, Min: 0, Max: 255, Decode: a},
	{Name: "TIMING_ADVANCE", Field: "timing_advance", Request: "010E", Unit: "degrees", Bytes: 1, Min: -64, Max: 63.5, Decode: timingDeg},
	{Name: "RUN_TIME", Field: "runtime_since_engine_start", Request: "011F", Unit: "seconds", Bytes: 2, Min: 0, Max: 65535, Decode: ab},
	{Name: "CONTROL_MODULE_VOLTAGE", Field: "control_module_voltage", Request: "0142", Unit: "V", Bytes: 2, Min: 0, Max: 65.535, Decode: voltage},
	{Name: "AMBIANT_AIR_TEMP", Field: "ambient_air_temp", Request: "0146", Unit: "celsius", Bytes: 1, Min: -40, Max: 215, Decode: tempC},
	{Name: "OIL_TEMP", Field: "engine_oil_temp", Request: "015C", Unit: "celsius", Bytes: 1, Min: -40, Max: 215, Decode: tempC},
}
