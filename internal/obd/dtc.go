package obd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"obd-go-gateway/internal/telemetry"
)

// ParseStatus decodes the mode 01 PID 01 reply: MIL lamp state and the
// number of stored trouble codes.
func ParseStatus(reply string) (milOn bool, dtcCount int, err error) {
	data, err := ParsePID(reply, "0101", 1)
	if err != nil {
		return false, 0, err
	}
	return data[0]&0x80 != 0, int(data[0] & 0x7F), nil
}

// ParseDTCs decodes a mode 03 reply into trouble codes. Codes come two bytes
// each after the 43 echo; CAN replies carry an extra count byte which is
// detected by the resulting odd byte count. All-zero pairs are padding.
func ParseDTCs(reply string) ([]telemetry.DTC, error) {
	var codes []telemetry.DTC
	for _, line := range strings.Split(reply, "\n") {
		h := hexOnly(line)
		i := strings.Index(h, "43")
		if i != 0 {
			continue
		}
		payload, err := hex.DecodeString(h[2:])
		if err != nil {
			return nil, fmt.Errorf("obd: bad mode 03 payload %q", line)
		}
		if len(payload)%2 == 1 {
			payload = payload[1:] // CAN count byte
		}
		for j := 0; j+1 < len(payload); j += 2 {
			if payload[j] == 0 && payload[j+1] == 0 {
				continue
			}
			code := decodeDTC(payload[j], payload[j+1])
			codes = append(codes, telemetry.DTC{Code: code, Desc: describeDTC(code)})
		}
	}
	return codes, nil
}

// decodeDTC turns a two-byte trouble code into its standard string form:
// system letter from the top two bits, then four digits.
func decodeDTC(b1, b2 byte) string {
	letters := [4]byte{'P', 'C', 'B', 'U'}
	return fmt.Sprintf("%c%d%d%02X",
		letters[b1>>6],
		(b1>>4)&0x03,
		b1&0x0F,
		b2)
}

// describeDTC returns the description for a known code, or a generic
// subsystem description derived from the code's prefix.
func describeDTC(code string) string {
	if desc, ok := dtcDescriptions[code]; ok {
		return desc
	}
	switch {
	case strings.HasPrefix(code, "P0"):
		return "Generic powertrain fault"
	case strings.HasPrefix(code, "P"):
		return "Manufacturer-specific powertrain fault"
	case strings.HasPrefix(code, "C"):
		return "Chassis fault"
	case strings.HasPrefix(code, "B"):
		return "Body fault"
	case strings.HasPrefix(code, "U"):
		return "Network fault"
	}
	return "Unknown fault"
}

var dtcDescriptions = map[string]string{
	"P0100": "Mass or Volume Air Flow Circuit Malfunction",
	"P0101": "Mass or Volume Air Flow Circuit Range/Performance Problem",
	"P0102": "Mass or Volume Air Flow Circuit Low Input",
	"P0103": "Mass or Volume Air Flow Circuit High Input",
	"P0110": "Intake Air Temperature Circuit Malfunction",
	"P0113": "Intake Air Temperature Circuit High Input",
	"P0115": "Engine Coolant Temperature Circuit Malfunction",
	"P0116": "Engine Coolant Temperature Circuit Range/Performance Problem",
	"P0117": "Engine Coolant Temperature Circuit Low Input",
	"P0118": "Engine Coolant Temperature Circuit High Input",
	"P0120": "Throttle Position Sensor/Switch A Circuit Malfunction",
	"P0121": "Throttle Position Sensor/Switch A Circuit Range/Performance Problem",
	"P0125": "Insufficient Coolant Temperature for Closed Loop Fuel Control",
	"P0128": "Coolant Thermostat Temperature Below Regulating Temperature",
	"P0130": "O2 Sensor Circuit Malfunction (Bank 1 Sensor 1)",
	"P0131": "O2 Sensor Circuit Low Voltage (Bank 1 Sensor 1)",
	"P0133": "O2 Sensor Circuit Slow Response (Bank 1 Sensor 1)",
	"P0135": "O2 Sensor Heater Circuit Malfunction (Bank 1 Sensor 1)",
	"P0141": "O2 Sensor Heater Circuit Malfunction (Bank 1 Sensor 2)",
	"P0171": "System Too Lean (Bank 1)",
	"P0172": "System Too Rich (Bank 1)",
	"P0174": "System Too Lean (Bank 2)",
	"P0175": "System Too Rich (Bank 2)",
	"P0200": "Injector Circuit Malfunction",
	"P0300": "Random/Multiple Cylinder Misfire Detected",
	"P0301": "Cylinder 1 Misfire Detected",
	"P0302": "Cylinder 2 Misfire Detected",
	"P0303": "Cylinder 3 Misfire Detected",
	"P0304": "Cylinder 4 Misfire Detected",
	"P0305": "Cylinder 5 Misfire Detected",
	"P0306": "Cylinder 6 Misfire Detected",
	"P0325": "Knock Sensor 1 Circuit Malfunction (Bank 1)",
	"P0335": "Crankshaft Position Sensor A Circuit Malfunction",
	"P0340": "Camshaft Position Sensor Circuit Malfunction",
	"P0401": "Exhaust Gas Recirculation Flow Insufficient Detected",
	"P0402": "Exhaust Gas Recirculation Flow Excessive Detected",
	"P0420": "Catalyst System Efficiency Below Threshold (Bank 1)",
	"P0430": "Catalyst System Efficiency Below Threshold (Bank 2)",
	"P0440": "Evaporative Emission Control System Malfunction",
	"P0442": "Evaporative Emission Control System Leak Detected (Small Leak)",
	"P0455": "Evaporative Emission Control System Leak Detected (Gross Leak)",
	"P0500": "Vehicle Speed Sensor Malfunction",
	"P0505": "Idle Control System Malfunction",
	"P0562": "System Voltage Low",
	"P0563": "System Voltage High",
	"P0600": "Serial Communication Link Malfunction",
	"P0601": "Internal Control Module Memory Check Sum Error",
	"P0700": "Transmission Control System Malfunction",
	"P0705": "Transmission Range Sensor Circuit Malfunction",
	"U0100": "Lost Communication With ECM/PCM",
	"U0101": "Lost Communication With TCM",
}
