package telemetry

import (
	"encoding/json"
	"time"
)

// Status tags carried on every frame. Subscribers render outages from these
// instead of guessing from missing data.
const (
	StatusOK           = "OK"
	StatusDisconnected = "OBD_DISCONNECTED"
	StatusNoProtocol   = "OBD_NO_PROTOCOL"
	StatusQueryError   = "OBD_QUERY_ERROR"
)

// DTC is one diagnostic trouble code with its human-readable description.
type DTC struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

// Frame is one complete snapshot of all polled telemetry fields at a point
// in time. Sensor fields follow the <name> / <name>_unit pairing convention;
// a nil value means the sensor was unsupported, invalid or out of range this
// cycle. Frames are immutable once published: a new cycle builds a new frame
// rather than mutating the old one.
type Frame map[string]any

// New returns a frame carrying only the status envelope. The poller fills in
// sensor fields from its command registry.
func New(status string) Frame {
	return Frame{
		"timestamp":     time.Now().UTC().Format(time.RFC3339Nano),
		"mil_on":        false,
		"dtc_count":     0,
		"dtcs":          []DTC{},
		"status":        status,
		"error_details": nil,
	}
}

func (f Frame) Status() string {
	s, _ := f["status"].(string)
	return s
}

func (f Frame) SetError(status, details string) {
	f["status"] = status
	f["error_details"] = details
}

// Encode serializes the frame to its wire form.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Decode parses a wire-form frame back into a Frame.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f, nil
}
