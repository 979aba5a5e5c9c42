// Package alerting watches published frames for fault transitions and pushes
// alert messages to subscribers alongside the telemetry stream. Frames go
// out bare for wire-schema compatibility; alerts use a typed envelope.
package alerting

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"obd-go-gateway/internal/telemetry"
)

// Alert is the envelope broadcast when the MIL lamp turns on or a new
// trouble code appears.
type Alert struct {
	Type      string    `json:"type"` // always "alert"
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
}

// Broadcaster is the hub surface the alerter needs.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Alerter tracks MIL state and the known trouble-code set between frames.
// It is called from the scheduler goroutine only.
type Alerter struct {
	hub Broadcaster
	log *logrus.Logger

	milOn bool
	known map[string]bool
}

func NewAlerter(hub Broadcaster, log *logrus.Logger) *Alerter {
	return &Alerter{hub: hub, log: log, known: make(map[string]bool)}
}

// Publish implements the poller sink: inspect each frame, alert on rising
// edges. Non-OK frames are skipped so outages don't read as cleared codes.
func (a *Alerter) Publish(frame telemetry.Frame) {
	if frame.Status() != telemetry.StatusOK {
		return
	}

	milOn, _ := frame["mil_on"].(bool)
	if milOn && !a.milOn {
		a.send(Alert{
			Type:      "alert",
			Timestamp: time.Now().UTC(),
			Severity:  "CRITICAL",
			Message:   "Malfunction indicator lamp is on",
		})
	}
	a.milOn = milOn

	codes, _ := frame["dtcs"].([]telemetry.DTC)
	current := make(map[string]bool, len(codes))
	for _, dtc := range codes {
		current[dtc.Code] = true
		if !a.known[dtc.Code] {
			a.send(Alert{
				Type:      "alert",
				Timestamp: time.Now().UTC(),
				Severity:  "WARN",
				Message:   dtc.Desc,
				Code:      dtc.Code,
			})
		}
	}
	// Codes that disappeared were cleared; forget them so a recurrence
	// alerts again.
	a.known = current
}

func (a *Alerter) send(alert Alert) {
	msg, err := json.Marshal(alert)
	if err != nil {
		a.log.WithError(err).Error("alert encode failed")
		return
	}
	a.log.WithFields(logrus.Fields{"code": alert.Code, "severity": alert.Severity}).Warn(alert.Message)
	a.hub.Broadcast(msg)
}
