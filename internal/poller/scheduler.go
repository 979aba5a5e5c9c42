// Package poller runs the polling scheduler and normalizer: on a fixed
// cadence it issues the registered sensor commands, converts replies into
// canonical units, validates ranges and assembles one telemetry frame per
// cycle. It is the single goroutine that owns the adapter connection and the
// only writer of the current frame.
package poller

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"obd-go-gateway/internal/config"
	"obd-go-gateway/internal/connection"
	"obd-go-gateway/internal/elm"
	"obd-go-gateway/internal/obd"
	"obd-go-gateway/internal/telemetry"
)

// Sink receives every published frame. Sinks must not block: the broadcast
// hub buffers internally, the others are in-memory.
type Sink interface {
	Publish(telemetry.Frame)
}

// Scheduler drives the connection manager and produces frames.
type Scheduler struct {
	cfg   *config.Config
	mgr   *connection.Manager
	cmds  []obd.SensorCommand
	store *telemetry.Store
	sinks []Sink
	log   *logrus.Logger

	cycle int
	slow  slowState
}

// slowState caches values from slow-cycle commands between refreshes so the
// frame stays complete on every cycle.
type slowState struct {
	haveStatus bool
	milOn      bool
	dtcCount   int
	dtcs       []telemetry.DTC
	vin        string
	vehicle    obd.VehicleInfo
}

func NewScheduler(cfg *config.Config, mgr *connection.Manager, store *telemetry.Store, log *logrus.Logger, sinks ...Sink) *Scheduler {
	return &Scheduler{
		cfg:   cfg,
		mgr:   mgr,
		cmds:  obd.Registry(cfg.Commands),
		store: store,
		sinks: sinks,
		log:   log,
	}
}

// Run loops until ctx is cancelled. While the connection is Ready or
// Degraded it polls at the configured interval; otherwise it emits
// disconnected frames at the reduced offline cadence and drives reconnect
// attempts as their backoff deadlines pass.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.mgr.Close()

	for {
		if ctx.Err() != nil {
			return
		}

		switch s.mgr.State() {
		case connection.Ready, connection.Degraded:
			frame, err := s.runCycle(ctx)
			if err != nil {
				// Transport died mid-cycle; surface the outage within this
				// polling interval rather than waiting for the next one.
				s.publish(s.offlineFrame())
				continue
			}
			s.publish(frame)
			if !sleep(ctx, s.cfg.Polling.Interval()) {
				return
			}

		default:
			next := s.mgr.NextAttempt()
			if next.IsZero() || !time.Now().Before(next) {
				s.mgr.Attempt(ctx) // failure is logged and rescheduled by the manager
				continue
			}
			s.publish(s.offlineFrame())
			wait := time.Until(next)
			if off := s.cfg.Polling.OfflineInterval(); wait > off {
				wait = off
			}
			if !sleep(ctx, wait) {
				return
			}
		}
	}
}

// runCycle polls every registered command once and assembles a frame. A
// transport-level failure aborts the cycle and returns an error; everything
// else (no data, timeouts, bad values) degrades to null fields.
func (s *Scheduler) runCycle(ctx context.Context) (telemetry.Frame, error) {
	client := s.mgr.Client()
	frame := s.baseFrame(telemetry.StatusOK)

	s.cycle++
	refreshSlow := s.cycle == 1 || (s.cfg.Polling.SlowEveryN > 0 && s.cycle%s.cfg.Polling.SlowEveryN == 0)

	var attempted, succeeded, timeouts int
	var lastQueryErr error

	for _, cmd := range s.cmds {
		attempted++
		value, err := s.query(ctx, client, cmd)
		switch {
		case err == nil:
			frame[cmd.Field] = round2(value)
			succeeded++
		case errors.Is(err, elm.ErrTimeout):
			timeouts++
			lastQueryErr = err
		case errors.Is(err, elm.ErrTransportClosed):
			s.mgr.Drop(err)
			return nil, err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			// no data, parse failure or out-of-range: field stays null
			lastQueryErr = err
		}
	}

	if refreshSlow {
		if err := s.refreshSlowCommands(ctx, client); err != nil {
			if errors.Is(err, elm.ErrTransportClosed) {
				s.mgr.Drop(err)
				return nil, err
			}
			timeouts++
			lastQueryErr = err
		}
	}
	s.foldSlowState(frame)
	s.deriveBoost(frame)

	if timeouts > 0 {
		s.mgr.MarkDegraded()
	} else {
		s.mgr.MarkReady()
	}
	if attempted > 0 && succeeded == 0 && lastQueryErr != nil {
		frame.SetError(telemetry.StatusQueryError, lastQueryErr.Error())
	}
	return frame, nil
}

// query issues one sensor command and normalizes the reply: decode, then
// range-validate. Out-of-range values are rejected, never forwarded.
func (s *Scheduler) query(ctx context.Context, client *elm.Client, cmd obd.SensorCommand) (float64, error) {
	reply, err := client.Query(ctx, cmd.Request)
	if err != nil {
		if errors.Is(err, elm.ErrNoData) {
			s.log.WithField("command", cmd.Name).Debug("no data")
		}
		return 0, err
	}

	data, err := obd.ParsePID(reply, cmd.Request, cmd.Bytes)
	if err != nil {
		s.log.WithFields(logrus.Fields{"command": cmd.Name, "reply": reply}).Warn("malformed reply")
		return 0, err
	}

	value := cmd.Decode(data)
	if value < cmd.Min || value > cmd.Max {
		s.log.WithFields(logrus.Fields{
			"command": cmd.Name,
			"value":   value,
			"min":     cmd.Min,
			"max":     cmd.Max,
		}).Warn("value out of plausible range, rejected")
		return 0, errors.New("obd: value out of range")
	}
	return value, nil
}

// refreshSlowCommands updates the cached MIL status, trouble codes and VIN.
// DTCs are only queried when the status reports the lamp on with stored
// codes, matching how a scan tool behaves.
func (s *Scheduler) refreshSlowCommands(ctx context.Context, client *elm.Client) error {
	reply, err := client.Query(ctx, "0101")
	if err != nil {
		return err
	}
	milOn, count, err := obd.ParseStatus(reply)
	if err != nil {
		return err
	}
	s.slow.haveStatus = true
	s.slow.milOn = milOn
	s.slow.dtcCount = count

	if milOn && count > 0 {
		if reply, err := client.Query(ctx, "03"); err == nil {
			if codes, err := obd.ParseDTCs(reply); err == nil {
				s.slow.dtcs = codes
			}
		} else if errors.Is(err, elm.ErrTransportClosed) {
			return err
		}
	} else {
		s.slow.dtcs = nil
	}

	if s.slow.vin == "" {
		if reply, err := client.Query(ctx, "0902"); err == nil {
			if vin, ok := obd.ParseVIN(reply); ok {
				s.slow.vin = vin
				s.slow.vehicle = obd.DecodeVIN(vin)
			}
		} else if errors.Is(err, elm.ErrTransportClosed) {
			return err
		}
	}
	return nil
}

func (s *Scheduler) foldSlowState(frame telemetry.Frame) {
	frame["mil_on"] = s.slow.milOn
	frame["dtc_count"] = s.slow.dtcCount
	if s.slow.dtcs != nil {
		frame["dtcs"] = s.slow.dtcs
	}
	if s.slow.vin != "" {
		frame["vin"] = s.slow.vin
		if s.slow.vehicle.Make != "" {
			frame["vehicle_make"] = s.slow.vehicle.Make
		}
		if s.slow.vehicle.Year != 0 {
			frame["vehicle_year"] = s.slow.vehicle.Year
		}
		if s.slow.vehicle.Country != "" {
			frame["vehicle_country"] = s.slow.vehicle.Country
		}
	}
}

// deriveBoost computes boost_pressure = manifold - barometric when both
// readings are present this cycle.
func (s *Scheduler) deriveBoost(frame telemetry.Frame) {
	manifold, mok := frame["manifold_pressure"].(float64)
	baro, bok := frame["baro_pressure"].(float64)
	if mok && bok {
		frame["boost_pressure"] = round2(manifold - baro)
	}
}

// baseFrame returns a frame with every enabled field present and null, so
// subscribers always see the full field set.
func (s *Scheduler) baseFrame(status string) telemetry.Frame {
	frame := telemetry.New(status)
	for _, cmd := range s.cmds {
		frame[cmd.Field] = nil
		frame[cmd.Field+"_unit"] = cmd.Unit
	}
	frame["boost_pressure"] = nil
	frame["boost_pressure_unit"] = "kPa"
	frame["vin"] = nil
	frame["vehicle_make"] = nil
	frame["vehicle_year"] = nil
	frame["vehicle_country"] = nil
	return frame
}

// offlineFrame is published while the adapter is unreachable: null values
// and a status telling subscribers why.
func (s *Scheduler) offlineFrame() telemetry.Frame {
	status := telemetry.StatusDisconnected
	if s.mgr.NoProtocol() {
		status = telemetry.StatusNoProtocol
	}
	frame := s.baseFrame(status)
	if details := s.mgr.LastError(); details != "" {
		frame["error_details"] = details
	}
	return frame
}

func (s *Scheduler) publish(frame telemetry.Frame) {
	s.store.Publish(frame)
	for _, sink := range s.sinks {
		sink.Publish(frame)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
