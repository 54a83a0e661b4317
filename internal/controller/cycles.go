package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/drip-controller/internal/history"
	"github.com/sweeney/drip-controller/internal/mqtt"
	"github.com/sweeney/drip-controller/internal/notify"
	"github.com/sweeney/drip-controller/internal/safety"
	"github.com/sweeney/drip-controller/internal/status"
)

// RunCycle runs one cycle of kind c unless one is already in flight, in
// which case the tick is dropped and ErrBusy returned. Errors come back
// wrapped in a CycleError.
func (s *State) RunCycle(ctx context.Context, c Cycle) error {
	guard, ok := s.guards[c]
	if !ok {
		return fmt.Errorf("unknown cycle %q", c)
	}
	if !guard.TryLock() {
		s.logger.Warn().Str("cycle", string(c)).Msg("previous cycle still running, skipping tick")
		s.metrics.IncCycleSkipped(string(c))
		return wrapCycle(c, ErrBusy)
	}
	defer guard.Unlock()

	start := time.Now()
	err := s.dispatch(ctx, c)
	s.metrics.ObserveCycle(string(c), time.Since(start), err)
	if err != nil {
		s.logger.Error().Err(err).Str("cycle", string(c)).Msg("cycle failed")
	}
	return wrapCycle(c, err)
}

func (s *State) dispatch(ctx context.Context, c Cycle) error {
	switch c {
	case CycleIrrigation:
		_, err := s.IrrigationCycle(ctx)
		return err
	case CycleThermal:
		return s.ThermalCycle()
	case CycleSafety:
		s.SafetyCycle()
		return nil
	case CycleFlush:
		return s.Flush(ctx)
	case CycleHeartbeat:
		return s.Heartbeat()
	}
	return nil
}

// ThermalCycle runs the thermal controller once and mirrors its state.
func (s *State) ThermalCycle() error {
	st, err := s.thermal.Cycle()
	if err != nil {
		s.metrics.IncSensorError("climate")
		return fmt.Errorf("%w: %v", ErrSensorRead, err)
	}
	s.metrics.SetClimate(st.CoolingActive, st.LastTemperature, st.LastHumidity)
	if s.tracker != nil {
		s.tracker.UpdateThermal(st.CoolingActive, st.LastTemperature, st.LastHumidity)
	}
	return nil
}

// SafetyCycle checks the safety switches and mirrors the interlock state.
// Trips are reported through onSafetyTrip.
func (s *State) SafetyCycle() bool {
	tripped := s.interlock.Check()
	s.lastSafety.Store(s.now().UnixNano())
	st := s.interlock.State()
	s.metrics.SetSafetyActive(st.Active)
	if s.tracker != nil {
		s.tracker.UpdateSafety(st.Active, st.ReenableAt)
	}
	return tripped
}

// SafetyCheckedWithin reports whether the safety switches were read in
// the last d. Before the first check it measures from New.
func (s *State) SafetyCheckedWithin(d time.Duration) bool {
	return s.now().Sub(time.Unix(0, s.lastSafety.Load())) <= d
}

func (s *State) onSafetyTrip(trip safety.Trip) {
	s.metrics.IncSafetyTrip()
	if s.tracker != nil {
		s.tracker.IncSafetyTrips()
	}
	if s.publisher != nil {
		err := s.publisher.PublishSafety(mqtt.SafetyEvent{
			Timestamp:  trip.At,
			Unsafe:     trip.Unsafe,
			First:      trip.First,
			ReenableAt: trip.ReenableAt,
		})
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish safety event")
		}
	}
	if !trip.First {
		return
	}
	s.alert(notify.Alert{
		Kind:    notify.KindSafetyTrip,
		At:      trip.At,
		Summary: fmt.Sprintf("safety switch tripped, watering disabled until %s", trip.ReenableAt.UTC().Format(time.RFC3339)),
		Fields: []notify.Field{
			{Name: "unsafe_switches", Value: fmt.Sprint(trip.Unsafe)},
			{Name: "shutdowns_24h", Value: fmt.Sprint(s.shutdowns.CountSince(trip.At.Add(-24 * time.Hour)))},
		},
	})
}

// Flush saves both histories to the sink. A failure is logged and counted;
// the first failure after a success also raises an alert.
func (s *State) Flush(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	var errs []error
	if err := s.sink.Save(ctx, history.MoistureHistoryName, s.history.Entries()); err != nil {
		errs = append(errs, fmt.Errorf("save %s: %w", history.MoistureHistoryName, err))
	}
	if err := s.sink.Save(ctx, history.ShutdownLogName, s.shutdowns.Entries()); err != nil {
		errs = append(errs, fmt.Errorf("save %s: %w", history.ShutdownLogName, err))
	}
	err := errors.Join(errs...)

	s.flushMu.Lock()
	wasFailing := s.flushFailing
	s.flushFailing = err != nil
	s.flushMu.Unlock()

	if err == nil {
		if wasFailing {
			s.logger.Info().Msg("history flush recovered")
		}
		return nil
	}

	s.metrics.IncPersistError()
	s.logger.Error().Err(err).Msg("history flush failed")
	if !wasFailing {
		s.alert(notify.Alert{
			Kind:    notify.KindPersistenceFailed,
			At:      s.now(),
			Summary: "history flush failed",
			Fields:  []notify.Field{{Name: "error", Value: err.Error()}},
		})
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// Heartbeat publishes a retained status snapshot as a HEARTBEAT event.
func (s *State) Heartbeat() error {
	if s.publisher == nil || s.tracker == nil {
		return nil
	}
	snap := s.StatusSnapshot()
	return s.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
		Retained:   true,
	})
}

// StatusSnapshot refreshes the live fields of the tracker and returns its
// snapshot. The zero Snapshot is returned when no tracker is configured.
func (s *State) StatusSnapshot() status.Snapshot {
	if s.tracker == nil {
		return status.Snapshot{}
	}
	if s.connection != nil {
		s.tracker.SetMQTTConnected(s.connection.IsConnected())
	}
	if s.network != nil {
		s.tracker.SetNetwork(s.network())
	}
	st := s.interlock.State()
	s.tracker.UpdateSafety(st.Active, st.ReenableAt)
	return s.tracker.Snapshot()
}
