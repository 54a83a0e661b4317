package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/drip-controller/internal/gpio"
	"github.com/sweeney/drip-controller/internal/history"
	"github.com/sweeney/drip-controller/internal/mqtt"
	"github.com/sweeney/drip-controller/internal/notify"
	"github.com/sweeney/drip-controller/internal/status"
	"github.com/sweeney/drip-controller/internal/watering"
)

// Skip reasons for a pot that was not watered.
const (
	ReasonWet         = "wet"
	ReasonTankEmpty   = "tank_empty"
	ReasonDailyLimit  = "daily_limit"
	ReasonInterlocked = "interlocked"
)

// OutcomeSkipped marks a pot the cycle decided not to water.
const OutcomeSkipped = "SKIPPED"

// PotReport is one pot's turn in an irrigation cycle.
type PotReport struct {
	Pot        int
	Dry        bool
	DailyCount int
	Outcome    string
	Reason     string
	Refill     *watering.Result
	Fill       *watering.Result
}

// Watered reports whether a fill was attempted.
func (p PotReport) Watered() bool {
	return p.Fill != nil
}

// Report summarizes one irrigation cycle. Skipped is true when the cycle
// ran outside the irrigation window and did nothing.
type Report struct {
	CycleID     string
	At          time.Time
	Skipped     bool
	Snapshot    history.MoistureSnapshot
	DailyCounts []int
	TankEmpty   bool
	Pots        []PotReport
}

// WateredPots returns the indices of pots that got a fill attempt.
func (r *Report) WateredPots() []int {
	var out []int
	for _, p := range r.Pots {
		if p.Watered() {
			out = append(out, p.Pot)
		}
	}
	return out
}

// IrrigationCycle samples moisture and waters each dry pot that is under
// its daily limit, then records the snapshot. Sensor failures are worst
// cased and reported through the returned error alongside the report.
func (s *State) IrrigationCycle(ctx context.Context) (*Report, error) {
	at := s.now()
	if !s.InWindow(at) {
		s.logger.Info().
			Int("local_hour", history.LocalHour(at)).
			Int("window_start", s.cfg.WindowStartHour).
			Int("window_end", s.cfg.WindowEndHour).
			Msg("outside irrigation window, skipping")
		return &Report{At: at, Skipped: true}, nil
	}

	report := &Report{CycleID: s.newID(), At: at}
	logger := s.logger.With().Str("cycle_id", report.CycleID).Logger()
	logger.Info().Msg("irrigation cycle started")

	var errs []error
	sample, err := s.sampler.Sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("sample moisture: %w", err)
	}
	for _, pot := range sample.Failed {
		s.metrics.IncSensorError(fmt.Sprintf("moisture_%d", pot))
	}
	if len(sample.Failed) > 0 {
		errs = append(errs, fmt.Errorf("%w: moisture pots %v", ErrSensorRead, sample.Failed))
	}
	report.Snapshot = sample.Snapshot

	report.TankEmpty, err = s.tankEmpty()
	if err != nil {
		logger.Warn().Err(err).Msg("tank level read failed, assuming empty")
		s.metrics.IncSensorError("tank_level")
		errs = append(errs, fmt.Errorf("%w: tank level: %v", ErrSensorRead, err))
	}

	report.DailyCounts = s.history.DailyCounts(at)
	report.Pots = make([]PotReport, len(report.Snapshot))
	for pot, dry := range report.Snapshot {
		pr := s.waterPot(ctx, report, pot, dry)
		report.Pots[pot] = pr
		if pr.Outcome == string(watering.OutcomeTimedOut) || (pr.Refill != nil && pr.Refill.Outcome == watering.OutcomeTimedOut) {
			errs = append(errs, fmt.Errorf("%w: pot %d", ErrActuationTimeout, pot))
		}
		if pr.Outcome == string(watering.OutcomeInterlocked) {
			errs = append(errs, fmt.Errorf("%w: pot %d", ErrInterlocked, pot))
		}
		if ctx.Err() != nil {
			break
		}
	}

	s.history.Record(at, report.Snapshot)
	s.report(report)

	logger.Info().
		Ints("watered", report.WateredPots()).
		Int("dry", report.Snapshot.DryCount()).
		Bool("tank_empty", report.TankEmpty).
		Msg("irrigation cycle finished")
	return report, errors.Join(errs...)
}

// tankEmpty reads the main tank level. Low means empty; a failed read is
// treated as empty.
func (s *State) tankEmpty() (bool, error) {
	level, err := s.hw.TankLevel.Read()
	if err != nil {
		return true, err
	}
	return level == gpio.Low, nil
}

func (s *State) waterPot(ctx context.Context, report *Report, pot int, dry bool) PotReport {
	pr := PotReport{Pot: pot, Dry: dry, DailyCount: report.DailyCounts[pot]}
	logger := s.logger.With().Str("cycle_id", report.CycleID).Int("pot", pot).Logger()

	skip := func(reason string) PotReport {
		pr.Outcome = OutcomeSkipped
		pr.Reason = reason
		logger.Info().Str("reason", reason).Int("daily_count", pr.DailyCount).Msg("pot skipped")
		return pr
	}

	switch {
	case ctx.Err() != nil:
		pr.Outcome = string(watering.OutcomeFailed)
		pr.Reason = ctx.Err().Error()
		return pr
	case !dry:
		return skip(ReasonWet)
	case report.TankEmpty:
		return skip(ReasonTankEmpty)
	case pr.DailyCount >= s.cfg.DayIrrigationLimit:
		return skip(ReasonDailyLimit)
	case s.interlock.Active():
		return skip(ReasonInterlocked)
	}

	refill := s.actuator.RefillTank(ctx)
	pr.Refill = &refill
	s.metrics.IncTankRefill(string(refill.Outcome))
	switch refill.Outcome {
	case watering.OutcomeInterlocked:
		pr.Outcome = string(refill.Outcome)
		pr.Reason = ReasonInterlocked
		return pr
	case watering.OutcomeFailed:
		pr.Outcome = string(refill.Outcome)
		pr.Reason = "refill failed"
		return pr
	case watering.OutcomeTimedOut:
		s.alertTimeout(report, pot, "tank refill", refill)
	}

	fill := s.actuator.FillPot(ctx, pot)
	pr.Fill = &fill
	pr.Outcome = string(fill.Outcome)
	if fill.Outcome == watering.OutcomeTimedOut {
		s.alertTimeout(report, pot, "pot fill", fill)
	}
	return pr
}

func (s *State) alertTimeout(report *Report, pot int, what string, res watering.Result) {
	s.alert(notify.Alert{
		Kind:    notify.KindActuationTimeout,
		At:      s.now(),
		Summary: fmt.Sprintf("%s for pot %d timed out after %s", what, pot, res.Duration.Round(time.Millisecond)),
		Fields: []notify.Field{
			{Name: "cycle_id", Value: report.CycleID},
			{Name: "pot", Value: fmt.Sprint(pot)},
			{Name: "ticks", Value: fmt.Sprint(res.Ticks)},
		},
	})
}

// report fans one cycle's outcome out to telemetry, metrics and status.
func (s *State) report(r *Report) {
	pots := make([]status.PotStatus, len(r.Pots))
	for i, p := range r.Pots {
		pots[i] = status.PotStatus{
			Pot:         p.Pot,
			Dry:         p.Dry,
			DailyCount:  p.DailyCount,
			LastOutcome: p.Outcome,
			LastReason:  p.Reason,
		}
		if p.Fill != nil && p.Fill.Outcome == watering.OutcomeFull {
			at := r.At
			pots[i].LastWatered = &at
		}
		s.metrics.IncPotOutcome(p.Pot, p.Outcome)

		if s.publisher == nil {
			continue
		}
		event := mqtt.WateringEvent{
			Timestamp: r.At,
			CycleID:   r.CycleID,
			Pot:       p.Pot,
			Outcome:   p.Outcome,
			Reason:    p.Reason,
		}
		if p.Refill != nil {
			event.Refill = string(p.Refill.Outcome)
		}
		if p.Fill != nil {
			event.Duration = p.Fill.Duration
		}
		if err := s.publisher.PublishWatering(event); err != nil {
			s.logger.Warn().Err(err).Int("pot", p.Pot).Msg("failed to publish watering event")
		}
	}

	s.metrics.SetMoisture(r.Snapshot, r.DailyCounts)
	s.metrics.SetLastIrrigation(r.At)
	if s.tracker != nil {
		s.tracker.UpdateIrrigation(r.At, r.CycleID, r.TankEmpty, pots)
	}
}
