package moisture

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sweeney/drip-controller/internal/gpio"
)

func newSensors(levels ...gpio.Level) ([]gpio.Pin, []*gpio.FakePin) {
	pins := make([]gpio.Pin, len(levels))
	fakes := make([]*gpio.FakePin, len(levels))
	for i, l := range levels {
		fakes[i] = gpio.NewFakePin(l)
		pins[i] = fakes[i]
	}
	return pins, fakes
}

func TestSampleReadsDryAsHigh(t *testing.T) {
	power := gpio.NewFakePin(gpio.Low)
	sensors, _ := newSensors(gpio.High, gpio.Low, gpio.High, gpio.High, gpio.Low, gpio.High)
	s := NewSampler(power, sensors, zerolog.Nop(), WithTiming(0, 0))

	res, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []bool{true, false, true, true, false, true}
	for i := range want {
		if res.Snapshot[i] != want[i] {
			t.Errorf("pot %d: got dry=%v, want %v", i, res.Snapshot[i], want[i])
		}
	}
	if len(res.Failed) != 0 {
		t.Errorf("expected no failures, got %v", res.Failed)
	}

	writes := power.Writes()
	if len(writes) != 2 || writes[0] != gpio.High || writes[1] != gpio.Low {
		t.Errorf("expected power writes [HIGH LOW], got %v", writes)
	}
}

func TestSampleReadFailureAssumesDryAndPowersDown(t *testing.T) {
	power := gpio.NewFakePin(gpio.Low)
	sensors, fakes := newSensors(gpio.Low, gpio.Low, gpio.Low)
	fakes[1].ReadError = errors.New("bus fault")
	s := NewSampler(power, sensors, zerolog.Nop(), WithTiming(0, 0))

	res, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Snapshot[1] {
		t.Error("failed read should be reported dry")
	}
	if res.Snapshot[0] || res.Snapshot[2] {
		t.Error("healthy wet sensors should read wet")
	}
	if len(res.Failed) != 1 || res.Failed[0] != 1 {
		t.Errorf("expected Failed=[1], got %v", res.Failed)
	}
	if power.Level() != gpio.Low {
		t.Error("sense line left energized")
	}
}

func TestSampleCancelledPowersDown(t *testing.T) {
	power := gpio.NewFakePin(gpio.Low)
	sensors, _ := newSensors(gpio.High, gpio.High)
	s := NewSampler(power, sensors, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Sample(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if power.Level() != gpio.Low {
		t.Error("sense line left energized after cancellation")
	}
}

func TestSamplePowerFailure(t *testing.T) {
	power := gpio.NewFakePin(gpio.Low)
	power.WriteError = errors.New("line busy")
	sensors, _ := newSensors(gpio.High)
	s := NewSampler(power, sensors, zerolog.Nop(), WithTiming(0, 0))

	if _, err := s.Sample(context.Background()); err == nil {
		t.Fatal("expected error when the sense line cannot be energized")
	}
}
