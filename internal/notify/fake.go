package notify

import (
	"context"
	"sync"
)

// FakeNotifier records alerts for test assertions.
type FakeNotifier struct {
	mu     sync.Mutex
	alerts []Alert

	// Err, if set, will be returned by Notify.
	Err error
}

// Notify records alert.
func (f *FakeNotifier) Notify(_ context.Context, alert Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return f.Err
}

// Alerts returns a copy of the recorded alerts.
func (f *FakeNotifier) Alerts() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Alert(nil), f.alerts...)
}
