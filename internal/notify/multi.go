package notify

import "context"

// Multi fans out alerts to multiple notifiers.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a notifier that dispatches to all non-nil notifiers.
// Typed-nil *Webhook values and Noop notifiers are dropped too.
func NewMulti(notifiers ...Notifier) *Multi {
	filtered := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		if w, ok := n.(*Webhook); ok && w == nil {
			continue
		}
		if _, ok := n.(*Noop); ok {
			continue
		}
		filtered = append(filtered, n)
	}
	return &Multi{notifiers: filtered}
}

// Notify implements Notifier and returns the first error.
func (m *Multi) Notify(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len returns the number of wrapped notifiers.
func (m *Multi) Len() int {
	return len(m.notifiers)
}
