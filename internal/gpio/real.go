//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealChip configures lines on actual hardware using the Linux GPIO character device.
type RealChip struct {
	chip *gpiocdev.Chip

	mu    sync.Mutex
	lines []*gpiocdev.Line
}

// NewRealChip opens the named GPIO chip (e.g. "gpiochip0").
func NewRealChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealChip{chip: chip}, nil
}

// Input requests an input line with edge detection on both edges.
// Edge events are always delivered by the kernel; realPin filters them
// against the currently watched edge.
func (c *RealChip) Input(offset int, debounce time.Duration) (Pin, error) {
	p := &realPin{offset: offset, input: true}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(p.dispatch),
	}
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(debounce))
	}

	line, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", offset, err)
	}
	p.line = line
	c.track(line)
	return p, nil
}

// Output requests an output line driven to initial.
func (c *RealChip) Output(offset int, initial Level) (Pin, error) {
	line, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(int(initial)))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", offset, err)
	}
	c.track(line)
	return &realPin{offset: offset, line: line}, nil
}

func (c *RealChip) track(line *gpiocdev.Line) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

// Close releases all requested lines and the chip.
// Output levels are left as the caller last drove them; the controller
// forces pumps off before closing.
func (c *RealChip) Close() error {
	c.mu.Lock()
	lines := c.lines
	c.lines = nil
	c.mu.Unlock()

	var errs []error
	for _, line := range lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if err := c.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	return errors.Join(errs...)
}

type realPin struct {
	offset int
	input  bool
	line   *gpiocdev.Line

	// mu guards the watcher and is held while the handler runs, so
	// Unwatch cannot return while an old handler is still executing.
	mu      sync.Mutex
	edge    Edge
	handler func(Level)
}

func (p *realPin) Read() (Level, error) {
	v, err := p.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", p.offset, err)
	}
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

func (p *realPin) Write(level Level) error {
	if p.input {
		return fmt.Errorf("write pin %d: line is an input", p.offset)
	}
	if err := p.line.SetValue(int(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", p.offset, err)
	}
	return nil
}

func (p *realPin) Watch(edge Edge, handler func(Level)) error {
	if !p.input {
		return fmt.Errorf("watch pin %d: line is an output", p.offset)
	}
	p.mu.Lock()
	p.edge = edge
	p.handler = handler
	p.mu.Unlock()
	return nil
}

func (p *realPin) Unwatch() error {
	p.mu.Lock()
	p.edge = EdgeNone
	p.handler = nil
	p.mu.Unlock()
	return nil
}

func (p *realPin) dispatch(evt gpiocdev.LineEvent) {
	level := Low
	if evt.Type == gpiocdev.LineEventRisingEdge {
		level = High
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handler == nil || !p.edge.Matches(level) {
		return
	}
	p.handler(level)
}
