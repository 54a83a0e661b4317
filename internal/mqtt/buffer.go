package mqtt

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/sweeney/drip-controller/internal/ring"
)

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages while the broker is unreachable. When full the
// oldest message is dropped; the first drop after a drain is logged.
type outbox struct {
	mu       sync.Mutex
	msgs     *ring.Ring[bufferedMsg]
	overflow bool
	dropped  int
	logger   zerolog.Logger
}

func newOutbox(capacity int, logger zerolog.Logger) *outbox {
	return &outbox{msgs: ring.New[bufferedMsg](capacity), logger: logger}
}

func (o *outbox) push(msg bufferedMsg) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, evicted := o.msgs.Push(msg); evicted {
		o.dropped++
		if !o.overflow {
			o.logger.Warn().Int("capacity", o.msgs.Cap()).Msg("mqtt buffer full, dropping oldest")
			o.overflow = true
		}
	}
}

// drain returns buffered messages oldest first and empties the outbox.
func (o *outbox) drain() []bufferedMsg {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.overflow = false
	return o.msgs.Drain()
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.msgs.Len()
}

// droppedTotal returns how many messages were evicted since creation.
func (o *outbox) droppedTotal() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
