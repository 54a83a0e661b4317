package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAlert() Alert {
	return Alert{
		Kind:    KindSafetyTrip,
		At:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Summary: "safety interlock tripped",
		Fields:  []Field{{Name: "switches", Value: "0"}, {Name: "re-enable", Value: "in 3 hours"}},
	}
}

func fastTiming(n *httpPoster) {
	n.timing.backoffInitial = time.Millisecond
	n.timing.backoffMax = 2 * time.Millisecond
	n.timing.backoffMaxElapsed = 50 * time.Millisecond
}

func TestWebhookPostsJSON(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhook(zerolog.Nop(), server.URL, "greenhouse")
	require.NotNil(t, n)
	require.NoError(t, n.Notify(context.Background(), testAlert()))

	var got WebhookPayload
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "greenhouse", got.Source)
	assert.Equal(t, KindSafetyTrip, got.Kind)
	assert.Equal(t, "2024-06-01T12:00:00Z", got.At)
	assert.Len(t, got.Fields, 2)
}

func TestWebhookEmptyURLIsNil(t *testing.T) {
	n := NewWebhook(zerolog.Nop(), "", "")
	assert.Nil(t, n)
	assert.NoError(t, n.Notify(context.Background(), testAlert()))
}

func TestWebhookRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhook(zerolog.Nop(), server.URL, "")
	fastTiming(n.poster)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, n.Notify(ctx, testAlert()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWebhookClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	n := NewWebhook(zerolog.Nop(), server.URL, "")
	fastTiming(n.poster)

	err := n.Notify(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad payload")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWebhookHonoursRetryAfter(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhook(zerolog.Nop(), server.URL, "")
	start := time.Now()
	require.NoError(t, n.Notify(context.Background(), testAlert()))
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWebhookRateLimitPerKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhook(zerolog.Nop(), server.URL, "")
	n.poster.timing.rateInterval = time.Hour
	n.poster.timing.rateBurst = 1

	require.NoError(t, n.Notify(context.Background(), testAlert()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, n.Notify(ctx, testAlert()), "second alert of the same kind waits for the limiter")

	other := testAlert()
	other.Kind = KindActuationTimeout
	assert.NoError(t, n.Notify(context.Background(), other), "other kinds have their own budget")
}

func TestParseRetryAfter(t *testing.T) {
	d, ok := parseRetryAfter("5")
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	_, ok = parseRetryAfter("0")
	assert.False(t, ok)
	_, ok = parseRetryAfter("")
	assert.False(t, ok)
	_, ok = parseRetryAfter("soon")
	assert.False(t, ok)
}

func TestSlackMessage(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlack(zerolog.Nop(), server.URL)
	require.NoError(t, n.Notify(context.Background(), testAlert()))

	var msg struct {
		Text   string           `json:"text"`
		Blocks []map[string]any `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Contains(t, msg.Text, "safety interlock tripped")
	require.Len(t, msg.Blocks, 3)
	assert.Equal(t, "header", msg.Blocks[0]["type"])
	assert.Equal(t, "section", msg.Blocks[2]["type"])
}

func TestSlackEmptyURLIsNoop(t *testing.T) {
	n := NewSlack(zerolog.Nop(), "")
	_, ok := n.(*Noop)
	assert.True(t, ok)
	assert.NoError(t, n.Notify(context.Background(), testAlert()))
}

func TestMultiFansOutAndReturnsFirstError(t *testing.T) {
	a := &FakeNotifier{Err: errors.New("a failed")}
	b := &FakeNotifier{}
	var nilWebhook *Webhook

	m := NewMulti(a, nil, nilWebhook, NewNoop(zerolog.Nop(), ""), b)
	assert.Equal(t, 2, m.Len())

	err := m.Notify(context.Background(), testAlert())
	assert.EqualError(t, err, "a failed")
	assert.Len(t, a.Alerts(), 1)
	assert.Len(t, b.Alerts(), 1, "later notifiers still called")
}
