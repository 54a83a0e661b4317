package climate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultIIODevice is where the dht11 kernel driver (which also serves
// the DHT22) exposes its channels.
const DefaultIIODevice = "/sys/bus/iio/devices/iio:device0"

const (
	temperatureFile = "in_temp_input"
	humidityFile    = "in_humidityrelative_input"

	// The DHT22 cannot be polled faster than every two seconds.
	DefaultRetryInterval = 2 * time.Second
	DefaultRetries       = 3
)

// IIOSensor reads a DHT22 through the Linux IIO sysfs interface.
// Values are exposed in milli-units. The driver returns an I/O error on
// checksum failures, which are common, so reads are retried.
type IIOSensor struct {
	dir      string
	interval time.Duration
	retries  uint64
}

// NewIIOSensor creates a sensor for the IIO device directory dir.
func NewIIOSensor(dir string, interval time.Duration, retries int) *IIOSensor {
	if dir == "" {
		dir = DefaultIIODevice
	}
	if retries < 0 {
		retries = 0
	}
	return &IIOSensor{dir: dir, interval: interval, retries: uint64(retries)}
}

// Sample reads both channels, retrying transient failures. An
// out-of-range reading is returned as ErrInvalidReading without retry.
func (s *IIOSensor) Sample() (Reading, error) {
	var reading Reading
	op := func() error {
		r, err := s.readOnce()
		if err != nil {
			return err
		}
		if err := r.Validate(); err != nil {
			return backoff.Permanent(err)
		}
		reading = r
		return nil
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.interval), s.retries)
	if err := backoff.Retry(op, policy); err != nil {
		return Reading{}, err
	}
	return reading, nil
}

func (s *IIOSensor) readOnce() (Reading, error) {
	temp, err := readMilli(filepath.Join(s.dir, temperatureFile))
	if err != nil {
		return Reading{}, err
	}
	hum, err := readMilli(filepath.Join(s.dir, humidityFile))
	if err != nil {
		return Reading{}, err
	}
	return Reading{TemperatureC: temp, HumidityPct: hum}, nil
}

func readMilli(path string) (float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, backoff.Permanent(fmt.Errorf("read %s: %w", path, err))
		}
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return float64(v) / 1000, nil
}
