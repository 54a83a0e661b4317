package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sweeney/drip-controller/internal/controller"
	"github.com/sweeney/drip-controller/internal/gpio"
	"gopkg.in/yaml.v3"
)

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Pins maps every role to a BCM offset. Each offset belongs to exactly
// one role.
type Pins struct {
	Chip         string        `yaml:"chip"`
	Debounce     time.Duration `yaml:"debounce"`
	TankLevel    int           `yaml:"tank_level"`
	MainPump     int           `yaml:"main_pump"`
	Fan          int           `yaml:"fan"`
	MoisturePwr  int           `yaml:"moisture_power"`
	Moisture     []int         `yaml:"moisture"`
	PotPumps     []int         `yaml:"pot_pumps"`
	TopPower     int           `yaml:"small_tank_top_power"`
	TopSensor    int           `yaml:"small_tank_top"`
	BottomPower  int           `yaml:"small_tank_bottom_power"`
	BottomSensor int           `yaml:"small_tank_bottom"`
	Safety       []int         `yaml:"safety"`
}

// DefaultPins returns the rig's wiring.
func DefaultPins() Pins {
	return Pins{
		Chip:         DefaultChip,
		Debounce:     gpio.DefaultSensorDebounce,
		TankLevel:    gpio.DefaultTankLevelPin,
		MainPump:     gpio.DefaultMainPumpPin,
		Fan:          gpio.DefaultFanPin,
		MoisturePwr:  gpio.DefaultMoisturePowerPin,
		Moisture:     append([]int(nil), gpio.DefaultMoisturePins...),
		PotPumps:     append([]int(nil), gpio.DefaultPotPumpPins...),
		TopPower:     gpio.DefaultSmallTankTopPwr,
		TopSensor:    gpio.DefaultSmallTankTopPin,
		BottomPower:  gpio.DefaultSmallTankBottomPwr,
		BottomSensor: gpio.DefaultSmallTankBottomPin,
		Safety:       []int{gpio.DefaultSafetyPin1, gpio.DefaultSafetyPin2},
	}
}

// LoadPinsFile parses a YAML pin map. Keys missing from the file keep
// their default offsets.
func LoadPinsFile(path string) (Pins, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pins{}, fmt.Errorf("read pins file: %w", err)
	}

	pins := DefaultPins()
	if err := yaml.Unmarshal(data, &pins); err != nil {
		return Pins{}, fmt.Errorf("parse pins file: %w", err)
	}
	if err := pins.Validate(); err != nil {
		return Pins{}, err
	}
	return pins, nil
}

type role struct {
	name   string
	offset int
}

func (p Pins) roles() []role {
	roles := []role{
		{"tank_level", p.TankLevel},
		{"main_pump", p.MainPump},
		{"fan", p.Fan},
		{"moisture_power", p.MoisturePwr},
		{"small_tank_top_power", p.TopPower},
		{"small_tank_top", p.TopSensor},
		{"small_tank_bottom_power", p.BottomPower},
		{"small_tank_bottom", p.BottomSensor},
	}
	for i, o := range p.Moisture {
		roles = append(roles, role{fmt.Sprintf("moisture[%d]", i), o})
	}
	for i, o := range p.PotPumps {
		roles = append(roles, role{fmt.Sprintf("pot_pumps[%d]", i), o})
	}
	for i, o := range p.Safety {
		roles = append(roles, role{fmt.Sprintf("safety[%d]", i), o})
	}
	return roles
}

// Validate rejects a map with the wrong pot count, no safety switches,
// negative offsets or an offset shared by two roles.
func (p Pins) Validate() error {
	var errs []error
	if len(p.PotPumps) != gpio.DefaultPotCount {
		errs = append(errs, fmt.Errorf("pot_pumps: got %d pins, want %d", len(p.PotPumps), gpio.DefaultPotCount))
	}
	if len(p.Moisture) != gpio.DefaultPotCount {
		errs = append(errs, fmt.Errorf("moisture: got %d pins, want %d", len(p.Moisture), gpio.DefaultPotCount))
	}
	if len(p.Safety) == 0 {
		errs = append(errs, errors.New("safety: at least one switch required"))
	}
	if p.Debounce < 0 {
		errs = append(errs, errors.New("debounce must not be negative"))
	}

	owner := make(map[int]string)
	for _, r := range p.roles() {
		if r.offset < 0 {
			errs = append(errs, fmt.Errorf("%s: negative offset %d", r.name, r.offset))
			continue
		}
		if prev, ok := owner[r.offset]; ok {
			errs = append(errs, fmt.Errorf("pin %d assigned to both %s and %s", r.offset, prev, r.name))
			continue
		}
		owner[r.offset] = r.name
	}
	return errors.Join(errs...)
}

// Request claims every line on chip and returns the controller's view of
// the hardware. Outputs start in their safe state: pumps and fan off,
// sensor power off. On error, lines already claimed stay with the chip
// and are released by its Close.
func (p Pins) Request(chip gpio.Chip) (controller.Hardware, error) {
	var hw controller.Hardware
	var err error

	output := func(dst *gpio.Pin, offset int, initial gpio.Level) {
		if err != nil {
			return
		}
		*dst, err = chip.Output(offset, initial)
		if err != nil {
			err = fmt.Errorf("output %d: %w", offset, err)
		}
	}
	input := func(dst *gpio.Pin, offset int, debounce time.Duration) {
		if err != nil {
			return
		}
		*dst, err = chip.Input(offset, debounce)
		if err != nil {
			err = fmt.Errorf("input %d: %w", offset, err)
		}
	}

	output(&hw.MainPump, p.MainPump, gpio.High)
	output(&hw.Fan, p.Fan, gpio.High)
	output(&hw.MoisturePower, p.MoisturePwr, gpio.Low)
	output(&hw.TopPower, p.TopPower, gpio.Low)
	output(&hw.BottomPower, p.BottomPower, gpio.Low)
	input(&hw.TankLevel, p.TankLevel, 0)
	input(&hw.TopSensor, p.TopSensor, p.Debounce)
	input(&hw.BottomSensor, p.BottomSensor, p.Debounce)

	hw.PotPumps = make([]gpio.Pin, len(p.PotPumps))
	for i, o := range p.PotPumps {
		output(&hw.PotPumps[i], o, gpio.High)
	}
	hw.Moisture = make([]gpio.Pin, len(p.Moisture))
	for i, o := range p.Moisture {
		input(&hw.Moisture[i], o, 0)
	}
	hw.Safety = make([]gpio.Pin, len(p.Safety))
	for i, o := range p.Safety {
		input(&hw.Safety[i], o, 0)
	}

	if err != nil {
		return controller.Hardware{}, err
	}
	return hw, nil
}
