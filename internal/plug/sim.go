package plug

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Sim is a hardware-free plug that synthesizes a plausible appliance
// load: a base draw plus a slow ripple and a little noise. It stands
// in for a real device during development and demos.
type Sim struct {
	BaseWatts   float64 // steady draw while switched on
	RippleWatts float64 // amplitude of the slow load cycle
	Period      int     // reads per full ripple cycle
	JitterWatts float64 // uniform noise bound per read

	// FailWith, when non-nil, is returned by every ReadPower call.
	// Set it to exercise failure paths without hardware.
	FailWith error

	rng   *rand.Rand
	reads int
	on    bool
}

// NewSim returns a simulated plug with a 40 W base load. The seed
// fixes the noise sequence; pass 0 for a time-based seed.
func NewSim(seed int64) *Sim {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sim{
		BaseWatts:   40,
		RippleWatts: 15,
		Period:      60,
		JitterWatts: 2,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Name identifies the device in logs and the UI.
func (s *Sim) Name() string { return "sim" }

// ReadPower synthesizes the next meter reading. A switched-off plug
// reads zero, like the real meter.
func (s *Sim) ReadPower(ctx context.Context) (float64, error) {
	if s.FailWith != nil {
		return 0, s.FailWith
	}

	s.reads++
	if !s.on {
		return 0, nil
	}

	phase := 2 * math.Pi * float64(s.reads) / float64(s.Period)
	watts := s.BaseWatts + s.RippleWatts*math.Sin(phase) + s.JitterWatts*s.rng.Float64()
	if watts < 0 {
		watts = 0
	}
	return watts, nil
}

// TurnOn switches the simulated relay on.
func (s *Sim) TurnOn(ctx context.Context) error {
	s.on = true
	return nil
}

// TurnOff switches the simulated relay off.
func (s *Sim) TurnOff(ctx context.Context) error {
	s.on = false
	return nil
}
