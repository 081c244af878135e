package shell

import (
	"rfmatch/ams"
	"rfmatch/core"
	"rfmatch/diag"
	"rfmatch/matching"
	"rfmatch/motor"
	"rfmatch/persist"
	"rfmatch/sensor"
	"rfmatch/stream"
)

// Session bundles every component one board's shell commands reach into:
// both RF sensors, both motors, the companion-device link they share, the
// matching algorithm, FRAM-backed settings, and the AMS/streaming engines.
// One Session exists per board; the mode pin decides when its Registry is
// consulted at all.
type Session struct {
	Clock core.Clock
	Sink  diag.Sink

	Input, Output *sensor.Sensor
	M1, M2        *motor.Motor
	Link          *motor.Link
	Alg           *matching.Algorithm
	Store         *persist.Store
	AMS           *ams.Engine
	Stream        *stream.Engine

	// couplingInput/couplingOutput track each sensor's last rk-selected
	// relay mode. The host build has no relay hardware modeled on
	// sensor.Sensor, so this is bookkeeping only: rk acknowledges and
	// rgc-style readback would report it, but no signal actually moves.
	couplingInput, couplingOutput string

	streams streamState
}

type streamState struct {
	impRun, viRun, posRun bool
}

// NewSession wires together one board's already-constructed components.
func NewSession(clock core.Clock, sink diag.Sink, input, output *sensor.Sensor, m1, m2 *motor.Motor, link *motor.Link, alg *matching.Algorithm, store *persist.Store, amsEngine *ams.Engine, streamEngine *stream.Engine) *Session {
	return &Session{
		Clock:         clock,
		Sink:          sink,
		Input:         input,
		Output:        output,
		M1:            m1,
		M2:            m2,
		Link:          link,
		Alg:           alg,
		Store:         store,
		AMS:           amsEngine,
		Stream:        streamEngine,
		couplingInput: "dc",
		couplingOutput: "dc",
	}
}

// sensorFor resolves the i/o selector argument every r* opcode takes.
func (s *Session) sensorFor(sel string) (*sensor.Sensor, bool) {
	switch sel {
	case "i":
		return s.Input, true
	case "o":
		return s.Output, true
	default:
		return nil, false
	}
}

// motorFor resolves the 0/1 selector argument every m* opcode takes.
func (s *Session) motorFor(idx int) (*motor.Motor, bool) {
	switch idx {
	case 0:
		return s.M1, true
	case 1:
		return s.M2, true
	default:
		return nil, false
	}
}

// spiFor returns the companion-device SPI chip-select line for motor
// index idx (0 or 1 map to chip-select 1 or 2).
func spiFor(idx int) uint8 { return uint8(idx + 1) }

// applyStreamState enables the shared stream engine whenever any of the
// three independently-toggled streams is running, and disables it only
// once all three have been stopped.
func (s *Session) applyStreamState() {
	if s.streams.impRun || s.streams.viRun || s.streams.posRun {
		if !s.Stream.Enabled() {
			s.Stream.Enable()
		}
	} else {
		s.Stream.Disable()
	}
}
