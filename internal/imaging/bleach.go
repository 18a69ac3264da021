package imaging

import "math"

// Photobleach models excitation-dependent loss of brightness. One scalar
// attenuation factor is shared by all channels, matching the shared laser.
//
// Driving the laser above nominal bleaches the fluorophore pool; dropping
// it below nominal lets the factor recover toward 1. At exactly nominal
// power the factor is untouched.
type Photobleach struct {
	b float64
}

// NewPhotobleach returns an unbleached state (factor 1).
func NewPhotobleach() Photobleach {
	return Photobleach{b: 1}
}

// Step advances the attenuation by dtMs under laser power fraction L.
func (pb *Photobleach) Step(laser, dtMs float64, p *Parameters) {
	dtS := dtMs / 1000.0
	switch {
	case laser > 1:
		pb.b *= math.Exp(-p.BleachRate * (laser - 1) * dtS)
	case laser < 1:
		pb.b += (1 - pb.b) * (1 - math.Exp(-p.RecoverRate*(1-laser)*dtS))
	}
	if pb.b < p.BleachMin {
		pb.b = p.BleachMin
	}
	if pb.b > 1 {
		pb.b = 1
	}
}

// Factor returns the current multiplicative attenuation in [bleach_min, 1].
func (pb *Photobleach) Factor() float64 { return pb.b }

// Reset restores the unbleached state.
func (pb *Photobleach) Reset() { pb.b = 1 }
