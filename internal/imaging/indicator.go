package imaging

import "math"

// minTauMs guards the asymmetric filter against a zero time constant.
const minTauMs = 1e-6

// HillSaturation returns Ca^n / (Ca^n + Kd^n) in [0,1].
func HillSaturation(caUM, kdUM, n float64) float64 {
	if caUM <= 0 {
		return 0
	}
	can := math.Pow(caUM, n)
	kdn := math.Pow(kdUM, n)
	denom := can + kdn
	if denom <= 0 {
		return 0
	}
	return can / denom
}

// SigmoidSaturation returns the logistic saturation 1/(1+exp(-k*(Ca-c))).
func SigmoidSaturation(caUM, k, cHalfUM float64) float64 {
	return 1.0 / (1.0 + math.Exp(-k*(caUM-cHalfUM)))
}

// Indicator tracks one neuron's indicator occupancy.
//
// In the equilibrium variants (hill, sigmoid) the instantaneous saturation
// is smoothed by an asymmetric two-time-constant filter modeling the
// indicator's on/off kinetics. With binding enabled the occupancy is
// instead integrated as an explicit on/off reaction
//
//	dS/dt = k_on*(S_tot - S)*Ca^n - k_off*S
//
// and the filter path is bypassed entirely.
type Indicator struct {
	sat   float64 // filtered saturation, equilibrium variants
	bound float64 // bound amount in [0, S_tot], kinetic variant
}

// Step advances the indicator by dtMs and returns its state in [0,1].
func (ind *Indicator) Step(caUM, dtMs float64, p *Parameters) float64 {
	if p.BindingEnabled {
		return ind.stepBinding(caUM, dtMs, p)
	}

	var satInf float64
	switch p.Mode {
	case ModeSigmoid:
		satInf = SigmoidSaturation(caUM, p.SigmoidK, p.SigmoidCHalfUM)
	default:
		satInf = HillSaturation(caUM, p.KdUM, p.HillN)
	}

	tau := p.IndTauDecayMs
	if satInf > ind.sat {
		tau = p.IndTauRiseMs
	}
	if tau < minTauMs {
		tau = minTauMs
	}
	ind.sat += (1 - math.Exp(-dtMs/tau)) * (satInf - ind.sat)
	if ind.sat < 0 {
		ind.sat = 0
	} else if ind.sat > 1 {
		ind.sat = 1
	}
	return ind.sat
}

func (ind *Indicator) stepBinding(caUM, dtMs float64, p *Parameters) float64 {
	dtS := dtMs / 1000.0
	ca := caUM
	if ca < 0 {
		ca = 0
	}
	can := math.Pow(ca, p.BindingN)

	ind.bound += dtS * (p.BindingKOn*(p.BindingSTot-ind.bound)*can - p.BindingKOff*ind.bound)
	if ind.bound < 0 {
		ind.bound = 0
	} else if ind.bound > p.BindingSTot {
		ind.bound = p.BindingSTot
	}
	return ind.bound / p.BindingSTot
}

// Reset seeds the indicator at a given state fraction, e.g. the
// equilibrium state for baseline calcium on connect.
func (ind *Indicator) Reset(state float64, p *Parameters) {
	if state < 0 {
		state = 0
	} else if state > 1 {
		state = 1
	}
	ind.sat = state
	ind.bound = state * p.BindingSTot
}

// EquilibriumState returns the steady-state indicator state for a held
// calcium concentration under the configured variant. Used for baseline
// initialization and F0.
func EquilibriumState(caUM float64, p *Parameters) float64 {
	if p.BindingEnabled {
		if caUM < 0 {
			caUM = 0
		}
		on := p.BindingKOn * math.Pow(caUM, p.BindingN)
		denom := on + p.BindingKOff
		if denom <= 0 {
			return 0
		}
		return on / denom
	}
	if p.Mode == ModeSigmoid {
		return SigmoidSaturation(caUM, p.SigmoidK, p.SigmoidCHalfUM)
	}
	return HillSaturation(caUM, p.KdUM, p.HillN)
}
