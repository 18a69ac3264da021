package imaging

import "math"

// FrameClock is the camera-frame phase accumulator. It advances with
// every sample and decides how many exposures elapsed.
type FrameClock struct {
	phaseMs float64
}

// Advance accumulates dtMs against the frame period and returns how many
// camera frames became due. A single floor division handles the case of
// several frames elapsing within one sample interval, so slow frame rates
// never drop exposures.
func (c *FrameClock) Advance(dtMs, periodMs float64) int {
	if periodMs <= 0 {
		return 0
	}
	c.phaseMs += dtMs
	if c.phaseMs < periodMs {
		return 0
	}
	k := math.Floor(c.phaseMs / periodMs)
	c.phaseMs -= k * periodMs
	return int(k)
}

// PhaseMs reports the time elapsed since the last exposure.
func (c *FrameClock) PhaseMs() float64 { return c.phaseMs }

// Reset zeroes the phase, e.g. on connect.
func (c *FrameClock) Reset() { c.phaseMs = 0 }

// Observe maps one neuron's calcium and indicator state through the gain
// chain into a single camera reading.
//
// The mean depends on the observation mode:
//
//	linear:     F = offset + gain * alpha*(Ca + beta)
//	saturating: F = offset + gain * (1 + dff_max*state)
//
// with gain = Laser*PMT*FluoScale*bleach, clamped non-negative. Three
// noise sources add in quadrature: a detector floor, photon shot noise
// scaling with sqrt(F), and a PMT excess term that only appears when the
// PMT gain is pushed above nominal. noise is one standard normal draw.
func Observe(caUM, state, bleach float64, p *Parameters, noise float64) float64 {
	fMean := meanFluorescence(caUM, state, bleach, p)

	gain := p.Laser * p.PMT * p.FluoScale * bleach
	sigmaShot := p.ShotNoiseCoeff * math.Sqrt(fMean)
	var sigmaPMT float64
	if excess := p.PMT - 1; excess > 0 {
		sigmaPMT = p.PMTExcessSigma0 * math.Pow(excess, p.PMTExcessGamma) * gain
	}
	sigma := math.Sqrt(p.NoiseFloorSigma*p.NoiseFloorSigma + sigmaShot*sigmaShot + sigmaPMT*sigmaPMT)

	return fMean + sigma*noise
}

func meanFluorescence(caUM, state, bleach float64, p *Parameters) float64 {
	gain := p.Laser * p.PMT * p.FluoScale * bleach

	var fMean float64
	if p.Mode == ModeLinear {
		fMean = p.FluoOffset + gain*(p.LinearAlpha*(caUM+p.LinearBeta))
	} else {
		fMean = p.FluoOffset + gain*(1+p.DFFMax*state)
	}
	if fMean < 0 {
		fMean = 0
	}
	return fMean
}

// BaselineF0 returns the noise-free reading for baseline calcium under the
// current parameters and bleach factor. Downstream dFF/F0 consumers use it
// as their reference; it must be recomputed whenever baseline calcium or
// the gain/offset chain changes.
func BaselineF0(p *Parameters, bleach float64) float64 {
	cb := p.CalciumBaselineUM
	return meanFluorescence(cb, EquilibriumState(cb, p), bleach, p)
}
