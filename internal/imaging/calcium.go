package imaging

import "math"

// CalciumKernel folds spike events into a calcium-concentration trace in
// O(1) per sample. Two decaying accumulators reproduce, per spike, the
// closed-form rise/decay transient of a difference of exponentials without
// storing individual spike times:
//
//	xd  <- xd  * exp(-dt/tau_d)  + A*spike
//	xdr <- xdr * exp(-dt/tau_dr) + A*spike
//	Ca   = Cb + (xd - xdr) + sigma*sqrt(dt_s)*N(0,1)
//
// with tau_dr = tau_d*tau_r/(tau_d+tau_r). The sqrt(dt_s) scaling keeps
// the noise magnitude invariant to the sample interval.
type CalciumKernel struct {
	xd  float64
	xdr float64
}

// Step advances the kernel by dtMs and returns the calcium concentration
// in µM, clamped to be non-negative. noise is one standard normal draw.
func (k *CalciumKernel) Step(spike int, dtMs float64, p *Parameters, noise float64) float64 {
	tauD := p.CalciumTauDecayMs
	tauR := p.CalciumTauRiseMs
	tauDR := tauD * tauR / (tauD + tauR)

	k.xd *= math.Exp(-dtMs / tauD)
	k.xdr *= math.Exp(-dtMs / tauDR)
	if spike > 0 {
		a := p.SpikeRiseUM * float64(spike)
		k.xd += a
		k.xdr += a
	}

	dtS := dtMs / 1000.0
	ca := p.CalciumBaselineUM + (k.xd - k.xdr) + p.CalciumNoiseSigma*math.Sqrt(dtS)*noise
	if ca < 0 {
		ca = 0
	}
	return ca
}

// Reset clears both accumulators.
func (k *CalciumKernel) Reset() {
	*k = CalciumKernel{}
}
