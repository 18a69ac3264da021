package imaging

import "fmt"

// ObservationMode selects the mean-fluorescence mapping and, for the
// saturating modes, the equilibrium saturation curve.
type ObservationMode string

const (
	// ModeLinear maps calcium linearly through the gain chain
	// (Vogelstein-style observation).
	ModeLinear ObservationMode = "linear"
	// ModeHill uses equilibrium Hill saturation with dFF scaling.
	ModeHill ObservationMode = "hill"
	// ModeSigmoid uses logistic saturation with dFF scaling.
	ModeSigmoid ObservationMode = "sigmoid"
)

// Parameters is the complete imaging configuration: frame timing, gain
// chain, calcium kinetics, indicator chemistry and every noise source.
// The pipeline owns one instance; external updates are staged and merged
// between drain ticks, never mid-step.
type Parameters struct {
	// Camera frame rate in Hz.
	FrameRateHz float64 `yaml:"frame_rate_hz"`

	// Gain chain. PMT and Laser are fractions of nominal (1.0).
	PMT        float64 `yaml:"pmt"`
	Laser      float64 `yaml:"laser"`
	FluoScale  float64 `yaml:"fluo_scale"`
	FluoOffset float64 `yaml:"fluo_offset"`

	// Spike detection.
	SpikeThresholdMV float64 `yaml:"spike_threshold_mv"`
	RefractoryMs     float64 `yaml:"refractory_ms"`

	// Calcium kinetics (µM, ms).
	CalciumBaselineUM float64 `yaml:"calcium_baseline_um"`
	SpikeRiseUM       float64 `yaml:"spike_rise_um"`
	CalciumNoiseSigma float64 `yaml:"calcium_noise_sigma"`
	CalciumTauRiseMs  float64 `yaml:"calcium_tau_rise_ms"`
	CalciumTauDecayMs float64 `yaml:"calcium_tau_decay_ms"`

	// Indicator chemistry.
	KdUM          float64 `yaml:"kd_um"`
	HillN         float64 `yaml:"hill_n"`
	DFFMax        float64 `yaml:"dff_max"`
	IndTauRiseMs  float64 `yaml:"ind_tau_rise_ms"`
	IndTauDecayMs float64 `yaml:"ind_tau_decay_ms"`

	// Sigmoid saturation variant.
	SigmoidK       float64 `yaml:"sigmoid_k"`
	SigmoidCHalfUM float64 `yaml:"sigmoid_c_half_um"`

	// Non-equilibrium binding kinetics. Rates are per second.
	BindingEnabled bool    `yaml:"binding_enabled"`
	BindingSTot    float64 `yaml:"binding_s_tot"`
	BindingN       float64 `yaml:"binding_n"`
	BindingKOn     float64 `yaml:"binding_k_on"`
	BindingKOff    float64 `yaml:"binding_k_off"`

	// Observation noise.
	NoiseFloorSigma float64 `yaml:"noise_floor_sigma"`
	ShotNoiseCoeff  float64 `yaml:"shot_noise_coeff"`
	PMTExcessSigma0 float64 `yaml:"pmt_excess_sigma0"`
	PMTExcessGamma  float64 `yaml:"pmt_excess_gamma"`

	// Linear observation model.
	LinearAlpha float64 `yaml:"linear_alpha"`
	LinearBeta  float64 `yaml:"linear_beta"`

	// Photobleaching. Rates are per second, BleachMin the attenuation floor.
	BleachRate  float64 `yaml:"bleach_rate"`
	RecoverRate float64 `yaml:"recover_rate"`
	BleachMin   float64 `yaml:"bleach_min"`

	// Mean-fluorescence mapping selector.
	Mode ObservationMode `yaml:"mode"`
}

// DefaultParameters mirrors the slider defaults of the original
// application with the Generic indicator preset applied.
func DefaultParameters() Parameters {
	p := Parameters{
		FrameRateHz: 10,

		PMT:        1.0,
		Laser:      1.0,
		FluoScale:  1.0,
		FluoOffset: 0.0,

		SpikeThresholdMV: -20,
		RefractoryMs:     3,

		CalciumBaselineUM: 0.05,
		SpikeRiseUM:       1.0,
		CalciumNoiseSigma: 0.0,
		CalciumTauRiseMs:  50,
		CalciumTauDecayMs: 300,

		SigmoidK:       10,
		SigmoidCHalfUM: 0.2,

		BindingSTot: 1.0,
		BindingN:    2.0,
		BindingKOn:  50,
		BindingKOff: 10,

		NoiseFloorSigma: 0.002,
		ShotNoiseCoeff:  0.002,
		PMTExcessSigma0: 0.01,
		PMTExcessGamma:  1.5,

		LinearAlpha: 1.0,
		LinearBeta:  0.0,

		BleachRate:  0.01,
		RecoverRate: 0.002,
		BleachMin:   0.2,

		Mode: ModeHill,
	}
	p.ApplyPreset(DefaultPreset)
	return p
}

// Normalize repairs out-of-range values in place so a partial or careless
// update can never destabilize the integrators. Unset (zero) structural
// values fall back to defaults; this is the "configuration miss" policy.
func (p *Parameters) Normalize() {
	def := Parameters{
		FrameRateHz:       10,
		CalciumTauRiseMs:  50,
		CalciumTauDecayMs: 300,
		IndTauRiseMs:      50,
		IndTauDecayMs:     300,
		KdUM:              0.2,
		HillN:             2,
		BindingSTot:       1,
		BindingN:          1,
		RefractoryMs:      3,
	}
	if p.FrameRateHz <= 0 {
		p.FrameRateHz = def.FrameRateHz
	}
	if p.CalciumTauRiseMs <= 0 {
		p.CalciumTauRiseMs = def.CalciumTauRiseMs
	}
	if p.CalciumTauDecayMs <= 0 {
		p.CalciumTauDecayMs = def.CalciumTauDecayMs
	}
	if p.IndTauRiseMs <= 0 {
		p.IndTauRiseMs = def.IndTauRiseMs
	}
	if p.IndTauDecayMs <= 0 {
		p.IndTauDecayMs = def.IndTauDecayMs
	}
	if p.KdUM <= 0 {
		p.KdUM = def.KdUM
	}
	if p.HillN <= 0 {
		p.HillN = def.HillN
	}
	if p.BindingSTot <= 0 {
		p.BindingSTot = def.BindingSTot
	}
	if p.BindingN <= 0 {
		p.BindingN = def.BindingN
	}
	if p.RefractoryMs < 0 {
		p.RefractoryMs = def.RefractoryMs
	}
	if p.BindingKOn < 0 {
		p.BindingKOn = 0
	}
	if p.BindingKOff < 0 {
		p.BindingKOff = 0
	}
	if p.BleachMin <= 0 || p.BleachMin > 1 {
		p.BleachMin = 0.2
	}
	if p.BleachRate < 0 {
		p.BleachRate = 0
	}
	if p.RecoverRate < 0 {
		p.RecoverRate = 0
	}
	switch p.Mode {
	case ModeLinear, ModeHill, ModeSigmoid:
	default:
		p.Mode = ModeHill
	}
}

// Set updates a single parameter by its yaml key. Numeric values accept
// any JSON number; mode takes a string, binding_enabled a bool. Unknown
// keys are an error so the control plane can reject typos.
func (p *Parameters) Set(key string, value any) error {
	switch key {
	case "mode":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("parameter %q: want string, got %T", key, value)
		}
		switch ObservationMode(s) {
		case ModeLinear, ModeHill, ModeSigmoid:
			p.Mode = ObservationMode(s)
			return nil
		}
		return fmt.Errorf("parameter %q: unknown mode %q", key, s)

	case "binding_enabled":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("parameter %q: want bool, got %T", key, value)
		}
		p.BindingEnabled = b
		return nil
	}

	f, err := toFloat(value)
	if err != nil {
		return fmt.Errorf("parameter %q: %w", key, err)
	}

	fields := map[string]*float64{
		"frame_rate_hz":       &p.FrameRateHz,
		"pmt":                 &p.PMT,
		"laser":               &p.Laser,
		"fluo_scale":          &p.FluoScale,
		"fluo_offset":         &p.FluoOffset,
		"spike_threshold_mv":  &p.SpikeThresholdMV,
		"refractory_ms":       &p.RefractoryMs,
		"calcium_baseline_um": &p.CalciumBaselineUM,
		"spike_rise_um":       &p.SpikeRiseUM,
		"calcium_noise_sigma": &p.CalciumNoiseSigma,
		"calcium_tau_rise_ms": &p.CalciumTauRiseMs,
		"calcium_tau_decay_ms": &p.CalciumTauDecayMs,
		"kd_um":               &p.KdUM,
		"hill_n":              &p.HillN,
		"dff_max":             &p.DFFMax,
		"ind_tau_rise_ms":     &p.IndTauRiseMs,
		"ind_tau_decay_ms":    &p.IndTauDecayMs,
		"sigmoid_k":           &p.SigmoidK,
		"sigmoid_c_half_um":   &p.SigmoidCHalfUM,
		"binding_s_tot":       &p.BindingSTot,
		"binding_n":           &p.BindingN,
		"binding_k_on":        &p.BindingKOn,
		"binding_k_off":       &p.BindingKOff,
		"noise_floor_sigma":   &p.NoiseFloorSigma,
		"shot_noise_coeff":    &p.ShotNoiseCoeff,
		"pmt_excess_sigma0":   &p.PMTExcessSigma0,
		"pmt_excess_gamma":    &p.PMTExcessGamma,
		"linear_alpha":        &p.LinearAlpha,
		"linear_beta":         &p.LinearBeta,
		"bleach_rate":         &p.BleachRate,
		"recover_rate":        &p.RecoverRate,
		"bleach_min":          &p.BleachMin,
	}

	dst, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown parameter %q", key)
	}
	*dst = f
	return nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("want number, got %T", v)
}
