package imaging

import "fmt"

// Preset is the immutable parameter record for one named indicator.
//
// Kd and Hill n come from purified-protein titrations; the tau values are
// effective imaging kinetics for real-time simulation. For some red GECIs
// the long decays reported in cell assays largely reflect cellular calcium
// clearance rather than intrinsic indicator off-kinetics.
type Preset struct {
	KdUM          float64
	HillN         float64
	IndTauRiseMs  float64
	IndTauDecayMs float64
	DFFMax        float64
}

// DefaultPreset is the educational default indicator.
const DefaultPreset = "Generic"

// Presets maps indicator names to their parameter records, loaded once.
var Presets = map[string]Preset{
	"Generic": {KdUM: 0.200, HillN: 2.0, IndTauRiseMs: 50, IndTauDecayMs: 300, DFFMax: 20.0},

	// Green GECIs.
	"GCaMP2":  {KdUM: 0.146, HillN: 3.8, IndTauRiseMs: 150, IndTauDecayMs: 1200, DFFMax: 3.9},
	"GCaMP6s": {KdUM: 0.144, HillN: 3.0, IndTauRiseMs: 125, IndTauDecayMs: 580, DFFMax: 60.0},
	"GCaMP6m": {KdUM: 0.167, HillN: 3.0, IndTauRiseMs: 90, IndTauDecayMs: 220, DFFMax: 55.0},
	"GCaMP6f": {KdUM: 0.375, HillN: 3.0, IndTauRiseMs: 60, IndTauDecayMs: 140, DFFMax: 50.0},

	// Red GECIs.
	"R-GECO1":  {KdUM: 0.480, HillN: 2.0, IndTauRiseMs: 200, IndTauDecayMs: 1500, DFFMax: 30.0},
	"jRGECO1a": {KdUM: 0.161, HillN: 1.8, IndTauRiseMs: 200, IndTauDecayMs: 314, DFFMax: 13.0},
	"jRCaMP1a": {KdUM: 0.141, HillN: 1.5, IndTauRiseMs: 200, IndTauDecayMs: 327, DFFMax: 6.0},
	"f-RGECO1": {KdUM: 1.200, HillN: 3.0, IndTauRiseMs: 120, IndTauDecayMs: 83, DFFMax: 9.0},
	"f-RGECO2": {KdUM: 1.300, HillN: 5.8, IndTauRiseMs: 120, IndTauDecayMs: 77, DFFMax: 13.0},
	"f-RCaMP1": {KdUM: 0.520, HillN: 2.3, IndTauRiseMs: 150, IndTauDecayMs: 211, DFFMax: 5.0},
	"f-RCaMP2": {KdUM: 0.785, HillN: 3.5, IndTauRiseMs: 150, IndTauDecayMs: 140, DFFMax: 5.0},
}

// ApplyPreset copies a named indicator's chemistry into the parameters.
// Unknown names fall back to the Generic preset and report an error so the
// caller can surface it without losing a working configuration.
func (p *Parameters) ApplyPreset(name string) error {
	preset, ok := Presets[name]
	if !ok {
		p.applyPreset(Presets[DefaultPreset])
		return fmt.Errorf("unknown indicator preset %q, using %s", name, DefaultPreset)
	}
	p.applyPreset(preset)
	return nil
}

func (p *Parameters) applyPreset(preset Preset) {
	p.KdUM = preset.KdUM
	p.HillN = preset.HillN
	p.IndTauRiseMs = preset.IndTauRiseMs
	p.IndTauDecayMs = preset.IndTauDecayMs
	p.DFFMax = preset.DFFMax
}
