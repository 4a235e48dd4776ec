package spinham

import (
	"math"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/unit"
	"gonum.org/v1/gonum/unit/constant"
)

const (
	erg = 1e-7
	// electronRelativeMass is the electron mass in atomic mass units, CODATA 2018.
	electronRelativeMass = 5.48579909065e-4
)

var (
	electronVolt      = float64(constant.ElementaryCharge)
	millielectronVolt = unit.Milli * electronVolt
	kelvin            = constant.Boltzmann.Unit().Value() * float64(unit.Kelvin)
	hertz             = constant.Planck.Unit().Value() * float64(unit.Hertz)

	electronMass  = electronRelativeMass * float64(constant.AtomicMass)
	reducedPlanck = constant.Planck.Unit().Value() / (2 * math.Pi)
	// rydberg is the Rydberg unit of energy, α² m_e c² / 2.
	rydberg = float64(constant.FineStructure*constant.FineStructure) * electronMass *
		float64(constant.LightSpeedInVacuum*constant.LightSpeedInVacuum) / 2
	// bohrMagneton is e ħ / 2 m_e, in joules per tesla.
	bohrMagneton = float64(constant.ElementaryCharge) * reducedPlanck / (2 * electronMass)
)

type energyUnit struct {
	name   string
	joules float64
}

// parameterUnits are the energy units parameters may be given in.
var parameterUnits = map[string]energyUnit{
	"mev":     {name: "meV", joules: millielectronVolt},
	"joule":   {name: "Joule", joules: float64(unit.Joule)},
	"j":       {name: "Joule", joules: float64(unit.Joule)},
	"ry":      {name: "Rydberg", joules: rydberg},
	"rydberg": {name: "Rydberg", joules: rydberg},
	"k":       {name: "Kelvin", joules: kelvin},
	"kelvin":  {name: "Kelvin", joules: kelvin},
	"erg":     {name: "Erg", joules: erg},
}

// frequencyUnits are the units spectra may be reported in.
var frequencyUnits = map[string]energyUnit{
	"mev":        {name: "meV", joules: millielectronVolt},
	"joule":      {name: "Joule", joules: float64(unit.Joule)},
	"j":          {name: "Joule", joules: float64(unit.Joule)},
	"ry":         {name: "Rydberg", joules: rydberg},
	"rydberg":    {name: "Rydberg", joules: rydberg},
	"erg":        {name: "Erg", joules: erg},
	"hertz":      {name: "Hertz", joules: hertz},
	"hz":         {name: "Hertz", joules: hertz},
	"giga-hertz": {name: "GHz", joules: unit.Giga * hertz},
	"ghz":        {name: "GHz", joules: unit.Giga * hertz},
	"tera-hertz": {name: "THz", joules: unit.Tera * hertz},
	"thz":        {name: "THz", joules: unit.Tera * hertz},
}

// ConversionFactor returns f such that a parameter in old units equals f times
// the same parameter in new units.
func ConversionFactor(old, new string) (float64, error) {
	return conversionFactor(parameterUnits, old, new)
}

// FrequencyConversionFactor is ConversionFactor for spectrum units, which
// include frequencies through E = h f.
func FrequencyConversionFactor(old, new string) (float64, error) {
	return conversionFactor(frequencyUnits, old, new)
}

func conversionFactor(table map[string]energyUnit, old, new string) (float64, error) {
	o, ok := table[strings.ToLower(old)]
	if !ok {
		return -1, errors.Errorf("unsupported units %q, supported %v", old, supported(table))
	}
	n, ok := table[strings.ToLower(new)]
	if !ok {
		return -1, errors.Errorf("unsupported units %q, supported %v", new, supported(table))
	}
	if strings.EqualFold(old, new) {
		return 1, nil
	}
	return o.joules / n.joules, nil
}

func supported(table map[string]energyUnit) []string {
	names := make([]string, 0, len(table))
	for k := range table {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
