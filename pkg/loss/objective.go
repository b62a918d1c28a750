package loss

import (
	"fmt"
	"sort"

	"gorgonia.org/gorgonia"
)

const (
	TermMel      = "mel"
	TermAdvFeat  = "adv/feat"
	TermAdvGen   = "adv/gen"
	TermKL       = "kl"
	TermWaveform = "waveform"
)

// Objective weights named loss terms.
type Objective map[string]float64

// DefaultObjective returns a mel-dominated generator weighting: mel 15,
// feature matching 2, adversarial 1, KL 1, waveform L1 off. Callers training
// a specific model should set their own weights.
func DefaultObjective() Objective {
	return Objective{
		TermMel:      15,
		TermAdvFeat:  2,
		TermAdvGen:   1,
		TermKL:       1,
		TermWaveform: 0,
	}
}

// Names returns the weighted term names in sorted order.
func (o Objective) Names() []string {
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Combine returns the weighted sum of terms. Terms with a zero weight are
// skipped; a term with no weight at all is an error.
func (o Objective) Combine(terms map[string]*gorgonia.Node) (*gorgonia.Node, error) {
	names := make([]string, 0, len(terms))
	for name := range terms {
		if _, ok := o[name]; !ok {
			return nil, fmt.Errorf("objective has no weight for term %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var total *gorgonia.Node
	for _, name := range names {
		weight := o[name]
		if weight == 0 {
			continue
		}
		if terms[name] == nil {
			return nil, fmt.Errorf("term %q is nil", name)
		}

		term, err := scale(weight, terms[name])
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", name, err)
		}
		if total, err = accumulate(total, term); err != nil {
			return nil, err
		}
	}

	if total == nil {
		return gorgonia.NewConstant(0.0), nil
	}
	return total, nil
}
