package loss

import (
	"fmt"

	"github.com/grexie/audioloss/pkg/audio"
	"gorgonia.org/gorgonia"
)

// L1Loss is the mean absolute difference between one attribute of two
// signals, the waveform by default.
type L1Loss struct {
	Attribute string
	Weight    float64
}

func NewL1Loss() *L1Loss {
	return &L1Loss{
		Attribute: audio.AttrAudioData,
		Weight:    1,
	}
}

func (l *L1Loss) Forward(x, y *audio.Signal) (*gorgonia.Node, error) {
	attr := l.Attribute
	if attr == "" {
		attr = audio.AttrAudioData
	}

	xa, err := x.Attribute(attr)
	if err != nil {
		return nil, fmt.Errorf("estimate: %w", err)
	}
	ya, err := y.Attribute(attr)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	return l.ForwardNodes(xa, ya)
}

// ForwardNodes compares raw tensors directly.
func (l *L1Loss) ForwardNodes(x, y *gorgonia.Node) (*gorgonia.Node, error) {
	if err := sameShape(x, y); err != nil {
		return nil, fmt.Errorf("l1 loss: %w", err)
	}
	return L1(x, y)
}
