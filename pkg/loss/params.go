package loss

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/grexie/audioloss/pkg/audio"
	"github.com/jedib0t/go-pretty/v6/table"
	log "github.com/sirupsen/logrus"
)

// Params is the loss configuration read from the environment.
type Params struct {
	STFTWindows  []int
	MelWindows   []int
	MelBands     []int
	WindowType   audio.WindowType
	MatchStride  bool
	ClampEps     float64
	SISDRClipMin float64
	Cache        string
}

func (p *Params) Write(w io.Writer, title string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendRows([]table.Row{
		{"AUDIOLOSS_STFT_WINDOWS", joinInts(p.STFTWindows)},
		{"AUDIOLOSS_MEL_WINDOWS", joinInts(p.MelWindows)},
		{"AUDIOLOSS_MEL_BANDS", joinInts(p.MelBands)},
		{"AUDIOLOSS_WINDOW_TYPE", string(p.WindowType)},
		{"AUDIOLOSS_MATCH_STRIDE", fmt.Sprintf("%t", p.MatchStride)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"AUDIOLOSS_CLAMP_EPS", fmt.Sprintf("%g", p.ClampEps)},
		{"AUDIOLOSS_SISDR_CLIP_MIN", fmt.Sprintf("%0.02f", p.SISDRClipMin)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"AUDIOLOSS_CACHE", p.Cache},
	})
	t.Render()
}

func NewParamsFromDefaults() Params {
	return Params{
		STFTWindows:  STFTWindows(),
		MelWindows:   MelWindows(),
		MelBands:     MelBands(),
		WindowType:   audio.WindowType(WindowType()),
		MatchStride:  MatchStride(),
		ClampEps:     ClampEps(),
		SISDRClipMin: SISDRClipMin(),
		Cache:        Cache(),
	}
}

func (p Params) Validate() error {
	if len(p.MelWindows) != len(p.MelBands) {
		return fmt.Errorf("AUDIOLOSS_MEL_WINDOWS has %d entries but AUDIOLOSS_MEL_BANDS has %d", len(p.MelWindows), len(p.MelBands))
	}
	if _, err := audio.Window(p.WindowType, 4); err != nil {
		return err
	}
	for _, windows := range [][]int{p.STFTWindows, p.MelWindows} {
		for _, w := range windows {
			if err := audio.NewSTFTParams(w, p.WindowType, p.MatchStride).Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p Params) STFTLoss() *MultiScaleSTFTLoss {
	l := NewMultiScaleSTFTLoss(p.STFTWindows, p.WindowType, p.MatchStride)
	l.ClampEps = p.ClampEps
	return l
}

func (p Params) MelLoss() *MelSpectrogramLoss {
	l := NewMelSpectrogramLoss(p.MelBands, p.MelWindows, p.WindowType, p.MatchStride)
	l.ClampEps = p.ClampEps
	return l
}

// SISDRLoss returns a per-item SI-SDR loss. A clip minimum of -Inf disables
// clipping.
func (p Params) SISDRLoss() *SISDRLoss {
	l := NewSISDRLoss()
	l.Reduction = ReductionNone
	if !math.IsInf(p.SISDRClipMin, -1) {
		clipMin := p.SISDRClipMin
		l.ClipMin = &clipMin
	}
	return l
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func envInt(name string, def func() int, dec func(v int) int) func() int {
	return func() int {
		value := def()
		if v, ok := os.LookupEnv(name); ok {
			if v, err := strconv.ParseInt(v, 10, 32); err != nil {
				log.Fatalf("failed to parse env.%s: %v", name, err)
			} else {
				value = int(v)
			}
		}
		return dec(value)
	}
}

func envInts(name string, def func() []int, dec func(v int) int) func() []int {
	return func() []int {
		value := def()
		if v, ok := os.LookupEnv(name); ok {
			value = nil
			for _, field := range strings.Split(v, ",") {
				if n, err := strconv.ParseInt(strings.TrimSpace(field), 10, 32); err != nil {
					log.Fatalf("failed to parse env.%s: %v", name, err)
				} else {
					value = append(value, int(n))
				}
			}
		}
		out := make([]int, len(value))
		for i, v := range value {
			out[i] = dec(v)
		}
		return out
	}
}

func envFloat64(name string, def func() float64, dec func(v float64) float64) func() float64 {
	return func() float64 {
		value := def()
		if v, ok := os.LookupEnv(name); ok {
			if v, err := strconv.ParseFloat(v, 64); err != nil {
				log.Fatalf("failed to parse env.%s: %v", name, err)
			} else {
				value = v
			}
		}
		return dec(value)
	}
}

func envBool(name string, def func() bool) func() bool {
	return func() bool {
		value := def()
		if v, ok := os.LookupEnv(name); ok {
			if v, err := strconv.ParseBool(v); err != nil {
				log.Fatalf("failed to parse env.%s: %v", name, err)
			} else {
				value = v
			}
		}
		return value
	}
}

func envString(name string, def func() string) func() string {
	return func() string {
		value := def()
		if v, ok := os.LookupEnv(name); ok {
			value = v
		}
		return value
	}
}

func BoundWindowLength(v int) int {
	return int(math.Max(4, math.Min(65536, float64(v))))
}

func BoundMelBands(v int) int {
	return int(math.Max(1, math.Min(1024, float64(v))))
}

func BoundClampEps(v float64) float64 {
	return math.Max(1e-12, math.Min(1, v))
}

var (
	STFTWindows = envInts("AUDIOLOSS_STFT_WINDOWS", func() []int { return DefaultSTFTWindows }, BoundWindowLength)
	MelWindows  = envInts("AUDIOLOSS_MEL_WINDOWS", func() []int { return DefaultMelWindows }, BoundWindowLength)
	MelBands    = envInts("AUDIOLOSS_MEL_BANDS", func() []int { return DefaultMelBands }, BoundMelBands)
	WindowType  = envString("AUDIOLOSS_WINDOW_TYPE", func() string { return string(audio.WindowHann) })
	MatchStride = envBool("AUDIOLOSS_MATCH_STRIDE", func() bool { return false })
)

var (
	ClampEps     = envFloat64("AUDIOLOSS_CLAMP_EPS", func() float64 { return 1e-5 }, BoundClampEps)
	SISDRClipMin = envFloat64("AUDIOLOSS_SISDR_CLIP_MIN", func() float64 { return math.Inf(-1) }, func(v float64) float64 { return v })
	Cache        = envString("AUDIOLOSS_CACHE", func() string { return "" })
)
