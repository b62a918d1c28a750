package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/grexie/audioloss/pkg/audio"
	"github.com/grexie/audioloss/pkg/loss"
	"github.com/grexie/audioloss/pkg/ops"
	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/gorgonia"
)

const (
	LossWaveform = "waveform/l1"
	LossSISDR    = "waveform/si-sdr"
	LossSTFT     = "stft"
	LossMel      = "mel"
)

// Result holds the losses between an estimate and a reference clip.
type Result struct {
	Digest       string             `json:"digest" bson:"digest"`
	Estimate     string             `json:"estimate" bson:"estimate"`
	Reference    string             `json:"reference" bson:"reference"`
	SampleRate   int                `json:"sample_rate" bson:"sample_rate"`
	Channels     int                `json:"channels" bson:"channels"`
	Samples      int                `json:"samples" bson:"samples"`
	Losses       map[string]float64 `json:"losses" bson:"losses"`
	ChannelSISDR []float64          `json:"channel_si_sdr" bson:"channel_si_sdr"`
	SISDRStdDev  float64            `json:"si_sdr_stddev" bson:"si_sdr_stddev"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
}

// Compare evaluates the reconstruction losses of estimate against reference.
// Both clips are truncated to their common length. pw may be nil.
func Compare(estimate, reference *audio.Clip, params loss.Params, pw progress.Writer) (*Result, error) {
	if estimate.SampleRate != reference.SampleRate {
		return nil, fmt.Errorf("sample rate mismatch: estimate %d, reference %d", estimate.SampleRate, reference.SampleRate)
	}
	if estimate.Channels() != reference.Channels() {
		return nil, fmt.Errorf("channel count mismatch: estimate %d, reference %d", estimate.Channels(), reference.Channels())
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	samples := min(estimate.Len(), reference.Len())
	if samples == 0 {
		return nil, fmt.Errorf("clips contain no samples")
	}
	estimate.Truncate(samples)
	reference.Truncate(samples)

	result := &Result{
		SampleRate: estimate.SampleRate,
		Channels:   estimate.Channels(),
		Samples:    samples,
		Losses:     map[string]float64{},
		CreatedAt:  time.Now(),
	}

	signals := func(g *gorgonia.ExprGraph) (*audio.Signal, *audio.Signal, error) {
		x, err := estimate.Signal(g, "estimate")
		if err != nil {
			return nil, nil, err
		}
		y, err := reference.Signal(g, "reference")
		if err != nil {
			return nil, nil, err
		}
		return x, y, nil
	}

	scalars := []struct {
		name string
		loss loss.Loss
	}{
		{LossWaveform, loss.NewL1Loss()},
		{LossSTFT, params.STFTLoss()},
		{LossMel, params.MelLoss()},
	}

	for _, s := range scalars {
		values, err := evaluate(pw, s.name, func(g *gorgonia.ExprGraph) (*gorgonia.Node, error) {
			x, y, err := signals(g)
			if err != nil {
				return nil, err
			}
			return s.loss.Forward(x, y)
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		result.Losses[s.name] = values[0]
	}

	channels, err := evaluate(pw, LossSISDR, func(g *gorgonia.ExprGraph) (*gorgonia.Node, error) {
		x, err := estimate.ChannelSignal(g, "estimate")
		if err != nil {
			return nil, err
		}
		y, err := reference.ChannelSignal(g, "reference")
		if err != nil {
			return nil, err
		}
		return params.SISDRLoss().Forward(y, x)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", LossSISDR, err)
	}
	result.ChannelSISDR = channels
	result.Losses[LossSISDR], result.SISDRStdDev = meanStdDev(channels)

	return result, nil
}

func evaluate(pw progress.Writer, name string, build func(g *gorgonia.ExprGraph) (*gorgonia.Node, error)) ([]float64, error) {
	tracker := &progress.Tracker{
		Message: fmt.Sprintf("Evaluating %s", name),
		Units:   progress.UnitsDefault,
		Total:   2,
	}
	if pw != nil {
		pw.AppendTracker(tracker)
	}
	tracker.Start()

	g := gorgonia.NewGraph()
	n, err := build(g)
	if err != nil {
		tracker.MarkAsErrored()
		return nil, err
	}
	tracker.Increment(1)

	out, err := ops.Evaluate(g, n)
	if err != nil {
		tracker.MarkAsErrored()
		return nil, err
	}
	tracker.MarkAsDone()
	return out[0], nil
}

func meanStdDev(values []float64) (float64, float64) {
	if len(values) < 2 {
		return stat.Mean(values, nil), 0
	}
	return stat.MeanStdDev(values, nil)
}

// Finite reports whether every loss in r is a finite number.
func (r *Result) Finite() bool {
	for _, v := range r.Losses {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	for _, v := range r.ChannelSISDR {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return !math.IsNaN(r.SISDRStdDev)
}

func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Losses))
	for name := range r.Losses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Result) Write(w io.Writer, title string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendRows([]table.Row{
		{"Estimate", r.Estimate},
		{"Reference", r.Reference},
		{"Sample Rate", fmt.Sprintf("%d", r.SampleRate)},
		{"Channels", fmt.Sprintf("%d", r.Channels)},
		{"Duration", fmt.Sprintf("%0.03fs", float64(r.Samples)/float64(r.SampleRate))},
	})
	t.AppendSeparator()
	for _, name := range r.Names() {
		t.AppendRow(table.Row{name, fmt.Sprintf("%0.06f", r.Losses[name])})
	}
	if len(r.ChannelSISDR) > 1 {
		t.AppendSeparator()
		for i, v := range r.ChannelSISDR {
			t.AppendRow(table.Row{fmt.Sprintf("si-sdr channel %d", i), fmt.Sprintf("%0.04f dB", v)})
		}
		t.AppendRow(table.Row{"si-sdr stddev", fmt.Sprintf("%0.04f dB", r.SISDRStdDev)})
	}
	t.Render()
}

// WriteHistory renders a list of results, one row each.
func WriteHistory(w io.Writer, title string, results []Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Time", "Estimate", "Reference", LossWaveform, LossSISDR, LossSTFT, LossMel})
	for _, r := range results {
		t.AppendRow(table.Row{
			r.CreatedAt.Format(time.RFC3339),
			r.Estimate,
			r.Reference,
			fmt.Sprintf("%0.04f", r.Losses[LossWaveform]),
			fmt.Sprintf("%0.04f", r.Losses[LossSISDR]),
			fmt.Sprintf("%0.04f", r.Losses[LossSTFT]),
			fmt.Sprintf("%0.04f", r.Losses[LossMel]),
		})
	}
	t.Render()
}
