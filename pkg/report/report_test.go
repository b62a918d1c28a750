package report_test

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/grexie/audioloss/pkg/audio"
	"github.com/grexie/audioloss/pkg/loss"
	"github.com/grexie/audioloss/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func params() loss.Params {
	return loss.Params{
		STFTWindows:  []int{256, 64},
		MelWindows:   []int{64, 128},
		MelBands:     []int{10, 20},
		WindowType:   audio.WindowHann,
		ClampEps:     1e-5,
		SISDRClipMin: math.Inf(-1),
	}
}

func stereo(samples int, noise float64) *audio.Clip {
	c := &audio.Clip{SampleRate: 16000, Samples: make([][]float64, 2)}
	for ch := range c.Samples {
		c.Samples[ch] = make([]float64, samples)
		for i := range c.Samples[ch] {
			t := float64(i) / 16000
			c.Samples[ch][i] = 0.5*math.Sin(2*math.Pi*float64(300*(ch+1))*t) + noise*math.Sin(float64(i*i%977))
		}
	}
	return c
}

func TestCompare(t *testing.T) {
	estimate := stereo(2100, 0.05)
	reference := stereo(2048, 0)

	r, err := report.Compare(estimate, reference, params(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2048, r.Samples)
	assert.Equal(t, 2, r.Channels)
	assert.Equal(t, 2048, estimate.Len())

	for _, name := range []string{report.LossWaveform, report.LossSISDR, report.LossSTFT, report.LossMel} {
		assert.Contains(t, r.Losses, name)
	}
	assert.Greater(t, r.Losses[report.LossWaveform], 0.0)
	assert.Greater(t, r.Losses[report.LossSTFT], 0.0)
	assert.Greater(t, r.Losses[report.LossMel], 0.0)
	require.Len(t, r.ChannelSISDR, 2)
	assert.InDelta(t, (r.ChannelSISDR[0]+r.ChannelSISDR[1])/2, r.Losses[report.LossSISDR], 1e-9)
	assert.True(t, r.Finite())

	var buf bytes.Buffer
	r.Write(&buf, "Losses")
	assert.Contains(t, buf.String(), report.LossMel)
	assert.Contains(t, buf.String(), "si-sdr channel 1")

	buf.Reset()
	report.WriteHistory(&buf, "History", []report.Result{*r})
	assert.Contains(t, buf.String(), strings.ToUpper(report.LossSTFT))
	assert.Contains(t, buf.String(), fmt.Sprintf("%0.04f", r.Losses[report.LossMel]))
}

func TestCompareIdentical(t *testing.T) {
	r, err := report.Compare(stereo(1024, 0), stereo(1024, 0), params(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0, r.Losses[report.LossWaveform], 1e-12)
	assert.InDelta(t, 0, r.Losses[report.LossSTFT], 1e-12)
	assert.InDelta(t, 0, r.Losses[report.LossMel], 1e-12)
	assert.Less(t, r.Losses[report.LossSISDR], -50.0)
}

func TestCompareMismatch(t *testing.T) {
	mono := &audio.Clip{SampleRate: 16000, Samples: [][]float64{make([]float64, 1024)}}
	_, err := report.Compare(mono, stereo(1024, 0), params(), nil)
	assert.Error(t, err)

	other := stereo(1024, 0)
	other.SampleRate = 8000
	_, err = report.Compare(other, stereo(1024, 0), params(), nil)
	assert.Error(t, err)

	p := params()
	p.MelBands = []int{10}
	_, err = report.Compare(stereo(1024, 0), stereo(1024, 0), p, nil)
	assert.Error(t, err)
}
