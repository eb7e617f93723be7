package tone

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAlertPattern(t *testing.T) {
	require.NoError(t, NewAlert.Validate())
	assert.Equal(t, 450*time.Millisecond, NewAlert.Length())
}

func TestSamples_Shape(t *testing.T) {
	samples := NewAlert.Samples()
	require.Len(t, samples, int(NewAlert.Length().Seconds()*SampleRate))

	peak := int(NewAlert.Gain * math.MaxInt16)
	at := func(d time.Duration) int {
		return samples[int(d.Seconds()*SampleRate)]
	}

	// Inside the first pulse the wave is a square of the configured gain.
	v := at(10 * time.Millisecond)
	assert.Contains(t, []int{peak, -peak}, v)

	// The gap between pulses is silent.
	assert.Equal(t, 0, at(210*time.Millisecond))
	assert.Equal(t, 0, at(240*time.Millisecond))

	// The second pulse starts at 250ms.
	assert.Contains(t, []int{peak, -peak}, at(260*time.Millisecond))

	for _, s := range samples {
		assert.LessOrEqual(t, s, peak)
		assert.GreaterOrEqual(t, s, -peak)
	}
}

func TestWAV_RoundTrip(t *testing.T) {
	data, err := WAV(NewAlert)
	require.NoError(t, err)

	dec := wav.NewDecoder(bytes.NewReader(data))
	require.True(t, dec.IsValidFile())

	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, uint32(SampleRate), dec.SampleRate)
	assert.Equal(t, uint16(NumChannels), dec.NumChans)
	assert.Equal(t, uint16(BitDepth), dec.BitDepth)
	assert.Equal(t, NewAlert.Samples(), buf.Data)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
	}{
		{"no pulses", Pattern{FrequencyHz: 880, Gain: 0.3}},
		{"zero frequency", Pattern{Gain: 0.3, Pulses: NewAlert.Pulses}},
		{"above nyquist", Pattern{FrequencyHz: SampleRate, Gain: 0.3, Pulses: NewAlert.Pulses}},
		{"gain too high", Pattern{FrequencyHz: 880, Gain: 1.5, Pulses: NewAlert.Pulses}},
		{"empty pulse", Pattern{FrequencyHz: 880, Gain: 0.3, Pulses: []Pulse{{Start: 0}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.pattern.Validate())
			_, err := WAV(tt.pattern)
			assert.Error(t, err)
		})
	}
}
