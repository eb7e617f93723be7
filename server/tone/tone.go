// Package tone synthesizes the audible new-alert cue as a WAV clip.
package tone

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

const (
	SampleRate  = 22050
	BitDepth    = 16
	NumChannels = 1

	// pcmFormat is the WAVE_FORMAT_PCM audio format tag.
	pcmFormat = 1
)

// Pulse is one burst of the tone, relative to the start of the pattern.
type Pulse struct {
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
}

// Pattern describes a square-wave cue.
type Pattern struct {
	FrequencyHz float64 `json:"frequencyHz"`
	// Gain is the peak amplitude in [0, 1].
	Gain   float64 `json:"gain"`
	Pulses []Pulse `json:"pulses"`
}

// NewAlert is the cue played when a new SOS arrives: two 880 Hz pulses of
// 200ms, the second one starting 250ms after the first.
var NewAlert = Pattern{
	FrequencyHz: 880,
	Gain:        0.3,
	Pulses: []Pulse{
		{Start: 0, Duration: 200 * time.Millisecond},
		{Start: 250 * time.Millisecond, Duration: 200 * time.Millisecond},
	},
}

// Length is the time from the pattern start to the end of its last pulse.
func (p Pattern) Length() time.Duration {
	var end time.Duration
	for _, pulse := range p.Pulses {
		if e := pulse.Start + pulse.Duration; e > end {
			end = e
		}
	}
	return end
}

// Validate rejects patterns that cannot be rendered.
func (p Pattern) Validate() error {
	if p.FrequencyHz <= 0 || p.FrequencyHz*2 > SampleRate {
		return fmt.Errorf("frequency %.1fHz out of range", p.FrequencyHz)
	}
	if p.Gain < 0 || p.Gain > 1 {
		return fmt.Errorf("gain %.2f out of range", p.Gain)
	}
	if len(p.Pulses) == 0 {
		return errors.New("pattern has no pulses")
	}
	for i, pulse := range p.Pulses {
		if pulse.Start < 0 || pulse.Duration <= 0 {
			return fmt.Errorf("pulse %d has invalid timing", i)
		}
	}
	return nil
}

// Samples renders the pattern as signed 16-bit mono PCM.
func (p Pattern) Samples() []int {
	total := int(p.Length().Seconds() * SampleRate)
	samples := make([]int, total)
	peak := p.Gain * math.MaxInt16

	for _, pulse := range p.Pulses {
		from := int(pulse.Start.Seconds() * SampleRate)
		to := int((pulse.Start + pulse.Duration).Seconds() * SampleRate)
		if to > total {
			to = total
		}
		for i := from; i < to; i++ {
			t := float64(i-from) / SampleRate
			if math.Sin(2*math.Pi*p.FrequencyHz*t) >= 0 {
				samples[i] = int(peak)
			} else {
				samples[i] = -int(peak)
			}
		}
	}

	return samples
}

// Encode writes the pattern to w as a WAV file.
func Encode(w io.WriteSeeker, p Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}

	enc := wav.NewEncoder(w, SampleRate, BitDepth, NumChannels, pcmFormat)
	buf := &audio.IntBuffer{
		Data:           p.Samples(),
		Format:         &audio.Format{SampleRate: SampleRate, NumChannels: NumChannels},
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}

	return enc.Close()
}

// WAV renders the pattern to an in-memory WAV file.
func WAV(p Pattern) ([]byte, error) {
	ws := &writerseeker.WriterSeeker{}
	if err := Encode(ws, p); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(ws.Reader())
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV buffer: %w", err)
	}
	return data, nil
}
