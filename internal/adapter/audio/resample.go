package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"

	"tutor-ai/internal/domain"
)

// Resample converts mono float samples between rates. Equal rates return
// the input unchanged.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from == to || len(samples) == 0 {
		return samples, nil
	}
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d -> %d", domain.ErrAudioFormat, from, to)
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}

	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}
	out, err := r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	res := make([]float32, len(out))
	for i, s := range out {
		res[i] = float32(max(-1, min(1, s)))
	}
	return res, nil
}

// ResamplePCM16 converts 16-bit little-endian mono PCM between rates.
func ResamplePCM16(data []byte, from, to int) ([]byte, error) {
	if from == to {
		return data, nil
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd PCM byte count %d", domain.ErrAudioFormat, len(data))
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = float32(int16(uint16(data[2*i])|uint16(data[2*i+1])<<8)) / 32768
	}
	out, err := Resample(samples, from, to)
	if err != nil {
		return nil, err
	}

	pcm := make([]byte, len(out)*2)
	for i, s := range out {
		v := int16(max(-32768, min(32767, s*32767)))
		pcm[2*i] = byte(v)
		pcm[2*i+1] = byte(uint16(v) >> 8)
	}
	return pcm, nil
}
