package playback

import (
	"encoding/binary"
	"fmt"

	"tutor-ai/internal/domain"
)

// DecodePCM16 converts little-endian signed 16-bit mono PCM to float32
// samples in [-1, 1).
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd PCM byte length %d", domain.ErrAudioFormat, len(data))
	}
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(data[2*i:]))) / 32768
	}
	return out, nil
}
