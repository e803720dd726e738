package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	ErrEmptyAudioData  = errors.New("empty audio data")
	ErrInvalidChannels = errors.New("invalid channel count")
	ErrMisalignedPCM   = errors.New("pcm data not aligned to frame size")
)

// Blob is a transport-ready media payload.
type Blob struct {
	Data     []byte
	MIMEType string
}

func PCMMimeType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// EncodeFrame converts a captured float frame to a 16-bit PCM blob.
func EncodeFrame(frame []float32, sampleRate int) Blob {
	return Blob{
		Data:     Float32ToPCMBytes(frame),
		MIMEType: PCMMimeType(sampleRate),
	}
}

func (b Blob) Base64() string {
	return base64.StdEncoding.EncodeToString(b.Data)
}

func DecodeBase64(data string) ([]byte, error) {
	if data == "" {
		return nil, ErrEmptyAudioData
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audio: %w", err)
	}
	return raw, nil
}

// DecodePCM16 turns interleaved little-endian 16-bit PCM into a playable buffer.
func DecodePCM16(data []byte, sampleRate, channels int) (*Buffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudioData
	}
	if channels <= 0 {
		return nil, ErrInvalidChannels
	}
	if len(data)%(BytesPerSample*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes for %d channels", ErrMisalignedPCM, len(data), channels)
	}

	samples := PCMBytesToInt16(data)
	frames := len(samples) / channels
	buf := NewBuffer(sampleRate, channels, frames)
	for ch := 0; ch < channels; ch++ {
		dst := buf.Channels[ch]
		for i := 0; i < frames; i++ {
			dst[i] = float32(samples[i*channels+ch]) / 32768.0
		}
	}
	return buf, nil
}
