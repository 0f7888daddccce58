// ABOUTME: Opus decoder
// ABOUTME: Wraps gopkg.in/hraban/opus.v2 for 48kHz stream decoding
package decode

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrameSamples is the largest frame size libopus will ever
// produce per channel (120ms at 48kHz).
const maxOpusFrameSamples = 5760

// OpusDecoder decodes Opus frames to PCM16LE via libopus.
type OpusDecoder struct {
	decoder  *opus.Decoder
	channels int
}

// NewOpus creates an Opus decoder for format.SampleRate/Channels.
func NewOpus(format Format) (Decoder, error) {
	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("decode: create opus decoder: %w", err)
	}
	return &OpusDecoder{decoder: dec, channels: format.Channels}, nil
}

func (d *OpusDecoder) Decode(payload []byte) ([]byte, error) {
	pcm := make([]int16, maxOpusFrameSamples*d.channels)
	n, err := d.decoder.Decode(payload, pcm)
	if err != nil {
		return nil, fmt.Errorf("decode: opus: %w", err)
	}

	samples := n * d.channels
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(pcm[i]))
	}
	return out, nil
}

func (d *OpusDecoder) Close() error { return nil }
