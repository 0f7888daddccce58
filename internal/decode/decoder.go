// ABOUTME: Decoder interface and factory for codec-specific chunk decoding
// ABOUTME: Selects PCM, Opus, or FLAC based on the negotiated stream format
// Package decode converts the codec-specific payload of one audio
// chunk into PCM for the scheduler and sink. Opus and FLAC decode to
// signed 16-bit little-endian PCM; PCM chunks pass through unchanged at
// their declared bit depth (16 or 24). One Decoder is created per
// stream/start and discarded on stream/end.
package decode

import "fmt"

// Decoder decodes one chunk's payload to interleaved PCM (PCM16LE for
// Opus and FLAC, the declared bit depth for PCM).
type Decoder interface {
	Decode(payload []byte) ([]byte, error)
	Close() error
}

// Format is the subset of stream/start.player that a decoder needs.
type Format struct {
	Codec       string
	SampleRate  int
	Channels    int
	BitDepth    int
	CodecHeader string // base64, codec-specific (e.g. FLAC STREAMINFO)
}

// New constructs the Decoder appropriate for format.Codec.
func New(format Format) (Decoder, error) {
	switch format.Codec {
	case "pcm":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	case "flac":
		return NewFLAC(format)
	default:
		return nil, fmt.Errorf("decode: unsupported codec %q", format.Codec)
	}
}
