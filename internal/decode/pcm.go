// ABOUTME: PCM decoder
// ABOUTME: Identity pass-through; the scheduler and sink carry the declared bit depth
package decode

import "fmt"

// PCMDecoder is the identity transform: PCM chunks arrive already in
// their declared bit depth and are handed to the scheduler/sink
// byte-for-byte unchanged.
type PCMDecoder struct {
	bitDepth int
}

// NewPCM creates a PCM decoder for format.BitDepth (16 or 24).
func NewPCM(format Format) (Decoder, error) {
	switch format.BitDepth {
	case 16, 24:
	default:
		return nil, fmt.Errorf("decode: unsupported PCM bit depth %d", format.BitDepth)
	}
	return &PCMDecoder{bitDepth: format.BitDepth}, nil
}

func (d *PCMDecoder) Decode(payload []byte) ([]byte, error) {
	return payload, nil
}

func (d *PCMDecoder) Close() error { return nil }
