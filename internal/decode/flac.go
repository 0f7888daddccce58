// ABOUTME: FLAC decoder using a synthetic per-chunk container
// ABOUTME: Wraps each chunk's raw FLAC frame in a minimal stream header
package decode

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mewkiz/flac"
)

// flacMagic is the 4-byte marker every FLAC stream starts with.
var flacMagic = []byte("fLaC")

// streamInfoBlockSize is the fixed size of a STREAMINFO metadata block
// body, per the FLAC format.
const streamInfoBlockSize = 34

// FLACDecoder decodes FLAC frames to PCM16LE. Each chunk's payload is
// one encoded frame; codec_header carries the STREAMINFO block the
// stream started with, needed to parse every subsequent frame.
type FLACDecoder struct {
	streamInfo []byte
	channels   int
	bitDepth   int
}

// NewFLAC creates a FLAC decoder from format.CodecHeader, the
// base64-encoded 34-byte STREAMINFO block.
func NewFLAC(format Format) (Decoder, error) {
	if format.CodecHeader == "" {
		return nil, fmt.Errorf("decode: flac stream missing codec_header")
	}
	info, err := base64.StdEncoding.DecodeString(format.CodecHeader)
	if err != nil {
		return nil, fmt.Errorf("decode: flac codec_header: %w", err)
	}
	if len(info) != streamInfoBlockSize {
		return nil, fmt.Errorf("decode: flac codec_header length %d, want %d", len(info), streamInfoBlockSize)
	}
	return &FLACDecoder{streamInfo: info, channels: format.Channels, bitDepth: format.BitDepth}, nil
}

// Decode wraps payload in a minimal synthetic FLAC container (magic +
// the stream's STREAMINFO block + the frame bytes) so the mewkiz/flac
// stream parser, which expects a full container, can parse one frame
// at a time from a chunked transport.
func (d *FLACDecoder) Decode(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(flacMagic)

	header := make([]byte, 4)
	header[0] = 0x80 // last-metadata-block flag set, block type 0 (STREAMINFO)
	putUint24(header[1:4], streamInfoBlockSize)
	buf.Write(header)
	buf.Write(d.streamInfo)
	buf.Write(payload)

	stream, err := flac.New(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("decode: flac: open synthetic stream: %w", err)
	}

	frame, err := stream.ParseNext()
	if err != nil {
		return nil, fmt.Errorf("decode: flac: parse frame: %w", err)
	}

	return d.interleave(frame), nil
}

func (d *FLACDecoder) Close() error { return nil }

func putUint24(dst []byte, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	copy(dst, tmp[1:])
}

// interleave flattens a decoded frame's per-channel subframes into
// interleaved PCM16LE, truncating any bit depth above 16.
func (d *FLACDecoder) interleave(f *flac.Frame) []byte {
	if f == nil || len(f.Subframes) == 0 {
		return nil
	}
	channels := len(f.Subframes)
	numSamples := len(f.Subframes[0].Samples)
	shift := d.bitDepth - 16
	out := make([]byte, 0, numSamples*channels*2)

	for i := 0; i < numSamples; i++ {
		for ch := 0; ch < channels; ch++ {
			sample := f.Subframes[ch].Samples[i]
			if shift > 0 {
				sample >>= uint(shift)
			}
			out = binary.LittleEndian.AppendUint16(out, uint16(int16(sample)))
		}
	}
	return out
}
