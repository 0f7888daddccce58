// ABOUTME: Tests for the FLAC decoder
// ABOUTME: Verifies codec_header validation and the 24-bit block length encoding
package decode

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestNewFLACRequiresCodecHeader(t *testing.T) {
	_, err := NewFLAC(Format{Codec: "flac", Channels: 2, BitDepth: 16})
	if err == nil || !strings.Contains(err.Error(), "codec_header") {
		t.Fatalf("expected codec_header error, got %v", err)
	}
}

func TestNewFLACRejectsWrongStreamInfoLength(t *testing.T) {
	short := base64.StdEncoding.EncodeToString(make([]byte, 10))
	_, err := NewFLAC(Format{Codec: "flac", CodecHeader: short})
	if err == nil {
		t.Fatal("expected error for short STREAMINFO block")
	}
}

func TestNewFLACAcceptsValidStreamInfoLength(t *testing.T) {
	header := base64.StdEncoding.EncodeToString(make([]byte, streamInfoBlockSize))
	d, err := NewFLAC(Format{Codec: "flac", Channels: 2, BitDepth: 16, CodecHeader: header})
	if err != nil {
		t.Fatalf("NewFLAC: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestPutUint24EncodesBigEndian24Bits(t *testing.T) {
	dst := make([]byte, 3)
	putUint24(dst, streamInfoBlockSize)
	if dst[0] != 0 || dst[1] != 0 || dst[2] != streamInfoBlockSize {
		t.Errorf("expected [0,0,%d], got %v", streamInfoBlockSize, dst)
	}
}
