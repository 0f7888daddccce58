// ABOUTME: Binary audio-frame encode/decode
// ABOUTME: Implements the 9-byte header that frames encoded audio chunks, plus the JSON envelope
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned when a binary frame is too short to
// contain its header.
var ErrMalformedFrame = errors.New("wire: malformed binary frame")

// ErrUnknownMessageType names the error kind for a text message whose
// type is not recognized. DecodeEnvelope does not return it: unknown
// types are passed through, and callers log and ignore them.
var ErrUnknownMessageType = errors.New("wire: unknown message type")

// Binary frame kinds, per the Sendspin binary protocol. The header is
// always 1 byte of kind plus, for audio chunks, an 8-byte big-endian
// server timestamp in microseconds.
const (
	KindAudioChunk = 0x04
	KindAuxBinary  = 0x08

	// AudioFrameHeaderSize is the fixed header size of an audio chunk
	// frame: 1 byte kind + 8 byte timestamp.
	AudioFrameHeaderSize = 9
)

// AudioChunk is a decoded binary audio frame.
type AudioChunk struct {
	ServerTimestampUS uint64
	Payload           []byte
}

// DecodeBinaryFrame parses a binary WebSocket frame. For any kind other
// than KindAudioChunk it returns a zero AudioChunk, the kind (so the
// caller can log it) and a nil error. An empty frame, or an audio-chunk
// frame shorter than the header, is reported as ErrMalformedFrame.
func DecodeBinaryFrame(data []byte) (chunk AudioChunk, kind byte, err error) {
	if len(data) < 1 {
		return AudioChunk{}, 0, ErrMalformedFrame
	}
	kind = data[0]

	if kind != KindAudioChunk {
		return AudioChunk{}, kind, nil
	}

	if len(data) < AudioFrameHeaderSize {
		return AudioChunk{}, kind, ErrMalformedFrame
	}

	ts := binary.BigEndian.Uint64(data[1:AudioFrameHeaderSize])
	payload := data[AudioFrameHeaderSize:]

	return AudioChunk{ServerTimestampUS: ts, Payload: payload}, kind, nil
}

// EncodeMessage marshals an outbound text message envelope.
func EncodeMessage(msgType string, payload any) ([]byte, error) {
	return json.Marshal(Message{Type: msgType, Payload: payload})
}

// DecodeEnvelope parses the top-level {type, payload} envelope without
// interpreting the payload.
func DecodeEnvelope(data []byte) (msgType string, payload json.RawMessage, err error) {
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	return env.Type, env.Payload, nil
}

// DecodePayload unmarshals a raw payload into dst, wrapping any error.
func DecodePayload(payload json.RawMessage, dst any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("wire: decode payload: %w", err)
	}
	return nil
}
