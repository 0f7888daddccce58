// ABOUTME: Sink interface shared by the HTTP and oto sinks
// ABOUTME: Defines the lifecycle and playback contract the scheduler releases into
// Package sink delivers decoded PCM to its final destination: either a
// local HTTP stream for a host media player to pull, or direct
// playback on a local audio device.
package sink

// Sink receives decoded PCM buffers in play order.
type Sink interface {
	// Start prepares the sink for a given format. Called once per
	// stream/start.
	Start(sampleRate, channels, bitDepth int) error

	// Play delivers one decoded PCM buffer. The caller applies no
	// volume or mute; a sink that honours them applies them itself
	// (OtoSink does, HTTPSink does not).
	Play(pcm []byte) error

	// ClearBuffer discards any buffered-but-not-yet-delivered audio,
	// for stream/clear (seek) handling.
	ClearBuffer()

	// Stop releases the sink's resources. Called on stream/end or
	// shutdown.
	Stop() error

	// IsActive reports whether Start has been called without a
	// matching Stop.
	IsActive() bool
}
