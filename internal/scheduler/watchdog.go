// ABOUTME: Scheduler watchdog recovery conditions
// ABOUTME: Forces buffering exit or flush-and-rebuffer when playback stalls
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/sendspin/sendspin-go/internal/clockfilter"
)

// runWatchdog wakes every second and may trigger recovery: flushing the
// queue and re-entering buffering, per the four conditions in the spec.
func (s *Scheduler) runWatchdog(ctx context.Context) {
	ticker := time.NewTicker(watchdogTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkWatchdog()
		}
	}
}

func (s *Scheduler) checkWatchdog() {
	now := nowFunc()
	quality := s.clock.Snapshot().Quality

	s.mu.Lock()
	defer s.mu.Unlock()

	// Buffering stuck longer than 5s: force playback to start with
	// whatever is queued, without discarding it.
	if s.buffering && s.bufferingSince != 0 && now-s.bufferingSince > int64(bufferingMaxWait/time.Microsecond) {
		log.Printf("scheduler: buffering exceeded 5s, forcing exit")
		s.buffering = false
	}

	if reason := s.recoveryReasonLocked(now, quality); reason != "" {
		s.recoverLocked(now, reason)
	}
}

// recoveryReasonLocked returns a non-empty reason string if any
// flush-and-rebuffer recovery condition holds; it must be called with
// s.mu held.
func (s *Scheduler) recoveryReasonLocked(now int64, quality clockfilter.Quality) string {
	if !s.buffering && s.lastEnqueueUS != 0 && s.lastPlayUnixUS != 0 &&
		now-s.lastPlayUnixUS > int64(stalledPlaybackWait/time.Microsecond) &&
		now-s.lastEnqueueUS < int64(stalledPlaybackWait/time.Microsecond) {
		return "chunks arriving but nothing played"
	}

	if quality == clockfilter.QualityLost && s.consecutiveDrops > syncLossDropsLimit {
		return "sync lost with excessive consecutive drops"
	}

	if len(s.heap) > queueBackupMinLen && s.lastPlayUnixUS != 0 &&
		now-s.lastPlayUnixUS > int64(queueBackupWait/time.Microsecond) {
		return "queue backed up with no playback"
	}

	return ""
}

// recoverLocked flushes the queue, re-enters buffering, and resets the
// consecutive-drop counter. Must be called with s.mu held.
func (s *Scheduler) recoverLocked(now int64, reason string) {
	log.Printf("scheduler: recovery triggered: %s", reason)
	s.stats.Dropped += int64(len(s.heap))
	s.heap = nil
	s.buffering = true
	s.bufferingSince = now
	s.consecutiveDrops = 0
}

// ForceExitBuffering is used by tests (including supervisor-level tests
// simulating a pre-stream watchdog force-exit); production callers never
// need to call this directly since buffering clears itself once the
// target depth is reached or recovery forces a restart.
func (s *Scheduler) ForceExitBuffering() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffering = false
}
