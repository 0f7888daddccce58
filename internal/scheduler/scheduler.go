// ABOUTME: Jitter-buffered playback scheduler
// ABOUTME: Queues decoded PCM by play instant and releases it on a steady tick
// Package scheduler implements the jitter-buffered playback scheduler:
// a priority queue of decoded PCM buffers keyed by play instant, with
// startup buffering, lateness drop, and watchdog-driven recovery.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sendspin/sendspin-go/internal/clockfilter"
)

// ErrQueueFull is returned by Enqueue when the queue is already at
// capacity.
var ErrQueueFull = errors.New("scheduler: queue full")

// ErrChunkTooLate is returned by Enqueue when the chunk's play instant
// is already more than the late window in the past.
var ErrChunkTooLate = errors.New("scheduler: chunk too late")

const (
	// ChunkDurationMs is fixed by the wire protocol; it must match the
	// server's chunking.
	ChunkDurationMs = 20

	releaseTick  = 10 * time.Millisecond
	watchdogTick = 1 * time.Second

	lateWindow = 50 * time.Millisecond

	bufferingMaxWait    = 5 * time.Second
	stalledPlaybackWait = 3 * time.Second
	queueBackupWait     = 5 * time.Second
	queueBackupMinLen   = 10
	syncLossDropsLimit  = 20

	defaultBufferMs = 11_000
	maxQueueCap     = 600
	queueHeadroom   = 50
)

// nowFunc is overridable in tests.
var nowFunc = func() int64 { return time.Now().UnixMicro() }

// scheduledBuffer is one decoded chunk waiting for its play instant.
type scheduledBuffer struct {
	playAtUnixUS      int64
	pcm               []byte
	serverTimestampUS int64
}

// bufferHeap is a min-heap of scheduledBuffer ordered by playAtUnixUS.
type bufferHeap []scheduledBuffer

func (h bufferHeap) Len() int            { return len(h) }
func (h bufferHeap) Less(i, j int) bool  { return h[i].playAtUnixUS < h[j].playAtUnixUS }
func (h bufferHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *bufferHeap) Push(x any)         { *h = append(*h, x.(scheduledBuffer)) }
func (h *bufferHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Stats mirrors the scheduler_state.stats record from the spec.
type Stats struct {
	Received int64
	Played   int64
	Dropped  int64
}

// Params configures the scheduler's buffering and queue-size behavior.
type Params struct {
	// BufferMs is the jitter buffer's target depth in milliseconds.
	BufferMs int
}

// bufferTargetChunks returns max(1, bufferMs/ChunkDurationMs).
func (p Params) bufferTargetChunks() int {
	target := p.BufferMs / ChunkDurationMs
	if target < 1 {
		return 1
	}
	return target
}

// maxQueueChunks returns min(600, bufferTargetChunks+50).
func (p Params) maxQueueChunks() int {
	return min(maxQueueCap, p.bufferTargetChunks()+queueHeadroom)
}

// Release is called from the scheduler's background release loop for
// every buffer that reaches its play instant. It runs on the
// scheduler's own goroutine, so implementations must not block for long
// or re-enter the scheduler.
type Release func(pcm []byte)

// Scheduler is the jitter-buffered playback scheduler.
type Scheduler struct {
	clock   *clockfilter.Filter
	release Release
	params  Params

	mu               sync.Mutex
	heap             bufferHeap
	buffering        bool
	bufferingSince   int64
	lastPlayUnixUS   int64
	lastEnqueueUS    int64
	consecutiveDrops int
	stats            Stats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. It starts in buffering mode.
func New(clock *clockfilter.Filter, params Params) *Scheduler {
	if params.BufferMs <= 0 {
		params.BufferMs = defaultBufferMs
	}
	return &Scheduler{
		clock:          clock,
		params:         params,
		buffering:      true,
		bufferingSince: nowFunc(),
	}
}

// Start launches the release loop and the watchdog on ctx, invoking
// release for every buffer that reaches its play instant.
func (s *Scheduler) Start(ctx context.Context, release Release) {
	s.release = release
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.runReleaseLoop(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.runWatchdog(runCtx)
	}()
}

// Stop cancels the background tasks and waits for them to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Enqueue schedules a decoded PCM buffer for the given server
// timestamp. It returns ErrChunkTooLate or ErrQueueFull when the chunk
// is dropped at ingress; both are recorded in stats.Dropped.
func (s *Scheduler) Enqueue(serverTimestampUS int64, pcm []byte) error {
	playAt := s.clock.ServerToUnixUS(serverTimestampUS)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Received++

	if playAt-nowFunc() < -int64(lateWindow/time.Microsecond) {
		s.stats.Dropped++
		s.consecutiveDrops++
		return ErrChunkTooLate
	}

	if len(s.heap) >= s.params.maxQueueChunks() {
		s.stats.Dropped++
		return ErrQueueFull
	}

	heap.Push(&s.heap, scheduledBuffer{
		playAtUnixUS:      playAt,
		pcm:               pcm,
		serverTimestampUS: serverTimestampUS,
	})
	s.lastEnqueueUS = nowFunc()
	return nil
}

// Clear flushes the queue and re-enters buffering mode, for stream/clear
// (seek) handling.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Dropped += int64(len(s.heap))
	s.heap = nil
	s.buffering = true
	s.bufferingSince = nowFunc()
	s.consecutiveDrops = 0
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// QueueLen returns the number of buffers currently queued.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// Buffering reports whether the scheduler is still accumulating its
// startup buffer.
func (s *Scheduler) Buffering() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffering
}

func (s *Scheduler) runReleaseLoop(ctx context.Context) {
	ticker := time.NewTicker(releaseTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processQueue()
		}
	}
}

func (s *Scheduler) processQueue() {
	s.mu.Lock()

	if s.buffering {
		if len(s.heap) >= s.params.bufferTargetChunks() {
			s.buffering = false
		} else {
			s.mu.Unlock()
			return
		}
	}

	var toPlay [][]byte
	now := nowFunc()
	for len(s.heap) > 0 {
		next := s.heap[0]
		delta := next.playAtUnixUS - now

		if delta > int64(lateWindow/time.Microsecond) {
			break
		}

		heap.Pop(&s.heap)

		if delta < -int64(lateWindow/time.Microsecond) {
			s.stats.Dropped++
			s.consecutiveDrops++
			log.Printf("scheduler: dropped late buffer, %dus late", -delta)
			continue
		}

		toPlay = append(toPlay, next.pcm)
		s.stats.Played++
		s.lastPlayUnixUS = now
		s.consecutiveDrops = 0
	}
	release := s.release
	s.mu.Unlock()

	if release == nil {
		return
	}
	for _, pcm := range toPlay {
		release(pcm)
	}
}
