package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/echonote/internal/utils"
)

// Source abstracts the audio input device.
type Source interface {
	// Open acquires the device. Implementations return an error when no
	// device is selected or permission is denied.
	Open(deviceID string) (Stream, error)
}

// Stream is one live capture session on a device.
type Stream interface {
	// Frames yields raw encoded audio data units. The channel closes when
	// the device stops.
	Frames() <-chan []byte
	// Frequencies returns the current frequency-bin snapshot for
	// visualization.
	Frequencies() []float64
	Close() error
}

// Visualizer renders a levels display. Purely cosmetic: any failure is
// swallowed and capture continues.
type Visualizer interface {
	Render(levels []float64)
}

// Transfer sends one chunk upstream. Implementations carry the growing
// manifest of previously accepted chunk names across calls.
type Transfer interface {
	SendChunk(ctx context.Context, data []byte, isLast bool) (filename string, err error)
}

type Options struct {
	// MaxBufferedFrames bounds the in-memory frame buffer; reaching it
	// triggers an asynchronous flush.
	MaxBufferedFrames int
	// ForceFlushEvery bounds worst-case data loss on crash by flushing the
	// buffer even when the frame threshold was not reached.
	ForceFlushEvery time.Duration
	// VisualizeEvery is the redraw cadence; zero disables visualization.
	VisualizeEvery time.Duration
}

func (o *Options) defaults() {
	if o.MaxBufferedFrames <= 0 {
		o.MaxBufferedFrames = 16
	}
	if o.ForceFlushEvery <= 0 {
		o.ForceFlushEvery = 2 * time.Minute
	}
}

type flushJob struct {
	data  []byte
	final bool
	resp  chan flushResult // nil for fire-and-forget flushes
}

type flushResult struct {
	filename string
	err      error
}

// Recorder turns a live device stream into a time-ordered sequence of
// bounded chunks and hands them to the transfer layer. The capture hot path
// never blocks on network I/O: flushes run on a separate uploader goroutine
// and flush failures are logged, not raised.
type Recorder struct {
	source   Source
	transfer Transfer
	viz      Visualizer
	log      *logrus.Logger
	opts     Options

	mu       sync.Mutex
	stream   Stream
	cancel   context.CancelFunc
	done     chan struct{}
	jobs     chan flushJob
	buf      [][]byte
	captured bool
	accepted bool
}

func New(source Source, transfer Transfer, viz Visualizer, log *logrus.Logger, opts Options) *Recorder {
	if log == nil {
		log = logrus.New()
	}
	opts.defaults()
	return &Recorder{
		source:   source,
		transfer: transfer,
		viz:      viz,
		log:      log,
		opts:     opts,
	}
}

// Start acquires the device and begins capturing.
func (r *Recorder) Start(ctx context.Context, deviceID string) error {
	const op = "Recorder.Start"

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil {
		return utils.E(utils.CodeConflict, op, "already recording", nil)
	}

	stream, err := r.source.Open(deviceID)
	if err != nil {
		return utils.E(utils.CodeDeviceUnavailable, op, "audio device unavailable", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.stream = stream
	r.cancel = cancel
	r.done = make(chan struct{})
	// one slot beyond the final chunk keeps Stop from racing slow uploads
	r.jobs = make(chan flushJob, 4)
	r.buf = nil
	r.captured = false
	r.accepted = false

	go r.uploadLoop(loopCtx)
	go r.captureLoop(loopCtx, stream)
	return nil
}

// Stop stops the device, flushes the remaining buffer as the final chunk,
// and returns the server-assigned durable filename.
func (r *Recorder) Stop(ctx context.Context) (string, error) {
	const op = "Recorder.Stop"

	r.mu.Lock()
	stream := r.stream
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if stream == nil {
		return "", utils.E(utils.CodeNoAudioCaptured, op, "not recording", nil)
	}

	// Stop the device first so the capture loop drains every frame it
	// flushes on close; the loop exits once Frames() is exhausted.
	_ = stream.Close()
	<-done
	cancel()

	r.mu.Lock()
	rest := flatten(r.buf)
	r.buf = nil
	captured := r.captured
	accepted := r.accepted
	jobs := r.jobs
	r.stream = nil
	r.mu.Unlock()

	if !captured && !accepted {
		close(jobs)
		return "", utils.E(utils.CodeNoAudioCaptured, op, "no audio was captured", nil)
	}

	resp := make(chan flushResult, 1)
	jobs <- flushJob{data: rest, final: true, resp: resp}
	close(jobs)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resp:
		if res.err != nil {
			return "", utils.E(utils.CodeReassemblyFailed, op, "final chunk upload failed", res.err)
		}
		return res.filename, nil
	}
}

func (r *Recorder) captureLoop(ctx context.Context, stream Stream) {
	defer close(r.done)

	forceFlush := time.NewTicker(r.opts.ForceFlushEvery)
	defer forceFlush.Stop()

	var vizC <-chan time.Time
	if r.viz != nil && r.opts.VisualizeEvery > 0 {
		vizTicker := time.NewTicker(r.opts.VisualizeEvery)
		defer vizTicker.Stop()
		vizC = vizTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-stream.Frames():
			if !ok {
				return
			}
			r.mu.Lock()
			r.captured = true
			r.buf = append(r.buf, frame)
			full := len(r.buf) >= r.opts.MaxBufferedFrames
			var data []byte
			if full {
				data = flatten(r.buf)
				r.buf = nil
			}
			r.mu.Unlock()
			if full {
				r.enqueue(data)
			}

		case <-forceFlush.C:
			r.mu.Lock()
			data := flatten(r.buf)
			r.buf = nil
			r.mu.Unlock()
			if len(data) > 0 {
				r.enqueue(data)
			}

		case <-vizC:
			r.renderViz(stream)
		}
	}
}

// enqueue hands a chunk to the uploader without blocking capture. When the
// backlog is full the chunk is dropped with a log line; intermediate flushes
// are best-effort.
func (r *Recorder) enqueue(data []byte) {
	select {
	case r.jobs <- flushJob{data: data}:
	default:
		r.log.WithField("bytes", len(data)).Warn("upload backlog full, dropping chunk")
	}
}

func (r *Recorder) uploadLoop(ctx context.Context) {
	for job := range r.jobs {
		// uploads stay strictly ordered: one at a time, in queue order
		filename, err := r.transfer.SendChunk(context.WithoutCancel(ctx), job.data, job.final)
		if err == nil {
			r.mu.Lock()
			r.accepted = true
			r.mu.Unlock()
		}

		if job.resp != nil {
			job.resp <- flushResult{filename: filename, err: err}
			continue
		}
		if err != nil {
			r.log.WithError(err).WithField("bytes", len(job.data)).Warn("chunk upload failed")
		}
	}
}

func (r *Recorder) renderViz(stream Stream) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("panic", rec).Debug("visualizer panicked")
		}
	}()
	r.viz.Render(stream.Frequencies())
}

func flatten(frames [][]byte) []byte {
	var n int
	for _, f := range frames {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}
