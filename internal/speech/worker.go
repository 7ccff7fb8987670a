package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olclarke/hermes/internal/observe"
	"github.com/olclarke/hermes/internal/player"
	"github.com/olclarke/hermes/internal/resilience"
	"github.com/olclarke/hermes/internal/store"
	"github.com/olclarke/hermes/pkg/synth"
)

// reconcileConcurrency bounds the per-guild fan-out during startup
// reconciliation so a large guild count does not hammer the repository.
const reconcileConcurrency = 4

// WorkerConfig holds the collaborators for a [Worker].
type WorkerConfig struct {
	Synthesizer synth.Synthesizer
	Repository  store.Repository

	// Dir is the directory artifacts are written to. It is created on
	// worker construction if missing.
	Dir string

	Metrics *observe.Metrics

	// OnComplete receives the terminal outcome of every processed job. When
	// nil, a default callback persists successful artifacts through
	// Repository.AddTTSFile and logs failures.
	OnComplete func(Result)

	// QueueCapacity bounds the job queue; <= 0 means unbounded.
	QueueCapacity int
}

// Worker synthesizes quote narrations one job at a time, in submission
// order. Submit from any goroutine; processing happens on the single
// goroutine running [Worker.Run]. A failing job never stops the worker.
type Worker struct {
	synth   synth.Synthesizer
	repo    store.Repository
	dir     string
	metrics *observe.Metrics
	onDone  func(Result)

	queue   *player.Queue[Job]
	breaker *resilience.CircuitBreaker
	done    chan struct{}
}

// NewWorker creates a worker writing artifacts under cfg.Dir. Call
// [Worker.Run] to start processing.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("speech: create artifact dir: %w", err)
	}

	w := &Worker{
		synth:   cfg.Synthesizer,
		repo:    cfg.Repository,
		dir:     cfg.Dir,
		metrics: cfg.Metrics,
		onDone:  cfg.OnComplete,
		queue:   player.NewQueue[Job](cfg.QueueCapacity),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "speech-synthesis",
		}),
		done: make(chan struct{}),
	}
	if w.onDone == nil {
		w.onDone = w.persistResult
	}
	return w, nil
}

// Submit enqueues job for background processing. It blocks only while the
// queue is at capacity.
func (w *Worker) Submit(ctx context.Context, job Job) error {
	if err := w.queue.Put(ctx, job); err != nil {
		return fmt.Errorf("speech: submit job for quote %d: %w", job.QuoteID, err)
	}
	return nil
}

// Run processes jobs until ctx is cancelled or [Worker.Close] is called.
// After Close, jobs already queued are still drained before Run returns.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		job, err := w.queue.Get(ctx)
		if err != nil {
			return
		}
		w.process(ctx, job)
	}
}

// Close stops accepting jobs and lets [Worker.Run] drain the backlog. Wait
// on [Worker.Done] for the drain to finish.
func (w *Worker) Close() {
	w.queue.Close()
}

// Done returns a channel closed when the run loop has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Reconcile re-submits jobs for every quote that has no recorded narration
// file, across all known guilds. Run it once at startup, before or
// concurrently with [Worker.Run]; artifact-level idempotence makes double
// submissions harmless.
func (w *Worker) Reconcile(ctx context.Context) error {
	guilds, err := w.repo.GuildIDs(ctx)
	if err != nil {
		return fmt.Errorf("speech: reconcile: list guilds: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for _, guildID := range guilds {
		g.Go(func() error {
			quotes, err := w.repo.MissingTTS(ctx, guildID)
			if err != nil {
				return fmt.Errorf("speech: reconcile guild %s: %w", guildID, err)
			}
			for _, q := range quotes {
				if err := w.Submit(ctx, NewJob(q)); err != nil {
					return err
				}
			}
			if len(quotes) > 0 {
				slog.Info("requeued quotes without narration",
					"guild_id", guildID, "count", len(quotes))
			}
			return nil
		})
	}
	return g.Wait()
}

// process runs one job to its terminal outcome and invokes the completion
// callback exactly once. Panics are not recovered: a panicking synthesizer
// is a bug, not an operational failure.
func (w *Worker) process(ctx context.Context, job Job) {
	path := filepath.Join(w.dir, job.ArtifactName()+".mp3")

	// The artifact may already exist from a previous run or a duplicated
	// submission. Skip straight to success.
	if _, err := os.Stat(path); err == nil {
		slog.Debug("narration artifact already present", "quote_id", job.QuoteID, "path", path)
		w.finish(ctx, Result{Job: job, Path: path}, "cached")
		return
	}

	start := time.Now()
	var data []byte
	err := w.breaker.Execute(func() error {
		var synthErr error
		data, synthErr = w.synth.Synthesize(ctx, job.Text)
		return synthErr
	})
	if w.metrics != nil {
		w.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		w.finish(ctx, Result{
			Job: job,
			Err: fmt.Errorf("%w: quote %d: %w", ErrSynthesisNetwork, job.QuoteID, err),
		}, "network_error")
		return
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		// Remove any partial write so the idempotence check never treats a
		// truncated artifact as done.
		_ = os.Remove(path)
		w.finish(ctx, Result{
			Job: job,
			Err: fmt.Errorf("%w: quote %d: %w", ErrSynthesisFile, job.QuoteID, err),
		}, "file_error")
		return
	}

	w.finish(ctx, Result{Job: job, Path: path}, "ok")
}

func (w *Worker) finish(ctx context.Context, res Result, status string) {
	if res.Err != nil {
		slog.Warn("narration job failed",
			"quote_id", res.Job.QuoteID, "guild_id", res.Job.GuildID, "err", res.Err)
	}
	w.metrics.RecordSpeechJob(ctx, status)
	w.onDone(res)
}

// persistResult is the default completion callback: successful artifacts
// are recorded in the repository so reconciliation stops re-submitting them.
func (w *Worker) persistResult(res Result) {
	if res.Err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.repo.AddTTSFile(ctx, res.Job.QuoteID, res.Job.ArtifactName()); err != nil {
		slog.Error("recording narration file failed",
			"quote_id", res.Job.QuoteID, "err", err)
		if w.metrics != nil {
			w.metrics.RepositoryErrors.Add(ctx, 1)
		}
	}
}
