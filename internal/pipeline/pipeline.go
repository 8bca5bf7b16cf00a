package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"log/slog"

	"shiftstore/internal/config"
	"shiftstore/internal/logging"
	"shiftstore/internal/shiftstore"
	"shiftstore/internal/storage"
)

// JobType enumerates supported run categories.
type JobType string

const (
	JobFocus   JobType = "focus"
	JobExtract JobType = "extract"
)

// Run statuses as persisted in the store.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusShortfall = "shortfall"
	StatusFailed    = "failed"
)

// Job represents a single run request.
type Job struct {
	ID        string
	Type      JobType
	InputPath string
	// Output is the overlay image for focus runs and the catalog file for
	// extract runs. Empty skips writing.
	Output  string
	Focus   config.Focus
	Options map[string]any
}

// Result captures the outcome of a Job.
type Result struct {
	Job    Job
	Status string
	Error  error
	Meta   map[string]any
	Report *Report
}

// Report is the in-memory outcome of a focus run.
type Report struct {
	Sources   int
	Examined  int
	Target    int
	Sequences []shiftstore.Sequence
	Positions []float64
	Fit       shiftstore.FitInput
	// Shortfall is set when fewer sequences than the target were found.
	Shortfall *shiftstore.ShortfallError
}

// FitReady reports whether the fit input may be handed to the focus fit.
func (r *Report) FitReady() bool {
	return r != nil && r.Shortfall == nil && len(r.Fit.Positions) > 0
}

// Processor executes a job and returns a Result.
type Processor interface {
	Process(ctx context.Context, job Job) Result
}

// ObserverFactory supplies an extra observer for the collector of one job.
type ObserverFactory func(job Job) shiftstore.Observer

// Pipeline orchestrates job dispatch across workers.
type Pipeline struct {
	processor Processor
	log       *slog.Logger
	jobs      chan Job
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	store     *storage.Store
	cfg       *config.Config
	mu        sync.Mutex
	subs      map[int]chan Result
	nextSubID int
	observers []ObserverFactory
}

// New creates a new Pipeline with the given concurrency.
func New(ctx context.Context, concurrency int, logger *slog.Logger, store *storage.Store, cfg *config.Config) *Pipeline {
	return newPipeline(ctx, concurrency, logger, store, cfg, nil)
}

func newPipeline(ctx context.Context, concurrency int, logger *slog.Logger, store *storage.Store, cfg *config.Config, proc Processor) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		log:    logger,
		jobs:   make(chan Job, concurrency*2),
		cancel: cancel,
		store:  store,
		cfg:    cfg,
		subs:   make(map[int]chan Result),
	}

	p.startOnce.Do(func() {
		if proc == nil {
			proc = newRouter(logger, store, cfg, p.observerFor)
		}
		p.processor = proc
		for i := 0; i < concurrency; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
	})

	return p
}

// AddObserver registers a factory whose observers watch every later run.
func (p *Pipeline) AddObserver(f ObserverFactory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, f)
}

func (p *Pipeline) observerFor(job Job) shiftstore.Observer {
	p.mu.Lock()
	factories := append([]ObserverFactory(nil), p.observers...)
	p.mu.Unlock()

	var obs shiftstore.Observers
	for _, f := range factories {
		if o := f(job); o != nil {
			obs = append(obs, o)
		}
	}
	return obs
}

// Submit adds a job to the processing queue.
func (p *Pipeline) Submit(job Job) error {
	if p.store != nil {
		optsJSON, _ := json.Marshal(map[string]any{"focus": job.Focus, "output": job.Output, "options": job.Options})
		_ = p.store.RecordRunQueued(storage.RunRecord{
			ID:          job.ID,
			JobType:     string(job.Type),
			Status:      StatusQueued,
			CatalogPath: job.InputPath,
			OptionsJSON: string(optsJSON),
			Target:      job.Focus.Sequences,
		})
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return errors.New("job queue is full")
	}
}

// Stop signals workers to exit and waits for completion.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		close(p.jobs)
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			start := time.Now()

			logging.LogRunStart(p.log, string(job.Type), job.ID, job.InputPath, map[string]any{
				"worker":  id,
				"output":  job.Output,
				"shifts":  job.Focus.Shifts,
				"target":  job.Focus.Sequences,
				"options": job.Options,
			})

			if p.store != nil {
				_ = p.store.RecordRunStart(job.ID)
			}
			res := p.processor.Process(ctx, job)
			if res.Status == "" {
				res.Status = StatusCompleted
				if res.Error != nil {
					res.Status = StatusFailed
				}
			}
			duration := time.Since(start)

			if res.Error != nil {
				logging.LogRunError(p.log, string(job.Type), job.ID, duration, res.Error, map[string]any{
					"input":  job.InputPath,
					"output": job.Output,
				})
			} else {
				logging.LogRunComplete(p.log, string(job.Type), job.ID, duration, res.Meta)
			}
			if p.store != nil {
				_ = p.store.RecordRunResult(job.ID, res.Status, sequenceCount(res), res.Meta, errString(res.Error))
			}

			p.broadcast(res)
		}
	}
}

// Subscribe returns a channel for receiving job results and an unsubscribe function.
func (p *Pipeline) Subscribe() (<-chan Result, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Result, 8)
	p.subs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			close(c)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func sequenceCount(res Result) int {
	if res.Report == nil {
		return 0
	}
	return len(res.Report.Sequences)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (p *Pipeline) broadcast(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- res:
		default:
			p.log.Warn("result channel full", "subscriber", id, "run", res.Job.ID)
		}
	}
}
