package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"shiftstore/internal/catalog"
	"shiftstore/internal/config"
	"shiftstore/internal/logging"
	"shiftstore/internal/overlay"
	"shiftstore/internal/shiftstore"
	"shiftstore/internal/storage"
)

// router implements Processor and routes jobs to their concrete handlers.
type router struct {
	log       *slog.Logger
	store     *storage.Store
	loader    catalogLoader
	extractor sourceExtractor
	observers ObserverFactory
	renderFn  renderFunc
}

type catalogLoader interface {
	Load(ctx context.Context, path string) ([]shiftstore.Source, error)
}

type sourceExtractor interface {
	Extract(ctx context.Context, image string) ([]shiftstore.Source, error)
}

type renderFunc func(input, output string, marks []overlay.Mark, style overlay.Style) error

func newRouter(logger *slog.Logger, store *storage.Store, cfg *config.Config, observers ObserverFactory) Processor {
	ex := catalog.NewExtractor(cfg.Detector, cfg.Processing.TempDir)
	if cfg.Detector.Binary != "" {
		logging.LogToolStatus(logger, "sextractor", ex.IsAvailable(), cfg.Detector.Binary, nil)
	}
	return &router{
		log:       logger,
		store:     store,
		loader:    &catalog.Loader{Extractor: ex},
		extractor: ex,
		observers: observers,
		renderFn:  overlay.Render,
	}
}

func (r *router) Process(ctx context.Context, job Job) Result {
	switch job.Type {
	case JobFocus:
		return r.handleFocus(ctx, job)
	case JobExtract:
		return r.handleExtract(ctx, job)
	default:
		return Result{Job: job, Error: fmt.Errorf("unknown job type: %s", job.Type)}
	}
}

func (r *router) handleFocus(ctx context.Context, job Job) Result {
	focus := job.Focus
	if err := focus.Validate(); err != nil {
		return Result{Job: job, Error: fmt.Errorf("invalid focus settings: %w", err)}
	}
	positions, err := focus.Positions()
	if err != nil {
		return Result{Job: job, Error: err}
	}

	sources, err := r.loader.Load(ctx, job.InputPath)
	if err != nil {
		return Result{Job: job, Error: fmt.Errorf("load catalog: %w", err)}
	}
	if err := ctx.Err(); err != nil {
		return Result{Job: job, Error: err}
	}

	obs := shiftstore.Observers{logging.NewObserver(r.log.With("run", job.ID))}
	if r.observers != nil {
		if o := r.observers(job); o != nil {
			obs = append(obs, o)
		}
	}
	var rec *overlay.Recorder
	if job.Output != "" {
		rec = overlay.NewRecorder()
		obs = append(obs, rec)
	}

	// one collector per run; the consumed set never leaks between catalogs
	run := shiftstore.NewCollector(focus.Params(), focus.Sequences, obs).Run(sources)

	fit, err := shiftstore.Aggregate(run.Sequences, positions, focus.MinContributors)
	if err != nil {
		return Result{Job: job, Error: err}
	}

	report := &Report{
		Sources:   len(sources),
		Examined:  run.Examined,
		Target:    run.Target,
		Sequences: run.Sequences,
		Positions: positions,
		Fit:       fit,
	}
	if sf := run.Shortfall(); sf != nil {
		report.Shortfall = sf.(*shiftstore.ShortfallError)
	}

	if err := r.store.RecordSequences(job.ID, run.Sequences); err != nil {
		r.log.Warn("failed to store sequences", "run", job.ID, "error", err)
	}
	if err := r.store.RecordFitInput(job.ID, fit, positions); err != nil {
		r.log.Warn("failed to store fit input", "run", job.ID, "error", err)
	}

	meta := focusMeta(report)
	res := Result{Job: job, Status: StatusCompleted, Meta: meta, Report: report}

	if report.Shortfall != nil {
		r.log.Error(report.Shortfall.Error(), "run", job.ID, "catalog", job.InputPath)
		res.Status = StatusShortfall
		if focus.Strict {
			res.Status = StatusFailed
			res.Error = report.Shortfall
		}
	}
	for _, d := range fit.Dropped {
		r.log.Warn("focuser position dropped", "run", job.ID, "slot", d.Slot, "position", d.Position, "contributors", d.Contributors)
	}

	if rec != nil {
		image := overlayImage(job)
		if image == "" {
			meta["overlay_error"] = "no image to draw on"
		} else if err := r.renderFn(image, job.Output, rec.Marks(), overlay.DefaultStyle); err != nil {
			r.log.Warn("overlay failed", "run", job.ID, "error", err)
			meta["overlay_error"] = err.Error()
		} else {
			meta["overlay"] = job.Output
		}
	}
	return res
}

// overlayImage picks the frame to draw on: an explicit "image" option, or
// the input itself when it is a FITS image.
func overlayImage(job Job) string {
	if img, ok := job.Options["image"].(string); ok && img != "" {
		return img
	}
	if f, err := catalog.Detect(job.InputPath); err == nil && f == catalog.FormatFITS {
		return job.InputPath
	}
	return ""
}

func focusMeta(rep *Report) map[string]any {
	dropped := make([]map[string]any, 0, len(rep.Fit.Dropped))
	for _, d := range rep.Fit.Dropped {
		dropped = append(dropped, map[string]any{"slot": d.Slot, "position": d.Position, "contributors": d.Contributors})
	}
	placeholders := 0
	for _, seq := range rep.Sequences {
		placeholders += seq.Placeholders()
	}
	meta := map[string]any{
		"sources":      rep.Sources,
		"examined":     rep.Examined,
		"sequences":    len(rep.Sequences),
		"target":       rep.Target,
		"placeholders": placeholders,
		"positions":    rep.Fit.Positions,
		"widths":       rep.Fit.Widths,
		"contributors": rep.Fit.Contributors,
		"dropped":      dropped,
		"fit_ready":    rep.FitReady(),
	}
	if rep.Shortfall != nil {
		meta["shortfall"] = rep.Shortfall.Error()
	}
	return meta
}

func (r *router) handleExtract(ctx context.Context, job Job) Result {
	if r.extractor == nil {
		return Result{Job: job, Error: fmt.Errorf("no detector configured")}
	}
	sources, err := r.extractor.Extract(ctx, job.InputPath)
	if err != nil {
		return Result{Job: job, Error: err}
	}
	shiftstore.SortByMagnitude(sources)

	out := job.Output
	if out == "" {
		out = strings.TrimSuffix(job.InputPath, filepath.Ext(job.InputPath)) + ".json"
	}
	if err := catalog.WriteJSON(out, sources); err != nil {
		return Result{Job: job, Error: err}
	}
	return Result{Job: job, Status: StatusCompleted, Meta: map[string]any{"sources": len(sources), "output": out}}
}
