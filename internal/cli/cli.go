package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"shiftstore/internal/config"
	"shiftstore/internal/pipeline"
	"shiftstore/internal/storage"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type pipelineClient interface {
	Submit(job pipeline.Job) error
	Subscribe() (<-chan pipeline.Result, func())
}

// observable is implemented by pipelines that accept extra collector observers.
type observable interface {
	AddObserver(f pipeline.ObserverFactory)
}

type dialFunc func(addr string) (*grpc.ClientConn, error)

func defaultDial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// Root holds the shared state of all commands.
type Root struct {
	pipeline pipelineClient
	cfg      *config.Config
	log      *slog.Logger
	store    *storage.Store
	out      io.Writer
	dial     dialFunc
}

// NewRoot wires the command state.
func NewRoot(pl pipelineClient, cfg *config.Config, logger *slog.Logger, store *storage.Store) *Root {
	return &Root{
		pipeline: pl,
		cfg:      cfg,
		log:      logger,
		store:    store,
		out:      os.Stdout,
		dial:     defaultDial,
	}
}

func (r *Root) enqueueAndWait(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	resCh, unsubscribe := r.pipeline.Subscribe()
	defer unsubscribe()
	if err := r.enqueue(ctx, job); err != nil {
		return pipeline.Result{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return pipeline.Result{}, ctx.Err()
		case res, ok := <-resCh:
			if !ok {
				return pipeline.Result{}, fmt.Errorf("pipeline stopped before completion")
			}
			if res.Job.ID == job.ID {
				return res, res.Error
			}
		}
	}
}

func (r *Root) enqueue(ctx context.Context, job pipeline.Job) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := r.pipeline.Submit(job); err != nil {
		return err
	}

	r.log.Info("job queued", "type", job.Type, "id", job.ID, "input", job.InputPath)
	return nil
}

// printReport writes the aggregated table of a focus run.
func (r *Root) printReport(res pipeline.Result) {
	rep := res.Report
	fmt.Fprintf(r.out, "Run %s: %s\n", res.Job.ID, res.Status)
	if rep == nil {
		return
	}
	fmt.Fprintf(r.out, "Catalog: %s (%d sources, %d anchors examined)\n", res.Job.InputPath, rep.Sources, rep.Examined)
	fmt.Fprintf(r.out, "Sequences: %d of %d\n", len(rep.Sequences), rep.Target)

	if len(rep.Fit.Positions) > 0 {
		tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "POSITION\tWIDTH\tCONTRIBUTORS")
		for i, pos := range rep.Fit.Positions {
			fmt.Fprintf(tw, "%g\t%.3f\t%d\n", pos, rep.Fit.Widths[i], rep.Fit.Contributors[i])
		}
		tw.Flush()
	}
	for _, d := range rep.Fit.Dropped {
		fmt.Fprintf(r.out, "Dropped %s\n", d)
	}
	if rep.Shortfall != nil {
		fmt.Fprintf(r.out, "Shortfall: %s, fit input withheld\n", rep.Shortfall)
	}
	if errMsg, ok := res.Meta["overlay_error"].(string); ok {
		fmt.Fprintf(r.out, "Overlay failed: %s\n", errMsg)
	} else if path, ok := res.Meta["overlay"].(string); ok {
		fmt.Fprintf(r.out, "Overlay: %s\n", path)
	}
}

func formatFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, ",")
}
