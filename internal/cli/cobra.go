package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"shiftstore/internal/config"
	"shiftstore/internal/fsutil"
	"shiftstore/internal/grpcserver"
	"shiftstore/internal/pipeline"
	"shiftstore/internal/server"
	"shiftstore/internal/shiftstore"
	"shiftstore/internal/storage"
	"shiftstore/internal/watch"
	"shiftstore/internal/web"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *storage.Store, pipe pipelineClient) *cobra.Command {
	return newRootCmd(NewRoot(pipe, cfg, log, store))
}

func newRootCmd(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shiftstore",
		Short: "Shiftstore finds shift-store focus sequences in star catalogs",
		Long: `Shiftstore scans a source catalog from a shift-store exposure, collects
the trailed sequences each star leaves across the focuser steps, and aggregates
their widths into the per-position input of a focus fit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(root.out)

	rootCmd.AddCommand(newRunCmd(root))
	rootCmd.AddCommand(newBatchCmd(root))
	rootCmd.AddCommand(newExtractCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newSubmitCmd(root))
	rootCmd.AddCommand(newRunsCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newProfileCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

// focusFlags are the per-run overrides shared by run, batch, watch and submit.
type focusFlags struct {
	profile    string
	shifts     []float64
	vertical   bool
	partial    int
	sequences  int
	minContrib int
	positions  []float64
	strict     bool
}

func (f *focusFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.profile, "profile", "", "focus profile name or .toml path")
	fl.Float64SliceVar(&f.shifts, "shifts", nil, "shift pattern in pixels (e.g. 30,30,30)")
	fl.BoolVar(&f.vertical, "vertical", false, "shift pattern progresses along Y instead of X")
	fl.IntVar(&f.partial, "partial", 0, "accept sequences with at least this many matched slots (0 disables)")
	fl.IntVar(&f.sequences, "sequences", 0, "number of sequences to collect")
	fl.IntVar(&f.minContrib, "min-contributors", 0, "minimum widths per focuser position kept in the fit input")
	fl.Float64SliceVar(&f.positions, "positions", nil, "focuser position label for every slot")
	fl.BoolVar(&f.strict, "strict", false, "fail when fewer sequences than requested are found")
}

// request builds a run request; only flags set on the command line override
// the profile and config.
func (f *focusFlags) request(cmd *cobra.Command, catalogPath string) pipeline.Request {
	req := pipeline.Request{
		Catalog:          catalogPath,
		Profile:          f.profile,
		Shifts:           f.shifts,
		FocuserPositions: f.positions,
		Strict:           f.strict,
	}
	fl := cmd.Flags()
	if fl.Changed("vertical") {
		horizontal := !f.vertical
		req.Horizontal = &horizontal
	}
	if fl.Changed("partial") {
		v := f.partial
		req.PartialLen = &v
	}
	if fl.Changed("sequences") {
		v := f.sequences
		req.Sequences = &v
	}
	if fl.Changed("min-contributors") {
		v := f.minContrib
		req.MinContributors = &v
	}
	return req
}

func newRunCmd(root *Root) *cobra.Command {
	var (
		flags  focusFlags
		output string
		image  string
	)

	cmd := &cobra.Command{
		Use:   "run <catalog>",
		Short: "Collect sequences from one catalog and print the fit input",
		Long: `Load a catalog (SExtractor ASCII, JSON, YAML, SQLite or a FITS image run
through the configured detector), collect shift-store sequences brightest first,
and print the median width found at every focuser position.

Examples:
  shiftstore run frame.cat --shifts 30,30,30,30 --sequences 20
  shiftstore run frame.fits --profile c14 --output marks.png
  shiftstore run frame.cat --profile c14 --partial 3 --strict`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := flags.request(cmd, args[0])
			req.Output = output
			req.Image = image
			job, err := req.Job(root.cfg)
			if err != nil {
				return err
			}
			res, err := root.enqueueAndWait(cmd.Context(), job)
			if res.Job.ID != "" {
				root.printReport(res)
			}
			return err
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write an overlay of accepted sequences to this image")
	cmd.Flags().StringVar(&image, "image", "", "image to draw the overlay on (defaults to a FITS input)")

	return cmd
}

func newBatchCmd(root *Root) *cobra.Command {
	var flags focusFlags

	cmd := &cobra.Command{
		Use:   "batch <catalog|dir>...",
		Short: "Run focus collection over many catalogs",
		Long: `Run one focus collection per catalog, at most processing.parallel_jobs at a
time. Directories are expanded to the catalogs they contain.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandCatalogs(args)
			if err != nil {
				return err
			}

			limit := root.cfg.Processing.ParallelJobs
			if limit < 1 {
				limit = 1
			}
			var (
				g      errgroup.Group
				mu     sync.Mutex
				failed int
			)
			g.SetLimit(limit)
			for _, path := range paths {
				g.Go(func() error {
					job, err := flags.request(cmd, path).Job(root.cfg)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					res, err := root.enqueueAndWait(cmd.Context(), job)

					mu.Lock()
					defer mu.Unlock()
					root.printSummary(path, res, err)
					if err != nil {
						failed++
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d runs failed", failed, len(paths))
			}
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

// expandCatalogs replaces directories with the catalogs found beneath them.
func expandCatalogs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := fsutil.ListCatalogs(arg, fsutil.CatalogExts)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalogs found in %s", strings.Join(args, ", "))
	}
	return paths, nil
}

func (r *Root) printSummary(path string, res pipeline.Result, err error) {
	switch {
	case res.Report != nil:
		line := fmt.Sprintf("%s: %s, %d/%d sequences", path, res.Status, len(res.Report.Sequences), res.Report.Target)
		if len(res.Report.Fit.Dropped) > 0 {
			line += fmt.Sprintf(", %d positions dropped", len(res.Report.Fit.Dropped))
		}
		fmt.Fprintln(r.out, line)
	case err != nil:
		fmt.Fprintf(r.out, "%s: failed: %v\n", path, err)
	default:
		fmt.Fprintf(r.out, "%s: %s\n", path, res.Status)
	}
}

func newExtractCmd(root *Root) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "extract <image>",
		Short: "Run the source detector on a FITS image and save the catalog",
		Long: `Run the configured SExtractor binary on an image and write the detections,
brightest first, as a JSON catalog next to the image or to --output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := pipeline.Job{
				ID:        pipeline.NewID("extract"),
				Type:      pipeline.JobExtract,
				InputPath: args[0],
				Output:    output,
			}
			res, err := root.enqueueAndWait(cmd.Context(), job)
			if err != nil {
				return err
			}
			fmt.Fprintf(root.out, "Extracted %v sources to %v\n", res.Meta["sources"], res.Meta["output"])
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "catalog file to write (default <image>.json)")
	return cmd
}

// submitCatalog turns a settled catalog path into a queued focus run.
func (r *Root) submitCatalog(base pipeline.Request) watch.SubmitFunc {
	return func(path string) error {
		req := base
		req.Catalog = path
		job, err := req.Job(r.cfg)
		if err != nil {
			return err
		}
		return r.pipeline.Submit(job)
	}
}

func newWatchCmd(root *Root) *cobra.Command {
	var (
		flags  focusFlags
		settle time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [dir...]",
		Short: "Run focus collection on every new catalog in a directory",
		Long: `Watch directories (default watch.dirs) and queue a focus run for each new
or rewritten catalog once it stops changing. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs := args
			if len(dirs) == 0 {
				dirs = root.cfg.Watch.Dirs
			}
			w, err := watch.New(dirs, root.cfg.Watch.Extensions, settle, root.submitCatalog(flags.request(cmd, "")), root.log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			results, unsubscribe := root.pipeline.Subscribe()
			done := make(chan struct{})
			go func() {
				defer close(done)
				for res := range results {
					root.printSummary(res.Job.InputPath, res, res.Error)
				}
			}()

			err = w.Run(ctx)
			unsubscribe()
			<-done
			return err
		},
	}

	flags.bind(cmd)
	cmd.Flags().DurationVar(&settle, "settle", watch.DefaultSettle, "how long a file must stay unchanged before it is queued")
	return cmd
}

func newServeCmd(root *Root) *cobra.Command {
	var (
		addr      string
		grpcAddr  string
		watchDirs []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC APIs",
		Long: `Start an HTTP server for submitting and inspecting runs, with a websocket
feed of collector events at /ws, and the gRPC Focus service. Optionally watch
directories for new catalogs.

Examples:
  shiftstore serve --addr :8080
  shiftstore serve --addr :8080 --grpc-addr "" --watch /data/focus`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub := web.NewHub(root.log)
			if obs, ok := root.pipeline.(observable); ok {
				obs.AddObserver(func(job pipeline.Job) shiftstore.Observer {
					return hub.Observer(job.ID)
				})
			}

			var w *watch.Watcher
			if len(watchDirs) > 0 {
				var err error
				w, err = watch.New(watchDirs, root.cfg.Watch.Extensions, 0, root.submitCatalog(pipeline.Request{}), root.log)
				if err != nil {
					return err
				}
			}

			root.log.Info("starting server",
				"addr", addr,
				"grpc_addr", grpcAddr,
				"watch_dirs", watchDirs,
			)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				hub.Run(ctx)
				return nil
			})
			g.Go(func() error {
				return server.NewServer(addr, root.cfg, root.store, root.pipeline, hub, root.log).Start(ctx)
			})
			if grpcAddr != "" {
				g.Go(func() error {
					return grpcserver.NewServer(root.cfg, root.store, root.pipeline, root.log).Start(ctx, grpcAddr)
				})
			}
			if w != nil {
				g.Go(func() error { return w.Run(ctx) })
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", root.cfg.Server.Addr, "HTTP address (host:port)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", root.cfg.Server.GRPCAddr, "gRPC address, empty to disable")
	cmd.Flags().StringSliceVar(&watchDirs, "watch", root.cfg.Watch.Dirs, "directories to monitor for new catalogs")

	return cmd
}

func newSubmitCmd(root *Root) *cobra.Command {
	var (
		flags  focusFlags
		remote string
		output string
		image  string
		wait   bool
		poll   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit <catalog>",
		Short: "Queue a run on a remote shiftstore server over gRPC",
		Long: `Queue a focus run on a server started with "shiftstore serve". Paths are
resolved on the server. With --wait, poll until the run finishes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := root.dial(remote)
			if err != nil {
				return fmt.Errorf("connect %s: %w", remote, err)
			}
			defer conn.Close()
			client := grpcserver.NewClient(conn)

			req := flags.request(cmd, args[0])
			req.Output = output
			req.Image = image
			id, err := client.Submit(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(root.out, "Submitted run %s to %s\n", id, remote)
			if !wait {
				return nil
			}
			return root.waitRemote(ctx, client, id, poll)
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVar(&remote, "remote", root.cfg.Server.GRPCAddr, "gRPC address of the server")
	cmd.Flags().StringVarP(&output, "output", "o", "", "overlay image written by the server")
	cmd.Flags().StringVar(&image, "image", "", "image the server draws the overlay on")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the run to finish")
	cmd.Flags().DurationVar(&poll, "poll", time.Second, "status poll interval with --wait")

	return cmd
}

func (r *Root) waitRemote(ctx context.Context, client *grpcserver.Client, id string, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		got, err := client.GetRun(ctx, id)
		if err != nil {
			return err
		}
		run, _ := got["run"].(map[string]any)
		status, _ := run["status"].(string)
		switch status {
		case pipeline.StatusQueued, pipeline.StatusRunning:
		default:
			fmt.Fprintf(r.out, "Run %s: %s, %v/%v sequences\n", id, status, run["sequences"], run["target"])
			if status == pipeline.StatusFailed {
				msg, _ := run["error"].(string)
				return fmt.Errorf("run %s failed: %s", id, msg)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
