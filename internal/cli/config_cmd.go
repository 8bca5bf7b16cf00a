package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"text/tabwriter"

	"shiftstore/internal/config"
	"shiftstore/internal/profile"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

func newRunsCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored runs",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := root.store.RecentRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(root.out, "No runs recorded")
				return nil
			}
			tw := tabwriter.NewWriter(root.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tSEQUENCES\tCATALOG\tCREATED")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					run.ID, run.JobType, run.Status, run.Sequences, run.Target,
					run.CatalogPath, run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")

	var showSequences bool
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a run with its fit input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			run, err := root.store.Run(id)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("run %s not found", id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(root.out, "Run %s (%s)\n", run.ID, run.JobType)
			fmt.Fprintf(root.out, "Status: %s\n", run.Status)
			fmt.Fprintf(root.out, "Catalog: %s\n", run.CatalogPath)
			fmt.Fprintf(root.out, "Sequences: %d/%d\n", run.Sequences, run.Target)
			if run.Error != "" {
				fmt.Fprintf(root.out, "Error: %s\n", run.Error)
			}

			points, err := root.store.FitInput(id)
			if err != nil {
				return err
			}
			if len(points) > 0 {
				tw := tabwriter.NewWriter(root.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SLOT\tPOSITION\tWIDTH\tCONTRIBUTORS\t")
				for _, p := range points {
					note := ""
					if p.Dropped {
						note = "dropped"
					}
					fmt.Fprintf(tw, "%d\t%g\t%.3f\t%d\t%s\n", p.Slot, p.Position, p.Width, p.Contributors, note)
				}
				tw.Flush()
			}

			if !showSequences {
				return nil
			}
			seqs, err := root.store.RunSequences(id)
			if err != nil {
				return err
			}
			for _, seq := range seqs {
				fmt.Fprintf(root.out, "Sequence %d: anchor %d at slot %d\n", seq.Index, seq.AnchorID, seq.AnchorSlot)
				for _, m := range seq.Members {
					if m.Present {
						fmt.Fprintf(root.out, "  %d: source %d at (%.1f, %.1f) fwhm %.2f\n", m.Slot, m.SourceID, m.X, m.Y, m.FWHM)
					} else {
						fmt.Fprintf(root.out, "  %d: absent at (%.1f, %.1f)\n", m.Slot, m.X, m.Y)
					}
				}
			}
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showSequences, "sequences", false, "also list the members of every sequence")

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long:  "Show or validate shiftstore configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			file := cfg.File
			if file == "" {
				file = "(defaults only)"
			}
			fmt.Fprintf(root.out, "Configuration:\n\n")
			fmt.Fprintf(root.out, "Config File: %s\n", file)
			fmt.Fprintf(root.out, "Database Path: %s\n", cfg.Paths.DatabasePath)
			fmt.Fprintf(root.out, "Profile Directory: %s\n", cfg.Paths.ProfileDir)
			fmt.Fprintf(root.out, "Temp Directory: %s\n", cfg.Processing.TempDir)
			fmt.Fprintf(root.out, "Parallel Jobs: %d\n", cfg.Processing.ParallelJobs)
			fmt.Fprintf(root.out, "Log Level: %s\n", cfg.Logging.Level)
			fmt.Fprintf(root.out, "Detector: %s\n", cfg.Detector.Binary)
			fmt.Fprintf(root.out, "\nFocus:\n")
			printFocus(root, cfg.Focus)
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the focus settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.cfg.Focus.Validate(); err != nil {
				return fmt.Errorf("invalid focus settings: %w", err)
			}
			root.log.Info("configuration validation", "status", "valid")
			fmt.Fprintln(root.out, "Configuration is valid")
			return nil
		},
	}

	cmd.AddCommand(showCmd, validateCmd)
	return cmd
}

func printFocus(root *Root, f config.Focus) {
	axis := "horizontal"
	if !f.Horizontal {
		axis = "vertical"
	}
	fmt.Fprintf(root.out, "  Shifts: %s (%s)\n", formatFloats(f.Shifts), axis)
	fmt.Fprintf(root.out, "  Window Tolerance: %g\n", f.WindowTolerance)
	fmt.Fprintf(root.out, "  Position Tolerance: %g\n", f.PositionTolerance)
	fmt.Fprintf(root.out, "  Partial Length: %d\n", f.PartialLen)
	fmt.Fprintf(root.out, "  Sequences: %d\n", f.Sequences)
	fmt.Fprintf(root.out, "  Min Contributors: %d\n", f.MinContributors)
	if len(f.FocuserPositions) > 0 {
		fmt.Fprintf(root.out, "  Focuser Positions: %s\n", formatFloats(f.FocuserPositions))
	}
}

func newProfileCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage focus profiles",
		Long:  "List, show or save named shift patterns stored under paths.profile_dir",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := profile.List(root.cfg.Paths.ProfileDir)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintf(root.out, "No profiles in %s\n", root.cfg.Paths.ProfileDir)
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(root.out, name)
			}
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show the focus settings a profile resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := profile.Resolve(root.cfg.Paths.ProfileDir, args[0])
			if err != nil {
				return err
			}
			focus := root.cfg.Focus
			p.Apply(&focus)
			fmt.Fprintf(root.out, "Profile: %s\n", p.Name)
			if p.Description != "" {
				fmt.Fprintf(root.out, "Description: %s\n", p.Description)
			}
			printFocus(root, focus)
			return nil
		},
	}

	var (
		flags       focusFlags
		description string
	)
	saveCmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save the configured focus settings, with flag overrides, as a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			// resolved like a run; the catalog is never read
			job, err := flags.request(cmd, name).Job(root.cfg)
			if err != nil {
				return err
			}
			p := profile.FromFocus(name, job.Focus)
			p.Description = description

			dir, err := config.ExpandUser(root.cfg.Paths.ProfileDir)
			if err != nil {
				return err
			}
			path := filepath.Join(dir, name+".toml")
			if err := profile.Save(path, p); err != nil {
				return err
			}
			fmt.Fprintf(root.out, "Saved profile %s to %s\n", name, path)
			return nil
		},
	}
	flags.bind(saveCmd)
	saveCmd.Flags().StringVar(&description, "description", "", "free-form note stored with the profile")

	cmd.AddCommand(listCmd, showCmd, saveCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(root.out, "shiftstore v%s\n", version)
			fmt.Fprintf(root.out, "Built with Go %s\n", runtime.Version())
		},
	}
}
