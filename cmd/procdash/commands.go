package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/loykin/procdash"
	"github.com/loykin/procdash/internal/history"
	"github.com/loykin/procdash/internal/telemetry"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// createRunCommand supervises the configured entries until interrupted.
func createRunCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start autostart entries and supervise until interrupted",
		Long: `Run loads the configuration, starts every entry marked autostart and
prints status events until SIGINT or SIGTERM, then stops everything.

Examples:
  procdash run --config procdash.toml
  PROCDASH_LOG_LEVEL=debug procdash run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			a, err := newApp(ctx, *g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			events, _ := a.mgr.Subscribe(0)
			printed := make(chan struct{})
			go func() {
				defer close(printed)
				for ev := range events {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), formatEvent(ev))
				}
			}()
			a.seed()
			if a.cfg.Telemetry.Enabled {
				go logTelemetry(ctx, a)
			}

			<-ctx.Done()
			a.log.Info("Interrupted; stopping all entries")
			err = a.close()
			// ShutdownAll closed the subscription.
			<-printed
			return err
		},
	}
}

func logTelemetry(ctx context.Context, a *app) {
	s := telemetry.NewSampler(a.cfg.Telemetry.Interval,
		telemetry.WithLogger(a.log), telemetry.WithDiskPath(a.cfg.Telemetry.DiskPath))
	for smp := range s.Run(ctx) {
		a.log.Info("telemetry",
			slog.Float64("cpu", smp.CPUPercent),
			slog.Float64("mem", smp.MemPercent),
			slog.Float64("disk", smp.DiskPercent),
			slog.Float64("load", smp.Load),
			slog.Int("processes", smp.Processes),
			slog.Int("running_entries", a.mgr.Running()))
	}
}

func createConsoleCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive console to add, remove, start and stop entries",
		Long: `Console reads one command per line: add, rm, rename, path, start,
stop, ls and quit. Entries are addressed by id or by name. Everything still
running is stopped when the console exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			a, err := newApp(ctx, *g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.seed()
			c := newConsole(a.mgr, cmd.OutOrStdout(), "procdash> ")
			runErr := c.run(ctx, cmd.InOrStdin())
			return errors.Join(runErr, a.close())
		},
	}
}

func createListCommand(g *GlobalFlags) *cobra.Command {
	f := &ListFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := procdash.LoadConfig(g.ConfigPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ok, err := printOutput(out, f.Output, c.Entries); ok {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tPATH\tAUTOSTART")
			for _, e := range c.Entries {
				path := e.Path
				if path == "" {
					path = "(not set)"
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\n", e.Name, path, e.Autostart)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&f.Output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func createTelemetryCommand(g *GlobalFlags) *cobra.Command {
	f := &TelemetryFlags{}
	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Show host CPU, memory, disk and load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := procdash.LoadConfig(g.ConfigPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("top") {
				f.Top = c.Telemetry.Top
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			out := cmd.OutOrStdout()

			s := telemetry.NewSampler(f.Interval, telemetry.WithDiskPath(c.Telemetry.DiskPath))
			w := telemetry.NewWindow(f.Count)
			// The first CPU reading has no baseline.
			_, _ = s.Sample(ctx)
			for i := 0; i < f.Count; i++ {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(f.Interval):
				}
				smp, err := s.Sample(ctx)
				if err != nil {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
				}
				w.Push(smp)
			}
			samples := w.Samples()
			if ok, err := printOutput(out, f.Output, samples); ok {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "TIME\tCPU%\tMEM%\tDISK%\tLOAD%\tPROCS\tNET UP B/s\tNET DOWN B/s")
			for _, smp := range samples {
				_, _ = fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t%.1f\t%.1f\t%d\t%.0f\t%.0f\n",
					smp.At.Format("15:04:05"), smp.CPUPercent, smp.MemPercent, smp.DiskPercent,
					smp.Load, smp.Processes, smp.NetUpBps, smp.NetDownBps)
			}
			if len(samples) > 1 {
				cpuAvg, memAvg := w.Averages()
				_, _ = fmt.Fprintf(tw, "avg\t%.1f\t%.1f\t\t%.1f\t\t\t\n", cpuAvg, memAvg, (cpuAvg+memAvg)/2)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if f.Top > 0 {
				top, err := telemetry.TopProcesses(ctx, f.Top)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out)
				tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "PID\tNAME\tMEMORY MB")
				for _, p := range top {
					_, _ = fmt.Fprintf(tw, "%d\t%s\t%.1f\n", p.PID, p.Name, p.MemoryMB)
				}
				return tw.Flush()
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&f.Count, "count", "n", 1, "number of samples")
	cmd.Flags().DurationVar(&f.Interval, "interval", time.Second, "time between samples")
	cmd.Flags().IntVar(&f.Top, "top", 0, "also list the N processes using the most memory (default telemetry.top)")
	cmd.Flags().StringVarP(&f.Output, "output", "o", "table", "output format: table, json or yaml")
	cmd.AddCommand(createKillCommand())
	return cmd
}

func createKillCommand() *cobra.Command {
	f := &KillFlags{}
	return &cobra.Command{
		Use:   "kill <pid>",
		Short: "Forcefully terminate a host process by pid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil || pid <= 0 {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			f.PID = int32(pid)
			if err := telemetry.Kill(cmd.Context(), f.PID); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "process %d terminated\n", f.PID)
			return err
		},
	}
}

func createHistoryCommand(g *GlobalFlags) *cobra.Command {
	f := &HistoryFlags{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent lifecycle events from the history store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := procdash.LoadConfig(g.ConfigPath)
			if err != nil {
				return err
			}
			if c.History.DSN == "" {
				return errors.New("history.dsn is not configured")
			}
			sink, err := history.NewSQLSinkFromDSN(cmd.Context(), c.History.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = sink.Close() }()
			events, err := sink.Recent(cmd.Context(), f.Limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ok, err := printOutput(out, f.Output, events); ok {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "TIME\tID\tNAME\tREASON\tSTATUS\tPID\tERROR")
			for _, e := range events {
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%s\n",
					e.OccurredAt.Local().Format(time.DateTime), e.EntryID, e.Name, e.Reason, e.Status, e.PID, dash(e.Error))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum number of events")
	cmd.Flags().StringVarP(&f.Output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "procdash", version)
			return err
		},
	}
}
