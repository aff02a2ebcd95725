package main

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/rdeploy/internal/changes"
	core "github.com/3cpo-dev/rdeploy/internal/core"
	"github.com/3cpo-dev/rdeploy/internal/history"
	"github.com/3cpo-dev/rdeploy/internal/logger"
	"github.com/3cpo-dev/rdeploy/internal/mvn"
	gssh "github.com/3cpo-dev/rdeploy/internal/ssh"
	"github.com/3cpo-dev/rdeploy/internal/telemetry"
	"github.com/3cpo-dev/rdeploy/pkg/api"
)

// app carries what every workflow command shares after config has loaded.
type app struct {
	cfg      core.Config
	metrics  *telemetry.Collector
	logClose io.Closer
}

// Load and validate the config, then attach the configured log file
func loadApp(cmd *cobra.Command, w api.Workflow) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := core.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if w != "" {
		if err := cfg.Validate(w); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	closer := logger.Setup(cmd.ErrOrStderr(), logger.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	return &app{cfg: cfg, metrics: telemetry.NewCollector(), logClose: closer}, nil
}

func (a *app) close() { _ = a.logClose.Close() }

// Record history and push metrics. Neither may change the outcome of the run.
func (a *app) finish(ctx context.Context, rep core.Report, host string) {
	a.metrics.ObserveRun(rep.Workflow, rep.FinishedAt, rep.Err)

	if a.cfg.History.Enabled {
		err := func() error {
			store, err := history.NewStore(a.cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()
			id, err := store.Record(ctx, rep.Spec(host))
			if err == nil {
				log.Debug().Int64("run", id).Msg("run recorded")
			}
			return err
		}()
		_ = core.Handle(log.Logger, core.BestEffort, "record history", err)
	}

	if url := a.cfg.Metrics.Pushgateway; url != "" {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_ = core.Handle(log.Logger, core.BestEffort, "push metrics", a.metrics.Push(pctx, url, a.cfg.Metrics.Job, host))
	}
}

// Open one session and run the deploy or restart workflow over it
func runRemote(cmd *cobra.Command, w api.Workflow) error {
	a, err := loadApp(cmd, w)
	if err != nil {
		return err
	}
	defer a.close()

	params, err := a.cfg.SSHParams()
	if err != nil {
		return err
	}
	sess, err := gssh.Open(cmd.Context(), params, gssh.LogSink{Logger: log.Logger})
	if err != nil {
		return err
	}
	defer sess.Close()
	log.Info().Str("addr", sess.Addr).Msg("connected and authenticated")

	runner := &core.Runner{
		Remote: sess,
		Deployer: &core.Pipeline{
			Remote: sess,
			Paths:  a.cfg.Paths,
			Logger: log.Logger,
		},
		Commands: a.cfg.StageCommands(),
		Observer: a.metrics,
		Logger:   log.Logger,
	}
	var rep core.Report
	if w == api.WorkflowRestart {
		rep = runner.Restart(cmd.Context())
	} else {
		rep = runner.Deploy(cmd.Context())
	}
	a.finish(cmd.Context(), rep, sess.Addr)
	if rep.Err != nil {
		return fmt.Errorf("%s failed: %w", w, rep.Err)
	}
	log.Info().Str("workflow", string(w)).Msg("done")
	return nil
}

// Deploy: pack, upload and unpack, then the optional shutdown command
func newDeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Upload and unpack the apps and config home trees (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemote(cmd, api.WorkflowDeploy)
		},
	}
}

// Restart: shutdown, deploy, startup, show log
func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop the remote app, redeploy it, start it and show its log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemote(cmd, api.WorkflowRestart)
		},
	}
}

// Detect changed files and stage them locally
func newFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file",
		Short: "Copy files changed since the last run into <file_target_dir>/temp",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, api.WorkflowFile)
			if err != nil {
				return err
			}
			defer a.close()

			d := &changes.Detector{
				TargetDir: a.cfg.Paths.FileTargetDir,
				CacheFile: a.cfg.CacheFile(),
				Ignore:    a.cfg.File.Ignore,
				Exclude:   []string{a.cfg.HistoryPath(), a.cfg.Log.File},
				Logger:    log.Logger,
			}
			rep := core.Report{Workflow: api.WorkflowFile, StartedAt: time.Now()}
			res, err := d.Run()
			rep.FinishedAt = time.Now()
			took := rep.FinishedAt.Sub(rep.StartedAt)
			stage := api.StageResult{Stage: api.StageDetect, Status: api.RunSucceeded, DurationMS: took.Milliseconds()}
			if err != nil {
				stage.Status, stage.Error = api.RunFailed, err.Error()
				rep.Err = err
			}
			rep.Stages = []api.StageResult{stage}
			a.metrics.ObserveStage(api.StageDetect, took, err)
			a.metrics.SetChangedFiles(res.Count())
			a.finish(cmd.Context(), rep, "local")
			if err != nil {
				return err
			}

			if runtime.GOOS == "darwin" {
				_ = core.Handle(log.Logger, core.BestEffort, "open staging dir", exec.Command("open", res.StagingDir).Start())
			}
			log.Info().Int("changed", res.Count()).Str("staging", res.StagingDir).Msg("processed changed files")
			return nil
		},
	}
}

// Switch the Maven settings.xml
func newMvnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mvn [profile]",
		Short: "Switch Maven settings.xml to conf/settings/settings-<profile>.xml (or the default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, "")
			if err != nil {
				return err
			}
			defer a.close()

			home, err := mvn.ResolveHome(a.cfg.Maven.MavenHome)
			if err != nil {
				return err
			}
			var profile string
			if len(args) == 1 {
				profile = args[0]
			}
			src, err := mvn.Switch(home, profile)
			if err != nil {
				return err
			}
			if profile == "" {
				log.Info().Str("source", src).Msg("switched to default maven settings")
			} else {
				log.Info().Str("profile", profile).Str("source", src).Msg("switched maven settings")
			}
			return nil
		},
	}
}

// List recent runs
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent deploy, restart and file runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			a, err := loadApp(cmd, "")
			if err != nil {
				return err
			}
			defer a.close()

			store, err := history.NewStore(a.cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWORKFLOW\tHOST\tSTARTED\tTOOK\tSTATUS\tSTAGES")
			for _, r := range runs {
				var stages []string
				for _, s := range r.Stages {
					stages = append(stages, fmt.Sprintf("%s=%s", s.Stage, s.Status))
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Workflow, r.Host, r.StartedAt.Format(time.RFC3339),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.Status, strings.Join(stages, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "number of runs to show")
	return cmd
}
