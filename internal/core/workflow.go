package core

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/3cpo-dev/rdeploy/pkg/api"
)

// Executor runs a remote command, streaming its output.
type Executor interface {
	ExecStreamed(ctx context.Context, command string) error
}

// Deployer performs the redeploy stage.
type Deployer interface {
	Run(ctx context.Context) error
}

// Observer is told about every finished stage.
type Observer interface {
	ObserveStage(stage api.Stage, d time.Duration, err error)
}

// Report describes one workflow run.
type Report struct {
	Workflow   api.Workflow
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     []api.StageResult
	Err        error
}

func (r Report) Status() api.RunStatus {
	if r.Err != nil {
		return api.RunFailed
	}
	return api.RunSucceeded
}

// Spec converts the report into the history record for host.
func (r Report) Spec(host string) api.RunSpec {
	spec := api.RunSpec{
		Workflow:   r.Workflow,
		Host:       host,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Status:     r.Status(),
		Stages:     r.Stages,
	}
	if r.Err != nil {
		spec.Error = r.Err.Error()
	}
	return spec
}

// Runner drives the deploy and restart workflows over one session.
type Runner struct {
	Remote   Executor
	Deployer Deployer
	Commands StageCommands
	Observer Observer
	Logger   zerolog.Logger
}

type stage struct {
	name    api.Stage
	command string
	policy  Policy
	run     func(ctx context.Context) error
}

func (r *Runner) remoteStage(name api.Stage, command string, policy Policy) stage {
	return stage{name: name, command: command, policy: policy, run: func(ctx context.Context) error {
		return r.Remote.ExecStreamed(ctx, command)
	}}
}

func (r *Runner) redeployStage() stage {
	return stage{name: api.StageRedeploy, policy: Fatal, run: r.Deployer.Run}
}

// Restart runs shutdown, redeploy, startup and showlog in order. Any failure
// except in showlog stops the run.
func (r *Runner) Restart(ctx context.Context) Report {
	return r.run(ctx, api.WorkflowRestart, []stage{
		r.remoteStage(api.StageShutdown, ResolveStageCommand(r.Commands.Shutdown, ShutdownScript), Fatal),
		r.redeployStage(),
		r.remoteStage(api.StageStartup, ResolveStageCommand(r.Commands.Startup, StartupScript), Fatal),
		r.remoteStage(api.StageShowLog, ResolveStageCommand(r.Commands.ShowLog, ShowLogScript), BestEffort),
	})
}

// Deploy redeploys and then, only when an explicit shutdown command is
// configured, runs it. There is no fallback script here.
func (r *Runner) Deploy(ctx context.Context) Report {
	stages := []stage{r.redeployStage()}
	if strings.TrimSpace(r.Commands.Shutdown) != "" {
		stages = append(stages, r.remoteStage(api.StageShutdown, ResolveStageCommand(r.Commands.Shutdown, ShutdownScript), Fatal))
	}
	return r.run(ctx, api.WorkflowDeploy, stages)
}

func (r *Runner) run(ctx context.Context, w api.Workflow, stages []stage) Report {
	rep := Report{Workflow: w, StartedAt: time.Now()}
	for _, s := range stages {
		if err := r.runStage(ctx, &rep, s); err != nil {
			rep.Err = err
			break
		}
	}
	rep.FinishedAt = time.Now()
	return rep
}

func (r *Runner) runStage(ctx context.Context, rep *Report, s stage) error {
	logger := r.Logger.With().Str("stage", string(s.name)).Logger()
	ev := logger.Info()
	if s.command != "" {
		ev = ev.Str("command", s.command)
	}
	ev.Msg("stage started")

	start := time.Now()
	err := s.run(ctx)
	d := time.Since(start)

	res := api.StageResult{Stage: s.name, Command: s.command, Status: api.RunSucceeded, DurationMS: d.Milliseconds()}
	if err != nil {
		res.Status = api.RunFailed
		res.Error = err.Error()
	} else {
		logger.Info().Dur("took", d).Msg("stage finished")
	}
	rep.Stages = append(rep.Stages, res)
	if r.Observer != nil {
		r.Observer.ObserveStage(s.name, d, err)
	}
	return Handle(logger, s.policy, string(s.name), err)
}
