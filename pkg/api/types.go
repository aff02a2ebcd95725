package api

import "time"

// v0 contains public types shared by the workflows and the run history.

// Stage names one step of a deploy workflow.
type Stage string

const (
	StageShutdown Stage = "shutdown"
	StageRedeploy Stage = "redeploy"
	StageStartup  Stage = "startup"
	StageShowLog  Stage = "showlog"
	// StageDetect is the single stage of the file change detection workflow.
	StageDetect Stage = "detect"
)

// RunStatus is the outcome of a finished run or stage.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Workflow names an entry point of the CLI.
type Workflow string

const (
	WorkflowDeploy  Workflow = "deploy"
	WorkflowRestart Workflow = "restart"
	WorkflowFile    Workflow = "file"
)

type StageResult struct {
	Stage      Stage     `json:"stage" yaml:"stage"`
	Command    string    `json:"command" yaml:"command"`
	Status     RunStatus `json:"status" yaml:"status"`
	DurationMS int64     `json:"duration_ms" yaml:"duration_ms"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

type RunSpec struct {
	ID         int64         `json:"id" yaml:"id"`
	Workflow   Workflow      `json:"workflow" yaml:"workflow"`
	Host       string        `json:"host" yaml:"host"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Status     RunStatus     `json:"status" yaml:"status"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	Stages     []StageResult `json:"stages" yaml:"stages"`
}
