package ssh

import (
	"sync"

	"github.com/rs/zerolog"
)

// Sink receives remote output one line at a time. ExecStreamed calls Stdout and
// Stderr from two goroutines, so implementations must be safe for that.
type Sink interface {
	Stdout(line string)
	Stderr(line string)
}

// LogSink writes stdout lines at info level and stderr lines at error level.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Stdout(line string) { s.Logger.Info().Msg(line) }
func (s LogSink) Stderr(line string) { s.Logger.Error().Msg(line) }

type NopSink struct{}

func (NopSink) Stdout(string) {}
func (NopSink) Stderr(string) {}

// CaptureSink records every delivered line in order of arrival.
type CaptureSink struct {
	mu     sync.Mutex
	stdout []string
	stderr []string
}

func (s *CaptureSink) Stdout(line string) {
	s.mu.Lock()
	s.stdout = append(s.stdout, line)
	s.mu.Unlock()
}

func (s *CaptureSink) Stderr(line string) {
	s.mu.Lock()
	s.stderr = append(s.stderr, line)
	s.mu.Unlock()
}

// Lines returns copies of the captured stdout and stderr lines.
func (s *CaptureSink) Lines() (stdout, stderr []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stdout...), append([]string(nil), s.stderr...)
}
