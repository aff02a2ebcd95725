package ssh

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
)

// NoiseMarker is filesystem metadata that macOS leaves in packed trees. Lines
// mentioning it are consumed but never delivered to the sink.
const NoiseMarker = ".DS_Store"

// ExecCaptured runs command on a fresh channel and returns its full stdout.
// A nonzero exit status yields an *ExecError carrying the captured stderr.
func (s *Session) ExecCaptured(ctx context.Context, command string) (string, error) {
	ch, err := s.newChannel(ctx)
	if err != nil {
		return "", err
	}
	defer ch.Close()

	var stdout, stderr bytes.Buffer
	ch.Stdout = &stdout
	ch.Stderr = &stderr
	if err := ch.Run(command); err != nil {
		return stdout.String(), exitError(err, command, stderr.String())
	}
	return stdout.String(), nil
}

// ExecStreamed runs command on a fresh channel and hands every non-empty line to
// the session sink as soon as it is read. Both streams are drained before the
// exit status is collected.
func (s *Session) ExecStreamed(ctx context.Context, command string) error {
	ch, err := s.newChannel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	stdout, err := ch.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := ch.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := ch.Start(command); err != nil {
		return fmt.Errorf("start %q: %w", command, err)
	}

	var g errgroup.Group
	g.Go(func() error { return drainLines(stdout, s.sink.Stdout) })
	g.Go(func() error { return drainLines(stderr, s.sink.Stderr) })
	readErr := g.Wait()

	if err := ch.Wait(); err != nil {
		return exitError(err, command, "")
	}
	if readErr != nil {
		return fmt.Errorf("read output of %q: %w", command, readErr)
	}
	return nil
}

func drainLines(r io.Reader, emit func(string)) error {
	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadString('\n')
		if raw != "" {
			line := strings.TrimRight(raw, "\r\n")
			if line != "" && !strings.Contains(line, NoiseMarker) {
				emit(line)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func exitError(err error, command, stderr string) error {
	var ee *xssh.ExitError
	if errors.As(err, &ee) {
		status := ee.ExitStatus()
		if status == 0 {
			status = -1 // killed by signal
		}
		return &ExecError{Status: status, Command: command, Stderr: stderr}
	}
	var missing *xssh.ExitMissingError
	if errors.As(err, &missing) {
		return &ExecError{Status: -1, Command: command, Stderr: stderr}
	}
	return fmt.Errorf("run %q: %w", command, err)
}
