package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/shadercam/internal/logging"
)

// ErrAlreadyStarted is returned by Start on a second call.
var ErrAlreadyStarted = errors.New("process already started")

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
// Used to extract structured log info from process output (ffmpeg, gstreamer, etc.)
type LogParser func(line string) (level, msg string)

// KilledExitCode is reported when the process had to be SIGKILLed.
const KilledExitCode = 137

// Process manages the lifecycle of a subprocess.
type Process struct {
	id              string
	args            []string
	logger          logging.Logger
	processLogger   logging.Logger // logger for process output (nil = use logger)
	logParser       LogParser      // parses process output for log level (nil = no parsing)
	outputHandler   OutputHandler
	gracefulTimeout time.Duration // timeout for graceful shutdown before force kill
	killTimeout     time.Duration // timeout after Kill() before giving up

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	state     State
	startedAt time.Time
	exitCode  int
	lastErr   error
	done      chan struct{}
}

// New creates a process for argv. args[0] is the executable.
func New(id string, args []string, logger logging.Logger) *Process {
	return &Process{
		id:              id,
		args:            args,
		logger:          logger,
		state:           StateIdle,
		done:            make(chan struct{}),
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
}

// NewFromCommand creates a process from a shell-like command line.
func NewFromCommand(id, command string, logger logging.Logger) (*Process, error) {
	args, err := parseCommand(command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return New(id, args, logger), nil
}

// Args returns the argument vector, executable first.
func (p *Process) Args() []string {
	return p.args
}

// SetLogParser sets a custom logger and log parser for process output.
// The logger is used for process output (e.g., module="ffmpeg").
// The parser extracts log level from process-specific output formats.
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// SetOutputHandler registers a handler for every output line.
func (p *Process) SetOutputHandler(h OutputHandler) {
	p.outputHandler = h
}

// SetTimeouts overrides the graceful and kill timeouts. Zero keeps the
// current value.
func (p *Process) SetTimeouts(graceful, kill time.Duration) {
	if graceful > 0 {
		p.gracefulTimeout = graceful
	}
	if kill > 0 {
		p.killTimeout = kill
	}
}

// Start launches the subprocess and returns its stdin.
func (p *Process) Start() (io.WriteCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle {
		return nil, ErrAlreadyStarted
	}
	if len(p.args) == 0 {
		return nil, p.fail(fmt.Errorf("empty command"))
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, p.fail(fmt.Errorf("stdin pipe: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, p.fail(fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, p.fail(fmt.Errorf("stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "error", err, "command", strings.Join(p.args, " "))
		return nil, p.fail(err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.state = StateRunning
	p.startedAt = time.Now()
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", strings.Join(p.args, " "))

	var output sync.WaitGroup
	output.Add(2)
	go func() {
		defer output.Done()
		p.streamOutput(stdout, "stdout")
	}()
	go func() {
		defer output.Done()
		p.streamOutput(stderr, "stderr")
	}()

	// Wait must not be called until the pipes are drained.
	go func() {
		output.Wait()
		err := cmd.Wait()
		p.mu.Lock()
		p.exitCode = p.handleProcessExit(err)
		p.state = StateExited
		p.mu.Unlock()
		close(p.done)
	}()

	return stdin, nil
}

func (p *Process) fail(err error) error {
	p.state = StateError
	p.lastErr = err
	p.exitCode = 1
	close(p.done)
	return err
}

// Done is closed once the process has exited or failed to start.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code; valid once Done is closed.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Info returns a snapshot of the process state.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := Info{
		ID:        p.id,
		State:     p.state,
		StartedAt: p.startedAt,
		ExitCode:  p.exitCode,
		LastError: p.lastErr,
	}
	if p.cmd != nil && p.cmd.Process != nil {
		info.PID = p.cmd.Process.Pid
	}
	return info
}

// Finish closes stdin so the child can flush its output, then waits up to
// timeout before escalating to SIGINT and SIGKILL. Returns the exit code.
func (p *Process) Finish(timeout time.Duration) int {
	if !p.beginStopping() {
		<-p.done
		return p.ExitCode()
	}
	if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Warn("Failed to close stdin", "error", err)
	}

	select {
	case <-p.done:
		return p.ExitCode()
	case <-time.After(timeout):
		p.logger.Warn("Process did not exit after EOF", "timeout", timeout)
	}
	p.sendStopSignal()
	return p.waitForExit(p.gracefulTimeout)
}

// Stop sends SIGINT and waits for the process to exit, force-killing it
// after the graceful timeout. Returns the exit code.
func (p *Process) Stop() int {
	if !p.beginStopping() {
		<-p.done
		return p.ExitCode()
	}
	p.sendStopSignal()
	return p.waitForExit(p.gracefulTimeout)
}

// beginStopping moves a running process to stopping. It reports false if
// there is nothing to stop.
func (p *Process) beginStopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateIdle {
		p.state = StateExited
		close(p.done)
		return false
	}
	if p.state != StateRunning {
		return false
	}
	p.state = StateStopping
	return true
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// handleProcessExit extracts exit code from process error and logs non-ExitError errors.
func (p *Process) handleProcessExit(processErr error) int {
	exitCode := exitCodeFromError(processErr)
	if processErr != nil && exitCode == 1 {
		p.logger.Error("Process exited with error", "error", processErr)
	}
	p.logger.Info("Process exited", "id", p.id, "exit_code", exitCode)
	return exitCode
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	p.logger.Info("Sending SIGINT to process", "pid", p.cmd.Process.Pid)
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}
}

// waitForExit waits for the process to exit with a timeout, force-killing if needed.
func (p *Process) waitForExit(timeout time.Duration) int {
	select {
	case <-p.done:
		return p.ExitCode()
	case <-time.After(timeout):
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", timeout)
		// Kill the whole group so grandchildren release the output pipes.
		if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			p.logger.Error("Failed to kill process", "error", err)
		}
		select {
		case <-p.done:
		case <-time.After(p.killTimeout):
			p.logger.Error("Process did not exit after kill signal")
		}
		p.mu.Lock()
		p.exitCode = KilledExitCode
		p.mu.Unlock()
		return KilledExitCode
	}
}

// streamOutput streams output from the subprocess.
// Uses the configured processLogger (or falls back to default logger).
// Uses the configured LogParser to extract log levels from process output.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "fatal", "panic", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "debug", "trace", "verbose":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "source", source, "error", err)
	}
}

// parseCommand parses a command string into arguments
// Handles quoted strings and basic escaping.
func parseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	command = strings.TrimSpace(command)
	runes := []rune(command)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}

	return args, nil
}
