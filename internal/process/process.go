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

	"golang.org/x/sys/unix"

	"github.com/smazurov/simstream/internal/logging"
)

const (
	defaultGracefulTimeout = 5 * time.Second
	defaultKillTimeout     = 5 * time.Second

	// ExitKilled is reported when the process had to be force-killed.
	ExitKilled = 137
)

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LineFunc adapts a function to OutputHandler.
type LineFunc func(source, line string)

func (f LineFunc) HandleLine(source, line string) { f(source, line) }

// Options configures a subprocess.
type Options struct {
	ID   string
	Path string
	Args []string
	Env  []string

	// Stdin exposes a writable pipe to the child's stdin.
	Stdin bool
	// StdoutLines streams stdout to Output line by line instead of exposing
	// it through Stdout.
	StdoutLines bool

	Logger logging.Logger
	Output OutputHandler

	GracefulTimeout time.Duration
	KillTimeout     time.Duration
}

// Process is a running subprocess in its own process group. Stdout is
// exposed raw for binary protocols; stderr is always streamed line by line.
type Process struct {
	id      string
	cmd     *exec.Cmd
	logger  logging.Logger
	output  OutputHandler
	started time.Time

	stdout *os.File
	stdin  io.WriteCloser

	gracefulTimeout time.Duration
	killTimeout     time.Duration

	mu       sync.Mutex
	state    State
	exitCode int
	exitErr  error

	done       chan struct{}
	outputDone chan struct{}
	stopOnce   sync.Once
}

// Start spawns the subprocess described by opts.
func Start(opts Options) (*Process, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("empty command")
	}

	p := &Process{
		id:              opts.ID,
		logger:          opts.Logger,
		output:          opts.Output,
		gracefulTimeout: opts.GracefulTimeout,
		killTimeout:     opts.KillTimeout,
		state:           StateStarting,
		done:            make(chan struct{}),
		outputDone:      make(chan struct{}, 2),
	}
	if p.logger == nil {
		p.logger = logging.GetLogger("process")
	}
	if p.gracefulTimeout <= 0 {
		p.gracefulTimeout = defaultGracefulTimeout
	}
	if p.killTimeout <= 0 {
		p.killTimeout = defaultKillTimeout
	}

	p.cmd = exec.Command(opts.Path, opts.Args...)
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(opts.Env) > 0 {
		p.cmd.Env = append(os.Environ(), opts.Env...)
	}

	// Plain os.Pipe ends are used instead of StdoutPipe so that Wait does not
	// close the read side while buffered frame data is still unread.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	p.cmd.Stdout = stdoutW
	p.cmd.Stderr = stderrW

	if opts.Stdin {
		stdin, err := p.cmd.StdinPipe()
		if err != nil {
			closeAll(stdoutR, stdoutW, stderrR, stderrW)
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		p.stdin = stdin
	}

	if err := p.cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, fmt.Errorf("start %s: %w", opts.Path, err)
	}
	stdoutW.Close()
	stderrW.Close()

	p.started = time.Now()
	p.setState(StateRunning)
	p.logger.Info("Process started", "id", p.id, "pid", p.cmd.Process.Pid, "command", opts.Path)

	go func() {
		p.streamOutput(stderrR, "stderr")
		stderrR.Close()
		p.outputDone <- struct{}{}
	}()
	if opts.StdoutLines {
		go func() {
			p.streamOutput(stdoutR, "stdout")
			stdoutR.Close()
			p.outputDone <- struct{}{}
		}()
	} else {
		p.stdout = stdoutR
		p.outputDone <- struct{}{}
	}

	go p.wait()

	return p, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		f.Close()
	}
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	code := exitCodeFromError(err)

	p.mu.Lock()
	p.exitCode = code
	if err != nil && code == 1 {
		p.exitErr = err
	}
	if p.state == StateStopping || code == 0 {
		p.state = StateExited
	} else {
		p.state = StateError
	}
	p.mu.Unlock()

	p.logger.Info("Process exited", "id", p.id, "exit_code", code)
	close(p.done)
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

// Stdout returns the raw stdout stream. It is nil when Options.StdoutLines is set.
func (p *Process) Stdout() io.Reader {
	if p.stdout == nil {
		return nil
	}
	return p.stdout
}

// Stdin returns the stdin pipe, or nil if Options.Stdin was not set.
func (p *Process) Stdin() io.WriteCloser {
	return p.stdin
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code, or -1 while the process is running.
func (p *Process) ExitCode() int {
	select {
	case <-p.done:
	default:
		return -1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Info{
		ID:        p.id,
		State:     p.state,
		PID:       p.cmd.Process.Pid,
		StartedAt: p.started,
		ExitCode:  p.exitCode,
		LastError: p.exitErr,
	}
}

// Stop interrupts the process group, force-kills it after the graceful
// timeout, and returns the exit code. It is safe to call more than once.
func (p *Process) Stop() int {
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
		default:
			p.setState(StateStopping)
			p.signalGroup(unix.SIGINT)
			p.waitForExit()
		}
		if p.stdin != nil {
			p.stdin.Close()
		}
		if p.stdout != nil {
			p.stdout.Close()
		}
		<-p.outputDone
		<-p.outputDone
	})
	return p.ExitCode()
}

func (p *Process) signalGroup(sig unix.Signal) {
	pid := p.cmd.Process.Pid
	p.logger.Debug("Signalling process group", "id", p.id, "pid", pid, "signal", sig.String())
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		p.logger.Warn("Failed to signal process group", "id", p.id, "signal", sig.String(), "error", err)
	}
}

// waitForExit waits for the process to exit with a timeout, force-killing if needed.
func (p *Process) waitForExit() {
	select {
	case <-p.done:
		return
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.gracefulTimeout)
	p.signalGroup(unix.SIGKILL)

	select {
	case <-p.done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "id", p.id)
	}
}

func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		p.logger.Debug(line, "id", p.id, "source", source)
		if p.output != nil {
			p.output.HandleLine(source, line)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
	}
}

// SplitArgs splits a command-line fragment into arguments.
// Handles quoted strings and basic escaping.
func SplitArgs(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))

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
		case (r == ' ' || r == '\t') && !inQuote:
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
		return nil, fmt.Errorf("unclosed quote in %q", command)
	}

	return args, nil
}
