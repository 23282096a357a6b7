// Package daemon detaches the process from the controlling terminal,
// acquires the PID file, redirects standard descriptors to the log file,
// and reports startup status back to the invoking shell.
//
// The classic double-fork idiom (fork, setsid, fork again, so the daemon
// can never reacquire a controlling terminal) does not translate to Go: a
// live Go runtime with multiple OS threads cannot safely fork(2) — only
// the calling thread survives, and any goroutine parked on another thread
// is simply gone afterward. The substitute is re-exec: the parent process
// re-executes its own binary in a new session
// (syscall.SysProcAttr{Setsid: true}) and waits on a status pipe; the
// child is the one that actually becomes the long-running daemon.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/daemonrt/rterr"
)

// envDaemonized marks a re-exec'd child as the process that should run
// the grandchild setup path rather than fork again.
const envDaemonized = "DAEMONRT_DAEMONIZED"

// statusPipeFd is the descriptor number of the status pipe's write end in
// the re-exec'd child: the first ExtraFiles entry, always fd 3
// (stdin/stdout/stderr are 0-2).
const statusPipeFd = 3

// Status is the single byte the status pipe protocol carries.
type Status byte

const (
	StatusError          Status = 0
	StatusOK             Status = 1
	StatusAlreadyRunning Status = 2
)

// Config configures one Daemonize call.
type Config struct {
	// LogFile is opened O_APPEND and dup2'd onto stdout/stderr in the
	// grandchild.
	LogFile string
	// PIDFile is acquired (exclusive flock) in the grandchild before
	// the log file is opened.
	PIDFile string
	// DoubleFork false runs the grandchild setup in the current process
	// without detaching at all, useful for running in the foreground
	// under a supervisor that already manages the process lifecycle.
	DoubleFork bool
}

// Result is returned to the grandchild (the process that keeps running)
// after a successful Daemonize.
type Result struct {
	PIDFile *PIDFile
	LogFile *os.File
}

// Daemonize detaches the calling process into a daemon per Config, or —
// when called inside the re-exec'd child — performs the grandchild setup
// and returns. The *parent* invocation never returns: it blocks on the
// status pipe and calls os.Exit with a code matching the reported status.
func Daemonize(cfg Config) (*Result, error) {
	if !cfg.DoubleFork || os.Getenv(envDaemonized) == "1" {
		return daemonizeChild(cfg)
	}
	return nil, daemonizeParent(cfg)
}

// daemonizeParent re-execs the binary into a new session and blocks on
// the status pipe until the child reports how startup went.
func daemonizeParent(cfg Config) error {
	pr, pw, err := os.Pipe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "daemon: could not create status pipe: %v\n", err)
		os.Exit(1)
	}

	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), envDaemonized+"=1")
	cmd.ExtraFiles = []*os.File{pw}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Dir = "/"

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		fmt.Fprintf(os.Stderr, "daemon: could not start daemon process: %v\n", err)
		os.Exit(1)
	}
	pw.Close()

	status, err := readStatus(pr)
	pr.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "daemon: could not read from status pipe: %v\n", err)
		os.Exit(1)
	}

	switch status {
	case StatusOK:
		os.Exit(0)
	case StatusAlreadyRunning:
		fmt.Fprintf(os.Stderr, "Already running according to %q\n", cfg.PIDFile)
		os.Exit(1)
	default:
		os.Exit(1)
	}
	panic("unreachable")
}

// readStatus reads the single status byte, retrying transient EOF races
// against the child's own startup ordering (a grandchild that forks
// again internally — e.g. via a supervisor — may take a moment before
// its write reaches the pipe).
func readStatus(pr *os.File) (Status, error) {
	op := func() (Status, error) {
		var buf [1]byte
		n, err := pr.Read(buf[:])
		if n == 1 {
			return Status(buf[0]), nil
		}
		if err != nil {
			return 0, err
		}
		return 0, backoff.Permanent(fmt.Errorf("daemon: empty status pipe read"))
	}

	return backoff.Retry(context.Background(), op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5),
	)
}

// daemonizeChild performs the grandchild setup: acquire the PID file,
// open the log file, redirect stdin/stdout/stderr, and report status to
// the inherited pipe (when running detached).
func daemonizeChild(cfg Config) (*Result, error) {
	var statusPipe *os.File
	if cfg.DoubleFork {
		statusPipe = os.NewFile(uintptr(statusPipeFd), "status-pipe")
	}

	pidFile, err := AcquirePIDFile(cfg.PIDFile)
	if err != nil {
		if rterr.Is(err, rterr.AlreadyExists) {
			reportStatus(statusPipe, StatusAlreadyRunning)
			return nil, err
		}
		reportStatus(statusPipe, StatusError)
		return nil, err
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		pidFile.Close()
		reportStatus(statusPipe, StatusError)
		return nil, fmt.Errorf("daemon: open log file %q: %w", cfg.LogFile, err)
	}

	if err := redirectStandardFDs(logFile); err != nil {
		logFile.Close()
		pidFile.Close()
		reportStatus(statusPipe, StatusError)
		return nil, err
	}

	reportStatus(statusPipe, StatusOK)
	if statusPipe != nil {
		statusPipe.Close()
	}

	return &Result{PIDFile: pidFile, LogFile: logFile}, nil
}

func reportStatus(pipe *os.File, status Status) {
	if pipe == nil {
		return
	}
	_, _ = pipe.Write([]byte{byte(status)})
}

// redirectStandardFDs points stdin at /dev/null and stdout/stderr at
// logFile.
func redirectStandardFDs(logFile *os.File) error {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	var errs error
	errs = multierr.Append(errs, dup2(devNull.Fd(), syscall.Stdin))
	errs = multierr.Append(errs, dup2(logFile.Fd(), syscall.Stdout))
	errs = multierr.Append(errs, dup2(logFile.Fd(), syscall.Stderr))
	return errs
}

func dup2(oldfd uintptr, newfd int) error {
	if err := unix.Dup2(int(oldfd), newfd); err != nil {
		return fmt.Errorf("daemon: dup2 onto fd %d: %w", newfd, err)
	}
	return nil
}
