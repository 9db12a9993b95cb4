// Package daemonctl orchestrates the squeezed process on behalf of the CLI:
// launching it detached, waiting for its socket to come up, and tearing the
// process down again. The IPC stop operation only drains the pipeline; the
// process itself waits for a signal, so shutdown here is a two-step dance of
// acknowledged stop followed by SIGTERM (and SIGKILL past the grace period).
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"squeeze/internal/config"
	"squeeze/internal/ipc"
	"squeeze/internal/preflight"
	"squeeze/internal/queue"
)

// ErrDaemonNotRunning indicates the daemon socket is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

const (
	pidFileName  = "squeezed.pid"
	lockFileName = "squeezed.lock"

	pollInterval = 200 * time.Millisecond
)

// LaunchOptions carries the flags forwarded to the spawned daemon process.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
}

// StartState describes the outcome of a start request.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// StopResult captures the stop and termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult combines the stop and start halves of a restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Launch spawns a detached daemon process via the hidden `daemon` command of
// the given executable. The child is released immediately so it survives the
// CLI exiting.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("launch daemon: executable path is empty")
	}

	args := []string{"daemon"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfgPath := strings.TrimSpace(opts.ConfigPath); cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient polls the daemon socket until it accepts a connection or the
// timeout lapses.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(pollInterval)
	}
	if lastErr == nil {
		lastErr = errors.New("timed out waiting for daemon socket")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted guarantees a daemon process is up with its pipeline running.
// An existing socket is dialed first; a fresh process is launched only when
// nothing answers.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if !isDaemonUnavailable(err) {
			return StartResult{}, fmt.Errorf("dial daemon: %w", err)
		}
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	if status, statusErr := client.Status(); statusErr == nil && status != nil && status.Running {
		if launched {
			return StartResult{State: StartStateStarted, Launched: true}, nil
		}
		return StartResult{State: StartStateAlreadyRunning}, nil
	}

	resp, err := client.Start()
	if err != nil {
		return StartResult{}, err
	}
	if resp == nil {
		return StartResult{State: StartStateRequested, Launched: launched}, nil
	}

	message := strings.TrimSpace(resp.Message)
	switch {
	case resp.Started:
		return StartResult{State: StartStateStarted, Launched: launched, Message: message}, nil
	case strings.EqualFold(message, "daemon already running"):
		if launched {
			return StartResult{State: StartStateStarted, Launched: true, Message: message}, nil
		}
		return StartResult{State: StartStateAlreadyRunning, Message: message}, nil
	default:
		return StartResult{State: StartStateRequested, Launched: launched, Message: message}, nil
	}
}

// StopAndTerminate drains the pipeline over IPC, then terminates the daemon
// process with SIGTERM. When the process outlives the grace period it is
// force-killed and the pid, lock, and socket files are cleaned up.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}

	var lockPath, queueDBPath string
	pid := 0
	if status, statusErr := client.Status(); statusErr == nil && status != nil {
		lockPath = status.LockPath
		queueDBPath = status.QueueDBPath
		pid = status.PID
	}

	resp, stopErr := client.Stop()
	_ = client.Close()
	if stopErr != nil {
		return StopResult{}, stopErr
	}

	result := StopResult{PID: pid}
	if resp != nil {
		result.StopAcknowledged = resp.Stopped
	}

	logDir := DeriveLogDir(lockPath, queueDBPath, cfg)
	if logDir == "" {
		return result, errors.New("unable to determine daemon log directory")
	}
	pidPath := filepath.Join(logDir, pidFileName)
	if pid <= 0 {
		if filePID, readErr := ReadPIDFile(pidPath); readErr == nil {
			pid = filePID
		}
	}
	if pid <= 0 || pid == os.Getpid() || !processAlive(pid) {
		return result, nil
	}

	_ = syscall.Kill(pid, syscall.SIGTERM)
	if waitForExit(pid, gracePeriod) {
		_ = os.Remove(socketPath)
		result.PID = pid
		return result, nil
	}

	killedPID, killErr := ForceKillProcess(pidPath, filepath.Join(logDir, lockFileName), pid)
	if killErr != nil {
		return result, fmt.Errorf("stop daemon process: %w", killErr)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// Restart stops the daemon when it is running, then ensures a fresh start.
func Restart(socketPath string, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(socketPath, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(socketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// ProcessInfo reports whether the daemon socket answers and, when it does,
// the pid the daemon reports for itself.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()

	resp, pingErr := client.Ping()
	if pingErr != nil {
		return true, 0, pingErr
	}
	return true, resp.PID, nil
}

// ForceKillProcess sends SIGKILL to the daemon process and removes its pid
// and lock files. The current process is never a valid target.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return 0, err
	}
	if pid <= 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}

	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %s: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// ReadPIDFile returns the pid recorded by the daemon, or 0 when the file is
// absent or empty.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read pid file %s: %w", path, err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(value)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %s holds %q", path, value)
	}
	return pid, nil
}

// DeriveLogDir determines the daemon's log directory from status hints,
// falling back to the configured path.
func DeriveLogDir(lockPath, queueDBPath string, cfg *config.Config) string {
	if lockPath != "" {
		return filepath.Dir(lockPath)
	}
	if queueDBPath != "" {
		return filepath.Dir(queueDBPath)
	}
	if cfg != nil && strings.TrimSpace(cfg.Paths.LogDir) != "" {
		return cfg.Paths.LogDir
	}
	return ""
}

// BuildStatusSnapshot returns daemon status, substituting direct queue and
// dependency probes when the daemon is offline so status output stays useful
// either way.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*ipc.StatusResponse, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}

	status := &ipc.StatusResponse{}
	if client, err := ipc.Dial(socketPath); err == nil {
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			status = resp
		}
		_ = client.Close()
	}

	if !status.Running {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if store, openErr := queue.Open(cfg); openErr == nil {
			if stats, statsErr := store.Stats(queryCtx); statsErr == nil {
				merged := make(map[string]int, len(stats))
				for itemStatus, count := range stats {
					merged[string(itemStatus)] = count
				}
				status.QueueStats = merged
			}
			_ = store.Close()
		}
		if status.QueueDBPath == "" {
			status.QueueDBPath = filepath.Join(cfg.Paths.LogDir, "queue.db")
		}
		if len(status.Checks) == 0 {
			status.Checks = ResolveChecks(cfg)
		}
	}
	if len(status.Dependencies) == 0 {
		status.Dependencies = ResolveDependencies(cfg)
	}
	return status, nil
}

// ResolveDependencies reports external binary availability using the same
// checks the daemon runs at boot.
func ResolveDependencies(cfg *config.Config) []ipc.DependencyStatus {
	if cfg == nil {
		return nil
	}
	checks := preflight.CheckSystemDeps(cfg)
	out := make([]ipc.DependencyStatus, 0, len(checks))
	for _, check := range checks {
		out = append(out, ipc.DependencyStatus{
			Name:        check.Name,
			Command:     check.Command,
			Description: check.Description,
			Optional:    check.Optional,
			Available:   check.Available,
			Detail:      check.Detail,
		})
	}
	return out
}

// ResolveChecks runs the filesystem preflight directly for offline status.
func ResolveChecks(cfg *config.Config) []ipc.CheckResult {
	results := preflight.RunAll(cfg)
	out := make([]ipc.CheckResult, 0, len(results))
	for _, result := range results {
		out = append(out, ipc.CheckResult{
			Name:   result.Name,
			Passed: result.Passed,
			Detail: result.Detail,
		})
	}
	return out
}

func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return true
		}
		time.Sleep(pollInterval)
	}
	return !processAlive(pid)
}

// processAlive reports whether a signal could be delivered to pid. EPERM
// still means the process exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
