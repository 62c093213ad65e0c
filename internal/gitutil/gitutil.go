// Package gitutil is the single chokepoint through which every component
// shells out to git. It generalizes the teacher's runGit helper
// (core/internal/util/git/git.go) into the timeout-aware, structured
// invoker spec.md §4.1 describes.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mricon/grokmirror-go/internal/errkind"
)

// Result is the structured outcome of one git invocation. A non-zero
// ExitCode is not itself a Go error: callers decide whether it matters.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Invoker runs git commands against a repository path with a uniform
// environment, timeout enforcement, and structured capture.
type Invoker struct {
	// GitBin is the resolved path to the git binary.
	GitBin string
	Log    zerolog.Logger
}

// New resolves the git binary from $GITBIN, falling back to PATH, and
// returns an Invoker ready to run commands.
func New(log zerolog.Logger) (*Invoker, error) {
	bin := os.Getenv("GITBIN")
	if bin == "" {
		resolved, err := exec.LookPath("git")
		if err != nil {
			return nil, fmt.Errorf("locating git binary: %w", err)
		}
		bin = resolved
	}
	return &Invoker{GitBin: bin, Log: log}, nil
}

// Run executes git with args against repoPath, enforcing timeout and
// injecting a minimal, reproducible environment. env overrides/extends the
// minimal set. stdin may be nil. A Go error is returned only when the
// process could not be started or was killed for exceeding timeout; a
// non-zero exit from git itself is reported through Result.ExitCode.
func (inv *Invoker) Run(ctx context.Context, repoPath string, args []string, env map[string]string, stdin []byte, timeout time.Duration) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, inv.GitBin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// On cancellation or timeout, kill the whole process group so no
	// grandchild git keeps running (or keeps the output pipes open).
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	abs := repoPath
	if repoPath != "" {
		if a, err := filepath.Abs(repoPath); err == nil {
			abs = a
		}
	}
	cmd.Env = buildEnv(abs, env)

	if len(stdin) > 0 {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	dur := time.Since(start)

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: dur,
	}

	inv.Log.Debug().Strs("args", args).Str("repo", repoPath).Dur("duration", dur).Str("stdout", res.Stdout).Str("stderr", res.Stderr).Msg("git invoked")

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		return res, fmt.Errorf("git %v timed out after %s: %w", args, timeout, errkind.ErrGitTimeout)
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("running git %v: %w", args, err)
	}

	return res, nil
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

func buildEnv(repoPath string, overrides map[string]string) []string {
	env := []string{
		"HOME=" + os.Getenv("HOME"),
		"PATH=" + os.Getenv("PATH"),
		"LANG=C",
		"LC_ALL=C",
	}
	if repoPath != "" {
		env = append(env, "GIT_DIR="+repoPath)
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}
