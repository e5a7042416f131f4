// Package git records filesystem store changes as commits in a local
// repository.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// LockName is the lock file created in the working directory while a
// commit is in progress.
const LockName = ".expipe.lock"

// Client wraps git command execution with a file-based lock for process safety.
type Client struct {
	WorkDir string
	Logger  *slog.Logger
	// Name and Email are passed as the commit identity. Empty values fall
	// back to the user's git configuration.
	Name  string
	Email string
	// LockTimeout bounds how long Lock waits for another process.
	LockTimeout time.Duration
}

// NewClient creates a new git client for the given working directory.
func NewClient(workDir string, logger *slog.Logger) *Client {
	return &Client{
		WorkDir:     workDir,
		Logger:      logger,
		LockTimeout: 10 * time.Second,
	}
}

// IsInstalled reports whether the git binary is on PATH.
func IsInstalled() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

var errLocked = errors.New("lock held")

// Lock acquires the file lock, polling until it is free, the context is
// done or LockTimeout elapses.
func (c *Client) Lock(ctx context.Context) (func(), error) {
	path := filepath.Join(c.WorkDir, LockName)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.LockTimeout

	op := func() error {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL, 0666)
		if err == nil {
			return f.Close()
		}
		if os.IsExist(err) {
			return errLocked
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return func() { os.Remove(path) }, nil
}

// Run executes a raw git command in the working directory. It does not
// take the lock.
func (c *Client) Run(ctx context.Context, args ...string) (string, error) {
	if c.Logger != nil {
		c.Logger.Debug("executing git", "args", args, "dir", c.WorkDir)
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.WorkDir

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, fmt.Errorf("git %s failed: %w\nOutput: %s", args[0], err, output)
	}
	return output, nil
}

// IsRepo reports whether the working directory is inside a repository.
func (c *Client) IsRepo(ctx context.Context) bool {
	out, err := c.Run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// Init initializes a new git repository. Re-running it is harmless.
func (c *Client) Init(ctx context.Context) error {
	_, err := c.Run(ctx, "init")
	return err
}

// Add stages paths, including removals.
func (c *Client) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "-A", "--"}, paths...)
	_, err := c.Run(ctx, args...)
	return err
}

// Commit records the staged changes. It is a no-op when nothing is staged.
func (c *Client) Commit(ctx context.Context, msg string) error {
	if _, err := c.Run(ctx, "diff", "--cached", "--quiet"); err == nil {
		return nil
	}
	var args []string
	if c.Name != "" {
		args = append(args, "-c", "user.name="+c.Name)
	}
	if c.Email != "" {
		args = append(args, "-c", "user.email="+c.Email)
	}
	args = append(args, "commit", "-q", "-m", msg)
	_, err := c.Run(ctx, args...)
	return err
}

// Record stages paths and commits them under the lock.
func (c *Client) Record(ctx context.Context, msg string, paths ...string) error {
	unlock, err := c.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if err := c.Add(ctx, paths...); err != nil {
		return err
	}
	return c.Commit(ctx, msg)
}

// Status returns the porcelain status of the repo.
func (c *Client) Status(ctx context.Context) (string, error) {
	return c.Run(ctx, "status", "--porcelain")
}

// Log returns the subjects of the last n commits, newest first.
func (c *Client) Log(ctx context.Context, n int) ([]string, error) {
	out, err := c.Run(ctx, "log", fmt.Sprintf("-%d", n), "--format=%s")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
