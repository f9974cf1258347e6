package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gitsight/go-vcsurl"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// TargetDir derives a local checkout directory for a repository URL,
// host/namespace/name under baseDir.
func TargetDir(baseDir, rawURL string) (string, error) {
	info, err := vcsurl.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse repository URL %q: %w", rawURL, err)
	}
	return filepath.Join(baseDir, string(info.Host), info.FullName), nil
}

// CloneOrUpdate fetches the repository at rawURL into targetDir. An existing
// checkout is updated with a pull instead of recloned. Returns the checkout
// directory.
func (c *Client) CloneOrUpdate(ctx context.Context, rawURL, targetDir, branch string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := os.Stat(filepath.Join(targetDir, ".git")); err == nil {
		return targetDir, c.update(ctx, targetDir, branch)
	}

	opts := &git.CloneOptions{
		URL:   rawURL,
		Auth:  c.auth,
		Depth: 1,
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}

	c.logger.Info("cloning repository", "url", rawURL, "target", targetDir)
	if _, err := git.PlainCloneContext(ctx, targetDir, false, opts); err != nil {
		return "", fmt.Errorf("failed to clone %s: %w", rawURL, err)
	}
	return targetDir, nil
}

// update pulls the latest changes into an existing checkout.
func (c *Client) update(ctx context.Context, targetDir, branch string) error {
	repo, err := git.PlainOpen(targetDir)
	if err != nil {
		return fmt.Errorf("failed to open existing checkout %s: %w", targetDir, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to access worktree of %s: %w", targetDir, err)
	}

	opts := &git.PullOptions{Auth: c.auth}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}

	c.logger.Info("updating existing checkout", "target", targetDir)
	err = worktree.PullContext(ctx, opts)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		c.logger.Debug("checkout already up to date", "target", targetDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update checkout %s: %w", targetDir, err)
	}
	return nil
}
