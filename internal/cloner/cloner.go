// Package cloner fetches the sample repositories listed in a JSON file into a
// local directory, skipping any that are already present.
package cloner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	giturls "github.com/whilp/git-urls"
	"go.uber.org/zap"

	"github.com/dshills/patternvec/internal/logging"
)

// Common errors
var (
	ErrInvalidRepoList = errors.New("invalid repository list")
	ErrInvalidURL      = errors.New("invalid repository URL")
)

// RepoSpec is one entry of the repository list
type RepoSpec struct {
	URL string `json:"url"`
}

// repoEntry accepts the aliases found in GitHub API dumps
type repoEntry struct {
	URL      string `json:"url"`
	CloneURL string `json:"clone_url"`
	HTMLURL  string `json:"html_url"`
}

// LoadRepoList reads a JSON array of objects carrying a url field
func LoadRepoList(filePath string) ([]RepoSpec, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read repository list: %w", err)
	}

	var entries []repoEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRepoList, err)
	}

	repos := make([]RepoSpec, 0, len(entries))
	for i, e := range entries {
		url := firstNonEmpty(e.URL, e.CloneURL, e.HTMLURL)
		if url == "" {
			return nil, fmt.Errorf("%w: entry %d has no url", ErrInvalidRepoList, i)
		}
		repos = append(repos, RepoSpec{URL: url})
	}
	return repos, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// DestName returns the final path segment of a repository URL without its
// .git suffix. Both URL and scp-style (git@host:owner/repo.git) forms work.
func DestName(url string) (string, error) {
	u, err := giturls.Parse(url)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	p := strings.TrimSuffix(strings.TrimRight(u.Path, "/"), ".git")
	name := path.Base(p)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("%w: no repository name in %q", ErrInvalidURL, url)
	}
	return name, nil
}

// Client clones a single repository
type Client interface {
	Clone(ctx context.Context, url, dest string) error
}

// GoGitClient clones in-process with go-git
type GoGitClient struct {
	Depth int // 0 = full history
}

// Clone implements Client
func (c *GoGitClient) Clone(ctx context.Context, url, dest string) error {
	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:   url,
		Depth: c.Depth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	return nil
}

// ExecClient runs the external git binary
type ExecClient struct {
	Binary string // defaults to "git"
	Depth  int
}

// Clone implements Client
func (c *ExecClient) Clone(ctx context.Context, url, dest string) error {
	bin := c.Binary
	if bin == "" {
		bin = "git"
	}

	args := []string{"clone"}
	if c.Depth > 0 {
		args = append(args, "--depth", fmt.Sprint(c.Depth))
	}
	args = append(args, url, dest)

	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Failure records a repository that could not be cloned
type Failure struct {
	URL string
	Err error
}

// Result summarizes a CloneAll run
type Result struct {
	Cloned  []string // destination paths
	Skipped []string // destination paths that already existed
	Failed  []Failure
}

// Cloner clones repository lists
type Cloner struct {
	client Client
	logger *zap.Logger
}

// New creates a Cloner. A nil logger disables logging.
func New(client Client, logger *zap.Logger) *Cloner {
	return &Cloner{
		client: client,
		logger: logging.OrNop(logger),
	}
}

// CloneAll clones each repository into baseDir/<name>. Existing destinations
// are skipped. A failed clone is recorded and the loop continues; only a
// cancelled context or an unusable baseDir stops it early.
func (c *Cloner) CloneAll(ctx context.Context, repos []RepoSpec, baseDir string) (*Result, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create clone directory: %w", err)
	}

	result := &Result{}
	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		name, err := DestName(repo.URL)
		if err != nil {
			c.logger.Warn("skipping repository with unusable URL", zap.String("url", repo.URL), zap.Error(err))
			result.Failed = append(result.Failed, Failure{URL: repo.URL, Err: err})
			continue
		}

		dest := filepath.Join(baseDir, name)
		if _, err := os.Stat(dest); err == nil {
			c.logger.Info("repository already cloned", zap.String("url", repo.URL), zap.String("dest", dest))
			result.Skipped = append(result.Skipped, dest)
			continue
		}

		c.logger.Info("cloning repository", zap.String("url", repo.URL), zap.String("dest", dest))
		if err := c.client.Clone(ctx, repo.URL, dest); err != nil {
			c.logger.Error("clone failed", zap.String("url", repo.URL), zap.Error(err))
			result.Failed = append(result.Failed, Failure{URL: repo.URL, Err: err})
			_ = os.RemoveAll(dest)
			continue
		}
		result.Cloned = append(result.Cloned, dest)
	}

	c.logger.Info("clone run complete",
		zap.Int("cloned", len(result.Cloned)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)))

	return result, nil
}
