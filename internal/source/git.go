package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pgcompose/pgcompose/internal/logger"
)

var (
	commitRegex = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
	// scpRemote matches the user@host:path form of an ssh remote.
	scpRemote = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:`)
)

// GitLocation is a parsed git source: a repository, an optional branch, tag
// or commit, and an optional path inside the checkout.
type GitLocation struct {
	Repo string
	Ref  string
	Path string
}

// Local reports whether the repository is read from the server's filesystem
// or through a transport other than a network remote.
func (l GitLocation) Local() bool {
	switch {
	case strings.HasPrefix(l.Repo, "file://"):
		return true
	case strings.Contains(l.Repo, "://"):
		return false
	}
	return !scpRemote.MatchString(l.Repo)
}

func isGitSpec(spec string) bool {
	return strings.HasPrefix(spec, "git://") ||
		strings.HasPrefix(spec, "git@") ||
		strings.HasPrefix(spec, "git+") ||
		strings.HasPrefix(spec, "https://github.com/") ||
		(strings.HasPrefix(spec, "https://") && strings.Contains(spec, ".git"))
}

// ParseGitLocation splits a git specification. Supported forms:
//
//	git@host:org/repo.git/path/to/schema#ref
//	https://github.com/org/repo/tree/ref/path
//	https://github.com/org/repo/path#ref
//	git+file:///srv/repo.git/schema#ref
func ParseGitLocation(spec string) (GitLocation, error) {
	var loc GitLocation
	s := strings.TrimPrefix(spec, "git+")
	if i := strings.LastIndex(s, "#"); i >= 0 {
		s, loc.Ref = s[:i], s[i+1:]
	}

	switch {
	case strings.Contains(s, ".git/"):
		i := strings.Index(s, ".git/")
		loc.Repo, loc.Path = s[:i+4], s[i+5:]
	case strings.HasSuffix(s, ".git"):
		loc.Repo = s
	case strings.HasPrefix(s, "https://github.com/"):
		parts := strings.SplitN(strings.TrimPrefix(s, "https://github.com/"), "/", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return loc, fmt.Errorf("invalid GitHub source %q: expected https://github.com/<owner>/<repo>", spec)
		}
		loc.Repo = "https://github.com/" + parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			rest := parts[2]
			if tree, ok := strings.CutPrefix(rest, "tree/"); ok {
				ref, path, _ := strings.Cut(tree, "/")
				loc.Ref, rest = ref, path
			}
			loc.Path = rest
		}
	default:
		loc.Repo = s
	}

	loc.Path = strings.Trim(loc.Path, "/")
	if strings.Contains(loc.Path, "..") {
		return loc, fmt.Errorf("invalid path %q in git source", loc.Path)
	}
	return loc, nil
}

// readGit clones the repository into a temporary directory and reads the
// schema path from it like a local file or directory source.
func readGit(ctx context.Context, spec string) (string, error) {
	loc, err := ParseGitLocation(spec)
	if err != nil {
		return "", err
	}
	if _, err := exec.LookPath("git"); err != nil {
		return "", errors.New("git is not installed or not in PATH")
	}

	dir, err := os.MkdirTemp("", "pgcompose-git-")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary directory: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := clone(ctx, loc, dir); err != nil {
		return "", err
	}

	target := filepath.Join(dir, filepath.FromSlash(loc.Path))
	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("path %q does not exist in %s", loc.Path, loc.Repo)
	}
	return readPath(target, info.IsDir())
}

func clone(ctx context.Context, loc GitLocation, dir string) error {
	isCommit := commitRegex.MatchString(loc.Ref)
	args := []string{"clone", "--quiet"}
	if !isCommit {
		args = append(args, "--depth", "1")
		if loc.Ref != "" {
			args = append(args, "--branch", loc.Ref)
		}
	}
	args = append(args, loc.Repo, dir)
	if err := runGit(ctx, "", args...); err != nil {
		return fmt.Errorf("failed to clone %s: %w", loc.Repo, err)
	}
	if isCommit {
		if err := runGit(ctx, dir, "checkout", "--quiet", loc.Ref); err != nil {
			return fmt.Errorf("failed to checkout commit %s: %w", loc.Ref, err)
		}
	}
	return nil
}

func runGit(ctx context.Context, dir string, args ...string) error {
	logger.Get().Debug("running git", "args", strings.Join(args, " "), "dir", dir)
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
