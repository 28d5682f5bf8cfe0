// Package git implements the Git CLI adapters for repository
// resolution and baseline diffs.
package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ctxpack/ctxpack/internal/domain"
	"github.com/ctxpack/ctxpack/internal/domain/ports"
)

const resolveTimeout = 5 * time.Second

// Resolver resolves resource locations to their owning git repository
// by asking git for the worktree top level. Results are cached per
// directory; resolution is deterministic for a location at a given
// point in time.
type Resolver struct {
	command string

	mu     sync.Mutex
	byDir  map[string]*Repository // nil value = known non-repo directory
	byRoot map[string]*Repository
}

// NewResolver creates a resolver using the given git command
// ("git" unless configured otherwise).
func NewResolver(command string) *Resolver {
	if command == "" {
		command = "git"
	}
	return &Resolver{
		command: command,
		byDir:   make(map[string]*Repository),
		byRoot:  make(map[string]*Repository),
	}
}

var _ ports.RepositoryResolver = (*Resolver)(nil)

// Resolve returns the repository owning location, or (nil, nil) when
// no repository owns it. Non-filesystem locations never resolve.
func (r *Resolver) Resolve(ctx context.Context, location string) (ports.Repository, error) {
	path, err := domain.FilePath(location)
	if err != nil {
		return nil, nil
	}

	dir := path
	if info, statErr := os.Stat(path); statErr != nil || !info.IsDir() {
		// Vanished resources still resolve through their parent
		// directory, so removed tracked files can be diffed.
		dir = filepath.Dir(path)
	}

	r.mu.Lock()
	if repo, ok := r.byDir[dir]; ok {
		r.mu.Unlock()
		if repo == nil {
			return nil, nil
		}
		return repo, nil
	}
	r.mu.Unlock()

	repo := r.detect(ctx, dir)

	r.mu.Lock()
	defer r.mu.Unlock()
	if repo != nil {
		// One Repository instance per canonical root.
		if existing, ok := r.byRoot[repo.root]; ok {
			repo = existing
		} else {
			r.byRoot[repo.root] = repo
		}
	}
	r.byDir[dir] = repo
	if repo == nil {
		return nil, nil
	}
	return repo, nil
}

// detect asks git for the repository root of dir. Any failure means
// "no repository" rather than an error: untracked locations are an
// expected, common case.
func (r *Resolver) detect(ctx context.Context, dir string) *Repository {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.command, "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		log.Debug().Str("dir", dir).Msg("not inside a git repository")
		return nil
	}

	root := filepath.Clean(strings.TrimSpace(string(output)))
	return &Repository{
		command: r.command,
		root:    root,
		name:    filepath.Base(root),
	}
}
