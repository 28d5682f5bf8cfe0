package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ctxpack/ctxpack/internal/domain"
	"github.com/ctxpack/ctxpack/internal/domain/ports"
)

// Repository is a handle to one git worktree. The baseline for every
// request is HEAD, the most recent committed state; staged and
// unstaged changes are both in scope.
type Repository struct {
	command string
	root    string
	name    string
}

var _ ports.Repository = (*Repository)(nil)

// Root returns the repository's canonical root path.
func (g *Repository) Root() string {
	return g.root
}

// Name returns the repository's directory name.
func (g *Repository) Name() string {
	return g.name
}

// Changes returns the change-set against HEAD with rename detection,
// so renamed files are attributed to their new path. Untracked files
// are included; `git diff HEAD` alone never reports them.
func (g *Repository) Changes(ctx context.Context) ([]ports.Change, error) {
	output, err := g.run(ctx, "changes", "diff", "HEAD", "--name-status", "-M")
	if err != nil {
		return nil, err
	}
	changes := parseChanges(output)

	status, err := g.run(ctx, "changes", "status", "--porcelain", "-uall")
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(changes))
	for _, ch := range changes {
		known[ch.Path] = true
	}
	for _, path := range parseUntracked(status) {
		if !known[path] {
			changes = append(changes, ports.Change{Path: path})
		}
	}
	return changes, nil
}

// parseChanges parses `git diff --name-status -M` output. Lines are
// tab-separated: a status letter (with an optional similarity score
// for renames/copies) followed by one path, or two paths for renames.
func parseChanges(output string) []ports.Change {
	changes := make([]ports.Change, 0)
	for _, line := range strings.Split(strings.TrimSuffix(output, "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		status := fields[0]
		switch status[0] {
		case 'R', 'C':
			if len(fields) < 3 {
				continue
			}
			changes = append(changes, ports.Change{
				Path:        fields[2],
				RenamedFrom: fields[1],
			})
		default:
			changes = append(changes, ports.Change{Path: fields[1]})
		}
	}
	return changes
}

// parseUntracked extracts untracked paths from `git status
// --porcelain` output. Leading spaces after the status chars are part
// of the format, not the path.
func parseUntracked(output string) []string {
	paths := make([]string, 0)
	for _, line := range strings.Split(strings.TrimSuffix(output, "\n"), "\n") {
		if len(line) < 4 || line[0] != '?' || line[1] != '?' {
			continue
		}
		paths = append(paths, strings.TrimLeft(line[2:], " "))
	}
	return paths
}

// Diff returns the diff text against HEAD for one relative path, or
// for the whole repository when path is empty. An empty diff is not an
// error. Untracked files, which git reports no diff for, get a
// synthesized new-file diff; for a directory path that covers every
// untracked file beneath it.
func (g *Repository) Diff(ctx context.Context, path string) (string, error) {
	args := []string{"diff", "HEAD"}
	if path != "" {
		args = append(args, "--", path)
	}
	output, err := g.run(ctx, "diff", args...)
	if err != nil {
		return "", err
	}
	if path == "" {
		return output, nil
	}

	status, serr := g.run(ctx, "diff", "status", "--porcelain", "-uall", "--", path)
	if serr != nil {
		return "", serr
	}
	var sb strings.Builder
	sb.WriteString(output)
	for _, untracked := range pathsUnder(parseUntracked(status), path) {
		text, derr := newFileDiff(g.root, untracked)
		if derr != nil {
			return "", derr
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// pathsUnder filters paths to those equal to scope or nested beneath
// it. Prefix matching alone would conflate "src" with "srcdir".
func pathsUnder(paths []string, scope string) []string {
	matched := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == scope || strings.HasPrefix(p, scope+"/") {
			matched = append(matched, p)
		}
	}
	return matched
}

// newFileSizeLimit caps synthesized new-file diffs.
const newFileSizeLimit = 1024 * 1024

// newFileDiff builds a diff-style rendering of an untracked file's
// full content.
func newFileDiff(root, path string) (string, error) {
	fullPath := filepath.Join(root, path)

	info, err := os.Stat(fullPath)
	if err != nil {
		return "", domain.NewRepoCommandError("diff", path, "", err)
	}
	if info.IsDir() {
		return "", nil
	}
	if info.Size() > newFileSizeLimit {
		return fmt.Sprintf("diff --git a/%s b/%s\nnew file mode 100644\n--- /dev/null\n+++ b/%s\n@@ -0,0 +1 @@\n+[File too large to display: %d bytes]\n", path, path, path, info.Size()), nil
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return "", domain.NewRepoCommandError("diff", path, "", err)
	}
	if isBinaryContent(content) {
		return fmt.Sprintf("diff --git a/%s b/%s\nnew file mode 100644\nBinary file %s\n", path, path, path), nil
	}

	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	var sb strings.Builder
	fmt.Fprintf(&sb, "diff --git a/%s b/%s\n", path, path)
	sb.WriteString("new file mode 100644\n")
	sb.WriteString("--- /dev/null\n")
	fmt.Fprintf(&sb, "+++ b/%s\n", path)
	fmt.Fprintf(&sb, "@@ -0,0 +1,%d @@\n", len(lines))
	for _, line := range lines {
		sb.WriteString("+")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// isBinaryContent checks the first 8KB for null bytes.
func isBinaryContent(content []byte) bool {
	checkLen := len(content)
	if checkLen > 8192 {
		checkLen = 8192
	}
	for i := 0; i < checkLen; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}

// run executes a git subcommand in the repository root, capturing
// stderr into the returned error.
func (g *Repository) run(ctx context.Context, op string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.command, args...)
	cmd.Dir = g.root

	output, err := cmd.Output()
	if err != nil {
		stderr := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		path := ""
		if op == "diff" && len(args) > 2 {
			path = args[len(args)-1]
		}
		return "", commandError(op, path, stderr, err)
	}
	return string(output), nil
}

// commandError wraps a failed git invocation. When stderr shows the
// directory is not a worktree the error matches domain.ErrNotRepo, so
// callers can tell a vanished repository from an ordinary failure.
func commandError(op, path, stderr string, err error) error {
	if strings.Contains(stderr, "not a git repository") {
		err = fmt.Errorf("%v: %w", err, domain.ErrNotRepo)
	}
	return domain.NewRepoCommandError(op, path, stderr, err)
}

// TruncateDiff caps a diff string to maxSizeKB and returns whether it
// was truncated. If maxSizeKB <= 0, the diff is dropped and marked
// truncated.
func TruncateDiff(diff string, maxSizeKB int) (string, bool) {
	if maxSizeKB <= 0 {
		if diff == "" {
			return "", false
		}
		return "", true
	}

	maxBytes := maxSizeKB * 1024
	if len(diff) <= maxBytes {
		return diff, false
	}

	truncated := diff[:maxBytes]
	// The cut may land inside a multi-byte rune; drop its fragments.
	for len(truncated) > 0 {
		r, size := utf8.DecodeLastRuneInString(truncated)
		if r != utf8.RuneError || size != 1 {
			break
		}
		truncated = truncated[:len(truncated)-1]
	}

	return truncated, true
}
