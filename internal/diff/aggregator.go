package diff

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ctxpack/ctxpack/internal/domain"
	"github.com/ctxpack/ctxpack/internal/domain/events"
	"github.com/ctxpack/ctxpack/internal/domain/ports"
)

// DefaultConcurrency bounds how many repository groups are diffed at
// once. Merge order is fixed by group-discovery order regardless of
// completion timing.
const DefaultConcurrency = 4

// Scope describes what is being diffed, for headers and messages.
type Scope struct {
	// Name is the human-readable scope label (session name, directory
	// or file display name).
	Name string

	// WholeSession marks a whole-session scope. A single-repository
	// session diff still gets a repository header for clarity, while
	// a single-file diff does not.
	WholeSession bool
}

// Aggregator groups entries by owning repository, requests a diff per
// repository against the baseline and merges the results.
type Aggregator struct {
	resolver    ports.RepositoryResolver
	hub         ports.EventHub // optional, receives progress events
	concurrency int
}

// NewAggregator creates an aggregator. The hub may be nil.
func NewAggregator(resolver ports.RepositoryResolver, concurrency int, hub ports.EventHub) *Aggregator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Aggregator{resolver: resolver, hub: hub, concurrency: concurrency}
}

// entryState tracks one input entry through classification.
type entryState struct {
	ref     *domain.ResourceRef
	class   Classification // empty until decided
	message string
	groups  []*repoGroup
	reqs    []*pathReq
}

func (st *entryState) markError(msg string) {
	if st.class == ClassErrored {
		return
	}
	st.class = ClassErrored
	st.message = msg
}

// pathReq is one deduplicated relative-path diff request.
type pathReq struct {
	rel string
	err error
}

// repoGroup is the subset of input entries resolved to one owning
// repository, diffed together.
type repoGroup struct {
	repo     ports.Repository
	entries  []*entryState
	reqs     []*pathReq
	reqIndex map[string]*pathReq

	// wholeRepo collapses the group to a whole-repository diff when a
	// container's relative path is the repository root itself. The
	// explicit per-path list for the group is discarded in that case;
	// this can over-report changes outside the originally selected
	// files, but is preserved for compatibility with how sessions
	// have always behaved.
	wholeRepo bool

	body        string
	diffedPaths []string
	errs        []PathError
	failure     error // change-set listing failed: linked entries error out
}

func (g *repoGroup) link(st *entryState) {
	for _, e := range g.entries {
		if e == st {
			return
		}
	}
	g.entries = append(g.entries, st)
	st.groups = append(st.groups, g)
}

func (g *repoGroup) addReq(rel string, st *entryState) {
	req, ok := g.reqIndex[rel]
	if !ok {
		req = &pathReq{rel: rel}
		g.reqIndex[rel] = req
		g.reqs = append(g.reqs, req)
	}
	st.reqs = append(st.reqs, req)
}

// Aggregate classifies every entry, diffs each repository group with
// bounded parallelism and merges the bodies. Per-item failures are
// captured into the report; the only hard failure is the absence of
// the repository integration itself.
func (a *Aggregator) Aggregate(ctx context.Context, entries []*domain.ResourceRef, scope Scope) (*Report, error) {
	if a.resolver == nil {
		return nil, domain.ErrResolverRequired
	}

	// Step 1: classify and group by resolved repository, keyed by the
	// repository's canonical root, in first-seen order.
	states := make([]*entryState, len(entries))
	var groups []*repoGroup
	groupIndex := make(map[string]*repoGroup)
	for i, ref := range entries {
		st := &entryState{ref: ref}
		states[i] = st
		a.collect(ctx, ref, st, &groups, groupIndex)
	}

	// Step 2: one unit of work per repository group.
	total := len(groups)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(a.concurrency)
	for i, grp := range groups {
		grp := grp
		a.progress(scope, grp.repo.Name(), i+1, total)
		eg.Go(func() error {
			grp.run(gctx)
			return nil
		})
	}
	_ = eg.Wait()

	// Step 3: merge bodies in group-discovery order.
	report := &Report{Items: make([]ItemResult, 0, len(states))}
	var sections []string
	var names []string
	for _, grp := range groups {
		report.DiffedPaths = append(report.DiffedPaths, grp.diffedPaths...)
		if grp.failure != nil {
			report.Errors = append(report.Errors, PathError{
				Repository: grp.repo.Name(),
				Message:    errorMessage(grp.failure),
			})
		}
		report.Errors = append(report.Errors, grp.errs...)
		if grp.body != "" {
			sections = append(sections, grp.body)
			names = append(names, grp.repo.Name())
		}
	}

	withHeaders := len(sections) > 1 || scope.WholeSession
	var sb strings.Builder
	for i, body := range sections {
		if withHeaders {
			fmt.Fprintf(&sb, "--- Diff for repository: %s ---\n", names[i])
		}
		sb.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			sb.WriteString("\n")
		}
	}
	report.MergedText = strings.TrimRight(sb.String(), " \t\n")

	// Step 4: finalize the per-entry classification.
	for _, st := range states {
		report.Items = append(report.Items, a.finalize(st))
	}

	summary := report.Summary()
	diffed, untracked, nonTrackable, errored := report.Counts()
	log.Info().
		Str("scope", scope.Name).
		Int("repositories", total).
		Int("diffed", diffed).
		Int("skipped", untracked+nonTrackable).
		Int("errored", errored).
		Msg("diff aggregation completed")
	if a.hub != nil {
		a.hub.Publish(events.NewDiffCompletedEvent(scope.Name, diffed, untracked+nonTrackable, errored, summary))
	}
	return report, nil
}

// collect resolves one ref and attaches it (or, for repository-less
// containers, its descendants) to repository groups. Classifications
// recorded here are only the terminal skip/error cases; repo-linked
// entries are classified after the groups run.
func (a *Aggregator) collect(ctx context.Context, ref *domain.ResourceRef, top *entryState, groups *[]*repoGroup, index map[string]*repoGroup) {
	if !domain.IsFileLocation(ref.Location) {
		if ref == top.ref {
			top.class = ClassSkippedNonTrackable
		}
		return
	}
	path, err := domain.FilePath(ref.Location)
	if err != nil {
		if ref == top.ref {
			top.class = ClassSkippedNonTrackable
		}
		return
	}

	repo, err := a.resolver.Resolve(ctx, ref.Location)
	if err != nil {
		top.markError(errorMessage(err))
		return
	}
	if repo == nil {
		if !ref.IsContainer {
			if ref == top.ref {
				top.class = ClassSkippedUntracked
			}
			return
		}
		// A container with no repository is retained as a marker: its
		// descendants may individually belong to repositories. The
		// container itself contributes no diff line.
		for _, child := range ref.Children {
			a.collect(ctx, child, top, groups, index)
		}
		return
	}

	root := repo.Root()
	grp, ok := index[root]
	if !ok {
		grp = &repoGroup{repo: repo, reqIndex: make(map[string]*pathReq)}
		index[root] = grp
		*groups = append(*groups, grp)
	}
	grp.link(top)

	rel := relativePath(root, path)
	if ref.IsContainer && rel == "." {
		grp.wholeRepo = true
		return
	}
	grp.addReq(rel, top)
}

// run executes the group's diff requests. A path-level failure is
// recorded and processing continues with the remaining paths.
func (g *repoGroup) run(ctx context.Context) {
	var sb strings.Builder

	if g.wholeRepo {
		// Whole-repository shortcut: ask for the change-set first,
		// then diff each changed path individually so renamed files
		// are attributed to their new path.
		changes, err := g.repo.Changes(ctx)
		if err != nil {
			g.failure = err
			return
		}
		for _, ch := range changes {
			text, derr := g.repo.Diff(ctx, ch.Path)
			if derr != nil {
				g.errs = append(g.errs, PathError{Repository: g.repo.Name(), Path: ch.Path, Message: errorMessage(derr)})
				continue
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			sb.WriteString(ensureHeader(text, ch.Path, ch.RenamedFrom))
			g.diffedPaths = append(g.diffedPaths, ch.Path)
		}
		g.body = sb.String()
		return
	}

	for _, req := range g.reqs {
		text, err := g.repo.Diff(ctx, req.rel)
		if err != nil {
			req.err = err
			g.errs = append(g.errs, PathError{Repository: g.repo.Name(), Path: req.rel, Message: errorMessage(err)})
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		sb.WriteString(ensureHeader(text, req.rel, ""))
		g.diffedPaths = append(g.diffedPaths, req.rel)
	}
	g.body = sb.String()
}

// finalize decides the classification of one input entry once all
// groups have run.
func (a *Aggregator) finalize(st *entryState) ItemResult {
	item := ItemResult{Location: st.ref.Location}

	if st.class != "" {
		item.Class = st.class
		item.Message = st.message
		return item
	}

	if len(st.groups) == 0 {
		// A container whose descendants all turned out untracked or
		// non-trackable.
		item.Class = ClassSkippedUntracked
		return item
	}

	for _, grp := range st.groups {
		if grp.failure != nil {
			item.Class = ClassErrored
			item.Message = errorMessage(grp.failure)
			return item
		}
	}
	for _, req := range st.reqs {
		if req.err != nil {
			item.Class = ClassErrored
			item.Message = errorMessage(req.err)
			return item
		}
	}

	item.Class = ClassDiffed
	return item
}

func (a *Aggregator) progress(scope Scope, repoName string, index, total int) {
	log.Debug().
		Str("scope", scope.Name).
		Str("repository", repoName).
		Int("index", index).
		Int("total", total).
		Msg("processing repository")
	if a.hub != nil {
		a.hub.Publish(events.NewDiffProgressEvent(scope.Name, repoName, index, total))
	}
}

// ensureHeader guarantees the section starts with a file-header marker
// so downstream consumers always see a well-formed section. When the
// repository tooling omitted it, the header is synthesized from the
// known relative path(s).
func ensureHeader(text, path, renamedFrom string) string {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if strings.HasPrefix(strings.TrimLeft(text, "\n"), "diff --git ") {
		return text
	}
	old := path
	if renamedFrom != "" {
		old = renamedFrom
	}
	return fmt.Sprintf("diff --git a/%s b/%s\n%s", old, path, text)
}

// relativePath computes the path of target relative to the repository
// root, in slash form. The root itself yields ".".
func relativePath(root, target string) string {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}

// errorMessage renders an error for a classification entry, appending
// raw command output when available.
func errorMessage(err error) string {
	var cmdErr *domain.RepoCommandError
	if errors.As(err, &cmdErr) && cmdErr.Stderr != "" {
		return fmt.Sprintf("%v: %s", err, strings.TrimSpace(cmdErr.Stderr))
	}
	return err.Error()
}
