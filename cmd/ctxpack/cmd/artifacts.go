package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctxpack/ctxpack/internal/adapters/content"
	"github.com/ctxpack/ctxpack/internal/adapters/git"
	"github.com/ctxpack/ctxpack/internal/diff"
	"github.com/ctxpack/ctxpack/internal/domain"
	"github.com/ctxpack/ctxpack/internal/generate"
	"github.com/ctxpack/ctxpack/internal/session"
)

// diffCmd aggregates git diffs for a session scope.
var diffCmd = &cobra.Command{
	Use:   "diff <session> [location]",
	Short: "Aggregate git diffs against HEAD for a session scope",
	Long: `Collect every repository the scope touches, diff each against HEAD,
and merge the results into one unified diff. Entries outside any
repository are reported as skipped; failed requests as errors.

With no location the whole session is the scope; with a location only
that subtree is.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		sess, err := rt.findSession(args[0])
		if err != nil {
			return err
		}

		entries, scope, err := scopeOf(sess, args)
		if err != nil {
			return err
		}

		resolver := git.NewResolver(rt.cfg.Git.Command)
		aggregator := diff.NewAggregator(resolver, rt.cfg.Diff.Concurrency, nil)

		report, err := aggregator.Aggregate(cmd.Context(), entries, scope)
		if err != nil {
			return err
		}

		if report.MergedText != "" {
			text, truncated := git.TruncateDiff(report.MergedText, rt.cfg.Limits.MaxDiffSizeKB)
			fmt.Println(text)
			if truncated {
				fmt.Println("... (diff truncated)")
			}
			fmt.Println()
		}
		fmt.Println(report.Summary())
		if section := report.ErrorSection(); section != "" {
			fmt.Println()
			fmt.Println(section)
		}
		return nil
	},
}

// blocksCmd renders concatenated content blocks for a scope.
var blocksCmd = &cobra.Command{
	Use:   "blocks <session> [location]",
	Short: "Render the scope's file contents as fenced blocks",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		sess, err := rt.findSession(args[0])
		if err != nil {
			return err
		}

		location := session.RootLocation
		if len(args) == 2 {
			location = resolveLocationArg(args[1])
		}
		refs, found := sess.Flatten(location)
		if !found {
			return domain.ErrEntryNotFound
		}

		reader := content.NewReader(rt.cfg.Limits.MaxFileSizeKB)
		generator := generate.New(reader, rt.cfg.ExcludeFunc())

		out, err := generator.Blocks(cmd.Context(), refs)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

// treeCmd renders the scope's hierarchy.
var treeCmd = &cobra.Command{
	Use:   "tree <session> [location]",
	Short: "Render the scope's hierarchy",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		sess, err := rt.findSession(args[0])
		if err != nil {
			return err
		}

		var roots []*domain.ResourceRef
		if len(args) == 2 {
			ref, found := sess.Find(resolveLocationArg(args[1]))
			if !found {
				return domain.ErrEntryNotFound
			}
			roots = []*domain.ResourceRef{ref}
		} else {
			roots = sess.Roots()
		}

		generator := generate.New(nil, nil)
		fmt.Println(generator.Tree(roots))
		return nil
	},
}

// scopeOf maps command arguments to aggregation entries and scope.
func scopeOf(sess *session.Session, args []string) ([]*domain.ResourceRef, diff.Scope, error) {
	if len(args) < 2 {
		return sess.Roots(), diff.Scope{Name: sess.Name, WholeSession: true}, nil
	}
	ref, found := sess.Find(resolveLocationArg(args[1]))
	if !found {
		return nil, diff.Scope{}, domain.ErrEntryNotFound
	}
	return []*domain.ResourceRef{ref}, diff.Scope{Name: ref.DisplayName}, nil
}
