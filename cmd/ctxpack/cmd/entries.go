package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ctxpack/ctxpack/internal/domain"
	"github.com/ctxpack/ctxpack/internal/session"
)

var (
	addParent    string
	addContainer bool
	moveParent   string
)

// addCmd inserts entries into a session.
var addCmd = &cobra.Command{
	Use:   "add <session> <location>...",
	Short: "Add entries to a session",
	Long: `Add one or more locations to a session. Filesystem paths are
resolved to absolute paths; directories become containers. Locations
matching the configured exclusion globs are skipped, as are duplicates
of an existing sibling.

Example:
  ctxpack add review ./internal/diff ./README.md
  ctxpack add review --parent /abs/path/internal ./internal/diff/report.go`,
	Args: cobra.MinimumNArgs(2),
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

		items := make([]*domain.ResourceRef, 0, len(args)-1)
		for _, location := range args[1:] {
			items = append(items, buildRef(location))
		}

		var exclude session.ExcludeFunc
		if fn := rt.cfg.ExcludeFunc(); fn != nil {
			exclude = func(ref *domain.ResourceRef) bool { return fn(ref.Location) }
		}

		added, skipped, err := sess.Insert(addParent, items, exclude)
		if err != nil {
			return err
		}
		fmt.Printf("Added %d entr%s, skipped %d\n", added, pluralY(added), skipped)
		return nil
	},
}

// buildRef resolves a CLI location argument to a ref. Plain paths are
// made absolute and stat'd to decide between leaf and container;
// scheme-prefixed locations are taken as given.
func buildRef(location string) *domain.ResourceRef {
	if !domain.IsFileLocation(location) {
		return domain.NewFileRef(location)
	}

	path, err := domain.FilePath(location)
	if err == nil {
		if abs, aerr := filepath.Abs(path); aerr == nil {
			location = abs
		}
	}
	if addContainer {
		return domain.NewContainerRef(location)
	}
	if info, serr := os.Stat(location); serr == nil && info.IsDir() {
		return domain.NewContainerRef(location)
	}
	return domain.NewFileRef(location)
}

// removeCmd removes an entry (and its subtree).
var removeCmd = &cobra.Command{
	Use:   "remove <session> <location>",
	Short: "Remove an entry and its subtree",
	Args:  cobra.ExactArgs(2),
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

		location := resolveLocationArg(args[1])
		if sess.Remove(location) {
			fmt.Printf("Removed %s\n", location)
		} else {
			fmt.Printf("No entry at %s\n", location)
		}
		return nil
	},
}

// undoCmd restores the most recently removed subtree.
var undoCmd = &cobra.Command{
	Use:   "undo <session>",
	Short: "Restore the most recently removed subtree",
	Args:  cobra.ExactArgs(1),
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
		if sess.UndoLastRemoval() {
			fmt.Println("Restored last removal")
		} else {
			fmt.Println("Nothing to undo")
		}
		return nil
	},
}

// moveCmd reorders a child within its sibling sequence.
var moveCmd = &cobra.Command{
	Use:   "move <session> <from-index> <to-index>",
	Short: "Reorder an entry within its siblings",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("from-index must be a number: %q", args[1])
		}
		to, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("to-index must be a number: %q", args[2])
		}

		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		sess, err := rt.findSession(args[0])
		if err != nil {
			return err
		}
		if err := sess.Reorder(moveParent, from, to); err != nil {
			return err
		}
		fmt.Printf("Moved entry %d to position %d\n", from, to)
		return nil
	},
}

// resolveLocationArg makes plain path arguments absolute so they match
// entries inserted via add.
func resolveLocationArg(location string) string {
	if !domain.IsFileLocation(location) {
		return location
	}
	path, err := domain.FilePath(location)
	if err != nil {
		return location
	}
	if abs, aerr := filepath.Abs(path); aerr == nil {
		return abs
	}
	return location
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func init() {
	addCmd.Flags().StringVar(&addParent, "parent", "", "insert under this container location (default: session root)")
	addCmd.Flags().BoolVar(&addContainer, "container", false, "force entries to be containers")
	moveCmd.Flags().StringVar(&moveParent, "parent", "", "reorder within this container location (default: session root)")
}
