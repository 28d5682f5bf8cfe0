package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	exportOutput string
	importName   string
)

// sessionCmd groups session lifecycle subcommands.
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		sess, err := rt.store.Create(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created session %q (%s)\n", sess.Name, sess.ID)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		sessions := rt.store.List()
		if len(sessions) == 0 {
			fmt.Println("No sessions")
			return nil
		}
		for _, sess := range sessions {
			fmt.Printf("%s  %s (%d entries)\n", sess.ID, sess.Name, sess.Len())
		}
		return nil
	},
}

var sessionRenameCmd = &cobra.Command{
	Use:   "rename <session> <new-name>",
	Short: "Rename a session",
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
		if err := rt.store.Rename(sess.ID, args[1]); err != nil {
			return err
		}
		fmt.Printf("Renamed session to %q\n", args[1])
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session>",
	Short: "Delete a session",
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
		if err := rt.store.Delete(sess.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted session %q\n", sess.Name)
		return nil
	},
}

var sessionExportCmd = &cobra.Command{
	Use:   "export <session>",
	Short: "Export a session's tree as yaml",
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
		data, err := sess.ExportYAML()
		if err != nil {
			return err
		}

		if exportOutput == "" {
			fmt.Print(string(data))
			return nil
		}
		if err := os.WriteFile(exportOutput, data, 0644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Printf("Exported session %q to %s\n", sess.Name, exportOutput)
		return nil
	},
}

var sessionImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a session from an exported yaml document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}

		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		sess, err := rt.store.ImportYAML(data, importName)
		if err != nil {
			return err
		}
		fmt.Printf("Imported session %q (%d entries)\n", sess.Name, sess.Len())
		return nil
	},
}

func init() {
	sessionExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write yaml to file instead of stdout")
	sessionImportCmd.Flags().StringVar(&importName, "name", "", "override the session name from the document")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionRenameCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionCmd.AddCommand(sessionExportCmd)
	sessionCmd.AddCommand(sessionImportCmd)
}
