package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rashpile/scriptmate/internal/store"
	"github.com/rashpile/scriptmate/internal/tui"
	"github.com/rashpile/scriptmate/pkg/script"
)

const emptyCatalogHint = "No commands yet. Use `scriptmate new` or `scriptmate add` to create one."

func newListCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list [query]",
		Aliases: []string{"ls"},
		Short:   "List definitions, optionally filtered by a fuzzy query",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var defs []script.Definition
			if len(args) == 1 {
				defs = a.registry.Search(args[0])
			} else {
				defs = a.registry.List()
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, defs)
			}
			if len(defs) == 0 {
				if len(args) == 1 {
					fmt.Fprintln(out, tui.Muted("Nothing matches "+args[0]+"."))
				} else {
					fmt.Fprintln(out, tui.Muted(emptyCatalogHint))
				}
				return nil
			}
			fmt.Fprintln(out, tui.DefinitionTable(defs))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print definitions as a JSON array")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), script.Format(def))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.DefinitionDetail(&def))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the definition as JSON")
	return cmd
}

func newNewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new [label]",
		Short: "Create a definition with a fresh id and print it for editing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.writable(); err != nil {
				return err
			}
			def := script.Scaffold(strings.Join(args, " "))
			if err := a.registry.Add(def); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), script.Format(def))
			return nil
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "add -f <file>",
		Short: "Add a definition from a JSON file (- for stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.writable(); err != nil {
				return err
			}
			def, err := readDefinition(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			if err := a.registry.Add(def); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.Success(fmt.Sprintf("Added %q.", def.ID)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "definition JSON file")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:     "update -f <file>",
		Aliases: []string{"edit"},
		Short:   "Replace the definition with the same id",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.writable(); err != nil {
				return err
			}
			def, err := readDefinition(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			if err := a.registry.Update(def); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.Success(fmt.Sprintf("Updated %q.", def.ID)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "definition JSON file")
	return cmd
}

func newRenameCmd(a *app) *cobra.Command {
	var (
		file  string
		newID string
	)

	cmd := &cobra.Command{
		Use:   "rename <old-id> (--to <new-id> | -f <file>)",
		Short: "Replace a definition under a new id, keeping its position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.writable(); err != nil {
				return err
			}
			oldID := args[0]

			var def script.Definition
			switch {
			case newID != "" && file != "":
				return errors.New("use either --to or --file")
			case newID != "":
				cur, err := a.lookup(oldID)
				if err != nil {
					return err
				}
				def = cur
				def.ID = newID
			case file != "":
				var err error
				if def, err = readDefinition(cmd.InOrStdin(), file); err != nil {
					return err
				}
			default:
				return errors.New("one of --to or --file is required")
			}

			if err := a.registry.Rename(oldID, def); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.Success(fmt.Sprintf("Renamed %q to %q.", oldID, def.ID)))
			return nil
		},
	}
	cmd.Flags().StringVar(&newID, "to", "", "new id, keeping everything else")
	cmd.Flags().StringVarP(&file, "file", "f", "", "replacement definition JSON file")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a definition",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.writable(); err != nil {
				return err
			}
			if err := a.registry.Delete(args[0]); err != nil {
				return a.notFound(args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.Success(fmt.Sprintf("Deleted %q.", args[0])))
			return nil
		},
	}
}

// lookup fetches a definition and suggests close matches when it is missing.
func (a *app) lookup(id string) (script.Definition, error) {
	def, err := a.registry.Get(id)
	if err != nil {
		return def, a.notFound(id, err)
	}
	return def, nil
}

const maxSuggestions = 3

func (a *app) notFound(id string, err error) error {
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	matches := a.registry.Search(id)
	if len(matches) == 0 {
		return err
	}
	if len(matches) > maxSuggestions {
		matches = matches[:maxSuggestions]
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return fmt.Errorf("%w (did you mean %s?)", err, strings.Join(ids, ", "))
}

// readDefinition parses one definition from a file, or stdin for "-".
func readDefinition(stdin io.Reader, path string) (script.Definition, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return script.Definition{}, fmt.Errorf("read definition: %w", err)
	}
	return script.Parse(string(data))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
