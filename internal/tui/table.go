package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/rashpile/scriptmate/pkg/script"
)

// DefinitionTable renders definitions as a bordered table, one per row.
func DefinitionTable(defs []script.Definition) string {
	rows := make([][]string, 0, len(defs))
	for i := range defs {
		d := &defs[i]
		rows = append(rows, []string{d.ID, d.Label, d.Command, ArgSummary(d)})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("ID", "LABEL", "COMMAND", "ARGS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

// ArgSummary lists argument names with a type marker: a trailing '!' for
// required, '?' for boolean and a leading '<' for positional.
func ArgSummary(def *script.Definition) string {
	if len(def.Args) == 0 {
		return "-"
	}
	names := make([]string, 0, len(def.Args))
	for _, a := range def.Args {
		name := a.Name
		switch {
		case a.Type == script.TypeBoolean:
			name += "?"
		case a.Positional:
			name = "<" + name + ">"
		}
		if a.Required {
			name += "!"
		}
		names = append(names, name)
	}
	return strings.Join(names, " ")
}

// DefinitionDetail renders one definition with its arguments, for `show`.
func DefinitionDetail(def *script.Definition) string {
	var sb strings.Builder
	sb.WriteString(Title(def.Label))
	sb.WriteString(" " + Muted("("+def.ID+")"))
	if def.Description != "" {
		sb.WriteString("\n  " + def.Description)
	}
	sb.WriteString("\n  " + def.Command)
	if def.BaseDirectory != "" {
		sb.WriteString("\n  " + Muted("in "+def.BaseDirectory))
	}

	for _, a := range def.Args {
		fmt.Fprintf(&sb, "\n  --%s  %s  %s", a.Name, a.Type, a.Description)
		var flags []string
		if a.Required {
			flags = append(flags, "required")
		}
		if a.Positional {
			flags = append(flags, "positional")
		}
		if a.HasDefault() {
			flags = append(flags, fmt.Sprintf("default %v", a.Default))
		}
		if len(flags) > 0 {
			sb.WriteString("  " + Muted("["+strings.Join(flags, ", ")+"]"))
		}
	}
	return sb.String()
}
