// Package tui renders definitions and collects argument values in a terminal.
// Prompts are built on charmbracelet/huh and styled with lipgloss.
package tui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Theme names a huh theme.
type Theme string

const (
	ThemeDefault    Theme = "default"
	ThemeCharm      Theme = "charm"
	ThemeDracula    Theme = "dracula"
	ThemeCatppuccin Theme = "catppuccin"
	ThemeBase16     Theme = "base16"
)

// Themes lists the accepted theme names.
var Themes = []Theme{ThemeDefault, ThemeCharm, ThemeDracula, ThemeCatppuccin, ThemeBase16}

// ParseTheme validates a theme name. The empty string selects ThemeDefault.
func ParseTheme(s string) (Theme, error) {
	if s == "" {
		return ThemeDefault, nil
	}
	for _, t := range Themes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown theme %q", s)
}

// Config holds common configuration for prompts.
type Config struct {
	Theme Theme
	// Accessible replaces the interactive widgets with line-based prompts.
	Accessible bool
	// Output receives the rendered prompts. Nil means huh's default.
	Output io.Writer
}

// DefaultConfig returns a Config for the current process. Accessible mode
// is switched on when stdin is not a terminal or ACCESSIBLE is set; prompts
// then go to stderr so they survive command substitution.
func DefaultConfig() Config {
	accessible := !isInputTerminal() || os.Getenv("ACCESSIBLE") != ""

	var output io.Writer = os.Stdout
	if accessible {
		output = os.Stderr
	}
	return Config{Theme: ThemeDefault, Accessible: accessible, Output: output}
}

func isInputTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func getHuhTheme(t Theme) *huh.Theme {
	switch t {
	case ThemeCharm:
		return huh.ThemeCharm()
	case ThemeDracula:
		return huh.ThemeDracula()
	case ThemeCatppuccin:
		return huh.ThemeCatppuccin()
	case ThemeBase16:
		return huh.ThemeBase16()
	default:
		return huh.ThemeBase()
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// Title styles a heading.
func Title(s string) string { return titleStyle.Render(s) }

// Muted styles secondary text.
func Muted(s string) string { return mutedStyle.Render(s) }

// Success styles a completion line.
func Success(s string) string { return successStyle.Render(s) }

// Error styles a failure line.
func Error(s string) string { return errorStyle.Render(s) }
