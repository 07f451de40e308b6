package script

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Quoting selects how string values are wrapped in the rendered command.
type Quoting string

const (
	// QuoteDouble wraps values in double quotes without escaping.
	// Values containing quotes or shell metacharacters can break the line.
	QuoteDouble Quoting = "double"

	// QuoteShell quotes values for bash so any content survives as one word.
	QuoteShell Quoting = "shell"
)

// Options tunes rendering. The zero value renders with QuoteDouble.
type Options struct {
	Quoting Quoting
}

// Render builds the command line for def with the given argument values.
// Arguments are emitted in definition order. Missing values are absent;
// defaults are not applied here.
func Render(def *Definition, values Values) string {
	return RenderWith(def, values, Options{})
}

// RenderWith is Render with explicit options.
func RenderWith(def *Definition, values Values, opts Options) string {
	return def.Command + ArgsSuffix(def, values, opts)
}

// ArgsSuffix returns only the rendered arguments, each with a leading space.
func ArgsSuffix(def *Definition, values Values, opts Options) string {
	var sb strings.Builder
	for i := range def.Args {
		arg := &def.Args[i]
		switch {
		case arg.Positional && arg.Type == TypeString:
			if s, ok := values.String(arg.Name); ok && s != "" {
				sb.WriteByte(' ')
				sb.WriteString(quote(s, opts.Quoting))
			}

		case arg.Type == TypeBoolean:
			if b, ok := values.Bool(arg.Name); ok && b {
				sb.WriteString(" --")
				sb.WriteString(arg.Name)
			}

		default:
			if s, ok := values.String(arg.Name); ok && s != "" {
				sb.WriteString(" --")
				sb.WriteString(arg.Name)
				sb.WriteByte(' ')
				sb.WriteString(quote(s, opts.Quoting))
			}
		}
	}
	return sb.String()
}

func quote(s string, q Quoting) string {
	if q == QuoteShell {
		if quoted, err := syntax.Quote(s, syntax.LangBash); err == nil {
			return quoted
		}
	}
	return `"` + s + `"`
}
