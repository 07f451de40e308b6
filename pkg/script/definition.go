// Package script defines reusable script commands and their typed arguments.
// A Definition is a command prefix plus an ordered list of arguments; Render
// turns a Definition and a set of argument values into one command line.
package script

import (
	"fmt"
	"maps"
	"slices"
)

// ArgType is the closed set of argument value types.
type ArgType string

const (
	TypeString  ArgType = "string"
	TypeBoolean ArgType = "boolean"
)

// Valid reports whether t is one of the supported types.
func (t ArgType) Valid() bool {
	return t == TypeString || t == TypeBoolean
}

// Argument describes one promptable argument of a Definition.
type Argument struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Type        ArgType `json:"type"`
	Default     any     `json:"defaultValue,omitempty"` // string or bool, matching Type
	Required    bool    `json:"required"`
	Prompt      string  `json:"prompt,omitempty"`
	Positional  bool    `json:"isPositional,omitempty"` // string arguments only
}

// HasDefault reports whether the argument defines a default value.
func (a *Argument) HasDefault() bool {
	return a.Default != nil
}

// PromptText returns the custom prompt or a generated one.
func (a *Argument) PromptText() string {
	if a.Prompt != "" {
		return a.Prompt
	}
	return "Enter value for " + a.Name
}

// Definition is a named, persisted command template.
type Definition struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Command     string     `json:"command"`
	Args        []Argument `json:"args"`
	Description string     `json:"description,omitempty"`

	// BaseDirectory overrides the configured working directory for this
	// command only.
	BaseDirectory string `json:"baseDirectory,omitempty"`
}

// Arg returns the argument with the given name.
func (d *Definition) Arg(name string) (*Argument, bool) {
	for i := range d.Args {
		if d.Args[i].Name == name {
			return &d.Args[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy that shares no slices with d.
func (d Definition) Clone() Definition {
	d.Args = slices.Clone(d.Args)
	if d.Args == nil {
		d.Args = []Argument{}
	}
	return d
}

// Validate checks that the definition is well-formed.
// All failures wrap ErrInvalidDefinition.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return invalid(d.ID, "id", "must not be empty")
	}
	if d.Label == "" {
		return invalid(d.ID, "label", "must not be empty")
	}
	if d.Command == "" {
		return invalid(d.ID, "command", "must not be empty")
	}

	seen := make(map[string]struct{}, len(d.Args))
	for i := range d.Args {
		arg := &d.Args[i]
		field := fmt.Sprintf("args[%d]", i)

		if arg.Name == "" {
			return invalid(d.ID, field+".name", "must not be empty")
		}
		if arg.Description == "" {
			return invalid(d.ID, field+".description", "must not be empty")
		}
		if _, dup := seen[arg.Name]; dup {
			return invalid(d.ID, field+".name", fmt.Sprintf("duplicate argument %q", arg.Name))
		}
		seen[arg.Name] = struct{}{}

		if !arg.Type.Valid() {
			return invalid(d.ID, field+".type", fmt.Sprintf("unsupported type %q", arg.Type))
		}
		if arg.Positional && arg.Type != TypeString {
			return invalid(d.ID, field+".isPositional", "only string arguments can be positional")
		}
		if arg.HasDefault() {
			switch arg.Type {
			case TypeString:
				if _, ok := arg.Default.(string); !ok {
					return invalid(d.ID, field+".defaultValue", "must be a string")
				}
			case TypeBoolean:
				if _, ok := arg.Default.(bool); !ok {
					return invalid(d.ID, field+".defaultValue", "must be a boolean")
				}
			}
		}
	}

	return nil
}

// Values maps argument names to collected values (string or bool).
type Values map[string]any

// String returns the string value for name, if present and a string.
func (v Values) String(name string) (string, bool) {
	s, ok := v[name].(string)
	return s, ok
}

// Bool returns the bool value for name, if present and a bool.
func (v Values) Bool(name string) (bool, bool) {
	b, ok := v[name].(bool)
	return b, ok
}

// Clone returns a shallow copy; values are immutable scalars.
func (v Values) Clone() Values {
	if v == nil {
		return Values{}
	}
	return maps.Clone(v)
}

// Defaults returns the seed values for def: every argument with a default.
func Defaults(def *Definition) Values {
	values := make(Values, len(def.Args))
	for _, arg := range def.Args {
		if arg.HasDefault() {
			values[arg.Name] = arg.Default
		}
	}
	return values
}
