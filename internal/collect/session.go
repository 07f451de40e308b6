// Package collect implements interactive argument collection for a script
// definition. A Session seeds values from defaults, then alternates between
// reviewing the current values and editing one argument at a time until the
// caller commits or abandons it.
package collect

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rashpile/scriptmate/pkg/script"
)

// State is a position in the collection state machine.
type State int

const (
	StateReview State = iota
	StateEdit
	StateCommitted
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateReview:
		return "review"
	case StateEdit:
		return "edit"
	case StateCommitted:
		return "committed"
	case StateAbandoned:
		return "abandoned"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrRequiredArgumentMissing rejects an empty value for a required
	// string argument that has no default. A rejected submission leaves the
	// session in Edit, a rejected Commit leaves it in Review.
	ErrRequiredArgumentMissing = errors.New("required argument missing")

	// ErrInvalidTransition is returned for operations not allowed in the
	// session's current state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnknownArgument is returned when selecting a name the definition lacks.
	ErrUnknownArgument = errors.New("unknown argument")
)

const (
	placeholderString  = "(not set)"
	placeholderBoolean = "(No)"
)

// Item is one argument row of a Review.
type Item struct {
	Name   string
	Type   script.ArgType
	Value  string // display value or placeholder
	Set    bool
	Detail string // description, annotated when the value is the default
}

// Review is the snapshot presented in the Review state.
type Review struct {
	Label   string
	Command string // command line rendered from the current values
	Items   []Item
	Missing []string // required arguments the last refused Commit found unset
}

// Edit describes the pending edit of a single argument.
type Edit struct {
	Arg         script.Argument
	Prompt      string
	Placeholder string
	Initial     string // initial text for string arguments
	InitialBool bool   // initial choice for boolean arguments
}

// Option configures a Session.
type Option func(*Session)

// WithQuoting sets the quoting used for the review preview.
func WithQuoting(q script.Quoting) Option {
	return func(s *Session) {
		s.render.Quoting = q
	}
}

// WithValues overlays values on top of the seeded defaults. Names the
// definition does not declare are ignored.
func WithValues(values script.Values) Option {
	return func(s *Session) {
		for name, v := range values {
			if _, ok := s.def.Arg(name); ok {
				s.values[name] = v
			}
		}
	}
}

// Session holds the value map for one definition. It is not safe for
// concurrent use; the owner serializes calls.
type Session struct {
	def     script.Definition
	values  script.Values
	state   State
	editing int
	missing []string
	render  script.Options
}

// Start seeds a session from the definition's defaults and enters Review.
func Start(def script.Definition, opts ...Option) *Session {
	def = def.Clone()
	s := &Session{
		def:     def,
		values:  script.Defaults(&def),
		state:   StateReview,
		editing: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Definition returns the definition being collected for.
func (s *Session) Definition() script.Definition {
	return s.def.Clone()
}

// Values returns a copy of the current value map.
func (s *Session) Values() script.Values {
	return s.values.Clone()
}

// Review returns the current values for display.
func (s *Session) Review() Review {
	r := Review{
		Label:   s.def.Label,
		Command: script.RenderWith(&s.def, s.values, s.render),
		Items:   make([]Item, 0, len(s.def.Args)),
		Missing: slices.Clone(s.missing),
	}
	for _, arg := range s.def.Args {
		r.Items = append(r.Items, s.item(arg))
	}
	return r
}

func (s *Session) item(arg script.Argument) Item {
	it := Item{
		Name:   arg.Name,
		Type:   arg.Type,
		Detail: arg.Description,
	}

	current, set := s.values[arg.Name]
	it.Set = set
	switch {
	case set:
		it.Value = FormatValue(arg.Type, current)
	case arg.Type == script.TypeBoolean:
		it.Value = placeholderBoolean
	default:
		it.Value = placeholderString
	}

	if set && arg.HasDefault() && current == arg.Default {
		it.Detail += " (default: " + FormatValue(arg.Type, arg.Default) + ")"
	}
	return it
}

// FormatValue renders a value the way reviews display it: strings quoted,
// booleans as Yes/No.
func FormatValue(t script.ArgType, v any) string {
	if t == script.TypeBoolean {
		if b, _ := v.(bool); b {
			return "Yes"
		}
		return "No"
	}
	s, _ := v.(string)
	return `"` + s + `"`
}

// Select moves from Review to Edit for the named argument.
func (s *Session) Select(name string) (Edit, error) {
	if s.state != StateReview {
		return Edit{}, fmt.Errorf("select %q in %s: %w", name, s.state, ErrInvalidTransition)
	}

	idx := -1
	for i := range s.def.Args {
		if s.def.Args[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Edit{}, fmt.Errorf("%q: %w", name, ErrUnknownArgument)
	}

	s.state = StateEdit
	s.editing = idx
	s.missing = nil
	return s.edit(), nil
}

// Pending returns the edit in progress.
func (s *Session) Pending() (Edit, bool) {
	if s.state != StateEdit {
		return Edit{}, false
	}
	return s.edit(), true
}

func (s *Session) edit() Edit {
	arg := s.def.Args[s.editing]
	e := Edit{
		Arg:         arg,
		Prompt:      arg.PromptText(),
		Placeholder: arg.Description,
	}

	if arg.Type == script.TypeBoolean {
		if b, ok := s.values.Bool(arg.Name); ok {
			e.InitialBool = b
		} else if b, ok := arg.Default.(bool); ok {
			e.InitialBool = b
		}
		return e
	}

	if cur, _ := s.values.String(arg.Name); cur != "" {
		e.Initial = cur
	} else if def, ok := arg.Default.(string); ok {
		e.Initial = def
	}
	return e
}

// CheckString validates input for a string argument without changing state.
// Only a required argument without a default rejects empty input.
func CheckString(arg script.Argument, input string) error {
	if arg.Required && input == "" && !arg.HasDefault() {
		return fmt.Errorf("%s is required: %w", arg.Name, ErrRequiredArgumentMissing)
	}
	return nil
}

// SubmitString completes a string edit. On ErrRequiredArgumentMissing the
// session stays in Edit and the value map is untouched.
func (s *Session) SubmitString(input string) error {
	arg, err := s.pendingOf(script.TypeString)
	if err != nil {
		return err
	}
	if err := CheckString(arg, input); err != nil {
		return err
	}
	s.values[arg.Name] = input
	s.backToReview()
	return nil
}

// SubmitBool completes a boolean edit.
func (s *Session) SubmitBool(v bool) error {
	arg, err := s.pendingOf(script.TypeBoolean)
	if err != nil {
		return err
	}
	s.values[arg.Name] = v
	s.backToReview()
	return nil
}

// CancelEdit returns to Review without changing any value.
func (s *Session) CancelEdit() error {
	if s.state != StateEdit {
		return fmt.Errorf("cancel edit in %s: %w", s.state, ErrInvalidTransition)
	}
	s.backToReview()
	return nil
}

// Commit ends the session from Review and returns the final values. While a
// required string argument without a default is unset or empty, Commit
// fails with ErrRequiredArgumentMissing and the session stays in Review with
// the names listed in Review().Missing.
func (s *Session) Commit() (script.Values, error) {
	if s.state != StateReview {
		return nil, fmt.Errorf("commit in %s: %w", s.state, ErrInvalidTransition)
	}
	if missing := s.unresolved(); len(missing) > 0 {
		s.missing = missing
		return nil, fmt.Errorf("%s not set: %w", strings.Join(missing, ", "), ErrRequiredArgumentMissing)
	}
	s.missing = nil
	s.state = StateCommitted
	return s.values.Clone(), nil
}

// Abandon ends the session without producing values. A pending edit is
// discarded.
func (s *Session) Abandon() error {
	if s.state == StateCommitted || s.state == StateAbandoned {
		return fmt.Errorf("abandon in %s: %w", s.state, ErrInvalidTransition)
	}
	s.state = StateAbandoned
	s.editing = -1
	return nil
}

// Done reports whether the session reached a terminal state.
func (s *Session) Done() bool {
	return s.state == StateCommitted || s.state == StateAbandoned
}

// unresolved lists string arguments whose current value CheckString rejects.
func (s *Session) unresolved() []string {
	var names []string
	for _, arg := range s.def.Args {
		if arg.Type != script.TypeString {
			continue
		}
		v, _ := s.values.String(arg.Name)
		if CheckString(arg, v) != nil {
			names = append(names, arg.Name)
		}
	}
	return names
}

func (s *Session) pendingOf(t script.ArgType) (script.Argument, error) {
	if s.state != StateEdit {
		return script.Argument{}, fmt.Errorf("submit in %s: %w", s.state, ErrInvalidTransition)
	}
	arg := s.def.Args[s.editing]
	if arg.Type != t {
		return script.Argument{}, fmt.Errorf("submit %s value for %s argument %q: %w",
			t, arg.Type, arg.Name, ErrInvalidTransition)
	}
	return arg, nil
}

func (s *Session) backToReview() {
	s.state = StateReview
	s.editing = -1
}

// Summary renders the review as plain text, one argument per line.
func (r Review) Summary() string {
	var sb strings.Builder
	sb.WriteString(r.Command)
	for _, it := range r.Items {
		fmt.Fprintf(&sb, "\n  %s: %s", it.Name, it.Value)
	}
	return sb.String()
}
