package collect

import (
	"context"
	"errors"
	"fmt"

	"github.com/rashpile/scriptmate/pkg/script"
)

var (
	// ErrCancelled is returned by a Prompter when the user dismisses a prompt.
	ErrCancelled = errors.New("cancelled")

	// ErrAbandoned is returned by Run when the review prompt was dismissed.
	ErrAbandoned = errors.New("argument collection abandoned")
)

// Action is the choice made on the review prompt.
type Action struct {
	Execute bool
	Arg     string // argument to edit when Execute is false
}

// Prompter is a synchronous UI for a Session.
type Prompter interface {
	// Review shows the current values and returns the chosen action.
	Review(ctx context.Context, r Review) (Action, error)

	// EditString asks for a new string value. problem is the reason the
	// previous submission was rejected, or nil on the first attempt.
	EditString(ctx context.Context, e Edit, problem error) (string, error)

	// EditBool asks for a yes/no choice.
	EditBool(ctx context.Context, e Edit) (bool, error)
}

// Run collects values for def until the user commits or abandons.
// Each review/edit round is one loop iteration.
func Run(ctx context.Context, def script.Definition, p Prompter, opts ...Option) (script.Values, error) {
	s := Start(def, opts...)

	for {
		if err := ctx.Err(); err != nil {
			_ = s.Abandon()
			return nil, err
		}

		action, err := p.Review(ctx, s.Review())
		if err != nil {
			_ = s.Abandon()
			if errors.Is(err, ErrCancelled) {
				return nil, ErrAbandoned
			}
			return nil, err
		}

		if action.Execute {
			values, err := s.Commit()
			if errors.Is(err, ErrRequiredArgumentMissing) {
				// Back to the review, which now lists what is missing.
				continue
			}
			return values, err
		}

		edit, err := s.Select(action.Arg)
		if err != nil {
			return nil, err
		}

		if err := runEdit(ctx, s, p, edit); err != nil {
			_ = s.Abandon()
			return nil, err
		}
	}
}

// runEdit completes or cancels the pending edit, leaving s in Review.
func runEdit(ctx context.Context, s *Session, p Prompter, edit Edit) error {
	if edit.Arg.Type == script.TypeBoolean {
		v, err := p.EditBool(ctx, edit)
		if errors.Is(err, ErrCancelled) {
			return s.CancelEdit()
		}
		if err != nil {
			return err
		}
		return s.SubmitBool(v)
	}

	var problem error
	for {
		input, err := p.EditString(ctx, edit, problem)
		if errors.Is(err, ErrCancelled) {
			return s.CancelEdit()
		}
		if err != nil {
			return err
		}

		problem = s.SubmitString(input)
		if problem == nil {
			return nil
		}
		if !errors.Is(problem, ErrRequiredArgumentMissing) {
			return fmt.Errorf("edit %q: %w", edit.Arg.Name, problem)
		}
		edit.Initial = input
	}
}
