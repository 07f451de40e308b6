package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/rashpile/scriptmate/internal/collect"
)

const executeOption = "▶ Execute"

// Prompter is a collect.Prompter backed by huh forms. Dismissing a form
// with esc or ctrl+c reports collect.ErrCancelled.
type Prompter struct {
	cfg    Config
	notice string
}

// NewPrompter returns a Prompter. notice is shown under every review, for
// example the working directory the command will run in.
func NewPrompter(cfg Config, notice string) *Prompter {
	return &Prompter{cfg: cfg, notice: notice}
}

// Review asks the user to execute or pick an argument to edit.
func (p *Prompter) Review(ctx context.Context, r collect.Review) (collect.Action, error) {
	var choice collect.Action

	sel := huh.NewSelect[collect.Action]().
		Title(r.Label).
		Description(reviewDescription(r, p.notice)).
		Options(reviewOptions(r)...).
		Value(&choice)

	if err := p.run(ctx, sel); err != nil {
		return collect.Action{}, err
	}
	return choice, nil
}

// EditString asks for a string value. Empty input for a required argument
// is rejected inline, so problem is usually nil.
func (p *Prompter) EditString(ctx context.Context, e collect.Edit, problem error) (string, error) {
	value := e.Initial
	arg := e.Arg

	input := huh.NewInput().
		Title(e.Prompt).
		Description(editDescription(e, problem)).
		Validate(func(s string) error {
			if err := collect.CheckString(arg, s); err != nil {
				return errors.New("a value is required")
			}
			return nil
		}).
		Value(&value)

	if err := p.run(ctx, input); err != nil {
		return "", err
	}
	return value, nil
}

// EditBool asks a yes/no question.
func (p *Prompter) EditBool(ctx context.Context, e collect.Edit) (bool, error) {
	value := e.InitialBool

	confirm := huh.NewConfirm().
		Title(e.Prompt).
		Description(e.Placeholder).
		Affirmative("Yes").
		Negative("No").
		Value(&value)

	if err := p.run(ctx, confirm); err != nil {
		return false, err
	}
	return value, nil
}

func (p *Prompter) run(ctx context.Context, field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).
		WithTheme(getHuhTheme(p.cfg.Theme)).
		WithAccessible(p.cfg.Accessible)
	if p.cfg.Output != nil {
		form = form.WithOutput(p.cfg.Output)
	}

	err := form.RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return collect.ErrCancelled
	}
	return err
}

func reviewOptions(r collect.Review) []huh.Option[collect.Action] {
	opts := make([]huh.Option[collect.Action], 0, len(r.Items)+1)
	opts = append(opts, huh.NewOption(executeOption, collect.Action{Execute: true}))
	for _, it := range r.Items {
		opts = append(opts, huh.NewOption(itemLabel(it), collect.Action{Arg: it.Name}))
	}
	return opts
}

func itemLabel(it collect.Item) string {
	label := fmt.Sprintf("%s: %s", it.Name, it.Value)
	if it.Detail != "" {
		label += "  " + mutedStyle.Render(it.Detail)
	}
	return label
}

func reviewDescription(r collect.Review, notice string) string {
	desc := r.Command
	if notice != "" {
		desc += "\n" + notice
	}
	if len(r.Missing) > 0 {
		desc += "\n" + errorStyle.Render("A value is required for: "+strings.Join(r.Missing, ", "))
	}
	return desc
}

func editDescription(e collect.Edit, problem error) string {
	var parts []string
	if errors.Is(problem, collect.ErrRequiredArgumentMissing) {
		parts = append(parts, "A value is required.")
	}
	if e.Placeholder != "" && e.Placeholder != e.Prompt {
		parts = append(parts, e.Placeholder)
	}
	return strings.Join(parts, "\n")
}
