package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrEmptyDefinition is returned by Parse for blank input.
var ErrEmptyDefinition = errors.New("definition JSON is missing")

// Parse decodes a single definition. It does not validate it.
func Parse(data string) (Definition, error) {
	var def Definition
	if strings.TrimSpace(data) == "" {
		return def, ErrEmptyDefinition
	}
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return def, fmt.Errorf("decode definition: %w", err)
	}
	if def.Args == nil {
		def.Args = []Argument{}
	}
	return def, nil
}

// Format renders a definition as indented JSON.
func Format(def Definition) string {
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return def.ID
	}
	return string(data)
}

// Scaffold returns a minimal valid definition with a random id.
func Scaffold(label string) Definition {
	if label == "" {
		label = "New command"
	}
	return Definition{
		ID:      uuid.NewString(),
		Label:   label,
		Command: "echo hello",
		Args:    []Argument{},
	}
}
