// Package ledger builds provider-agnostic transaction envelopes for
// wallet-signed ledger submissions.
package ledger

import (
	"fmt"

	"github.com/mitchellh/copystructure"
)

// MemoKey is the metadata key under which correlation memos are written into
// command arguments and read back from ledger events.
const MemoKey = "splice.lfdecentralizedtrust.org/reason"

const (
	exerciseKey = "ExerciseCommand"
	createKey   = "CreateCommand"
)

// Command is one ledger operation in its JSON API shape, for example
// {"ExerciseCommand": {"templateId": ..., "contractId": ..., "choice": ...,
// "choiceArgument": {...}}}. Commands produced by wallet providers carry
// fields this package does not model, so the shape is kept open.
type Command map[string]interface{}

// DisclosedContract is an explicitly disclosed contract attached to a submission.
type DisclosedContract map[string]interface{}

// NewExerciseCommand builds an ExerciseCommand.
func NewExerciseCommand(templateID, contractID, choice string, argument map[string]interface{}) Command {
	return Command{
		exerciseKey: map[string]interface{}{
			"templateId":     templateID,
			"contractId":     contractID,
			"choice":         choice,
			"choiceArgument": argument,
		},
	}
}

// NewCreateCommand builds a CreateCommand.
func NewCreateCommand(templateID string, arguments map[string]interface{}) Command {
	return Command{
		createKey: map[string]interface{}{
			"templateId":      templateID,
			"createArguments": arguments,
		},
	}
}

// Kind returns "exercise", "create" or "" for shapes that are not recognized.
func (c Command) Kind() string {
	if _, ok := c[exerciseKey].(map[string]interface{}); ok {
		return "exercise"
	}
	if _, ok := c[createKey].(map[string]interface{}); ok {
		return "create"
	}
	return ""
}

// Argument returns the choice argument of an exercise or the create
// arguments of a create, or nil.
func (c Command) Argument() map[string]interface{} {
	switch c.Kind() {
	case "exercise":
		arg, _ := c[exerciseKey].(map[string]interface{})["choiceArgument"].(map[string]interface{})
		return arg
	case "create":
		arg, _ := c[createKey].(map[string]interface{})["createArguments"].(map[string]interface{})
		return arg
	}
	return nil
}

// CopyCommands returns a structural deep copy of commands. The result shares
// no maps or slices with the input.
func CopyCommands(commands []Command) ([]Command, error) {
	out := make([]Command, len(commands))
	for i, cmd := range commands {
		if cmd == nil {
			continue
		}
		dup, err := copystructure.Copy(map[string]interface{}(cmd))
		if err != nil {
			return nil, fmt.Errorf("failed to copy command %d: %w", i, err)
		}
		out[i] = Command(dup.(map[string]interface{}))
	}
	return out, nil
}
