package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrEmptyAutomation is returned when a request carries neither a script
	// nor any commands.
	ErrEmptyAutomation = errors.New("automation has no script or commands")
	// ErrAmbiguousAutomation is returned when a request carries both forms.
	ErrAmbiguousAutomation = errors.New("automation must provide either a script or commands, not both")
)

// AutomationCommand is one discrete command supplied in a command list.
type AutomationCommand struct {
	Command        string `json:"command" yaml:"command"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// AutomationRequest is the wire payload produced by an AI or an operator.
// Resolve turns it into the tagged Automation form.
type AutomationRequest struct {
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Script      string              `json:"script,omitempty" yaml:"script,omitempty"`
	Commands    []AutomationCommand `json:"commands,omitempty" yaml:"commands,omitempty"`
}

// AutomationKind tags which representation an Automation carries.
type AutomationKind int

const (
	AutomationScript AutomationKind = iota + 1
	AutomationCommands
)

func (k AutomationKind) String() string {
	switch k {
	case AutomationScript:
		return "script"
	case AutomationCommands:
		return "commands"
	default:
		return "unknown"
	}
}

// Automation is either a multi-line script or an ordered command list, never
// both. The zero value is invalid.
type Automation struct {
	kind        AutomationKind
	description string
	script      string
	commands    []AutomationCommand
}

// NewScriptAutomation wraps a multi-line script.
func NewScriptAutomation(script string) (Automation, error) {
	if strings.TrimSpace(script) == "" {
		return Automation{}, ErrEmptyAutomation
	}
	return Automation{kind: AutomationScript, script: script}, nil
}

// NewCommandsAutomation wraps an ordered command list. Blank entries are
// dropped; a list with nothing left is rejected.
func NewCommandsAutomation(commands []AutomationCommand) (Automation, error) {
	kept := make([]AutomationCommand, 0, len(commands))
	for _, cmd := range commands {
		if strings.TrimSpace(cmd.Command) == "" {
			continue
		}
		kept = append(kept, cmd)
	}
	if len(kept) == 0 {
		return Automation{}, ErrEmptyAutomation
	}
	return Automation{kind: AutomationCommands, commands: kept}, nil
}

// Resolve validates the payload shape and returns the tagged form.
func (r AutomationRequest) Resolve() (Automation, error) {
	hasScript := strings.TrimSpace(r.Script) != ""
	hasCommands := false
	for _, cmd := range r.Commands {
		if strings.TrimSpace(cmd.Command) != "" {
			hasCommands = true
			break
		}
	}

	var (
		automation Automation
		err        error
	)
	switch {
	case hasScript && hasCommands:
		return Automation{}, ErrAmbiguousAutomation
	case hasScript:
		automation, err = NewScriptAutomation(r.Script)
	case hasCommands:
		automation, err = NewCommandsAutomation(r.Commands)
	default:
		return Automation{}, ErrEmptyAutomation
	}
	if err != nil {
		return Automation{}, err
	}
	automation.description = r.Description
	return automation, nil
}

// Kind returns which representation is populated.
func (a Automation) Kind() AutomationKind { return a.kind }

// Description returns the optional human summary.
func (a Automation) Description() string { return a.description }

// Script returns the script body for AutomationScript automations.
func (a Automation) Script() string { return a.script }

// Commands returns a copy of the command list for AutomationCommands automations.
func (a Automation) Commands() []AutomationCommand {
	out := make([]AutomationCommand, len(a.commands))
	copy(out, a.commands)
	return out
}

// Text joins the automation into one newline separated body, which is what
// the validator inspects.
func (a Automation) Text() string {
	switch a.kind {
	case AutomationScript:
		return a.script
	case AutomationCommands:
		lines := make([]string, 0, len(a.commands))
		for _, cmd := range a.commands {
			lines = append(lines, cmd.Command)
		}
		return strings.Join(lines, "\n")
	default:
		return ""
	}
}

// Step is one executable unit resolved from an automation.
type Step struct {
	Index       int           `json:"index"`
	Command     string        `json:"command"`
	Description string        `json:"description,omitempty"`
	Line        int           `json:"line,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}
