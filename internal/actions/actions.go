package actions

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ActionType represents the type of action to execute
type ActionType string

const (
	ActionTypeProgram      ActionType = "program"
	ActionTypeShellCommand ActionType = "shell"
	ActionTypeMidi         ActionType = "midi"
)

// ErrHelperMissing is returned when an action's external helper cannot be found
var ErrHelperMissing = errors.New("helper not found")

// Action represents an executable action bound to a pad
type Action struct {
	ID   string     `yaml:"id,omitempty"`
	Name string     `yaml:"name"`
	Type ActionType `yaml:"type"`
	Code string     `yaml:"code"`
}

// NewAction creates a new action with a generated ID
func NewAction(name string, actionType ActionType, code string) Action {
	return Action{
		ID:   uuid.New().String(),
		Name: name,
		Type: actionType,
		Code: code,
	}
}
