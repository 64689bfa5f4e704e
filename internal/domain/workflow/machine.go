package workflow

import "github.com/garyjia/expense-approval/internal/domain/entity"

// StateMachine tracks the status of one request and validates transitions
type StateMachine interface {
	// State returns the current status
	State() entity.Status

	// CanFire returns true if the trigger is permitted in the current status
	CanFire(trigger Trigger) bool

	// Fire executes the trigger, moving to the target status if allowed
	Fire(trigger Trigger) error

	// PermittedTriggers returns all triggers that can be fired in the current status
	PermittedTriggers() []Trigger
}
