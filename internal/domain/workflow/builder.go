package workflow

import (
	"fmt"
	"sort"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns the transition table for the given status
	Configure(state entity.Status) StateConfiguration

	// Build creates a new state machine starting at initial
	Build(initial entity.Status) StateMachine
}

// StateConfiguration configures transitions out of one status
type StateConfiguration interface {
	// Permit allows a trigger to move to the target status
	Permit(trigger Trigger, to entity.Status) StateConfiguration
}

type stateConfig struct {
	from        entity.Status
	transitions map[Trigger]entity.Status
}

type stateMachineBuilder struct {
	configurations map[entity.Status]*stateConfig
}

type stateMachine struct {
	current        entity.Status
	configurations map[entity.Status]map[Trigger]entity.Status
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[entity.Status]*stateConfig),
	}
}

// Configure returns the configuration for state, creating it on first use
func (b *stateMachineBuilder) Configure(state entity.Status) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	cfg, ok := b.configurations[state]
	if !ok {
		cfg = &stateConfig{
			from:        state,
			transitions: make(map[Trigger]entity.Status),
		}
		b.configurations[state] = cfg
	}
	return cfg
}

// Build copies the configured transitions so that machines are independent
func (b *stateMachineBuilder) Build(initial entity.Status) StateMachine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initial))
	}

	configs := make(map[entity.Status]map[Trigger]entity.Status, len(b.configurations))
	for state, cfg := range b.configurations {
		transitions := make(map[Trigger]entity.Status, len(cfg.transitions))
		for trigger, to := range cfg.transitions {
			transitions[trigger] = to
		}
		configs[state] = transitions
	}

	return &stateMachine{
		current:        initial,
		configurations: configs,
	}
}

// Permit allows a trigger to move to the target status
func (c *stateConfig) Permit(trigger Trigger, to entity.Status) StateConfiguration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", to))
	}
	c.transitions[trigger] = to
	return c
}

func (m *stateMachine) State() entity.Status {
	return m.current
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	_, ok := m.configurations[m.current][trigger]
	return ok
}

func (m *stateMachine) Fire(trigger Trigger) error {
	to, ok := m.configurations[m.current][trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}
	m.current = to
	return nil
}

func (m *stateMachine) PermittedTriggers() []Trigger {
	transitions := m.configurations[m.current]
	triggers := make([]Trigger, 0, len(transitions))
	for trigger := range transitions {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
