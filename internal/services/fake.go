package services

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/gundeck/internal/errors"
)

// FakeController is an in-memory Controller for tests and dry runs. It
// records every action it receives.
type FakeController struct {
	mu sync.Mutex

	States   map[string]string
	Actions  []string
	FailWith error
}

// NewFake builds a fake with every unit reported active.
func NewFake(units ...string) *FakeController {
	states := make(map[string]string, len(units))
	for _, u := range units {
		states[u] = "active"
	}
	return &FakeController{States: states}
}

func (f *FakeController) Status(_ context.Context, unit string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return "", f.FailWith
	}
	state, ok := f.States[unit]
	if !ok {
		return "", errors.ValidationError("unknown service unit: " + unit)
	}
	return state, nil
}

func (f *FakeController) Control(_ context.Context, unit string, action Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return f.FailWith
	}
	if _, ok := f.States[unit]; !ok {
		return errors.ValidationError("unknown service unit: " + unit)
	}
	f.Actions = append(f.Actions, string(action)+" "+unit)
	switch action {
	case ActionStart, ActionRestart:
		f.States[unit] = "active"
	case ActionStop:
		f.States[unit] = "inactive"
	default:
		return errors.ValidationError("unknown service action: " + string(action))
	}
	return nil
}

func (f *FakeController) Logs(_ context.Context, unit string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return "", f.FailWith
	}
	if _, ok := f.States[unit]; !ok {
		return "", errors.ValidationError("unknown service unit: " + unit)
	}
	return "journal for " + unit + "\n", nil
}

func (f *FakeController) Power(_ context.Context, action PowerAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return f.FailWith
	}
	switch action {
	case PowerShutdown, PowerReboot:
		f.Actions = append(f.Actions, "power "+string(action))
		return nil
	default:
		return errors.ValidationError("unknown power action: " + string(action))
	}
}
