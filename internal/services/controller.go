// Package services controls the driver's systemd units and host power state.
package services

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/gundeck/internal/errors"
)

// Action is a unit lifecycle verb.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// PowerAction is a host-level power verb.
type PowerAction string

const (
	PowerShutdown PowerAction = "shutdown"
	PowerReboot   PowerAction = "reboot"
)

// Controller manages service units. Implementations must be safe for
// concurrent use.
type Controller interface {
	// Status reports a unit's activation state ("active", "inactive",
	// "failed", ...). A non-active unit is not an error.
	Status(ctx context.Context, unit string) (string, error)
	// Control applies a lifecycle action to a unit.
	Control(ctx context.Context, unit string, action Action) error
	// Logs returns the unit's recent journal output.
	Logs(ctx context.Context, unit string, lines int) (string, error)
	// Power shuts down or reboots the host.
	Power(ctx context.Context, action PowerAction) error
}

// SystemdController shells out to systemctl. Units are restricted to a fixed
// allowlist so the HTTP surface can never touch arbitrary units.
type SystemdController struct {
	units   map[string]struct{}
	timeout time.Duration

	// runner is swapped in tests.
	runner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewSystemd builds a controller limited to the given units.
func NewSystemd(units []string, timeout time.Duration) *SystemdController {
	allowed := make(map[string]struct{}, len(units))
	for _, u := range units {
		allowed[u] = struct{}{}
	}
	return &SystemdController{
		units:   allowed,
		timeout: timeout,
		runner:  runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (c *SystemdController) checkUnit(unit string) error {
	if _, ok := c.units[unit]; !ok {
		return errors.ValidationError("unknown service unit: " + unit)
	}
	return nil
}

func (c *SystemdController) Status(ctx context.Context, unit string) (string, error) {
	if err := c.checkUnit(unit); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// is-active exits non-zero for any non-active state; the stdout word is
	// still the answer we want.
	out, err := c.runner(ctx, "systemctl", "is-active", unit)
	state := strings.TrimSpace(string(out))
	if state == "" {
		if err != nil {
			return "", errors.ServiceError(err, "query status of "+unit)
		}
		state = "unknown"
	}
	return state, nil
}

func (c *SystemdController) Control(ctx context.Context, unit string, action Action) error {
	if err := c.checkUnit(unit); err != nil {
		return err
	}
	switch action {
	case ActionStart, ActionStop, ActionRestart:
	default:
		return errors.ValidationError("unknown service action: " + string(action))
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.runner(ctx, "sudo", "systemctl", string(action), unit)
	if err != nil {
		msg := string(action) + " " + unit
		if s := strings.TrimSpace(string(out)); s != "" {
			msg += ": " + s
		}
		return errors.ServiceError(err, msg)
	}
	return nil
}

func (c *SystemdController) Logs(ctx context.Context, unit string, lines int) (string, error) {
	if err := c.checkUnit(unit); err != nil {
		return "", err
	}
	if lines <= 0 {
		lines = 200
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// journalctl output is the payload even on non-zero exit (e.g. no
	// entries yet), matching the dashboard's permissive passthrough.
	out, err := c.runner(ctx, "journalctl", "-u", unit, "-n", strconv.Itoa(lines), "--no-pager")
	if len(out) == 0 && err != nil {
		return "", errors.ServiceError(err, "read journal for "+unit)
	}
	return string(out), nil
}

func (c *SystemdController) Power(ctx context.Context, action PowerAction) error {
	var args []string
	switch action {
	case PowerShutdown:
		args = []string{"shutdown", "-h", "now"}
	case PowerReboot:
		args = []string{"reboot"}
	default:
		return errors.ValidationError("unknown power action: " + string(action))
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if out, err := c.runner(ctx, "sudo", args...); err != nil {
		msg := "power " + string(action)
		if s := strings.TrimSpace(string(out)); s != "" {
			msg += ": " + s
		}
		return errors.ServiceError(err, msg)
	}
	return nil
}
