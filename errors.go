package keiro

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Invariant violations. These indicate a logic bug in the caller and are
// returned wrapped with context; match them with errors.Is or eris.Is.
var (
	ErrDuplicateComponent = eris.New("component already on entity")
	ErrMissingComponent   = eris.New("component not on entity")
	ErrDisposedBuffer     = eris.New("command buffer already played back or disposed")
	ErrUnknownPlaceholder = eris.New("placeholder entity was not created by this command buffer")
)

var (
	ErrWorldDisposed    = eris.New("world is disposed")
	ErrSystemNotFound   = eris.New("system does not exist")
	ErrNotAGroup        = eris.New("system is not a group")
	ErrEntityNotAlive   = eris.New("entity is not alive")
	ErrRegistryNotReady = eris.New("registry context is not initialized")
)

// ErrComponentOutOfRange rejects a component type id at or above
// MaxComponentTypes.
var ErrComponentOutOfRange = eris.New("component type id out of range")

// ConfigurationError reports a setup mistake: cyclic ordering constraints,
// colliding type registrations, conflicting order flags or a group added to
// its own update list. Names lists every type or system involved.
type ConfigurationError struct {
	Reason string
	Names  []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Names) == 0 {
		return "keiro: configuration error: " + e.Reason
	}
	return fmt.Sprintf("keiro: configuration error: %s: [%s]", e.Reason, strings.Join(e.Names, ", "))
}

func configErr(reason string, names ...string) *ConfigurationError {
	return &ConfigurationError{Reason: reason, Names: names}
}

// IsConfigurationError reports whether err is, or wraps, a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsInvariantViolation reports whether err is one of the fatal invariant
// sentinels.
func IsInvariantViolation(err error) bool {
	return eris.Is(err, ErrDuplicateComponent) ||
		eris.Is(err, ErrMissingComponent) ||
		eris.Is(err, ErrDisposedBuffer) ||
		eris.Is(err, ErrUnknownPlaceholder)
}
