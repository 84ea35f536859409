package plugin

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRequiredCapabilityNotFound is matched by *RequiredCapabilityError.
	ErrRequiredCapabilityNotFound = errors.New("required plugin capability not found")
	// ErrAlreadyLoaded is returned when Load is called without a prior Unload.
	ErrAlreadyLoaded = errors.New("plugins already loaded; unload first")
	// ErrUnknownFactory is returned when a manifest references an unregistered type.
	ErrUnknownFactory = errors.New("unknown plugin type")
)

// RequiredCapabilityError reports the capabilities missing after loading.
type RequiredCapabilityError struct {
	Missing []Capability
}

func (e *RequiredCapabilityError) Error() string {
	labels := make([]string, len(e.Missing))
	for i, c := range e.Missing {
		labels[i] = c.Label()
	}
	return fmt.Sprintf("%s: %s", ErrRequiredCapabilityNotFound, strings.Join(labels, ", "))
}

func (e *RequiredCapabilityError) Is(target error) bool {
	return target == ErrRequiredCapabilityNotFound
}

// LoadFailure records a module or plugin entry that could not be loaded.
type LoadFailure struct {
	Location string
	Path     string
	Type     string
	Name     string
	Err      error
}

func (f LoadFailure) Error() string {
	subject := f.Path
	if f.Location != "" {
		subject = f.Location + ":" + f.Path
	}
	if f.Name != "" {
		subject += " (" + f.Name + ")"
	} else if f.Type != "" {
		subject += " (" + f.Type + ")"
	}
	return fmt.Sprintf("load %s: %v", subject, f.Err)
}

func (f LoadFailure) Unwrap() error { return f.Err }
