// Package utils provides small helpers shared across the world-host binaries
// and the core simulation package.
package utils

import "fmt"

// Wrap annotates err with message, preserving it for errors.Is/As. It
// returns nil when err is nil so call sites can Wrap unconditionally.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
