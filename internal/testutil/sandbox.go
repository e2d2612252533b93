// Package testutil provides small helpers for core and persistence tests.
package testutil

import (
	"os"
	"path/filepath"
)

// Sandbox is an isolated temporary directory for tests that must not
// touch a real data directory. No test in this module imports it.
type Sandbox struct {
	Root string
}

// NewSandbox creates a sandbox rooted at a fresh temp directory.
func NewSandbox() (*Sandbox, error) {
	dir, err := os.MkdirTemp("", "worldhost_sandbox")
	if err != nil {
		return nil, err
	}
	return &Sandbox{Root: dir}, nil
}

// Path joins name onto the sandbox root.
func (s *Sandbox) Path(name string) string {
	return filepath.Join(s.Root, name)
}

// WriteFile writes data to a file inside the sandbox.
func (s *Sandbox) WriteFile(name string, data []byte) error {
	return os.WriteFile(s.Path(name), data, 0o644)
}

// ReadFile reads a file from inside the sandbox.
func (s *Sandbox) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(s.Path(name))
}

// Cleanup removes the sandbox directory and everything under it.
func (s *Sandbox) Cleanup() error {
	return os.RemoveAll(s.Root)
}
