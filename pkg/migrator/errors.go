package migrator

import "fmt"

// LoadError reports a unit that could not be loaded. Path is the unit directory
// (or file) relative to the migrations root.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load migration unit %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
