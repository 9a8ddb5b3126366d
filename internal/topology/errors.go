package topology

import "fmt"

// ResourceCreationError reports that an underlying primitive could not be
// created. It is fatal to the current operation and is never retried.
type ResourceCreationError struct {
	Kind     string // "bridge", "namespace", "cable"
	Resource string
	Err      error
}

func (e *ResourceCreationError) Error() string {
	return fmt.Sprintf("failed to create %s %q: %v", e.Kind, e.Resource, e.Err)
}

func (e *ResourceCreationError) Unwrap() error {
	return e.Err
}

// DependencyMissingError reports that a referenced resource does not
// exist. The operation aborts before attempting any mutation.
type DependencyMissingError struct {
	Kind       string // "vpc", "subnet"
	Dependency string
}

func (e *DependencyMissingError) Error() string {
	return fmt.Sprintf("%s %q does not exist", e.Kind, e.Dependency)
}
