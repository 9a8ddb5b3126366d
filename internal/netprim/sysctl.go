package netprim

import (
	"os"
	"strings"
)

// RealSystemController is a concrete implementation of SystemController
// using os functions.
type RealSystemController struct{}

// NewSystemController returns the real sysctl implementation.
func NewSystemController() SystemController {
	return &RealSystemController{}
}

// sysctlPath converts dotted notation to a /proc/sys path unless the
// value is already an absolute path.
func sysctlPath(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/proc/sys/" + strings.ReplaceAll(path, ".", "/")
}

// ReadSysctl reads a sysctl value from the specified path.
func (r *RealSystemController) ReadSysctl(path string) (string, error) {
	data, err := os.ReadFile(sysctlPath(path))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteSysctl writes a sysctl value to the specified path.
func (r *RealSystemController) WriteSysctl(path, value string) error {
	return os.WriteFile(sysctlPath(path), []byte(value), 0644)
}

// IsNotExist checks if an error indicates that a file or directory does not exist.
func (r *RealSystemController) IsNotExist(err error) bool {
	return os.IsNotExist(err)
}
