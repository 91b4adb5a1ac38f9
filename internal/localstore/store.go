// Package localstore persists the cockpit catalog on the client machine.
package localstore

import (
	"errors"
	"fmt"
	"strings"

	"cockpit/internal/ports"
)

// ErrKeyNotFound is returned by Get when nothing was ever stored under a key.
var ErrKeyNotFound = errors.New("key not found")

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open returns the store selected by driver, rooted at path.
func Open(driver string, path string) (ports.LocalStore, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverFile:
		return NewFileStore(path)
	case DriverSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown local store driver %q", driver)
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("store key is required")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid store key %q", key)
	}
	return nil
}
