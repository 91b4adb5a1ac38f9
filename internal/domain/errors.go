package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceUnavailable  = errors.New("capture device unavailable")
	ErrAlreadyActive      = errors.New("capture already active")
	ErrInvalidState       = errors.New("operation not allowed in current state")
	ErrUploadFailed       = errors.New("upload failed")
	ErrNotFound           = errors.New("recording not found")
	ErrNotReady           = errors.New("recording not available yet")
	ErrBadRequest         = errors.New("bad request")
	ErrPersistenceCorrupt = errors.New("local store contents unreadable")

	// ErrAlreadyDelivered is an ErrInvalidState for recipient changes after delivery.
	ErrAlreadyDelivered = fmt.Errorf("%w: recording already delivered", ErrInvalidState)
)
