package models

import "errors"

var (
	// ErrConfig marks bad or unknown configuration. It is fatal for a cycle.
	ErrConfig = errors.New("configuration error")
	// ErrIntentNotFound is returned by intent lookups that match nothing.
	ErrIntentNotFound = errors.New("intent not found")
)
