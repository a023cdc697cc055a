package models

import "errors"

// Sentinel errors shared across the orchestration packages.
var (
	ErrMissingTenantID  = errors.New("tenant_id is required")
	ErrMissingUserID    = errors.New("user_id is required")
	ErrMissingSessionID = errors.New("session_id is required")

	// ErrEmptyInput is returned when the user prompt is empty or whitespace.
	ErrEmptyInput = errors.New("user input is empty")
	// ErrInputTooLong is returned when the user prompt exceeds the configured bound.
	ErrInputTooLong = errors.New("user input exceeds maximum length")
)
