package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates the configuration file was not found.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed indicates configuration validation failed.
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrSkillNotFound indicates a skill was not found in the registry.
	ErrSkillNotFound = errors.New("skill not found")

	// ErrDuplicateSkill indicates a skill ID was registered twice.
	ErrDuplicateSkill = errors.New("duplicate skill id")

	// ErrSelfDependency indicates a skill requires itself.
	ErrSelfDependency = errors.New("skill depends on itself")

	// ErrDependencyConflict indicates a skill both requires and conflicts
	// with the same skill.
	ErrDependencyConflict = errors.New("skill requires and conflicts with the same skill")

	// ErrDependencyCycle indicates the skill requires-graph is not a DAG.
	ErrDependencyCycle = errors.New("skill dependency cycle")

	// ErrRegistrySealed indicates a mutation was attempted after sealing.
	ErrRegistrySealed = errors.New("registry is sealed")

	// ErrMCPServerNotFound indicates a tool server was not found.
	ErrMCPServerNotFound = errors.New("MCP server not found")

	// ErrLLMProviderNotFound indicates an LLM provider was not found.
	ErrLLMProviderNotFound = errors.New("LLM provider not found")
)

// ValidationError wraps configuration validation errors with context.
type ValidationError struct {
	Component string // Component being validated (skill, budget, mcp_server, llm_provider)
	ID        string // ID of the component
	Field     string // Field name (optional)
	Err       error  // Underlying error
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s '%s': field '%s': %v", e.Component, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s '%s': %v", e.Component, e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error.
func NewValidationError(component, id, field string, err error) *ValidationError {
	return &ValidationError{Component: component, ID: id, Field: field, Err: err}
}

// LoadError wraps configuration loading errors with file context.
type LoadError struct {
	File string
	Err  error
}

// Error returns the formatted error message.
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError creates a new load error.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}
