package guardrails

import "errors"

var (
	// ErrEngineSealed is returned when registering, disabling, or removing a
	// guardrail after the engine has been sealed.
	ErrEngineSealed = errors.New("guardrail engine is sealed")

	// ErrProtectedGuardrail is returned when disabling or removing one of the
	// protected builtin guardrails.
	ErrProtectedGuardrail = errors.New("guardrail is protected and cannot be disabled or removed")

	// ErrDuplicateGuardrail is returned when registering an ID that already
	// exists in either chain.
	ErrDuplicateGuardrail = errors.New("guardrail id already registered")

	// ErrUnknownGuardrail is returned when disabling or removing an ID that
	// is not registered.
	ErrUnknownGuardrail = errors.New("guardrail id not registered")
)
