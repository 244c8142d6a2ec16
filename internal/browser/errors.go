package browser

import "errors"

// Sentinel errors returned by the Session/Window API. Child death and
// timeouts surface as farmer.ErrChildDied (also available here as
// ErrWindowDied, see session.go) and farmer.ErrTimeout.
var (
	// ErrUnknownWindow is logged and ignored internally — the child is free
	// to reference a window id the controller hasn't registered yet without
	// that being fatal; it is exported so tests can assert a line was
	// dropped for this reason.
	ErrUnknownWindow = errors.New("browser: unknown window id")

	// ErrUsage signals invalid caller API use, e.g. operating on an
	// already-dead window. It never corrupts controller state.
	ErrUsage = errors.New("browser: invalid use of session or window API")

	// ErrProtocol marks a line that parsed to a known tag but with
	// arity that didn't match the schema for that tag.
	ErrProtocol = errors.New("browser: malformed protocol line")
)
