package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Sentinel errors for every failure the auth layer can report. Callers match
// them with errors.Is; DeniedError additionally carries a reason.
var (
	ErrMalformedCredential   = errors.New("malformed credential")
	ErrInvalidOrExpired      = errors.New("invalid or expired credential")
	ErrMissingIdentity       = errors.New("missing identity")
	ErrCoarseDenied          = errors.New("denied by route policy")
	ErrFineDenied            = errors.New("denied by ownership policy")
	ErrDependencyUnavailable = errors.New("ownership dependency unavailable")
	ErrOwnerNotFound         = errors.New("owning resource not found")
)

// UnauthenticatedMessage is the only body the edge ever returns for a
// credential problem, whatever check failed.
const UnauthenticatedMessage = "Missing/Invalid Authorization Header"

// Gate identifies which layer produced a denial.
type Gate string

const (
	GateCoarse Gate = "coarse"
	GateFine   Gate = "fine"
)

// DeniedError is a policy denial with a human-readable reason. Reasons
// describe policy, not data, so they are safe to return to the caller.
type DeniedError struct {
	Gate   Gate
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s gate: %s", e.Gate, e.Reason)
}

// Is lets errors.Is(err, ErrCoarseDenied) and errors.Is(err, ErrFineDenied)
// match a DeniedError of the corresponding gate.
func (e *DeniedError) Is(target error) bool {
	switch target {
	case ErrCoarseDenied:
		return e.Gate == GateCoarse
	case ErrFineDenied:
		return e.Gate == GateFine
	}
	return false
}

// Forbidden returns a fine-gate denial.
func Forbidden(reason string) error {
	return &DeniedError{Gate: GateFine, Reason: reason}
}

// DependencyError wraps a failed owner lookup so it stays distinguishable
// from a denial.
func DependencyError(kind string, err error) error {
	return fmt.Errorf("%w: resolving %s owner: %v", ErrDependencyUnavailable, kind, err)
}

// HTTPError maps an auth error onto the response the caller sees. Unknown
// errors are returned unchanged so echo's error handler can deal with them.
func HTTPError(err error) error {
	if err == nil {
		return nil
	}
	var denied *DeniedError
	switch {
	case errors.Is(err, ErrMalformedCredential), errors.Is(err, ErrInvalidOrExpired):
		return echo.NewHTTPError(http.StatusUnauthorized, UnauthenticatedMessage)
	case errors.Is(err, ErrMissingIdentity):
		return echo.NewHTTPError(http.StatusUnauthorized, "Missing user identity")
	case errors.As(err, &denied):
		return echo.NewHTTPError(http.StatusForbidden, denied.Reason)
	case errors.Is(err, ErrDependencyUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Authorization dependency unavailable, please retry later")
	case errors.Is(err, ErrOwnerNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}
