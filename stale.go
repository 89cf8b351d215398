package sessionguard

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessionguard/auth"
)

// staleMessages are lowercased fragments of backend messages that mean the
// token is no longer recognised.
var staleMessages = []string{
	"auth session missing",
	"invalid jwt",
	"jwt expired",
	"session_not_found",
	"user from sub claim in jwt does not exist",
}

type statusCoder interface {
	StatusCode() int
}

// IsStaleSessionError reports whether err means the backend no longer accepts
// the session: a 401, 403 or 404 status, or a message naming a missing
// session, a bad or expired JWT, or a deleted user. Everything else, including
// nil, is not stale.
func IsStaleSessionError(err error) bool {
	if err == nil {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.StatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range staleMessages {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

type acquireTimeouter interface {
	IsAcquireTimeout() bool
}

// IsAcquireTimeout reports whether err is the transient storage-lock timeout
// that the bootstrap retries.
func IsAcquireTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, auth.ErrLockAcquireTimeout) {
		return true
	}
	var at acquireTimeouter
	return errors.As(err, &at) && at.IsAcquireTimeout()
}
