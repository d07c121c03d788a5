package gateway

import (
	"errors"

	"github.com/openafpm/cadstream/internal/cache"
)

// RequestError signals a malformed request: a parameter key not shaped
// group.name, or an unknown parameter group. It never reaches the cache —
// ParseParams returns it during parsing, before Submit is called.
type RequestError struct {
	Msg string
}

func (e *RequestError) Error() string { return e.Msg }

func isCancelled(err error) bool {
	return errors.Is(err, cache.ErrCancelled)
}
