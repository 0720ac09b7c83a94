package geminiwebapi

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Default retry budgets per call, and the fixed pause between attempts.
const (
	defaultGenerateRetries = 2
	defaultGemRetries      = 2
	retryDelay             = time.Second
)

// invocation describes one logical call for the retrying invoker: a name for
// diagnostics and a retry budget for classified failures.
type invocation struct {
	name    string
	retries int
}

// classifiedError reports whether err belongs to the client's error taxonomy.
// Only classified errors are retry-eligible; anything unexpected propagates
// immediately. Each concrete type is checked on its own: the wrappers embed
// their base types rather than wrapping them, so errors.As never sees through.
func classifiedError(err error) bool {
	var apiErr *APIError
	var imgErr *ImageGenerationError
	var gemErr *GeminiError
	var timeoutErr *TimeoutError
	var usageErr *UsageLimitExceeded
	var invalidErr *ModelInvalid
	var blockedErr *TemporarilyBlocked
	return errors.As(err, &apiErr) || errors.As(err, &imgErr) ||
		errors.As(err, &gemErr) || errors.As(err, &timeoutErr) ||
		errors.As(err, &usageErr) || errors.As(err, &invalidErr) ||
		errors.As(err, &blockedErr)
}

// invoke runs fn with client-readiness checks and bounded retry. Before each
// attempt the client is initialized if needed; an initialization that does
// not yield a ready client fails immediately and is never retried. Image
// generation is slow, so ImageGenerationError gets at most one retry
// regardless of the configured budget.
func invoke[T any](c *GeminiClient, inv invocation, fn func() (T, error)) (T, error) {
	var zero T
	retries := inv.retries
	for {
		if !c.Running.Load() {
			if err := c.Init(c.Timeout, false); err != nil {
				return zero, err
			}
			if !c.Running.Load() {
				return zero, &APIError{Msg: fmt.Sprintf("Invalid call: %s. Client initialization failed.", inv.name)}
			}
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		if !classifiedError(err) {
			return zero, err
		}

		var imgErr *ImageGenerationError
		if errors.As(err, &imgErr) && retries > 1 {
			retries = 1
		}
		if retries <= 0 {
			return zero, err
		}
		retries--
		log.Warnf("%s failed, retrying (%d left): %v", inv.name, retries, err)
		time.Sleep(retryDelay)
	}
}
