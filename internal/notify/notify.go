// Package notify is the user-facing notification sink: the engine reports
// operation outcomes here and the embedding surface decides how to present
// them (toast, terminal line, response header).
package notify

import (
	"sync"

	"github.com/rs/zerolog/log"
)

type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// LogNotifier writes notifications to the structured log. Used when no richer
// presentation channel is wired in.
type LogNotifier struct{}

func (LogNotifier) Success(msg string) {
	log.Info().Str("kind", "success").Msg(msg)
}

func (LogNotifier) Error(msg string) {
	log.Warn().Str("kind", "error").Msg(msg)
}

// Capture records notifications in memory; used by tests and by handlers that
// relay the latest message to the client.
type Capture struct {
	mu        sync.Mutex
	Successes []string
	Errors    []string
}

func (c *Capture) Success(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Successes = append(c.Successes, msg)
}

func (c *Capture) Error(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors = append(c.Errors, msg)
}

// Last returns the most recent success and error messages, or empty strings.
func (c *Capture) Last() (success, failure string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.Successes); n > 0 {
		success = c.Successes[n-1]
	}
	if n := len(c.Errors); n > 0 {
		failure = c.Errors[n-1]
	}
	return success, failure
}
