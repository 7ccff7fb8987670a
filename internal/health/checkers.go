package health

import (
	"context"
	"errors"
)

// Pinger is the subset of the store used for readiness probing.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database returns a checker that verifies database connectivity.
func Database(p Pinger) Checker {
	return Checker{
		Name:  "database",
		Check: p.Ping,
	}
}

// Gateway returns a checker that reports whether the Discord gateway
// session is up. connected is polled on each /readyz request.
func Gateway(connected func() bool) Checker {
	return Checker{
		Name: "discord",
		Check: func(context.Context) error {
			if !connected() {
				return errors.New("gateway session not established")
			}
			return nil
		},
	}
}
