package events

import (
	"context"

	"github.com/mbd888/riskproxy/internal/circuitbreaker"
)

// GuardedSink stops calling a failing sink for a while once it has failed
// repeatedly. Publishes during that window return circuitbreaker.ErrOpen.
type GuardedSink struct {
	name    string
	sink    Sink
	breaker *circuitbreaker.Breaker
}

// Guard wraps sink with breaker, keyed by name.
func Guard(name string, sink Sink, breaker *circuitbreaker.Breaker) *GuardedSink {
	return &GuardedSink{name: name, sink: sink, breaker: breaker}
}

func (g *GuardedSink) Publish(ctx context.Context, ev Event) error {
	return g.breaker.Do(g.name, func() error {
		return g.sink.Publish(ctx, ev)
	})
}

func (g *GuardedSink) Close() error { return g.sink.Close() }
