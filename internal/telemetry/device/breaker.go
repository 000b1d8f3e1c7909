package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aquasense/water-telemetry/internal/telemetry"
)

// BreakerReader wraps a Reader with a circuit breaker so a dead device fails
// fast: after enough consecutive failed polls the breaker opens and later
// ticks short-circuit to no-data without touching the connection, until a
// half-open probe succeeds. It never retries a poll.
type BreakerReader struct {
	inner   telemetry.Reader
	circuit *gobreaker.CircuitBreaker
}

// NewBreakerReader wraps inner with breaker settings sized for a 2-second
// tick: five straight failures open the circuit, probes resume after 30s.
func NewBreakerReader(inner telemetry.Reader) *BreakerReader {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &BreakerReader{
		inner:   inner,
		circuit: cb,
	}
}

func (r *BreakerReader) Name() string {
	return r.inner.Name()
}

// Poll delegates to the wrapped reader through the breaker. An open circuit
// surfaces as ErrNoData, the same degraded state as a silent device.
func (r *BreakerReader) Poll(ctx context.Context) (telemetry.RawPayload, error) {
	result, err := r.circuit.Execute(func() (interface{}, error) {
		return r.inner.Poll(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", telemetry.ErrNoData)
		}
		return nil, err
	}
	payload, ok := result.(telemetry.RawPayload)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected result type from circuit breaker", telemetry.ErrNoData)
	}
	return payload, nil
}

// Close releases the wrapped reader's connection.
func (r *BreakerReader) Close() error {
	return r.inner.Close()
}
