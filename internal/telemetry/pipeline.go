package telemetry

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Store is the contract the CSV log (and any future persistent store) must
// satisfy. Appends are expected to enforce retention synchronously.
type Store interface {
	Append(r Reading) error
	ReadChannel(c Channel) ([]Reading, error)
	ReadAll() ([]Reading, error)
}

// Pipeline orchestrates one poll-validate-store-forecast cycle per tick and
// keeps the last result for the presentation layer. Ticks are driven
// externally by the scheduler and never overlap.
type Pipeline struct {
	reader  Reader
	store   Store
	channel Channel
	horizon time.Duration

	mu   sync.RWMutex
	last TickResult
}

// NewPipeline creates a Pipeline polling for one selected channel with the
// given default forecast horizon.
func NewPipeline(reader Reader, store Store, channel Channel, horizon time.Duration) *Pipeline {
	return &Pipeline{
		reader:  reader,
		store:   store,
		channel: channel,
		horizon: horizon,
	}
}

// Tick runs one cycle: poll the device, decode, extract the selected
// channel's value and optional coordinates, append to the store, and
// forecast over the channel's history. Every failure class is folded into
// the result's Status; nothing here terminates the scheduler loop.
func (p *Pipeline) Tick(ctx context.Context) TickResult {
	result := TickResult{
		Channel:   p.channel,
		Timestamp: time.Now().UTC(),
	}

	raw, err := p.reader.Poll(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoData) {
			log.Printf("pipeline: poll via %s failed: %v", p.reader.Name(), err)
		}
		result.Status = StatusNoData
		return p.finish(result)
	}

	payload, err := DecodePayload(raw)
	if err != nil {
		log.Printf("pipeline: %v", err)
		result.Status = StatusDecodeError
		return p.finish(result)
	}

	value, ok := payload.Value(p.channel)
	if !ok {
		result.Status = StatusChannelAbsent
		return p.finish(result)
	}
	result.DisplayValue = value
	result.Coordinates = payload.Coordinates

	reading := Reading{
		Timestamp:   result.Timestamp,
		Channel:     p.channel,
		Value:       value,
		Coordinates: payload.Coordinates,
	}
	if err := p.store.Append(reading); err != nil {
		// Nothing in memory depends on the write; the next tick appends
		// fresh.
		log.Printf("pipeline: append failed: %v", err)
		result.Status = StatusStoreError
		return p.finish(result)
	}

	result.Status = StatusOK
	if forecast, err := p.ForecastChannel(p.channel, p.horizon); err == nil {
		result.Forecast = forecast
	} else if !errors.Is(err, ErrInsufficientData) {
		log.Printf("pipeline: forecast failed: %v", err)
	}
	return p.finish(result)
}

// ForecastChannel recomputes a forecast from the channel's current history.
func (p *Pipeline) ForecastChannel(c Channel, horizon time.Duration) (*Forecast, error) {
	history, err := p.store.ReadChannel(c)
	if err != nil {
		return nil, err
	}
	predicted, err := Predict(history, horizon)
	if err != nil {
		return nil, err
	}
	return &Forecast{
		Channel:        c,
		PredictedValue: predicted,
		HorizonSeconds: horizon.Seconds(),
	}, nil
}

// History returns the full log for display.
func (p *Pipeline) History() ([]Reading, error) {
	return p.store.ReadAll()
}

// ChannelHistory returns one channel's log for display.
func (p *Pipeline) ChannelHistory(c Channel) ([]Reading, error) {
	return p.store.ReadChannel(c)
}

// Last returns the most recent tick's result bundle and whether any tick has
// completed yet.
func (p *Pipeline) Last() (TickResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, !p.last.Timestamp.IsZero()
}

func (p *Pipeline) finish(r TickResult) TickResult {
	p.mu.Lock()
	p.last = r
	p.mu.Unlock()
	return r
}
