package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNoData is returned by a Reader when the device produced nothing:
	// no connection, a timed-out read, or an empty line.
	ErrNoData = errors.New("no data from device")

	// ErrDecode is returned when a payload does not parse as a telemetry
	// object.
	ErrDecode = errors.New("malformed telemetry payload")
)

// RawPayload is one un-validated line of device output.
type RawPayload []byte

// Reader abstracts the device connection (TCP, serial, or a test double).
// Poll performs exactly one request/response exchange; it must not retry.
type Reader interface {
	Name() string
	Poll(ctx context.Context) (RawPayload, error)
	Close() error
}

// payloadKeyLatitude and payloadKeyLongitude are the optional position keys
// in the device's JSON object; every other key is a channel name.
const (
	payloadKeyLatitude  = "Latitude"
	payloadKeyLongitude = "Longitude"
)

// DecodedPayload is one parsed telemetry object: channel values keyed by
// channel name, plus the position if the device reported one.
type DecodedPayload struct {
	Values      map[Channel]float64
	Coordinates Coordinates
}

// Value returns the reading for a channel and whether the payload carried it.
func (p DecodedPayload) Value(c Channel) (float64, bool) {
	v, ok := p.Values[c]
	return v, ok
}

// DecodePayload parses one raw device line. Unknown keys are ignored rather
// than rejected so firmware can add fields without breaking older collectors.
func DecodePayload(raw RawPayload) (DecodedPayload, error) {
	var fields map[string]float64
	if err := json.Unmarshal(raw, &fields); err != nil {
		return DecodedPayload{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	decoded := DecodedPayload{Values: make(map[Channel]float64)}
	for key, value := range fields {
		switch key {
		case payloadKeyLatitude:
			decoded.Coordinates.Latitude = value
		case payloadKeyLongitude:
			decoded.Coordinates.Longitude = value
		default:
			ch := Channel(key)
			if ch.Valid() {
				decoded.Values[ch] = value
			}
		}
	}
	return decoded, nil
}
