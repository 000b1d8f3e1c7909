package telemetry

import (
	"time"
)

// Channel identifies one of the device's sensor measurement streams.
type Channel string

const (
	ChannelPH               Channel = "pH"
	ChannelTurbidity        Channel = "Turbidity"
	ChannelConductivity     Channel = "Conductivity"
	ChannelDissolvedOxygen  Channel = "Dissolved Oxygen"
	ChannelTDS              Channel = "TDS"
	ChannelCOD              Channel = "COD"
	ChannelBOD              Channel = "BOD"
	ChannelHeavyMetals      Channel = "Heavy Metals"
	ChannelOilContamination Channel = "Oil Contamination"
)

// Channels lists every channel the device can report, in display order.
var Channels = []Channel{
	ChannelPH,
	ChannelTurbidity,
	ChannelConductivity,
	ChannelDissolvedOxygen,
	ChannelTDS,
	ChannelCOD,
	ChannelBOD,
	ChannelHeavyMetals,
	ChannelOilContamination,
}

// Valid reports whether c is one of the known channels. Readings for
// unrecognized channels are rejected rather than silently stored.
func (c Channel) Valid() bool {
	for _, known := range Channels {
		if c == known {
			return true
		}
	}
	return false
}

// Coordinates is the sensor's reported position. Devices without a GPS fix
// report 0,0.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Reading is one persisted observation for a channel.
type Reading struct {
	Timestamp   time.Time   `json:"timestamp"` // second precision, UTC
	Channel     Channel     `json:"channel"`
	Value       float64     `json:"value"`
	Coordinates Coordinates `json:"coordinates"`
}

// TickStatus classifies the outcome of one poll-store-forecast cycle.
type TickStatus string

const (
	// StatusOK means a reading was stored; Forecast may still be absent
	// early in a channel's history.
	StatusOK TickStatus = "ok"
	// StatusNoData means the device produced nothing this tick.
	StatusNoData TickStatus = "no_data"
	// StatusDecodeError means the device answered but the payload did not
	// parse; nothing was stored.
	StatusDecodeError TickStatus = "decode_error"
	// StatusChannelAbsent means the payload parsed but did not carry the
	// selected channel; nothing was stored.
	StatusChannelAbsent TickStatus = "channel_absent"
	// StatusStoreError means the reading could not be persisted.
	StatusStoreError TickStatus = "store_error"
)

// TickResult is the bundle handed to the presentation layer after each tick.
// Forecast is nil until the channel has enough history.
type TickResult struct {
	Status       TickStatus  `json:"status"`
	Channel      Channel     `json:"channel"`
	DisplayValue float64     `json:"displayValue"`
	Coordinates  Coordinates `json:"coordinates"`
	Forecast     *Forecast   `json:"forecast,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Forecast is an ephemeral derived value, recomputed from current history on
// every request and never persisted.
type Forecast struct {
	Channel        Channel `json:"channel"`
	PredictedValue float64 `json:"predictedValue"`
	HorizonSeconds float64 `json:"horizonSeconds"`
}
