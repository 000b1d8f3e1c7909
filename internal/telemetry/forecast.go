package telemetry

import (
	"errors"
	"math"
	"time"
)

// ErrInsufficientData means a channel does not yet have the three readings a
// least-squares fit needs. It is an expected state early in a channel's
// history, not a fault.
var ErrInsufficientData = errors.New("insufficient history for forecast")

// minForecastSamples is the smallest history a linear fit is meaningful for;
// one or two points either underdetermine the model or make it a guess.
const minForecastSamples = 3

// Predict fits value = a*t + b over the supplied single-channel history and
// evaluates it at max(t) + horizon, with t measured in seconds since the
// earliest reading. The result is rounded to 2 decimal places. Pure: the same
// history and horizon always produce the same value.
func Predict(history []Reading, horizon time.Duration) (float64, error) {
	if len(history) < minForecastSamples {
		return 0, ErrInsufficientData
	}

	t0 := history[0].Timestamp
	n := float64(len(history))

	var sumT, sumV, sumTT, sumTV float64
	var maxT float64
	for _, r := range history {
		t := r.Timestamp.Sub(t0).Seconds()
		sumT += t
		sumV += r.Value
		sumTT += t * t
		sumTV += t * r.Value
		if t > maxT {
			maxT = t
		}
	}

	// Normal equations for the single-variable least-squares line.
	denom := n*sumTT - sumT*sumT
	var a, b float64
	if denom == 0 {
		// All samples share one timestamp; the best line is flat.
		a = 0
		b = sumV / n
	} else {
		a = (n*sumTV - sumT*sumV) / denom
		b = (sumV - a*sumT) / n
	}

	predicted := a*(maxT+horizon.Seconds()) + b
	return math.Round(predicted*100) / 100, nil
}
