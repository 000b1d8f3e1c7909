package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aquasense/water-telemetry/internal/telemetry"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. This is the
// presentation layer's whole view of the pipeline: last tick result, log
// history, and on-demand forecasts.
func RegisterRoutes(app *fiber.App, pipeline *telemetry.Pipeline) {
	v1 := app.Group("/api/v1")

	v1.Get("/telemetry/channels", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"channels": telemetry.Channels})
	})

	v1.Get("/telemetry/current", func(c *fiber.Ctx) error {
		result, ok := pipeline.Last()
		if !ok {
			// No tick has completed yet; an explicit placeholder, not an
			// error.
			return c.JSON(fiber.Map{"status": telemetry.StatusNoData})
		}
		return c.JSON(result)
	})

	v1.Get("/telemetry/history", func(c *fiber.Ctx) error {
		channelParam := c.Query("channel")
		if channelParam == "" {
			readings, err := pipeline.History()
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "failed to read telemetry history")
			}
			return c.JSON(fiber.Map{"readings": readings})
		}

		channel, err := parseChannel(channelParam)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		readings, err := pipeline.ChannelHistory(channel)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read telemetry history")
		}
		return c.JSON(fiber.Map{
			"channel":  channel,
			"readings": readings,
		})
	})

	v1.Get("/telemetry/forecast", func(c *fiber.Ctx) error {
		var req forecastQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		forecast, err := pipeline.ForecastChannel(req.channel, req.horizon)
		if err != nil {
			if errors.Is(err, telemetry.ErrInsufficientData) {
				// Expected early in a channel's history.
				return c.JSON(fiber.Map{
					"channel": req.channel,
					"status":  "insufficient_data",
				})
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to compute forecast")
		}
		return c.JSON(forecast)
	})
}

// forecastQuery holds query parameters for the forecast endpoint.
type forecastQuery struct {
	Channel        string `validate:"required"`
	HorizonSeconds int64  `validate:"gte=0"`

	channel telemetry.Channel
	horizon time.Duration
}

func (q *forecastQuery) bind(c *fiber.Ctx) error {
	q.Channel = c.Query("channel")

	// Horizon defaults to 30 days when omitted.
	q.HorizonSeconds = 2592000
	if h := c.Query("horizon"); h != "" {
		n, err := strconv.ParseInt(h, 10, 64)
		if err != nil {
			return errors.New("invalid horizon; want seconds as an integer")
		}
		q.HorizonSeconds = n
	}

	if err := validate.Struct(q); err != nil {
		return err
	}

	channel, err := parseChannel(q.Channel)
	if err != nil {
		return err
	}
	q.channel = channel
	q.horizon = time.Duration(q.HorizonSeconds) * time.Second
	return nil
}

func parseChannel(s string) (telemetry.Channel, error) {
	channel := telemetry.Channel(s)
	if !channel.Valid() {
		return "", errors.New("unknown channel " + strconv.Quote(s))
	}
	return channel, nil
}
