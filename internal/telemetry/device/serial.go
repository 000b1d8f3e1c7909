package device

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tarm/serial"

	"github.com/aquasense/water-telemetry/internal/telemetry"
)

// SerialReader polls a device attached to a serial port, e.g. an Arduino
// water probe on /dev/ttyUSB0. The port's read timeout bounds each poll so a
// stalled device cannot stall the scheduler beyond one tick.
type SerialReader struct {
	name string
	port *serial.Port
	buf  *bufio.Reader
}

// NewSerialReader opens the port. Like the TCP reader, an absent device at
// startup leaves the pipeline in no-data mode rather than failing.
func NewSerialReader(name string, baud int, timeout time.Duration) *SerialReader {
	r := &SerialReader{name: name}
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: timeout,
	})
	if err != nil {
		log.Printf("device: serial port %s unavailable, polling will report no data: %v", name, err)
		return r
	}
	r.port = port
	r.buf = bufio.NewReader(port)
	return r
}

func (r *SerialReader) Name() string {
	return "serial:" + r.name
}

// Poll writes the request token and reads one newline-terminated response.
func (r *SerialReader) Poll(ctx context.Context) (telemetry.RawPayload, error) {
	if r.port == nil {
		return nil, telemetry.ErrNoData
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", telemetry.ErrNoData, err)
	}

	if _, err := r.port.Write([]byte(RequestToken + "\n")); err != nil {
		return nil, fmt.Errorf("%w: write request: %v", telemetry.ErrNoData, err)
	}

	line, err := r.buf.ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("%w: read response: %v", telemetry.ErrNoData, err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, telemetry.ErrNoData
	}
	return telemetry.RawPayload(line), nil
}

// Close releases the serial port.
func (r *SerialReader) Close() error {
	if r.port == nil {
		return nil
	}
	return r.port.Close()
}
