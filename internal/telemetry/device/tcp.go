// Package device provides Reader implementations for the sensor device
// connection: a TCP line-protocol client, a serial-port client, and a
// circuit-breaker wrapper shared by both.
package device

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/aquasense/water-telemetry/internal/telemetry"
)

// RequestToken is the fixed request the device answers with one line of
// telemetry JSON.
const RequestToken = "READ"

// TCPReader polls a device over a TCP connection opened once at construction
// and reused for every poll. If the device is unreachable at startup the
// reader stays in a degraded state where every poll yields no data; that is
// never fatal to the pipeline.
type TCPReader struct {
	addr    string
	timeout time.Duration
	conn    net.Conn
	buf     *bufio.Reader
}

// NewTCPReader dials the device. A failed dial is logged, not returned: the
// pipeline runs in no-data mode until the process is restarted.
func NewTCPReader(addr string, timeout time.Duration) *TCPReader {
	r := &TCPReader{
		addr:    addr,
		timeout: timeout,
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		log.Printf("device: %s unreachable, polling will report no data: %v", addr, err)
		return r
	}
	r.conn = conn
	r.buf = bufio.NewReader(conn)
	return r
}

func (r *TCPReader) Name() string {
	return "tcp:" + r.addr
}

// Poll performs one request/response exchange. Absence of a connection, a
// timed-out or failed read, and an empty response line all surface as
// ErrNoData; there is no retry within a tick.
func (r *TCPReader) Poll(ctx context.Context) (telemetry.RawPayload, error) {
	if r.conn == nil {
		return nil, telemetry.ErrNoData
	}

	deadline := time.Now().Add(r.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := r.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %v", telemetry.ErrNoData, err)
	}

	if _, err := fmt.Fprintf(r.conn, "%s\n", RequestToken); err != nil {
		return nil, fmt.Errorf("%w: write request: %v", telemetry.ErrNoData, err)
	}

	line, err := r.buf.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", telemetry.ErrNoData, err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, telemetry.ErrNoData
	}
	return telemetry.RawPayload(line), nil
}

// Close releases the device connection.
func (r *TCPReader) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
