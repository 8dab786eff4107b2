package ingest

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

const DefaultPort = 9001

// Dial connects to the acquisition server. addr may omit the port.
func Dial(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %v", ErrLink, addr, err)
	}
	return conn, nil
}
