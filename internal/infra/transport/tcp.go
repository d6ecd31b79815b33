package transport

import (
	"context"
	"net"
	"strconv"
	"time"
)

// TCPReady reports whether a plain TCP connection to host:port can be
// established within timeout. It honors ctx cancellation inside the
// timeout window.
func TCPReady(ctx context.Context, host string, port int, timeout time.Duration) bool {
	dialer := net.Dialer{Timeout: timeout}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
