package debugproto

import (
	"fmt"
	"net"
	"strings"
)

// TCPDialer is the default opener of the primary/auxiliary channels: it
// parses a "tcp://host:port" server_url and opens two independent TCP
// connections, each wrapped in the default length-prefixed-JSON Channel.
// The wire-level RPC codec itself is out of scope (spec §1 "we specify
// only the message contract used"); this implementation exists so the
// core is runnable end-to-end against a real debug server speaking the
// framing in transport.go.
type TCPDialer struct{}

// Dial opens the primary and auxiliary connections for serverURL.
func (TCPDialer) Dial(serverURL string) (primary, aux Channel, err error) {
	addr, ok := strings.CutPrefix(serverURL, "tcp://")
	if !ok {
		return nil, nil, fmt.Errorf("debugproto: unsupported server_url scheme: %s", serverURL)
	}

	primaryConn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("debugproto: dial primary: %w", err)
	}

	auxConn, err := net.Dial("tcp", addr)
	if err != nil {
		primaryConn.Close()
		return nil, nil, fmt.Errorf("debugproto: dial auxiliary: %w", err)
	}

	return NewFrameChannel(primaryConn), NewFrameChannel(auxConn), nil
}
