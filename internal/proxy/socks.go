// Package proxy builds HTTP clients for the chat completion backends.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

const DefaultTimeout = 120 * time.Second

// NewHTTPClient returns a client that dials through the SOCKS5 proxy at addr,
// or a plain client when addr is empty.
func NewHTTPClient(addr string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if addr == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 %s: %w", addr, err)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
