package wire

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Port offsets from a peer's base (protocol) port to its other three
// logical listeners (spec §4.1/§6: "base+Δv", "base+Δℓ", "base+Δd").
const (
	ProtocolPortOffset  = 0
	VerifyPortOffset    = 1
	LearnPortOffset     = 2
	DirectoryPortOffset = 3
)

// SplitHostPort extracts host and numeric port from a directory entry's
// URL, tolerating both a bare "host:port" and a "scheme://host:port" form
// (the registry and directory push messages carry the latter per §6).
func SplitHostPort(rawURL string) (string, int, error) {
	hostport := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		hostport = u.Host
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, fmt.Errorf("wire: split host:port from %q: %w", rawURL, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("wire: parse port from %q: %w", rawURL, err)
	}
	return host, port, nil
}

// Address renders the host:port a peer's logical listener at offset from
// baseURL's protocol port, e.g. Address("http://10.0.0.1:6000",
// VerifyPortOffset) -> "10.0.0.1:6001".
func Address(baseURL string, offset int) (string, error) {
	host, port, err := SplitHostPort(baseURL)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, strconv.Itoa(port+offset)), nil
}
