package netdev

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/danmuck/airlink/internal/transport"
)

var ErrInvalidTarget = errors.New("netdev: invalid target")

const serialPrefix = "serial:"

// ParseTarget accepts "ip:port" with an IPv4 literal host, or
// "serial:/dev/path[@baud]". Host names are not resolved.
func ParseTarget(raw string) (transport.Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(raw, serialPrefix); ok {
		return parseSerial(rest)
	}

	host, portStr, ok := strings.Cut(raw, ":")
	if !ok {
		return transport.Endpoint{}, fmt.Errorf("%w: %q missing port", ErrInvalidTarget, raw)
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return transport.Endpoint{}, fmt.Errorf("%w: %q is not an ipv4 address", ErrInvalidTarget, host)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return transport.Endpoint{}, fmt.Errorf("%w: bad port %q", ErrInvalidTarget, portStr)
	}
	return transport.Endpoint{
		Kind: transport.KindTCP,
		Addr: net.JoinHostPort(ip.To4().String(), strconv.Itoa(port)),
	}, nil
}

func parseSerial(rest string) (transport.Endpoint, error) {
	device, baudStr, hasBaud := strings.Cut(rest, "@")
	if strings.TrimSpace(device) == "" {
		return transport.Endpoint{}, fmt.Errorf("%w: serial device required", ErrInvalidTarget)
	}
	baud := transport.DefaultBaud
	if hasBaud {
		v, err := strconv.Atoi(baudStr)
		if err != nil || v <= 0 {
			return transport.Endpoint{}, fmt.Errorf("%w: bad baud %q", ErrInvalidTarget, baudStr)
		}
		baud = v
	}
	return transport.Endpoint{Kind: transport.KindSerial, Addr: device, Baud: baud}, nil
}
