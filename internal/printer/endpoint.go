package printer

import (
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the raw TCP printing port used by networked thermal printers.
const DefaultPort = 9100

// Endpoint is where the kitchen printer listens.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Configured reports whether a host has been set.
func (e Endpoint) Configured() bool {
	return strings.TrimSpace(e.Host) != ""
}

// Normalize trims the host and applies the default port.
func (e Endpoint) Normalize() Endpoint {
	e.Host = strings.TrimSpace(e.Host)
	if e.Port == 0 {
		e.Port = DefaultPort
	}
	return e
}

// ValidPort reports whether the port is usable for TCP.
func (e Endpoint) ValidPort() bool {
	return e.Port > 0 && e.Port <= 65535
}

// Address renders host:port for dialing.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	if !e.Configured() {
		return "unconfigured"
	}
	return e.Address()
}
