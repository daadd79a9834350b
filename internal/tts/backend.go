package tts

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrConnectivity marks a backend failure caused by losing the network rather
// than by the request itself.
var ErrConnectivity = errors.New("tts backend unreachable")

// Request is one synthesis call.
type Request struct {
	Text       string
	Voice      VoiceProfile
	OutputPath string
}

// Backend turns text into an audio file at Request.OutputPath.
type Backend interface {
	Synthesize(ctx context.Context, req Request) error
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, req Request) error

func (f BackendFunc) Synthesize(ctx context.Context, req Request) error { return f(ctx, req) }

var connectivitySignatures = []string{
	"unable to connect",
	"cannot connect to host",
	"no such host",
	"name or service not known",
	"temporary failure in name resolution",
	"network is unreachable",
	"connection refused",
	"connection reset",
	"server disconnected",
}

// IsConnectivityError reports whether err looks like a network outage.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectivity) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return matchesConnectivity(err.Error())
}

func matchesConnectivity(message string) bool {
	lower := strings.ToLower(message)
	for _, sig := range connectivitySignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
