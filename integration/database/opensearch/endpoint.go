package opensearch

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const defaultHTTPPort = 80

// Endpoint is the immutable address of the search backend.
type Endpoint struct {
	Scheme     string
	Host       string
	Port       int
	PathPrefix string // "" or "/prefix" without trailing slash
}

// ParseEndpoint parses a backend URL such as "http://127.0.0.1:9200/".
// Only plain http is supported.
func ParseEndpoint(raw string) (Endpoint, error) {
	if strings.TrimSpace(raw) == "" {
		return Endpoint{}, fmt.Errorf("%w: empty URL", ErrInvalidEndpoint)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" {
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}

	port := defaultHTTPPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Endpoint{}, fmt.Errorf("%w: invalid port %q", ErrInvalidEndpoint, p)
		}
	}

	if u.RawQuery != "" || u.Fragment != "" {
		return Endpoint{}, fmt.Errorf("%w: query and fragment are not allowed", ErrInvalidEndpoint)
	}

	return Endpoint{
		Scheme:     u.Scheme,
		Host:       host,
		Port:       port,
		PathPrefix: strings.TrimRight(u.Path, "/"),
	}, nil
}

// Address returns host:port for dialing.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String returns the endpoint as a URL.
func (e Endpoint) String() string {
	return e.Scheme + "://" + e.Address() + e.PathPrefix
}
