package session

import (
	"net"
	"strconv"
	"strings"
)

// PreviewURL composes the address of a dev server listening on port behind
// host. An http:// or https:// prefix on host selects the scheme, https
// otherwise. A host that already carries a port is used as is.
func PreviewURL(host string, port int) string {
	scheme := "https"
	switch {
	case strings.HasPrefix(host, "https://"):
		host = strings.TrimPrefix(host, "https://")
	case strings.HasPrefix(host, "http://"):
		scheme = "http"
		host = strings.TrimPrefix(host, "http://")
	}
	host = strings.TrimRight(host, "/")

	if port > 0 {
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
			host = net.JoinHostPort(host, strconv.Itoa(port))
		}
	}
	return scheme + "://" + host
}
