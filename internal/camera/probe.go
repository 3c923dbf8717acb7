package camera

import (
	"fmt"
	"net"
	neturl "net/url"
	"time"

	"github.com/aler9/gortsplib"
	"github.com/aler9/gortsplib/pkg/url"
)

// Probe checks whether a camera endpoint is reachable without opening a
// full decode pipeline. RTSP sources get an OPTIONS round trip; HTTP MJPEG
// sources get a TCP dial.
func Probe(rawURL string, timeout time.Duration) (bool, error) {
	const op = "camera.Probe"

	parsed, err := neturl.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	switch parsed.Scheme {
	case "rtsp":
		return probeRTSP(rawURL)
	case "http", "https":
		host := parsed.Host
		if parsed.Port() == "" {
			host = net.JoinHostPort(parsed.Hostname(), "80")
		}

		conn, err := net.DialTimeout("tcp", host, timeout)
		if err != nil {
			return false, nil
		}
		conn.Close()

		return true, nil
	default:
		return false, fmt.Errorf("%s: unsupported scheme %q", op, parsed.Scheme)
	}
}

func probeRTSP(rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, err
	}

	conn := gortsplib.Client{}

	if err := conn.Start(u.Scheme, u.Host); err != nil {
		return false, nil
	}
	defer conn.Close()

	if _, err := conn.Options(u); err != nil {
		return false, nil
	}

	return true, nil
}
