package videoproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"dash-proxy/internal/platform/metrics"
	"dash-proxy/internal/proxyurl"
	"dash-proxy/internal/upstream"
)

var (
	ErrHostNotAllowed = fmt.Errorf("%w: stream host not allowed", ErrBadRequest)
	ErrBadStreamURL   = fmt.Errorf("%w: invalid stream url", ErrBadRequest)
)

// StreamOpener is satisfied by *upstream.Client.
type StreamOpener interface {
	OpenStream(ctx context.Context, target string, header http.Header) (*http.Response, error)
}

// forwarded request headers; everything else stays on this side.
var forwardRequestHeaders = []string{
	"Range",
	"If-Range",
	"If-None-Match",
	"If-Modified-Since",
	"Accept",
}

// dropped response headers: hop-by-hop plus headers that identify the origin.
var dropResponseHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Server":              true,
	"Via":                 true,
	"Set-Cookie":          true,
	"Alt-Svc":             true,
	"X-Powered-By":        true,
}

var droppedHeaderPrefixes = []string{"X-Cache", "X-Bili", "X-Upos", "X-Served-By"}

// Streamer relays upstream media bytes for proxy URLs.
type Streamer struct {
	opener       StreamOpener
	hostSuffixes []string
	log          *slog.Logger
	metrics      *metrics.Metrics

	// allowPrivate lets loopback and private IP literals through; tests only.
	allowPrivate bool
}

// NewStreamer returns a Streamer. An empty hostSuffixes allows any public
// host; loopback, private and link-local addresses are always refused.
func NewStreamer(opener StreamOpener, hostSuffixes []string, log *slog.Logger, m *metrics.Metrics) *Streamer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	suffixes := make([]string, 0, len(hostSuffixes))
	for _, s := range hostSuffixes {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			suffixes = append(suffixes, s)
		}
	}
	return &Streamer{opener: opener, hostSuffixes: suffixes, log: log, metrics: m}
}

// Target decodes the proxy query and checks the upstream URL against the allowlist.
func (s *Streamer) Target(rawQuery string) (target, id string, err error) {
	target, id, err = proxyurl.UnwrapQuery(rawQuery)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrBadStreamURL, err)
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", ErrBadStreamURL
	}
	if !s.allowPrivate && internalHost(u.Hostname()) {
		return "", "", fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}
	if !s.hostAllowed(u.Hostname()) {
		return "", "", fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}
	return target, id, nil
}

// internalHost reports whether host names this machine or a non-routable
// network: localhost, or an IP literal that is loopback, private,
// link-local, multicast or unspecified.
func internalHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() || addr.IsMulticast()
}

func (s *Streamer) hostAllowed(host string) bool {
	if len(s.hostSuffixes) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, suffix := range s.hostSuffixes {
		if host == strings.TrimPrefix(suffix, ".") || strings.HasSuffix(host, "."+strings.TrimPrefix(suffix, ".")) {
			return true
		}
	}
	return false
}

// Relay opens target and copies status, filtered headers and body to w.
// Errors returned before anything was written leave w untouched.
func (s *Streamer) Relay(w http.ResponseWriter, r *http.Request, target string) error {
	header := make(http.Header)
	for _, k := range forwardRequestHeaders {
		if v := r.Header.Get(k); v != "" {
			header.Set(k, v)
		}
	}

	resp, err := s.opener.OpenStream(r.Context(), target, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	s.metrics.StreamStarted()
	defer s.metrics.StreamFinished()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	n, err := io.Copy(w, resp.Body)
	s.metrics.AddStreamBytes(n)
	if err != nil && !errors.Is(err, context.Canceled) {
		// Headers are out; the client sees a truncated body.
		s.log.Warn("stream relay interrupted",
			slog.Int64("bytes", n),
			slog.String("error", err.Error()))
	}
	return nil
}

func copyResponseHeaders(dst, src http.Header) {
	for k, vs := range src {
		if !keepResponseHeader(k) {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func keepResponseHeader(name string) bool {
	name = http.CanonicalHeaderKey(name)
	if dropResponseHeaders[name] {
		return false
	}
	for _, p := range droppedHeaderPrefixes {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	return true
}

var _ StreamOpener = (*upstream.Client)(nil)
