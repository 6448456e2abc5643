package videoproxy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dash-proxy/internal/platform/logger"
	"dash-proxy/internal/playurl"
	"dash-proxy/internal/upstream"
	"dash-proxy/internal/wbi"
)

const (
	mpdContentType  = "application/dash+xml"
	jsonContentType = "application/json; charset=utf-8"

	// CredentialCookie is the inbound cookie whose value is forwarded upstream.
	CredentialCookie = "SESSDATA"
)

// Response is the JSON envelope every non-media endpoint returns.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Handler exposes the proxy HTTP endpoints using go-chi.
type Handler struct {
	svc        *Service
	streamer   *Streamer
	log        *slog.Logger
	publicBase string
	prefix     string
}

// NewHandler returns a Handler. publicBase overrides the per-request base URL
// derivation when non-empty; prefix is the path the proxy routes are mounted
// under (e.g. "/api/proxy").
func NewHandler(svc *Service, streamer *Streamer, log *slog.Logger, publicBase, prefix string) *Handler {
	prefix = strings.TrimRight(prefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &Handler{
		svc:        svc,
		streamer:   streamer,
		log:        log,
		publicBase: strings.TrimRight(publicBase, "/"),
		prefix:     prefix,
	}
}

// Prefix returns the mount path of the proxy routes.
func (h *Handler) Prefix() string { return h.prefix }

// GetVideoManifest handles GET {prefix}/video-manifest?id=&cid=.
func (h *Handler) GetVideoManifest(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	m, err := h.svc.GetManifest(r.Context(), req, h.proxyBase(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.log.Info("manifest built",
		slog.String("id", m.ID),
		slog.Int64("cid", m.CID),
		slog.Int("formats", len(m.FormatList)),
		slog.String("request_id", logger.RequestIDFrom(r.Context())))
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok", Data: m})
}

// GetMPD handles GET {prefix}/manifest.mpd?id=&cid=&variant=&index=.
func (h *Handler) GetMPD(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	mreq := MPDRequest{Request: req, Variant: q.Get("variant")}
	if s := q.Get("index"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			h.writeError(w, r, ErrIndexOutOfRange)
			return
		}
		mreq.Index = &n
	}

	out, err := h.svc.GetMPD(r.Context(), mreq, h.proxyBase(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", mpdContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out))
}

// Stream handles GET {prefix}/stream?url=&id=.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	target, id, err := h.streamer.Target(r.URL.RawQuery)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.Debug("stream relay",
		slog.String("id", id),
		slog.String("range", r.Header.Get("Range")),
		slog.String("request_id", logger.RequestIDFrom(r.Context())))

	if err := h.streamer.Relay(w, r, target); err != nil {
		h.writeError(w, r, err)
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}{true, "ok", time.Now().UTC().Format(time.RFC3339)})
}

func (h *Handler) parseRequest(r *http.Request) (playurl.Request, error) {
	q := r.URL.Query()
	id := q.Get("id")
	if id == "" {
		id = q.Get("bvid")
	}
	id, err := playurl.ValidateID(id)
	if err != nil {
		return playurl.Request{}, err
	}
	cid, err := playurl.ParseCID(q.Get("cid"))
	if err != nil {
		return playurl.Request{}, err
	}
	return playurl.Request{ID: id, CID: cid, Credential: credential(r)}, nil
}

func credential(r *http.Request) string {
	c, err := r.Cookie(CredentialCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) proxyBase(r *http.Request) string {
	return RequestBaseURL(r, h.publicBase) + h.prefix
}

// RequestBaseURL returns scheme://host as seen by the client. public wins when set.
// Plain http on :443 is rewritten to https, and :80 is dropped.
func RequestBaseURL(r *http.Request, public string) string {
	if public != "" {
		return strings.TrimRight(public, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := firstHeaderValue(r.Header.Get("X-Forwarded-Proto")); p != "" {
		scheme = strings.ToLower(p)
	}
	host := r.Host
	if fh := firstHeaderValue(r.Header.Get("X-Forwarded-Host")); fh != "" {
		host = fh
	}
	if host == "" {
		host = "localhost"
	}

	if scheme == "http" {
		if hostname, port, err := net.SplitHostPort(host); err == nil {
			if strings.Contains(hostname, ":") {
				hostname = "[" + hostname + "]"
			}
			switch port {
			case "443":
				return "https://" + hostname
			case "80":
				return "http://" + hostname
			}
		}
	}
	return scheme + "://" + host
}

func firstHeaderValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

// StatusFor maps a pipeline error to an HTTP status.
func StatusFor(err error) int {
	var upErr *upstream.Error
	switch {
	case errors.Is(err, playurl.ErrInvalidIdentifier), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, playurl.ErrNoStreamsAvailable):
		return http.StatusNotFound
	case errors.Is(err, upstream.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, wbi.ErrKeyFetch), errors.As(err, &upErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("request_id", logger.RequestIDFrom(r.Context())),
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", attrs...)
	} else {
		h.log.Info("request rejected", attrs...)
	}
	writeJSON(w, status, Response{Success: false, Message: err.Error(), Data: nil})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
