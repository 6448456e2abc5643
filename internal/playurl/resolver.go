package playurl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"dash-proxy/internal/media"
	"dash-proxy/internal/upstream"
	"dash-proxy/internal/wbi"

	"golang.org/x/sync/errgroup"
)

const (
	ViewPath = "/x/web-interface/view"
	PlayPath = "/x/player/wbi/playurl"

	// fnval 80 requests DASH streams; fourk enables 4K tiers.
	fnvalDASH = 80
)

var (
	// ErrInvalidIdentifier is returned before any network call when the id is empty or malformed.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrNoStreamsAvailable is returned when the play endpoint yields no audio or no video streams.
	ErrNoStreamsAvailable = errors.New("no audio/video streams available")
)

// KeySource supplies the WBI key pair. *wbi.KeyFetcher implements it.
type KeySource interface {
	Fetch(ctx context.Context, credential string) (wbi.KeyPair, error)
}

// Request identifies the title and page to resolve.
type Request struct {
	ID         string // public video id (bvid)
	CID        int64  // page content id; 0 selects the title's default page
	Credential string // SESSDATA cookie value, optional
}

// Result is a fully normalized resolution. It is never returned partially.
type Result struct {
	ID    string
	CID   int64
	Media media.MediaSet
	Pages []media.Page
}

// Resolver turns a video id into a normalized MediaSet.
type Resolver struct {
	client *upstream.Client
	keys   KeySource
	signer wbi.Signer
	log    *slog.Logger
}

// NewResolver returns a Resolver. A nil logger discards output.
func NewResolver(client *upstream.Client, keys KeySource, signer wbi.Signer, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Resolver{client: client, keys: keys, signer: signer, log: log}
}

// ValidateID trims id and checks that it is a non-empty alphanumeric token.
func ValidateID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: id is required", ErrInvalidIdentifier)
	}
	for _, r := range id {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidIdentifier, r)
		}
	}
	return id, nil
}

// Resolve runs view+keys (concurrently), then the signed play request, and
// normalizes the result.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	id, err := ValidateID(req.ID)
	if err != nil {
		return nil, err
	}
	if req.CID < 0 {
		return nil, fmt.Errorf("%w: negative cid", ErrInvalidIdentifier)
	}

	var (
		view viewData
		keys wbi.KeyPair
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := r.fetchView(gctx, id, req.Credential)
		if err != nil {
			return err
		}
		view = v
		return nil
	})
	g.Go(func() error {
		k, err := r.keys.Fetch(gctx, req.Credential)
		if err != nil {
			return err
		}
		keys = k
		return nil
	})
	if err := g.Wait(); err != nil {
		r.log.Warn("resolve prerequisites failed", slog.String("id", id), slog.String("error", err.Error()))
		return nil, err
	}

	cid := req.CID
	if cid == 0 {
		cid = view.CID
	}
	if cid == 0 {
		return nil, &upstream.Error{Step: "view", Err: errors.New("response has no cid")}
	}
	r.log.Debug("view resolved", slog.String("id", id), slog.Int64("cid", cid), slog.Int("pages", len(view.Pages)))

	play, err := r.fetchPlay(ctx, id, cid, keys, req.Credential)
	if err != nil {
		r.log.Warn("play request failed", slog.String("id", id), slog.Int64("cid", cid), slog.String("error", err.Error()))
		return nil, err
	}

	set, err := Normalize(play)
	if err != nil {
		return nil, err
	}
	r.log.Debug("streams resolved",
		slog.String("id", id),
		slog.Int64("cid", cid),
		slog.Int("video", len(set.Video)),
		slog.Int("audio", len(set.Audio)))

	return &Result{ID: id, CID: cid, Media: set, Pages: view.Pages}, nil
}

type viewData struct {
	CID   int64        `json:"cid"`
	Pages []media.Page `json:"pages"`
}

func (r *Resolver) fetchView(ctx context.Context, id, credential string) (viewData, error) {
	env, err := r.client.GetEnvelope(ctx, "view", ViewPath, url.Values{"bvid": {id}}, credential)
	if err != nil {
		return viewData{}, err
	}
	if err := upstream.CheckCode("view", env); err != nil {
		return viewData{}, err
	}
	var v viewData
	if err := env.Decode(&v); err != nil {
		return viewData{}, &upstream.Error{Step: "view", Err: fmt.Errorf("decode view data: %w", err)}
	}
	return v, nil
}

func (r *Resolver) fetchPlay(ctx context.Context, id string, cid int64, keys wbi.KeyPair, credential string) (*PlayData, error) {
	params := wbi.Params{
		"bvid":  id,
		"cid":   cid,
		"fnval": fnvalDASH,
		"fnver": 0,
		"fourk": 1,
	}
	signed := r.signer.Signed(params, keys)

	query := make(url.Values, len(signed))
	for k, v := range signed {
		query.Set(k, wbi.Stringify(v))
	}

	env, err := r.client.GetEnvelope(ctx, "playurl", PlayPath, query, credential)
	if err != nil {
		return nil, err
	}
	if err := upstream.CheckCode("playurl", env); err != nil {
		return nil, err
	}
	var play PlayData
	if err := env.Decode(&play); err != nil {
		return nil, &upstream.Error{Step: "playurl", Err: fmt.Errorf("decode play data: %w", err)}
	}
	return &play, nil
}

// DashInfo is the dash block of a play response.
type DashInfo struct {
	Duration           *int64                   `json:"duration"`
	MinBufferTime      *float64                 `json:"minBufferTime"`
	MinBufferTimeSnake *float64                 `json:"min_buffer_time"`
	TimeLength         *int64                   `json:"timelength"`
	Video              []media.StreamDescriptor `json:"video"`
	Audio              []media.StreamDescriptor `json:"audio"`
}

// PlayBody is the part of a play response that may appear flat or under "data".
type PlayBody struct {
	TimeLength     *int64              `json:"timelength"`
	SupportFormats []media.QualityTier `json:"support_formats"`
	Dash           *DashInfo           `json:"dash"`
}

// PlayData is the decoded data field of a play response. Depending on the API
// variant the payload is either at the top level or nested under "data".
type PlayData struct {
	PlayBody
	Data *PlayBody `json:"data"`
}

// Normalize locates the dash block, rejects empty stream lists, sorts streams
// by bandwidth descending, and fills in duration and buffer defaults.
func Normalize(play *PlayData) (media.MediaSet, error) {
	if play == nil {
		return media.MediaSet{}, ErrNoStreamsAvailable
	}
	dash := play.Dash
	if dash == nil && play.Data != nil {
		dash = play.Data.Dash
	}
	if dash == nil || len(dash.Video) == 0 || len(dash.Audio) == 0 {
		return media.MediaSet{}, ErrNoStreamsAvailable
	}

	formats := play.SupportFormats
	if formats == nil && play.Data != nil {
		formats = play.Data.SupportFormats
	}

	var timeLength int64
	switch {
	case dash.TimeLength != nil:
		timeLength = *dash.TimeLength
	case play.TimeLength != nil:
		timeLength = *play.TimeLength
	case play.Data != nil && play.Data.TimeLength != nil:
		timeLength = *play.Data.TimeLength
	}

	duration := timeLength / 1000
	if dash.Duration != nil && *dash.Duration > 0 {
		duration = *dash.Duration
	}

	minBuffer := 1.0
	switch {
	case dash.MinBufferTime != nil && *dash.MinBufferTime > 0:
		minBuffer = *dash.MinBufferTime
	case dash.MinBufferTimeSnake != nil && *dash.MinBufferTimeSnake > 0:
		minBuffer = *dash.MinBufferTimeSnake
	}

	return media.MediaSet{
		Video:          SortByBandwidth(dash.Video),
		Audio:          SortByBandwidth(dash.Audio),
		Duration:       duration,
		MinBufferTime:  minBuffer,
		TimeLength:     timeLength,
		SupportFormats: formats,
	}, nil
}

// SortByBandwidth returns a copy of streams sorted by bandwidth descending.
// Ties keep their original order.
func SortByBandwidth(streams []media.StreamDescriptor) []media.StreamDescriptor {
	out := append([]media.StreamDescriptor(nil), streams...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BandwidthValue() > out[j].BandwidthValue()
	})
	return out
}

// ParseCID parses an optional cid query value. Empty means 0.
func ParseCID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	cid, err := strconv.ParseInt(s, 10, 64)
	if err != nil || cid < 0 {
		return 0, fmt.Errorf("%w: cid must be a non-negative integer", ErrInvalidIdentifier)
	}
	return cid, nil
}
