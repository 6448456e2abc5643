package videoproxy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dash-proxy/internal/media"
	"dash-proxy/internal/mpd"
	"dash-proxy/internal/platform/metrics"
	"dash-proxy/internal/playurl"
)

// Manifest variants.
const (
	VariantLegacy  = "legacy"
	VariantUnified = "unified"
)

var (
	// ErrBadRequest marks caller errors other than a malformed identifier.
	ErrBadRequest = errors.New("bad request")

	ErrUnknownVariant   = fmt.Errorf("%w: unknown manifest variant", ErrBadRequest)
	ErrIndexOutOfRange  = fmt.Errorf("%w: video index out of range", ErrBadRequest)
	ErrIndexWithUnified = fmt.Errorf("%w: index cannot be combined with the unified variant", ErrBadRequest)
)

// Resolver is satisfied by *playurl.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, req playurl.Request) (*playurl.Result, error)
}

// Manifest is the payload of the video-manifest operation.
type Manifest struct {
	ID         string            `json:"bvid"`
	CID        int64             `json:"cid"`
	XML        string            `json:"xml"`
	UnifiedMPD string            `json:"unifiedMpd"`
	FormatList []mpd.FormatEntry `json:"formatList"`
	Pages      []media.Page      `json:"pages"`
}

// MPDRequest selects a single manifest document.
type MPDRequest struct {
	playurl.Request
	Variant string // legacy (default) or unified
	Index   *int   // explicit video position; legacy only
}

// Service composes resolution and synthesis. It keeps no per-request state.
type Service struct {
	resolver Resolver
	metrics  *metrics.Metrics
}

// NewService returns a Service. m may be nil.
func NewService(resolver Resolver, m *metrics.Metrics) *Service {
	return &Service{resolver: resolver, metrics: m}
}

// GetManifest resolves req and renders both manifest variants, the format
// list and the page list. proxyBase is the externally visible proxy root.
func (s *Service) GetManifest(ctx context.Context, req playurl.Request, proxyBase string) (*Manifest, error) {
	res, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	legacy, err := mpd.Legacy(res.Media, proxyBase, res.ID)
	if err != nil {
		return nil, err
	}
	unified, err := mpd.Unified(res.Media, proxyBase, res.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.IncManifestsBuilt(VariantLegacy)
	s.metrics.IncManifestsBuilt(VariantUnified)

	pages := res.Pages
	if pages == nil {
		pages = []media.Page{}
	}
	return &Manifest{
		ID:         res.ID,
		CID:        res.CID,
		XML:        legacy,
		UnifiedMPD: unified,
		FormatList: mpd.BuildFormatList(res.Media),
		Pages:      pages,
	}, nil
}

// GetMPD resolves req and renders one manifest document.
func (s *Service) GetMPD(ctx context.Context, req MPDRequest, proxyBase string) (string, error) {
	variant := strings.ToLower(strings.TrimSpace(req.Variant))
	if variant == "" {
		variant = VariantLegacy
	}
	if variant != VariantLegacy && variant != VariantUnified {
		return "", ErrUnknownVariant
	}
	if req.Index != nil && variant == VariantUnified {
		return "", ErrIndexWithUnified
	}
	if req.Index != nil && *req.Index < 0 {
		return "", ErrIndexOutOfRange
	}

	res, err := s.resolver.Resolve(ctx, req.Request)
	if err != nil {
		return "", err
	}

	policy := mpd.SingleBest()
	switch {
	case req.Index != nil:
		if *req.Index >= len(res.Media.Video) {
			return "", fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, *req.Index, len(res.Media.Video))
		}
		policy = mpd.ExplicitIndex(*req.Index)
	case variant == VariantUnified:
		policy = mpd.AllMatchingCodec(mpd.PreferredVideoCodec)
	}

	out, err := mpd.Render(res.Media, proxyBase, res.ID, policy)
	if err != nil {
		return "", err
	}
	s.metrics.IncManifestsBuilt(variant)
	return out, nil
}
