package mpd

import (
	"fmt"
	"strconv"
	"strings"

	"dash-proxy/internal/media"
	"dash-proxy/internal/proxyurl"

	m "github.com/Eyevinn/dash-mpd/mpd"
)

const (
	// PreferredVideoCodec is the codec family prefix picked for playback (H.264 High profile).
	PreferredVideoCodec = "avc1.64"
	// PreferredAudioCodec is AAC-LC.
	PreferredAudioCodec = "mp4a.40.2"
)

type policyKind int

const (
	policySingleBest policyKind = iota
	policyExplicitIndex
	policyAllMatchingCodec
)

// Policy selects which video streams become Representations. The zero
// value is SingleBest.
type Policy struct {
	kind   policyKind
	index  int
	prefix string
}

// SingleBest picks the first stream of the preferred codec family, or every
// video stream when none matches.
func SingleBest() Policy { return Policy{kind: policySingleBest} }

// ExplicitIndex picks the stream at position n. Out-of-range n selects nothing;
// callers validate n against the video list first.
func ExplicitIndex(n int) Policy { return Policy{kind: policyExplicitIndex, index: n} }

// AllMatchingCodec picks every stream whose codec starts with prefix.
func AllMatchingCodec(prefix string) Policy {
	return Policy{kind: policyAllMatchingCodec, prefix: prefix}
}

func (p Policy) String() string {
	switch p.kind {
	case policyExplicitIndex:
		return fmt.Sprintf("explicitIndex(%d)", p.index)
	case policyAllMatchingCodec:
		return fmt.Sprintf("allMatchingCodec(%s)", p.prefix)
	default:
		return "singleBest"
	}
}

// SelectVideo applies the policy to an ordered video list.
func (p Policy) SelectVideo(streams []media.StreamDescriptor) []media.StreamDescriptor {
	switch p.kind {
	case policyExplicitIndex:
		if p.index < 0 || p.index >= len(streams) {
			return nil
		}
		return streams[p.index : p.index+1]
	case policyAllMatchingCodec:
		var out []media.StreamDescriptor
		for _, s := range streams {
			if strings.HasPrefix(media.SanitizeCodec(s.Codecs), p.prefix) {
				out = append(out, s)
			}
		}
		return out
	default:
		for _, s := range streams {
			if strings.HasPrefix(media.SanitizeCodec(s.Codecs), PreferredVideoCodec) {
				return []media.StreamDescriptor{s}
			}
		}
		// TODO: confirm whether mixed-codec fallback should instead pick streams[0].
		return streams
	}
}

// SelectAudio picks the first AAC-LC stream, or every audio stream when none matches.
func SelectAudio(streams []media.StreamDescriptor) []media.StreamDescriptor {
	for _, s := range streams {
		if media.SanitizeCodec(s.Codecs) == PreferredAudioCodec {
			return []media.StreamDescriptor{s}
		}
	}
	return streams
}

// Build derives a manifest tree from set. Every BaseURL is rewritten to point
// at proxyBase. The result is not shared and may be serialized once.
func Build(set media.MediaSet, proxyBase, id string, p Policy) *Document {
	minBuffer := set.MinBufferTime
	if minBuffer <= 0 {
		minBuffer = 1
	}

	doc := m.NewMPD(TypeStatic)
	doc.Profiles = ProfileOnDemand
	doc.MediaPresentationDuration = Seconds(float64(set.Duration))
	doc.MinBufferTime = *Seconds(minBuffer)

	period := &m.Period{Duration: Seconds(float64(set.Duration))}

	video := newAdaptationSet()
	for _, s := range p.SelectVideo(set.Video) {
		rep := representation(s, proxyBase, id)
		rep.Width = uint32(max(s.Width, 0))
		rep.Height = uint32(max(s.Height, 0))
		rep.FrameRate = m.FrameRateType(s.FrameRate)
		rep.Sar = m.RatioType(s.SAR)
		video.AppendRepresentation(rep)
	}

	audio := newAdaptationSet()
	for _, s := range SelectAudio(set.Audio) {
		rep := representation(s, proxyBase, id)
		if s.AudioSamplingRate != nil {
			rep.AudioSamplingRate = ptr(m.UIntVectorType(strconv.Itoa(*s.AudioSamplingRate)))
		}
		rep.AudioChannelConfigurations = append(rep.AudioChannelConfigurations,
			m.NewDescriptor(AudioChannelScheme, "2", ""))
		audio.AppendRepresentation(rep)
	}

	period.AppendAdaptationSet(video)
	period.AppendAdaptationSet(audio)
	doc.AppendPeriod(period)
	return doc
}

// Render builds and serializes in one step.
func Render(set media.MediaSet, proxyBase, id string, p Policy) (string, error) {
	out, err := Marshal(Build(set, proxyBase, id, p))
	if err != nil {
		return "", fmt.Errorf("marshal mpd (%s): %w", p, err)
	}
	return string(out), nil
}

// Legacy is the single-quality manifest.
func Legacy(set media.MediaSet, proxyBase, id string) (string, error) {
	return Render(set, proxyBase, id, SingleBest())
}

// Unified spans every quality of the preferred codec family.
func Unified(set media.MediaSet, proxyBase, id string) (string, error) {
	return Render(set, proxyBase, id, AllMatchingCodec(PreferredVideoCodec))
}

func newAdaptationSet() *m.AdaptationSetType {
	as := m.NewAdaptationSet()
	as.SegmentAlignment = true
	as.SubsegmentAlignment = true
	as.SubsegmentStartsWithSAP = 1
	return as
}

// representation fills the fields shared by video and audio. Absent optional
// values stay zero so the writer omits them; bandwidth is always emitted.
func representation(s media.StreamDescriptor, proxyBase, id string) *m.RepresentationType {
	rep := m.NewRepresentation()
	rep.Id = strconv.Itoa(s.ID)
	rep.MimeType = media.SanitizeMime(s.MimeType)
	rep.Codecs = media.SanitizeCodec(s.Codecs)
	if s.StartWithSAP != nil && *s.StartWithSAP > 0 {
		rep.StartWithSAP = uint32(*s.StartWithSAP)
	}
	if s.Bandwidth != nil && *s.Bandwidth > 0 {
		rep.Bandwidth = uint32(*s.Bandwidth)
	}
	rep.SegmentBase = &m.SegmentBaseType{
		IndexRange:     s.SegmentBase.IndexRange,
		Initialization: &m.URLType{Range: s.SegmentBase.Initialization},
	}

	rep.BaseURLs = append(rep.BaseURLs, m.NewBaseURL(proxyurl.Wrap(s.BaseURL, proxyBase, id)))
	for _, u := range s.BackupURLs {
		b := m.NewBaseURL(proxyurl.Wrap(u, proxyBase, id))
		b.ServiceLocation = ServiceLocBackup
		rep.BaseURLs = append(rep.BaseURLs, b)
	}
	return rep
}
