package media

import (
	"encoding/json"
	"strings"
)

// SegmentBase holds the byte ranges of a single-file container's index and
// initialization segments, e.g. "1000-1500" and "0-999".
type SegmentBase struct {
	IndexRange     string `json:"index_range"`
	Initialization string `json:"initialization"`
}

// StreamDescriptor is one audio or video rendition returned by the play endpoint.
type StreamDescriptor struct {
	ID                int         `json:"id"`
	BaseURL           string      `json:"base_url"`
	BackupURLs        []string    `json:"backup_url,omitempty"`
	Bandwidth         *int        `json:"bandwidth,omitempty"`
	MimeType          string      `json:"mime_type,omitempty"`
	Codecs            string      `json:"codecs,omitempty"`
	Width             int         `json:"width,omitempty"`
	Height            int         `json:"height,omitempty"`
	FrameRate         string      `json:"frame_rate,omitempty"`
	SAR               string      `json:"sar,omitempty"`
	StartWithSAP      *int        `json:"start_with_sap,omitempty"`
	AudioSamplingRate *int        `json:"audioSamplingRate,omitempty"`
	Size              int64       `json:"size,omitempty"`
	SegmentBase       SegmentBase `json:"segment_base"`
}

// rawStream accepts both spellings the play endpoint uses for the same field.
type rawStream struct {
	ID                int      `json:"id"`
	BaseURL           string   `json:"base_url"`
	BaseURLCamel      string   `json:"baseUrl"`
	BackupURL         []string `json:"backup_url"`
	BackupURLCamel    []string `json:"backupUrl"`
	Bandwidth         *int     `json:"bandwidth"`
	MimeType          string   `json:"mime_type"`
	MimeTypeCamel     string   `json:"mimeType"`
	Codecs            string   `json:"codecs"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
	FrameRate         string   `json:"frame_rate"`
	FrameRateCamel    string   `json:"frameRate"`
	SAR               string   `json:"sar"`
	StartWithSAP      *int     `json:"start_with_sap"`
	StartWithSAPCamel *int     `json:"startWithSap"`
	AudioSamplingRate *int     `json:"audioSamplingRate"`
	Size              int64    `json:"size"`
	SegmentBase       *struct {
		IndexRange     string `json:"index_range"`
		Initialization string `json:"initialization"`
	} `json:"segment_base"`
	SegmentBaseCamel *struct {
		IndexRange     string `json:"indexRange"`
		Initialization string `json:"Initialization"`
	} `json:"SegmentBase"`
}

// UnmarshalJSON repairs the inconsistent field naming of upstream stream
// objects, preferring the snake_case spelling when both are present.
func (s *StreamDescriptor) UnmarshalJSON(b []byte) error {
	var raw rawStream
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = StreamDescriptor{
		ID:                raw.ID,
		BaseURL:           firstNonEmpty(raw.BaseURL, raw.BaseURLCamel),
		BackupURLs:        raw.BackupURL,
		Bandwidth:         raw.Bandwidth,
		MimeType:          firstNonEmpty(raw.MimeType, raw.MimeTypeCamel),
		Codecs:            raw.Codecs,
		Width:             raw.Width,
		Height:            raw.Height,
		FrameRate:         firstNonEmpty(raw.FrameRate, raw.FrameRateCamel),
		SAR:               raw.SAR,
		StartWithSAP:      raw.StartWithSAP,
		AudioSamplingRate: raw.AudioSamplingRate,
		Size:              raw.Size,
	}
	if len(s.BackupURLs) == 0 {
		s.BackupURLs = raw.BackupURLCamel
	}
	if s.StartWithSAP == nil {
		s.StartWithSAP = raw.StartWithSAPCamel
	}
	if raw.SegmentBase != nil {
		s.SegmentBase = SegmentBase{IndexRange: raw.SegmentBase.IndexRange, Initialization: raw.SegmentBase.Initialization}
	}
	if raw.SegmentBaseCamel != nil {
		if s.SegmentBase.IndexRange == "" {
			s.SegmentBase.IndexRange = raw.SegmentBaseCamel.IndexRange
		}
		if s.SegmentBase.Initialization == "" {
			s.SegmentBase.Initialization = raw.SegmentBaseCamel.Initialization
		}
	}
	return nil
}

// BandwidthValue returns the declared bandwidth, or 0 when absent.
func (s StreamDescriptor) BandwidthValue() int {
	if s.Bandwidth == nil {
		return 0
	}
	return *s.Bandwidth
}

// QualityTier is one entry of the play endpoint's support_formats list.
type QualityTier struct {
	Quality        int    `json:"quality"`
	Format         string `json:"format"`
	NewDescription string `json:"new_description"`
	DisplayDesc    string `json:"display_desc"`
}

// Page is one part of a multi-part title.
type Page struct {
	CID      int64  `json:"cid"`
	Page     int    `json:"page"`
	Part     string `json:"part"`
	Duration int64  `json:"duration,omitempty"`
}

// MediaSet is the normalized set of streams for one title page.
// Video and Audio are sorted by bandwidth descending.
type MediaSet struct {
	Video          []StreamDescriptor
	Audio          []StreamDescriptor
	Duration       int64   // seconds
	MinBufferTime  float64 // seconds
	TimeLength     int64   // milliseconds
	SupportFormats []QualityTier
}

// SanitizeCodec strips quote and backslash characters from a codec string.
// An empty result means the codec is absent.
func SanitizeCodec(v string) string {
	return sanitize(v)
}

// SanitizeMime strips quote and backslash characters from a MIME type.
func SanitizeMime(v string) string {
	return sanitize(v)
}

var quoteStripper = strings.NewReplacer(`"`, "", `'`, "", `\`, "")

func sanitize(v string) string {
	if v == "" {
		return ""
	}
	return strings.TrimSpace(quoteStripper.Replace(v))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
