package mpd

import (
	"strings"

	"dash-proxy/internal/media"
)

// FormatEntry is one selectable quality. Tier fields come from the declared
// support formats; stream fields are filled in when a preferred-codec video
// stream with the same id exists.
type FormatEntry struct {
	ID             int    `json:"id"`
	Format         string `json:"format,omitempty"`
	NewDescription string `json:"new_description,omitempty"`
	DisplayDesc    string `json:"display_desc,omitempty"`

	BaseURL      string             `json:"base_url,omitempty"`
	BackupURLs   []string           `json:"backup_url,omitempty"`
	Bandwidth    *int               `json:"bandwidth,omitempty"`
	MimeType     string             `json:"mime_type,omitempty"`
	Codecs       string             `json:"codecs,omitempty"`
	Width        int                `json:"width,omitempty"`
	Height       int                `json:"height,omitempty"`
	FrameRate    string             `json:"frame_rate,omitempty"`
	SAR          string             `json:"sar,omitempty"`
	StartWithSAP *int               `json:"start_with_sap,omitempty"`
	SegmentBase  *media.SegmentBase `json:"segment_base,omitempty"`
	Size         int64              `json:"size,omitempty"`

	AudioSamplingRate *int `json:"audioSamplingRate,omitempty"`

	// XML is a per-entry manifest fragment; always empty for now.
	XML string `json:"xml"`
}

// BuildFormatList lists the declared tiers in order, then merges every
// preferred-codec video stream into the tier with the same id or appends it.
func BuildFormatList(set media.MediaSet) []FormatEntry {
	list := make([]FormatEntry, 0, len(set.SupportFormats)+len(set.Video))
	for _, t := range set.SupportFormats {
		list = append(list, FormatEntry{
			ID:             t.Quality,
			Format:         t.Format,
			NewDescription: t.NewDescription,
			DisplayDesc:    t.DisplayDesc,
		})
	}

	for _, s := range set.Video {
		if !strings.HasPrefix(media.SanitizeCodec(s.Codecs), PreferredVideoCodec) {
			continue
		}
		i := indexOf(list, s.ID)
		if i < 0 {
			list = append(list, FormatEntry{})
			i = len(list) - 1
		}
		list[i].mergeStream(s)
	}
	return list
}

func indexOf(list []FormatEntry, id int) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// mergeStream overwrites e with every field s carries.
func (e *FormatEntry) mergeStream(s media.StreamDescriptor) {
	e.ID = s.ID
	e.BaseURL = s.BaseURL
	e.BackupURLs = s.BackupURLs
	e.Bandwidth = s.Bandwidth
	if v := media.SanitizeMime(s.MimeType); v != "" {
		e.MimeType = v
	}
	if v := media.SanitizeCodec(s.Codecs); v != "" {
		e.Codecs = v
	}
	if s.Width != 0 {
		e.Width = s.Width
	}
	if s.Height != 0 {
		e.Height = s.Height
	}
	if s.FrameRate != "" {
		e.FrameRate = s.FrameRate
	}
	if s.SAR != "" {
		e.SAR = s.SAR
	}
	if s.StartWithSAP != nil {
		e.StartWithSAP = s.StartWithSAP
	}
	if s.AudioSamplingRate != nil {
		e.AudioSamplingRate = s.AudioSamplingRate
	}
	if s.Size != 0 {
		e.Size = s.Size
	}
	sb := s.SegmentBase
	e.SegmentBase = &sb
}
