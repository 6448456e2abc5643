// Package mpd builds DASH Media Presentation Descriptions from a resolved
// media set and serializes them to XML.
package mpd

import (
	"bytes"
	"time"

	m "github.com/Eyevinn/dash-mpd/mpd"
)

const (
	Namespace          = "urn:mpeg:dash:schema:mpd:2011"
	ProfileOnDemand    = "urn:mpeg:dash:profile:isoff-on-demand:2011"
	AudioChannelScheme = "urn:mpeg:dash:23003:3:audio_channel_configuration:2011"
	TypeStatic         = "static"
	ServiceLocBackup   = "backup"
)

// Document is the manifest tree. It is built once per request and never
// mutated after Build returns.
type Document = m.MPD

// Marshal renders doc with an XML declaration and two-space indent.
func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := doc.Write(&buf, "  ", true); err != nil {
		return nil, err
	}
	if b := buf.Bytes(); len(b) > 0 && b[len(b)-1] != '\n' {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Seconds converts a possibly fractional second count to an MPD duration.
func Seconds(v float64) *m.Duration {
	d := m.Duration(time.Duration(v * float64(time.Second)))
	return &d
}

func ptr[T any](v T) *T { return &v }
