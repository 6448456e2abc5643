package media

import (
	"encoding/json"
	"testing"
)

func TestSanitizeCodec(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"avc1.640028", "avc1.640028"},
		{"'avc1.640028'", "avc1.640028"},
		{`"mp4a.40.2"`, "mp4a.40.2"},
		{`\"hev1.1.6.L120.90\"`, "hev1.1.6.L120.90"},
		{` ' " `, ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeCodec(tt.in); got != tt.want {
			t.Errorf("SanitizeCodec(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := SanitizeMime(`'video/mp4'`); got != "video/mp4" {
		t.Errorf("SanitizeMime = %q", got)
	}
}

func TestStreamDescriptor_UnmarshalJSON_snake_case(t *testing.T) {
	body := `{
		"id": 80,
		"base_url": "https://upos.example.com/80.m4s",
		"backup_url": ["https://bak.example.com/80.m4s"],
		"bandwidth": 1200,
		"mime_type": "video/mp4",
		"codecs": "avc1.640032",
		"width": 1920,
		"height": 1080,
		"frame_rate": "29.97",
		"sar": "1:1",
		"start_with_sap": 1,
		"segment_base": {"initialization": "0-999", "index_range": "1000-1500"}
	}`
	var s StreamDescriptor
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s.ID != 80 || s.BaseURL != "https://upos.example.com/80.m4s" || len(s.BackupURLs) != 1 {
		t.Errorf("unexpected descriptor: %+v", s)
	}
	if s.BandwidthValue() != 1200 || s.StartWithSAP == nil || *s.StartWithSAP != 1 {
		t.Errorf("unexpected bandwidth/sap: %+v", s)
	}
	if s.SegmentBase.Initialization != "0-999" || s.SegmentBase.IndexRange != "1000-1500" {
		t.Errorf("unexpected segment base: %+v", s.SegmentBase)
	}
}

func TestStreamDescriptor_UnmarshalJSON_camel_case(t *testing.T) {
	body := `{
		"id": 30280,
		"baseUrl": "https://upos.example.com/a.m4s",
		"backupUrl": ["https://bak.example.com/a.m4s"],
		"mimeType": "audio/mp4",
		"codecs": "mp4a.40.2",
		"startWithSap": 0,
		"SegmentBase": {"Initialization": "0-900", "indexRange": "901-1200"}
	}`
	var s StreamDescriptor
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s.BaseURL != "https://upos.example.com/a.m4s" || s.MimeType != "audio/mp4" {
		t.Errorf("camelCase fields not repaired: %+v", s)
	}
	if len(s.BackupURLs) != 1 || s.BackupURLs[0] != "https://bak.example.com/a.m4s" {
		t.Errorf("backupUrl not repaired: %v", s.BackupURLs)
	}
	if s.StartWithSAP == nil || *s.StartWithSAP != 0 {
		t.Errorf("startWithSap should be present and zero: %v", s.StartWithSAP)
	}
	if s.Bandwidth != nil {
		t.Errorf("bandwidth should be absent, got %d", *s.Bandwidth)
	}
	if s.SegmentBase.Initialization != "0-900" || s.SegmentBase.IndexRange != "901-1200" {
		t.Errorf("SegmentBase not repaired: %+v", s.SegmentBase)
	}
}
