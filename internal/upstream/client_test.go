package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu    sync.Mutex
	steps []string
	errs  []error
}

func (o *recordingObserver) ObserveUpstream(step string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, step)
	o.errs = append(o.errs, err)
}

func TestClient_GetEnvelope(t *testing.T) {
	var gotCookie, gotReferer, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotReferer = r.Header.Get("Referer")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"code":0,"message":"0","ttl":1,"data":{"cid":42}}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := New(srv.URL+"/", WithObserver(obs))
	env, err := c.GetEnvelope(context.Background(), "view", "/x/web-interface/view", url.Values{"bvid": {"BV1xx"}}, "secret")
	if err != nil {
		t.Fatalf("GetEnvelope: %v", err)
	}
	if err := CheckCode("view", env); err != nil {
		t.Fatalf("CheckCode: %v", err)
	}
	var data struct {
		CID int64 `json:"cid"`
	}
	if err := env.Decode(&data); err != nil || data.CID != 42 {
		t.Fatalf("Decode: cid=%d err=%v", data.CID, err)
	}
	if gotCookie != "SESSDATA=secret" {
		t.Errorf("cookie = %q", gotCookie)
	}
	if gotReferer != DefaultReferer {
		t.Errorf("referer = %q", gotReferer)
	}
	if gotQuery != "bvid=BV1xx" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(obs.steps) != 1 || obs.steps[0] != "view" || obs.errs[0] != nil {
		t.Errorf("observer got steps=%v errs=%v", obs.steps, obs.errs)
	}
}

func TestClient_GetEnvelope_no_credential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "" {
			t.Errorf("unexpected cookie %q", r.Header.Get("Cookie"))
		}
		w.Write([]byte(`{"code":0,"data":null}`))
	}))
	defer srv.Close()

	env, err := New(srv.URL).GetEnvelope(context.Background(), "nav", "/nav", nil, "")
	if err != nil {
		t.Fatalf("GetEnvelope: %v", err)
	}
	var v struct{ A int }
	if err := env.Decode(&v); err != nil {
		t.Errorf("Decode(null) should be a no-op: %v", err)
	}
}

func TestClient_GetEnvelope_http_status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetEnvelope(context.Background(), "playurl", "/p", nil, "")
	var upErr *Error
	if !errors.As(err, &upErr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if upErr.Step != "playurl" || upErr.StatusCode != http.StatusBadGateway || upErr.Timeout() {
		t.Errorf("unexpected error: %+v", upErr)
	}
}

func TestClient_GetEnvelope_timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, WithTimeout(30*time.Millisecond)).GetEnvelope(context.Background(), "nav", "/nav", nil, "")
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
	var upErr *Error
	if !errors.As(err, &upErr) || !upErr.Timeout() || upErr.Step != "nav" {
		t.Errorf("unexpected error: %+v", err)
	}
}

func TestClient_GetEnvelope_bad_json(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetEnvelope(context.Background(), "view", "/v", nil, "")
	var upErr *Error
	if !errors.As(err, &upErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
}

func TestCheckCode(t *testing.T) {
	err := CheckCode("playurl", &Envelope{Code: -404, Message: "not found"})
	var upErr *Error
	if !errors.As(err, &upErr) || upErr.Code != -404 || upErr.Message != "not found" {
		t.Fatalf("unexpected: %v", err)
	}
	if CheckCode("playurl", &Envelope{}) != nil {
		t.Error("code 0 should pass")
	}
}

func TestClient_OpenStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=0-9" {
			t.Errorf("range = %q", r.Header.Get("Range"))
		}
		if r.Header.Get("Cookie") != "" {
			t.Errorf("stream requests must not carry credentials")
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	h := http.Header{}
	h.Set("Range", "bytes=0-9")
	resp, err := New(srv.URL, WithTimeout(time.Second)).OpenStream(context.Background(), srv.URL+"/seg.m4s", h)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusPartialContent || string(body) != "0123456789" {
		t.Errorf("status=%d body=%q", resp.StatusCode, body)
	}
}

func TestClient_OpenStream_header_timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, WithTimeout(30*time.Millisecond)).OpenStream(context.Background(), srv.URL, nil)
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
}
