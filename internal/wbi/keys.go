package wbi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dash-proxy/internal/upstream"
)

// NavPath is the account navigation endpoint that publishes the keys.
const NavPath = "/x/web-interface/nav"

// ErrKeyFetch is returned when the nav response does not yield two usable keys.
var ErrKeyFetch = errors.New("wbi key fetch failed")

type navData struct {
	WbiImg *struct {
		ImgURL string `json:"img_url"`
		SubURL string `json:"sub_url"`
	} `json:"wbi_img"`
}

// KeyFetcher retrieves a fresh KeyPair on every call; keys are never cached.
type KeyFetcher struct {
	client *upstream.Client
}

// NewKeyFetcher returns a KeyFetcher that calls the nav endpoint through client.
func NewKeyFetcher(client *upstream.Client) *KeyFetcher {
	return &KeyFetcher{client: client}
}

// Fetch calls the nav endpoint with the optional credential. Anonymous callers
// get a non-zero code together with valid keys, so the code is ignored.
func (f *KeyFetcher) Fetch(ctx context.Context, credential string) (KeyPair, error) {
	env, err := f.client.GetEnvelope(ctx, "nav", NavPath, nil, credential)
	if err != nil {
		return KeyPair{}, err
	}
	var data navData
	if err := env.Decode(&data); err != nil {
		return KeyPair{}, fmt.Errorf("%w: decode nav data: %v", ErrKeyFetch, err)
	}
	if data.WbiImg == nil {
		return KeyPair{}, fmt.Errorf("%w: missing wbi_img in nav response", ErrKeyFetch)
	}
	keys := KeyPair{
		ImgKey: KeyFromURL(data.WbiImg.ImgURL),
		SubKey: KeyFromURL(data.WbiImg.SubURL),
	}
	if keys.ImgKey == "" || keys.SubKey == "" {
		return KeyPair{}, fmt.Errorf("%w: invalid keys in nav response", ErrKeyFetch)
	}
	return keys, nil
}

// KeyFromURL returns the file name stem before the first dot:
// "https://i0.hdslb.com/bfs/wbi/7cd0.png" yields "7cd0".
func KeyFromURL(raw string) string {
	name := raw[strings.LastIndex(raw, "/")+1:]
	stem, _, _ := strings.Cut(name, ".")
	return stem
}
