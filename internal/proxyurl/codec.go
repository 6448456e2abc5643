// Package proxyurl rewrites upstream media URLs into same-origin proxy URLs
// and back.
package proxyurl

import (
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"
)

// StreamPath is appended to the proxy base to form the passthrough endpoint.
const StreamPath = "/stream"

var ErrNotProxyURL = errors.New("not a proxy stream url")

// encodeURIComponent leaves these unescaped; url.QueryEscape does not.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeComponent percent-encodes s with the same reserved set as
// ECMAScript encodeURIComponent: only A-Z a-z 0-9 - _ . ! ~ * ' ( ) survive.
func EncodeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}

// DecodeComponent reverses EncodeComponent. It fails on malformed escapes and
// on escapes that decode to invalid UTF-8.
func DecodeComponent(s string) (string, error) {
	out, err := url.PathUnescape(s)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(out) {
		return "", errors.New("invalid utf-8 after unescape")
	}
	return out, nil
}

// EncodeOnce encodes raw unless it already looks encoded, that is unless
// decoding it changes it. A value that fails to decode is encoded.
func EncodeOnce(raw string) string {
	if decoded, err := DecodeComponent(raw); err == nil && decoded != raw {
		return raw
	}
	return EncodeComponent(raw)
}

// Wrap builds {proxyBase}/stream?url={rawURL}&id={id}, encoding rawURL at most once.
func Wrap(rawURL, proxyBase, id string) string {
	return strings.TrimRight(proxyBase, "/") + StreamPath +
		"?url=" + EncodeOnce(rawURL) +
		"&id=" + EncodeComponent(id)
}

// UnwrapQuery extracts the target URL and identifier from the raw query of a
// proxy URL. The url value is everything between "url=" and the final "&id="
// and may itself contain '&'. The id value ends at the next '&', so parameters
// appended after it by a player are ignored. The url value is decoded exactly once.
func UnwrapQuery(rawQuery string) (target, id string, err error) {
	rest, ok := strings.CutPrefix(rawQuery, "url=")
	if !ok {
		return "", "", ErrNotProxyURL
	}
	i := strings.LastIndex(rest, "&id=")
	if i < 0 {
		return "", "", ErrNotProxyURL
	}
	encURL, encID := rest[:i], rest[i+len("&id="):]
	encID, _, _ = strings.Cut(encID, "&")

	if target, err = DecodeComponent(encURL); err != nil {
		target = encURL
	}
	if id, err = DecodeComponent(encID); err != nil {
		id = encID
	}
	if target == "" {
		return "", "", ErrNotProxyURL
	}
	return target, id, nil
}

// Unwrap is UnwrapQuery applied to a full proxy URL.
func Unwrap(proxyURL string) (target, id string, err error) {
	_, rawQuery, ok := strings.Cut(proxyURL, "?")
	if !ok {
		return "", "", ErrNotProxyURL
	}
	return UnwrapQuery(rawQuery)
}
