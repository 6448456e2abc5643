// Package wbi reproduces the platform's WBI request signing: two rotating keys
// are fetched from the nav endpoint, mixed through a fixed permutation, and
// used to salt an MD5 over the canonical query string.
package wbi

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"dash-proxy/internal/proxyurl"
)

// mixinKeyEncTab is dictated by the remote validator and must not change.
var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35, 27, 43, 5, 49,
	33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13, 37, 48, 7, 16, 24, 55, 40,
	61, 26, 17, 0, 1, 60, 51, 30, 4, 22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11,
	36, 20, 34, 44, 52,
}

const mixinKeyLen = 32

// KeyPair holds the two rotating keys published by the nav endpoint.
type KeyPair struct {
	ImgKey string
	SubKey string
}

// MixingKey derives the 32-character salt for this pair.
func (k KeyPair) MixingKey() string {
	return DeriveMixingKey(k.ImgKey, k.SubKey)
}

// DeriveMixingKey picks characters of imgKey+subKey in table order and keeps
// the first 32. Positions past the end of the concatenation contribute nothing.
func DeriveMixingKey(imgKey, subKey string) string {
	orig := imgKey + subKey
	var b strings.Builder
	b.Grow(mixinKeyLen)
	for _, pos := range mixinKeyEncTab {
		if pos < len(orig) {
			b.WriteByte(orig[pos])
		}
		if b.Len() == mixinKeyLen {
			break
		}
	}
	return b.String()
}

// Params is a set of scalar query parameters (string, bool, or numeric values).
type Params map[string]any

// Signature is the pair merged into the query of a signed request.
type Signature struct {
	WTS  int64  // Unix seconds used for signing
	WRID string // hex MD5 digest
}

// Signer signs parameter sets. Now defaults to time.Now.
type Signer struct {
	Now func() time.Time
}

// Sign computes the signature for params with keys, without modifying params.
func (s Signer) Sign(params Params, keys KeyPair) Signature {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	wts := now().Unix()

	withTS := make(Params, len(params)+1)
	for k, v := range params {
		withTS[k] = v
	}
	withTS["wts"] = wts

	query := CanonicalQuery(withTS)
	sum := md5.Sum([]byte(query + keys.MixingKey()))
	return Signature{WTS: wts, WRID: hex.EncodeToString(sum[:])}
}

// Signed returns a copy of params with wts and w_rid merged in.
func (s Signer) Signed(params Params, keys KeyPair) Params {
	sig := s.Sign(params, keys)
	out := make(Params, len(params)+2)
	for k, v := range params {
		out[k] = v
	}
	out["wts"] = sig.WTS
	out["w_rid"] = sig.WRID
	return out
}

// CanonicalQuery sorts keys by byte order, strips !()'* from every value, and
// percent-encodes both sides the way encodeURIComponent does.
func CanonicalQuery(params Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		v := valueFilter.Replace(Stringify(params[k]))
		pairs = append(pairs, proxyurl.EncodeComponent(k)+"="+proxyurl.EncodeComponent(v))
	}
	return strings.Join(pairs, "&")
}

var valueFilter = strings.NewReplacer("!", "", "(", "", ")", "", "'", "", "*", "")

// Stringify renders a scalar the way it appears in a query string.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
