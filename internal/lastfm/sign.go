package lastfm

import (
	"crypto/md5" //nolint:gosec // MD5 is mandated by the Last.fm signing scheme
	"encoding/hex"
	"sort"
	"strings"
)

// Param is one request parameter. Requests keep their parameters ordered
// so the encoded body is stable.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter list.
type Params []Param

// Add appends a parameter.
func (p *Params) Add(key, value string) {
	*p = append(*p, Param{Key: key, Value: value})
}

// Get returns the value of the first parameter named key.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// unsigned parameters never take part in the signature.
var unsigned = map[string]bool{"format": true, "callback": true, "api_sig": true}

// SignatureBase returns the string that is hashed to sign params: every
// signed key and value concatenated in byte-wise key order, followed by
// the shared secret.
func SignatureBase(params Params, secret string) string {
	sorted := make(Params, 0, len(params))
	for _, kv := range params {
		if !unsigned[kv.Key] {
			sorted = append(sorted, kv)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var b strings.Builder
	for _, kv := range sorted {
		b.WriteString(kv.Key)
		b.WriteString(kv.Value)
	}
	b.WriteString(secret)
	return b.String()
}

// Sign returns the api_sig for params.
func Sign(params Params, secret string) string {
	sum := md5.Sum([]byte(SignatureBase(params, secret))) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// EncodeForm builds an application/x-www-form-urlencoded body, keys as-is
// and values escaped with PercentEncode.
func EncodeForm(params Params) string {
	var b strings.Builder
	for i, kv := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(PercentEncode(kv.Value))
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

// PercentEncode escapes s for a form body. It keeps the characters allowed
// in a URL query except '&', '+' and '=', which would otherwise split or
// alter the value.
func PercentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if queryAllowed(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func queryAllowed(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '_', '~', '!', '$', '\'', '(', ')', '*', ',', ';', ':', '@', '/', '?':
		return true
	}
	return false
}
