package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var signatureRe = regexp.MustCompile(`(signature=)[0-9a-fA-F]+`)

// Canonical: ключи по алфавиту, значения percent-encoded (пробел как %20).
func Canonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.ReplaceAll(url.QueryEscape(params[k]), "+", "%20"))
	}
	return b.String()
}

func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignQuery добавляет timestamp и recvWindow (если их нет), подписывает
// канонизированную строку и дописывает &signature=<hex>.
func (c *Client) SignQuery(params map[string]string) string {
	p := make(map[string]string, len(params)+2)
	for k, v := range params {
		p[k] = v
	}
	if _, ok := p["timestamp"]; !ok {
		p["timestamp"] = strconv.FormatInt(c.now().UnixMilli(), 10)
	}
	if _, ok := p["recvWindow"]; !ok {
		p["recvWindow"] = strconv.FormatInt(c.recvWindow.Milliseconds(), 10)
	}

	query := Canonical(p)
	return query + "&signature=" + Sign(c.secret, query)
}

// RedactSignature вырезает значение подписи перед логированием.
func RedactSignature(s string) string {
	return signatureRe.ReplaceAllString(s, "${1}<redacted>")
}
