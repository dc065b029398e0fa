// Package fingerprint identifies semantically identical analysis requests.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type Params struct {
	AccountID string
	Text      string
	Images    []string
	Mode      string
	Model     string
	Deep      bool
	Explain   bool
}

// Normalize lowercases, strips punctuation and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsControl(r):
			// dropped
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Compute returns the hex SHA-256 of the request identity. Image references are
// part of the identity verbatim (they are opaque handles, not prose). Every part
// is length-prefixed, so no field content can shift a boundary.
func Compute(p Params) string {
	h := sha256.New()
	write := func(part string) {
		fmt.Fprintf(h, "%d:%s", len(part), part)
	}

	write("v2")
	write(p.AccountID)
	write(Normalize(p.Text))
	write(strconv.Itoa(len(p.Images)))
	for _, img := range p.Images {
		write(img)
	}
	write(p.Mode)
	write(p.Model)
	write("deep=" + strconv.FormatBool(p.Deep))
	write("explain=" + strconv.FormatBool(p.Explain))
	return hex.EncodeToString(h.Sum(nil))
}
