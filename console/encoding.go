package console

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// LocaleCharset returns the charset part of the first of LC_ALL, LC_CTYPE
// and LANG that is set, or "" when that locale names none (e.g. "C").
func LocaleCharset(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, k := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		v := getenv(k)
		if v == "" {
			continue
		}
		// language[_territory][.charset][@modifier]
		if i := strings.IndexByte(v, '@'); i >= 0 {
			v = v[:i]
		}
		if i := strings.IndexByte(v, '.'); i >= 0 {
			return v[i+1:]
		}
		return ""
	}
	return ""
}

// EncodingFor resolves a charset name. An empty name and every spelling of
// UTF-8 resolve to UTF-8.
func EncodingFor(charset string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(charset, "-", "")) {
	case "", "utf8":
		return unicode.UTF8, nil
	}
	if enc, err := ianaindex.IANA.Encoding(charset); err == nil && enc != nil {
		return enc, nil
	}
	if enc, err := htmlindex.Get(charset); err == nil {
		return enc, nil
	}
	return nil, fmt.Errorf("unsupported charset %q", charset)
}

// LocaleEncoding is the encoding of the user's locale, the system code page
// of a Linux terminal.
func LocaleEncoding() (encoding.Encoding, error) {
	return EncodingFor(LocaleCharset(os.Getenv))
}
