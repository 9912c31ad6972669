package console

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLocaleCharset(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unset", nil, ""},
		{"lang", map[string]string{"LANG": "en_US.UTF-8"}, "UTF-8"},
		{"modifier", map[string]string{"LANG": "de_DE.ISO-8859-15@euro"}, "ISO-8859-15"},
		{"lc_ctype wins", map[string]string{"LANG": "en_US.UTF-8", "LC_CTYPE": "ru_RU.KOI8-R"}, "KOI8-R"},
		{"lc_all wins", map[string]string{"LC_ALL": "C", "LC_CTYPE": "ru_RU.KOI8-R"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, LocaleCharset(env(tt.env)))
		})
	}
}

func TestEncodingFor(t *testing.T) {
	for _, name := range []string{"", "UTF-8", "utf8"} {
		enc, err := EncodingFor(name)
		require.NoError(t, err)
		require.Equal(t, unicode.UTF8, enc)
	}

	enc, err := EncodingFor("ISO-8859-1")
	require.NoError(t, err)
	b, err := enc.NewEncoder().Bytes([]byte("é"))
	require.NoError(t, err)
	require.Equal(t, []byte{0xe9}, b)

	// WHATWG alias, not an IANA name
	enc, err = EncodingFor("cp1251")
	require.NoError(t, err)
	b, err = enc.NewEncoder().Bytes([]byte("Ж"))
	require.NoError(t, err)
	require.Equal(t, []byte{0xc6}, b)

	_, err = EncodingFor("no-such-charset")
	require.Error(t, err)
}
