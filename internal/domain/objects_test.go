package domain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	tests := []struct {
		name   string
		fqdn   string
		ip     string
		want   Record
		errStr string
	}{
		{
			name: "subdomain",
			fqdn: "www.example.com",
			ip:   "10.0.0.5",
			want: Record{FQDN: "www.example.com", IP: "10.0.0.5", Domain: "example.com"},
		},
		{
			name: "trailing dot and case",
			fqdn: " WWW.Example.COM. ",
			ip:   " 10.0.0.5 ",
			want: Record{FQDN: "www.example.com", IP: "10.0.0.5", Domain: "example.com"},
		},
		{
			name: "apex",
			fqdn: "example.com",
			ip:   "192.0.2.1",
			want: Record{FQDN: "example.com", IP: "192.0.2.1", Domain: "example.com"},
		},
		{
			name: "deep name with hyphen",
			fqdn: "a-1.b.c.example.org",
			ip:   "2001:DB8::1",
			want: Record{FQDN: "a-1.b.c.example.org", IP: "2001:db8::1", Domain: "example.org"},
		},
		{
			name: "public suffix is not special-cased",
			fqdn: "www.example.co.uk",
			ip:   "10.1.1.1",
			want: Record{FQDN: "www.example.co.uk", IP: "10.1.1.1", Domain: "co.uk"},
		},
		{name: "single label", fqdn: "localhost", ip: "127.0.0.1", errStr: "at least two labels"},
		{name: "empty fqdn", fqdn: "", ip: "127.0.0.1", errStr: "fqdn is required"},
		{name: "empty ip", fqdn: "www.example.com", ip: "", errStr: "ip address is required"},
		{name: "leading hyphen", fqdn: "-www.example.com", ip: "10.0.0.1", errStr: "invalid fqdn format"},
		{name: "trailing hyphen", fqdn: "www-.example.com", ip: "10.0.0.1", errStr: "invalid fqdn format"},
		{name: "underscore", fqdn: "w_w.example.com", ip: "10.0.0.1", errStr: "invalid fqdn format"},
		{name: "empty label", fqdn: "www..example.com", ip: "10.0.0.1", errStr: "invalid fqdn format"},
		{name: "label too long", fqdn: string(make64('a')) + ".example.com", ip: "10.0.0.1", errStr: "invalid fqdn format"},
		{name: "bad ip", fqdn: "www.example.com", ip: "10.0.0.300", errStr: "invalid ip address format"},
		{name: "hostname as ip", fqdn: "www.example.com", ip: "example.com", errStr: "invalid ip address format"},
		{name: "scoped ipv6", fqdn: "www.example.com", ip: "fe80::1%eth0", errStr: "must not carry a zone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := NewRecord(tt.fqdn, tt.ip)
			if tt.errStr != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
				assert.Contains(t, err.Error(), tt.errStr)
				assert.Nil(t, record)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *record)
		})
	}
}

func TestRecordNormalizeLegacyEntry(t *testing.T) {
	record := &Record{FQDN: "api.example.com.", IP: "10.0.0.9"}

	require.NoError(t, record.Normalize())
	assert.Equal(t, "example.com", record.Domain)
	assert.Equal(t, "api.example.com", record.FQDN)
}

func TestRecordKey(t *testing.T) {
	a := &Record{FQDN: "WWW.example.com."}
	b := &Record{FQDN: "www.EXAMPLE.com"}

	assert.Equal(t, a.Key(), b.Key())
}

func TestExtractDomain(t *testing.T) {
	domain, err := ExtractDomain("host.other.org.")
	require.NoError(t, err)
	assert.Equal(t, "other.org", domain)

	_, err = ExtractDomain("org.")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func make64(c byte) []byte {
	b := make([]byte, 64)
	for i := range b {
		b[i] = c
	}
	return b
}
