package tls

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientAuthType(t *testing.T) {
	tests := []struct {
		in      string
		want    tls.ClientAuthType
		wantErr bool
	}{
		{"", tls.NoClientCert, false},
		{"none", tls.NoClientCert, false},
		{"request", tls.RequestClientCert, false},
		{"require", tls.RequireAndVerifyClientCert, false},
		{"mutual", tls.NoClientCert, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClientAuthType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServerCredentialsDisabled(t *testing.T) {
	creds, err := Config{}.ServerCredentials()
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestServerCredentialsMissingFiles(t *testing.T) {
	_, err := Config{Enabled: true, CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}.ServerCredentials()
	assert.ErrorContains(t, err, "failed to load server certificate")
}
