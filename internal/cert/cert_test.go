package cert

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paths(dir string) Paths {
	return Paths{
		CACert:     filepath.Join(dir, "ca", "ca.crt"),
		CAKey:      filepath.Join(dir, "ca", "ca.key"),
		ServerCert: filepath.Join(dir, "server.crt"),
		ServerKey:  filepath.Join(dir, "server.key"),
	}
}

func TestEnsureGeneratesVerifiableChain(t *testing.T) {
	p := paths(t.TempDir())
	require.NoError(t, Ensure(p, []string{"netboot.local"}, nil))

	pair, err := tls.LoadX509KeyPair(p.ServerCert, p.ServerKey)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)

	caPEM, err := os.ReadFile(p.CACert)
	require.NoError(t, err)
	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(caPEM))

	_, err = leaf.Verify(x509.VerifyOptions{DNSName: "netboot.local", Roots: pool})
	assert.NoError(t, err)

	info, err := os.Stat(p.ServerKey)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnsureKeepsExistingFiles(t *testing.T) {
	p := paths(t.TempDir())
	require.NoError(t, Ensure(p, nil, nil))
	before, err := os.ReadFile(p.ServerCert)
	require.NoError(t, err)

	require.NoError(t, Ensure(p, nil, nil))
	after, err := os.ReadFile(p.ServerCert)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEnsureReissuesServerFromExistingCA(t *testing.T) {
	p := paths(t.TempDir())
	require.NoError(t, Ensure(p, nil, nil))
	ca, err := os.ReadFile(p.CACert)
	require.NoError(t, err)

	require.NoError(t, os.Remove(p.ServerCert))
	require.NoError(t, Ensure(p, []string{"boot.internal"}, nil))

	again, err := os.ReadFile(p.CACert)
	require.NoError(t, err)
	assert.Equal(t, ca, again)

	pair, err := tls.LoadX509KeyPair(p.ServerCert, p.ServerKey)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"boot.internal"}, leaf.DNSNames)
}
