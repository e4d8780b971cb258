// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"
	certificatesv1 "k8s.io/api/certificates/v1"

	"go.k8suser.dev/internal/certauthority"
)

const testKeySize = 2048

func TestGenerateKeyAndBuildCSR(t *testing.T) {
	key, err := GenerateKey(testKeySize)
	require.NoError(t, err)
	require.True(t, key.Created)

	csr, err := BuildCSR(key, "alice", []Attribute{{Type: "O", Value: "devs"}, {Type: "GN", Value: "Alice"}}, []string{"alice.example.com"})
	require.NoError(t, err)
	require.True(t, csr.Created)

	// the request must be bound to the key that signed it
	keyPublic, ok := key.Public().(*rsa.PublicKey)
	require.True(t, ok)
	csrPublic, ok := csr.PublicKey().(*rsa.PublicKey)
	require.True(t, ok)
	require.Equal(t, 0, keyPublic.N.Cmp(csrPublic.N))
	require.True(t, csr.MatchesKey(key))

	otherKey, err := GenerateKey(testKeySize)
	require.NoError(t, err)
	require.False(t, csr.MatchesKey(otherKey))

	require.Contains(t, csr.Subject(), "CN=alice")
	require.Contains(t, csr.Subject(), "O=devs")
	require.Contains(t, csr.Subject(), "2.5.4.42=#")
	require.Equal(t, []string{"alice.example.com"}, csr.DNSNames())

	decoded, err := base64.StdEncoding.DecodeString(csr.Base64())
	require.NoError(t, err)
	require.Equal(t, csr.PEM(), decoded)
}

func TestKeyPEMRoundTrip(t *testing.T) {
	key, err := GenerateKey(testKeySize)
	require.NoError(t, err)

	keyPEM, err := key.PEM()
	require.NoError(t, err)
	block, _ := pem.Decode(keyPEM)
	require.NotNil(t, block)
	require.Equal(t, "RSA PRIVATE KEY", block.Type)

	path := filepath.Join(t.TempDir(), "alice.key.pem")
	require.NoError(t, os.WriteFile(path, keyPEM, 0o600))

	loaded, err := LoadKeyFile(path, nil)
	require.NoError(t, err)
	require.False(t, loaded.Created)
	require.True(t, key.Public().(*rsa.PublicKey).Equal(loaded.Public()))

	b64, err := loaded.Base64()
	require.NoError(t, err)
	require.Equal(t, base64.StdEncoding.EncodeToString(keyPEM), b64)
}

func TestLoadEncryptedKey(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, testKeySize)
	require.NoError(t, err)

	//nolint:staticcheck // legacy PEM encryption is what openssl produces for "-aes256" traditional keys
	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(privateKey), []byte("hunter2"), x509.PEMCipherAES256)
	require.NoError(t, err)
	encrypted := pem.EncodeToMemory(block)

	key, err := LoadKey(encrypted, []byte("hunter2"))
	require.NoError(t, err)
	require.True(t, privateKey.PublicKey.Equal(key.Public()))

	_, err = LoadKey(encrypted, []byte("wrong"))
	require.Error(t, err)

	_, err = LoadKey(encrypted, nil)
	require.Error(t, err)
}

func TestLoadEncryptedPKCS8Key(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, testKeySize)
	require.NoError(t, err)

	der, err := pkcs8.MarshalPrivateKey(privateKey, []byte("s3cret"), nil)
	require.NoError(t, err)
	encrypted := pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der})

	tests := []struct {
		name     string
		password []byte
		wantErr  string
	}{
		{
			name:     "right password",
			password: []byte("s3cret"),
		},
		{
			name:     "wrong password",
			password: []byte("wrong"),
			wantErr:  "could not parse private key",
		},
		{
			name:    "no password",
			wantErr: "private key is encrypted but no password was given",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := LoadKey(encrypted, tt.password)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				require.Nil(t, key)
				return
			}
			require.NoError(t, err)
			require.False(t, key.Created)
			require.True(t, privateKey.PublicKey.Equal(key.Public()))
		})
	}
}

func TestLoadKeyInvalid(t *testing.T) {
	_, err := LoadKey([]byte("not a key"), nil)
	require.ErrorContains(t, err, "could not parse private key")

	_, err = LoadKeyFile(filepath.Join(t.TempDir(), "missing.pem"), nil)
	require.ErrorContains(t, err, "could not read private key file")
}

func TestLoadCSR(t *testing.T) {
	key, err := GenerateKey(testKeySize)
	require.NoError(t, err)
	built, err := BuildCSR(key, "bob", nil, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "bob.csr.pem")
	require.NoError(t, os.WriteFile(path, built.PEM(), 0o600))

	loaded, err := LoadCSRFile(path)
	require.NoError(t, err)
	require.False(t, loaded.Created)
	require.Equal(t, built.PEM(), loaded.PEM())
	require.Equal(t, "CN=bob", loaded.Subject())

	_, err = LoadCSR([]byte("garbage"))
	require.True(t, errors.Is(err, errNoCSR))
}

func TestSubject(t *testing.T) {
	tests := []struct {
		name    string
		cn      string
		extra   []Attribute
		want    string
		wantErr string
	}{
		{
			name: "common name only",
			cn:   "alice",
			want: "CN=alice",
		},
		{
			name:  "organization and locality",
			cn:    "alice",
			extra: []Attribute{{Type: "O", Value: "system:masters"}, {Type: "L", Value: "Berlin"}, {Type: "C", Value: "DE"}},
			want:  "CN=alice,O=system:masters,L=Berlin,C=DE",
		},
		{
			name:    "unknown attribute",
			cn:      "alice",
			extra:   []Attribute{{Type: "ZZ", Value: "x"}},
			wantErr: `unknown subject attribute "ZZ"`,
		},
		{
			name:    "missing common name",
			wantErr: "common name must not be empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Subject(tt.cn, tt.extra)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseAttribute(t *testing.T) {
	attr, err := ParseAttribute("ou=platform")
	require.NoError(t, err)
	require.Equal(t, Attribute{Type: "OU", Value: "platform"}, attr)

	_, err = ParseAttribute("novalue=")
	require.EqualError(t, err, `subject attribute "novalue=" must have the form TYPE=VALUE`)
}

func TestParseCertificate(t *testing.T) {
	ca, err := certauthority.New("cluster-ca", time.Hour)
	require.NoError(t, err)
	key, err := GenerateKey(testKeySize)
	require.NoError(t, err)
	csr, err := BuildCSR(key, "alice", nil, nil)
	require.NoError(t, err)
	certPEM, err := ca.SignCSR(csr.PEM(), []certificatesv1.KeyUsage{certificatesv1.UsageClientAuth}, time.Hour)
	require.NoError(t, err)

	fromPEM, err := ParseCertificate(certPEM)
	require.NoError(t, err)
	require.Equal(t, "CN=alice", fromPEM.SubjectDN())
	require.Equal(t, certPEM, fromPEM.PEM())
	require.Equal(t, base64.StdEncoding.EncodeToString(certPEM), fromPEM.Base64())

	fromDER, err := ParseCertificate(fromPEM.X509().Raw)
	require.NoError(t, err)
	require.Equal(t, fromPEM.PEM(), fromDER.PEM())

	_, err = ParseCertificate(nil)
	require.True(t, errors.Is(err, errNoCertificate))
	_, err = ParseCertificate([]byte("garbage"))
	require.ErrorContains(t, err, "could not parse certificate")
}
