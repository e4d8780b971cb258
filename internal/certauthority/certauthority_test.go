// Copyright 2020-2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package certauthority

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	certificatesv1 "k8s.io/api/certificates/v1"
	certutil "k8s.io/client-go/util/cert"
)

func TestNew(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	env := secureEnv()
	env.clock = func() time.Time { return now }

	ca, err := newInternal("cluster-ca", time.Hour, env)
	require.NoError(t, err)

	certs, err := certutil.ParseCertsPEM(ca.Bundle())
	require.NoError(t, err)
	require.Len(t, certs, 1)
	require.True(t, certs[0].IsCA)
	require.Equal(t, "cluster-ca", certs[0].Subject.CommonName)
	require.Equal(t, now.Add(-certBackdate), certs[0].NotBefore)
	require.Equal(t, now.Add(time.Hour), certs[0].NotAfter)
}

func TestNewBrokenRNG(t *testing.T) {
	env := secureEnv()
	env.serialRNG = strings.NewReader("")
	_, err := newInternal("cluster-ca", time.Hour, env)
	require.EqualError(t, err, "could not generate CA serial: EOF")
}

func TestSignCSR(t *testing.T) {
	ca, err := New("cluster-ca", time.Hour)
	require.NoError(t, err)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	csrPEM, err := certutil.MakeCSR(key, &pkix.Name{CommonName: "alice", Organization: []string{"devs"}}, []string{"alice.example.com"}, nil)
	require.NoError(t, err)

	certPEM, err := ca.SignCSR(csrPEM, []certificatesv1.KeyUsage{certificatesv1.UsageClientAuth}, time.Hour)
	require.NoError(t, err)

	certs, err := certutil.ParseCertsPEM(certPEM)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	require.Equal(t, "alice", certs[0].Subject.CommonName)
	require.Equal(t, []string{"devs"}, certs[0].Subject.Organization)
	require.Equal(t, []string{"alice.example.com"}, certs[0].DNSNames)
	require.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, certs[0].ExtKeyUsage)

	_, err = certs[0].Verify(x509.VerifyOptions{
		Roots:     ca.Pool(),
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	require.NoError(t, err)
}

func TestSignCSRInvalid(t *testing.T) {
	ca, err := New("cluster-ca", time.Hour)
	require.NoError(t, err)

	_, err = ca.SignCSR([]byte("not pem"), nil, time.Hour)
	require.True(t, errors.Is(err, ErrInvalidRequest))

	certPEM := ca.Bundle()
	_, err = ca.SignCSR(certPEM, nil, time.Hour)
	require.True(t, errors.Is(err, ErrInvalidRequest))
}
