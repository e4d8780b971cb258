// Copyright 2020-2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package certauthority implements a small x509 certificate authority which signs
// PKCS#10 certificate signing requests the same way the Kubernetes controller manager's
// kube-apiserver-client signer does.  It stands in for a cluster signer in tests.
package certauthority

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"time"

	certificatesv1 "k8s.io/api/certificates/v1"

	"go.k8suser.dev/internal/constable"
)

// certBackdate is the amount of time before time.Now() that will be used to set
// a certificate's NotBefore field.  We use the same hard coded and unconfigurable
// backdate value as used by the Kubernetes controller manager certificate signer.
const certBackdate = 5 * time.Minute

// ErrInvalidRequest is returned when a certificate signing request cannot be decoded or verified.
const ErrInvalidRequest = constable.Error("invalid certificate signing request")

type env struct {
	// secure random number generators for various steps (usually crypto/rand.Reader, but broken out here for tests).
	serialRNG  io.Reader
	keygenRNG  io.Reader
	signingRNG io.Reader

	// clock tells the current time (usually time.Now(), but broken out here for tests).
	clock func() time.Time
}

// CA holds the state for a simple x509 certificate authority.
type CA struct {
	// caCert is the parsed self-signed certificate for this CA.
	caCert *x509.Certificate

	// signer is the private key for this CA.
	signer crypto.Signer

	// env is our reference to the outside world (clocks and random number generation).
	env env
}

// secureEnv is the "real" environment using secure RNGs and the real system clock.
func secureEnv() env {
	return env{
		serialRNG:  rand.Reader,
		keygenRNG:  rand.Reader,
		signingRNG: rand.Reader,
		clock:      time.Now,
	}
}

// New generates a fresh certificate authority with the given Common Name and TTL.
func New(commonName string, ttl time.Duration) (*CA, error) {
	return newInternal(commonName, ttl, secureEnv())
}

func newInternal(commonName string, ttl time.Duration, env env) (*CA, error) {
	serialNumber, err := randomSerial(env.serialRNG)
	if err != nil {
		return nil, fmt.Errorf("could not generate CA serial: %w", err)
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), env.keygenRNG)
	if err != nil {
		return nil, fmt.Errorf("could not generate CA private key: %w", err)
	}

	now := env.clock()
	caTemplate := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-certBackdate),
		NotAfter:              now.Add(ttl),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}

	caCertBytes, err := x509.CreateCertificate(env.signingRNG, &caTemplate, &caTemplate, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, fmt.Errorf("could not issue CA certificate: %w", err)
	}
	caCert, err := x509.ParseCertificate(caCertBytes)
	if err != nil {
		return nil, fmt.Errorf("could not parse CA certificate: %w", err)
	}

	return &CA{caCert: caCert, signer: privateKey, env: env}, nil
}

// Bundle returns the CA certificate in PEM format, suitable for certificate-authority-data.
func (c *CA) Bundle() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.caCert.Raw})
}

// Pool returns the CA certificate as a *x509.CertPool.
func (c *CA) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(c.caCert)
	return pool
}

// SignCSR issues a certificate for the PEM encoded request.  The subject and DNS names are copied
// from the request, the usages are translated from their Kubernetes names.
func (c *CA) SignCSR(csrPEM []byte, usages []certificatesv1.KeyUsage, ttl time.Duration) ([]byte, error) {
	block, _ := pem.Decode(csrPEM)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return nil, fmt.Errorf("%w: no PEM block of type CERTIFICATE REQUEST", ErrInvalidRequest)
	}
	request, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}
	if err := request.CheckSignature(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	serialNumber, err := randomSerial(c.env.serialRNG)
	if err != nil {
		return nil, fmt.Errorf("could not generate serial number for certificate: %w", err)
	}

	keyUsage, extKeyUsage := translateUsages(usages)
	now := c.env.clock()
	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               request.Subject,
		NotBefore:             now.Add(-certBackdate),
		NotAfter:              now.Add(ttl),
		KeyUsage:              keyUsage,
		ExtKeyUsage:           extKeyUsage,
		BasicConstraintsValid: true,
		IsCA:                  false,
		DNSNames:              request.DNSNames,
	}
	certBytes, err := x509.CreateCertificate(c.env.signingRNG, &template, c.caCert, request.PublicKey, c.signer)
	if err != nil {
		return nil, fmt.Errorf("could not sign certificate: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certBytes}), nil
}

func translateUsages(usages []certificatesv1.KeyUsage) (x509.KeyUsage, []x509.ExtKeyUsage) {
	var (
		keyUsage    x509.KeyUsage
		extKeyUsage []x509.ExtKeyUsage
	)
	for _, usage := range usages {
		switch usage {
		case certificatesv1.UsageDigitalSignature:
			keyUsage |= x509.KeyUsageDigitalSignature
		case certificatesv1.UsageKeyEncipherment:
			keyUsage |= x509.KeyUsageKeyEncipherment
		case certificatesv1.UsageClientAuth:
			extKeyUsage = append(extKeyUsage, x509.ExtKeyUsageClientAuth)
		case certificatesv1.UsageServerAuth:
			extKeyUsage = append(extKeyUsage, x509.ExtKeyUsageServerAuth)
		}
	}
	if keyUsage == 0 {
		keyUsage = x509.KeyUsageDigitalSignature
	}
	return keyUsage, extKeyUsage
}

// randomSerial generates a random 128-bit serial number.
func randomSerial(rng io.Reader) (*big.Int, error) {
	return rand.Int(rng, new(big.Int).Lsh(big.NewInt(1), 128))
}
