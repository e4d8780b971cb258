// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pki generates and loads the private keys, certificate signing requests and
// certificates that make up a client certificate credential.  Nothing in this package
// performs network I/O.
package pki

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/ssh"
	certutil "k8s.io/client-go/util/cert"
	"k8s.io/client-go/util/keyutil"

	"go.k8suser.dev/internal/constable"
)

// DefaultKeySize is the RSA modulus size used when no size is requested.
const DefaultKeySize = 4096

const (
	errNotASigner       = constable.Error("private key cannot be used for signing")
	errNeedPassword     = constable.Error("private key is encrypted but no password was given")
	errNoCertificate    = constable.Error("no certificate found in data")
	errNoCSR            = constable.Error("no certificate request found in data")
	errEmptyCommonName  = constable.Error("common name must not be empty")
	errUnknownAttribute = constable.Error("unknown subject attribute")
)

//nolint:gochecknoglobals
var (
	oidSurname   = asn1.ObjectIdentifier{2, 5, 4, 4}
	oidTitle     = asn1.ObjectIdentifier{2, 5, 4, 12}
	oidGivenName = asn1.ObjectIdentifier{2, 5, 4, 42}
)

// Key is a private key which was either generated by this process or loaded from PEM.
type Key struct {
	signer crypto.Signer
	// Created is true when the key was generated rather than loaded.
	Created bool
}

// GenerateKey creates a new RSA private key of the given size.
func GenerateKey(bits int) (*Key, error) {
	if bits <= 0 {
		bits = DefaultKeySize
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("could not generate %d bit RSA key: %w", bits, err)
	}
	return &Key{signer: privateKey, Created: true}, nil
}

// LoadKey parses a PEM encoded private key.  When password is non-empty the PEM block
// is expected to be encrypted with it, either as an ENCRYPTED PRIVATE KEY (PKCS#8) block
// or as a legacy Proc-Type encrypted block.
func LoadKey(pemBytes, password []byte) (*Key, error) {
	var (
		parsed any
		err    error
	)
	block, _ := pem.Decode(pemBytes)
	switch {
	case block != nil && block.Type == "ENCRYPTED PRIVATE KEY":
		if len(password) == 0 {
			return nil, errNeedPassword
		}
		parsed, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, password)
	case len(password) == 0:
		parsed, err = keyutil.ParsePrivateKeyPEM(pemBytes)
	default:
		parsed, err = ssh.ParseRawPrivateKeyWithPassphrase(pemBytes, password)
	}
	if err != nil {
		return nil, fmt.Errorf("could not parse private key: %w", err)
	}

	signer, ok := parsed.(crypto.Signer)
	if !ok {
		return nil, errNotASigner
	}
	return &Key{signer: signer}, nil
}

// LoadKeyFile reads path and parses it with LoadKey.
func LoadKeyFile(path string, password []byte) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read private key file: %w", err)
	}
	return LoadKey(data, password)
}

func (k *Key) Signer() crypto.Signer {
	return k.signer
}

func (k *Key) Public() crypto.PublicKey {
	return k.signer.Public()
}

// PEM returns the unencrypted key.  RSA keys use the PKCS#1 "RSA PRIVATE KEY" block.
func (k *Key) PEM() ([]byte, error) {
	return keyutil.MarshalPrivateKeyToPEM(k.signer)
}

func (k *Key) Base64() (string, error) {
	pemBytes, err := k.PEM()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(pemBytes), nil
}

// Attribute is one extra distinguished name attribute, e.g. O=system:masters.
type Attribute struct {
	Type  string
	Value string
}

// ParseAttribute parses a TYPE=VALUE pair.
func ParseAttribute(s string) (Attribute, error) {
	attrType, value, ok := strings.Cut(s, "=")
	if !ok || attrType == "" || value == "" {
		return Attribute{}, fmt.Errorf("subject attribute %q must have the form TYPE=VALUE", s)
	}
	return Attribute{Type: strings.ToUpper(strings.TrimSpace(attrType)), Value: value}, nil
}

// Subject builds the distinguished name for commonName plus extra attributes.  Supported
// attribute types are O, OU, CN, C, S, L, SN, GN and T.
func Subject(commonName string, extra []Attribute) (*pkix.Name, error) {
	if commonName == "" {
		return nil, errEmptyCommonName
	}
	name := &pkix.Name{CommonName: commonName}
	for _, attr := range extra {
		switch attr.Type {
		case "O":
			name.Organization = append(name.Organization, attr.Value)
		case "OU":
			name.OrganizationalUnit = append(name.OrganizationalUnit, attr.Value)
		case "CN":
			name.ExtraNames = append(name.ExtraNames, pkix.AttributeTypeAndValue{Type: asn1.ObjectIdentifier{2, 5, 4, 3}, Value: attr.Value})
		case "C":
			name.Country = append(name.Country, attr.Value)
		case "S":
			name.Province = append(name.Province, attr.Value)
		case "L":
			name.Locality = append(name.Locality, attr.Value)
		case "SN":
			name.ExtraNames = append(name.ExtraNames, pkix.AttributeTypeAndValue{Type: oidSurname, Value: attr.Value})
		case "GN":
			name.ExtraNames = append(name.ExtraNames, pkix.AttributeTypeAndValue{Type: oidGivenName, Value: attr.Value})
		case "T":
			name.ExtraNames = append(name.ExtraNames, pkix.AttributeTypeAndValue{Type: oidTitle, Value: attr.Value})
		default:
			return nil, fmt.Errorf("%w %q", errUnknownAttribute, attr.Type)
		}
	}
	return name, nil
}

// CSR is a PEM encoded PKCS#10 certificate signing request.
type CSR struct {
	pem     []byte
	request *x509.CertificateRequest
	// Created is true when the request was built rather than loaded.
	Created bool
}

// BuildCSR creates a request for commonName signed by key.
func BuildCSR(key *Key, commonName string, extra []Attribute, dnsNames []string) (*CSR, error) {
	subject, err := Subject(commonName, extra)
	if err != nil {
		return nil, err
	}
	csrPEM, err := certutil.MakeCSR(key.Signer(), subject, dnsNames, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create certificate signing request: %w", err)
	}
	csr, err := LoadCSR(csrPEM)
	if err != nil {
		return nil, err
	}
	csr.Created = true
	return csr, nil
}

// LoadCSR parses a PEM encoded certificate signing request.
func LoadCSR(pemBytes []byte) (*CSR, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return nil, errNoCSR
	}
	request, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("could not parse certificate signing request: %w", err)
	}
	if err := request.CheckSignature(); err != nil {
		return nil, fmt.Errorf("certificate signing request has an invalid signature: %w", err)
	}
	return &CSR{pem: pem.EncodeToMemory(block), request: request}, nil
}

// LoadCSRFile reads path and parses it with LoadCSR.
func LoadCSRFile(path string) (*CSR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read certificate signing request file: %w", err)
	}
	return LoadCSR(data)
}

func (c *CSR) PEM() []byte {
	return c.pem
}

func (c *CSR) Base64() string {
	return base64.StdEncoding.EncodeToString(c.pem)
}

func (c *CSR) Subject() string {
	return c.request.Subject.String()
}

func (c *CSR) DNSNames() []string {
	return c.request.DNSNames
}

func (c *CSR) PublicKey() crypto.PublicKey {
	return c.request.PublicKey
}

// MatchesKey reports whether the request carries the public half of key.
func (c *CSR) MatchesKey(key *Key) bool {
	public, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	return ok && public.Equal(c.request.PublicKey)
}

// Certificate is an issued X.509 certificate.
type Certificate struct {
	pem  []byte
	cert *x509.Certificate
}

// ParseCertificate accepts either a PEM bundle (the first certificate is used) or raw DER.
func ParseCertificate(data []byte) (*Certificate, error) {
	if len(data) == 0 {
		return nil, errNoCertificate
	}
	if certs, err := certutil.ParseCertsPEM(data); err == nil {
		block := &pem.Block{Type: certutil.CertificateBlockType, Bytes: certs[0].Raw}
		return &Certificate{pem: pem.EncodeToMemory(block), cert: certs[0]}, nil
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("could not parse certificate: %w", err)
	}
	block := &pem.Block{Type: certutil.CertificateBlockType, Bytes: cert.Raw}
	return &Certificate{pem: pem.EncodeToMemory(block), cert: cert}, nil
}

func (c *Certificate) PEM() []byte {
	return c.pem
}

func (c *Certificate) Base64() string {
	return base64.StdEncoding.EncodeToString(c.pem)
}

func (c *Certificate) SubjectDN() string {
	return c.cert.Subject.String()
}

func (c *Certificate) X509() *x509.Certificate {
	return c.cert
}
