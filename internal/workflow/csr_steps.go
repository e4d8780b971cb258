// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"

	"go.k8suser.dev/internal/authority"
	"go.k8suser.dev/internal/backoff"
	"go.k8suser.dev/internal/pki"
	"go.k8suser.dev/internal/plog"
)

type getCSRAndKeyStep struct {
	name        string
	inKey       string
	inCSR       string
	keyPassword []byte
	keySize     int
	subject     []pki.Attribute
	dnsNames    []string
	clientset   kubernetes.Interface
	resourceOps []authority.CSROpt
	logger      plog.Logger
	state       *runState
}

func newGetCSRAndKeyStep(p *Params, s *runState) *getCSRAndKeyStep {
	opts := []authority.CSROpt{
		authority.WithSignerName(p.SignerName),
		authority.WithGroups(p.Groups),
		authority.WithUsages(p.Usages),
		authority.WithCSRMetadata(p.Labels, p.Annotations),
	}
	if p.ExpirationSeconds > 0 {
		opts = append(opts, authority.WithExpirationSeconds(ptr.To(int32(p.ExpirationSeconds))))
	}
	return &getCSRAndKeyStep{
		name:        p.Name,
		inKey:       p.InKey,
		inCSR:       p.InCSR,
		keyPassword: p.KeyPassword,
		keySize:     p.KeySize,
		subject:     p.Subject,
		dnsNames:    p.DNSNames,
		clientset:   p.Clientset,
		resourceOps: opts,
		logger:      p.Logger,
		state:       s,
	}
}

func (s *getCSRAndKeyStep) ID() StepID { return StepGetCSRAndKey }

func (s *getCSRAndKeyStep) Run(_ context.Context) (Transition, error) {
	var (
		key *pki.Key
		err error
	)
	if s.inKey != "" {
		key, err = pki.LoadKeyFile(s.inKey, s.keyPassword)
	} else {
		key, err = pki.GenerateKey(s.keySize)
	}
	if err != nil {
		return Transition{}, err
	}

	var csr *pki.CSR
	if s.inCSR != "" {
		csr, err = pki.LoadCSRFile(s.inCSR)
		if err == nil && !csr.MatchesKey(key) {
			err = ErrKeyMismatch
		}
	} else {
		csr, err = pki.BuildCSR(key, s.name, s.subject, s.dnsNames)
	}
	if err != nil {
		return Transition{}, err
	}

	s.state.key = key
	s.state.csr = csr
	s.state.csrResource = authority.NewCSRResource(
		s.clientset.CertificatesV1().CertificateSigningRequests(), s.name, csr.PEM(), s.logger, s.resourceOps...)

	return Transition{
		Next:    StepSaveKey,
		Message: fmt.Sprintf("key %s; csr %s", createdOrLoaded(key.Created), createdOrLoaded(csr.Created)),
	}, nil
}

func createdOrLoaded(created bool) string {
	if created {
		return "created"
	}
	return "loaded"
}

type saveKeyStep struct {
	path  string
	state *runState
}

func newSaveKeyStep(p *Params, s *runState) *saveKeyStep {
	step := &saveKeyStep{state: s}
	if p.CredsDir != "" && p.InKey == "" {
		step.path = KeyPath(p.CredsDir, p.Name)
	}
	return step
}

func (s *saveKeyStep) ID() StepID { return StepSaveKey }

func (s *saveKeyStep) Run(_ context.Context) (Transition, error) {
	next := Transition{Next: StepSaveCSR, Message: "skipped save"}
	if s.path == "" {
		return next, nil
	}
	keyPEM, err := s.state.key.PEM()
	if err != nil {
		return Transition{}, err
	}
	if err := writeArtifact("key", s.path, keyPEM); err != nil {
		return Transition{}, err
	}
	next.Message = "key saved to " + s.path
	return next, nil
}

type saveCSRStep struct {
	path  string
	state *runState
}

func newSaveCSRStep(p *Params, s *runState) *saveCSRStep {
	step := &saveCSRStep{state: s}
	if p.CredsDir != "" && p.InCSR == "" {
		step.path = CSRPath(p.CredsDir, p.Name)
	}
	return step
}

func (s *saveCSRStep) ID() StepID { return StepSaveCSR }

func (s *saveCSRStep) Run(_ context.Context) (Transition, error) {
	next := Transition{Next: StepCSRResourceExists, Message: "skipped save"}
	if s.path == "" {
		return next, nil
	}
	if err := writeArtifact("csr", s.path, s.state.csr.PEM()); err != nil {
		return Transition{}, err
	}
	next.Message = "csr saved to " + s.path
	return next, nil
}

type csrResourceExistsStep struct {
	state *runState
}

func (s *csrResourceExistsStep) ID() StepID { return StepCSRResourceExists }

func (s *csrResourceExistsStep) Run(ctx context.Context) (Transition, error) {
	s.state.csrResource.Invalidate()
	exists, err := s.state.csrResource.Exists(ctx)
	if err != nil {
		return Transition{}, err
	}
	if exists {
		return Transition{Next: StepCSRApproveResource, Message: "csr resource exists"}, nil
	}
	return Transition{Next: StepCSRCreateResource, Message: "csr resource does not exist yet"}, nil
}

type csrCreateResourceStep struct {
	state *runState
}

func (s *csrCreateResourceStep) ID() StepID { return StepCSRCreateResource }

func (s *csrCreateResourceStep) Run(ctx context.Context) (Transition, error) {
	_, created, err := s.state.csrResource.Create(ctx)
	if err != nil {
		return Transition{}, err
	}
	message := "csr resource created"
	if !created {
		message = "csr resource already existed"
	}
	return Transition{Next: StepCSRApproveResource, Message: message}, nil
}

type csrApproveResourceStep struct {
	state *runState
}

func (s *csrApproveResourceStep) ID() StepID { return StepCSRApproveResource }

func (s *csrApproveResourceStep) Run(ctx context.Context) (Transition, error) {
	approved, err := s.state.csrResource.Approve(ctx)
	if err != nil {
		return Transition{}, err
	}
	if !authority.IsApproved(approved) {
		return Transition{}, fmt.Errorf("%w: %s", ErrCSRNotApproved, approved.Name)
	}
	return Transition{Next: StepGetCert, Message: "csr resource approved"}, nil
}

type getCertStep struct {
	timeout  time.Duration
	interval time.Duration
	required bool
	logger   plog.Logger
	state    *runState
}

func newGetCertStep(p *Params, s *runState) *getCertStep {
	return &getCertStep{
		timeout:  p.PollTimeout,
		interval: p.PollInterval,
		required: p.RequireCredential,
		logger:   p.Logger,
		state:    s,
	}
}

func (s *getCertStep) ID() StepID { return StepGetCert }

func (s *getCertStep) Run(ctx context.Context) (Transition, error) {
	var issued []byte
	err := backoff.Poll(ctx, s.timeout, backoff.Constant{Interval: s.interval}, func(ctx context.Context) (bool, error) {
		certificate, err := s.state.csrResource.Certificate(ctx)
		if err != nil {
			return false, err
		}
		issued = certificate
		return len(certificate) > 0, nil
	})
	switch {
	case errors.Is(err, backoff.ErrTimeout):
		if s.required {
			return Transition{}, ErrCertificateNotIssued
		}
		s.logger.Warning("certificate was not issued in time, continuing without it", "timeout", s.timeout.String())
		s.state.certificate = nil
		return Transition{Next: StepSaveCert, Message: fmt.Sprintf("crt not issued within %s", s.timeout)}, nil
	case err != nil:
		return Transition{}, err
	}

	certificate, err := pki.ParseCertificate(issued)
	if err != nil {
		return Transition{}, err
	}
	s.state.certificate = certificate.PEM()
	return Transition{Next: StepSaveCert, Message: "crt retrieved for " + certificate.SubjectDN()}, nil
}

type saveCertStep struct {
	path  string
	state *runState
}

func newSaveCertStep(p *Params, s *runState) *saveCertStep {
	step := &saveCertStep{state: s}
	if p.CredsDir != "" {
		step.path = CertPath(p.CredsDir, p.Name)
	}
	return step
}

func (s *saveCertStep) ID() StepID { return StepSaveCert }

func (s *saveCertStep) Run(_ context.Context) (Transition, error) {
	next := Transition{Next: StepMakeKubeconfig, Message: "skipped save"}
	if s.path == "" || len(s.state.certificate) == 0 {
		return next, nil
	}
	if err := writeArtifact("crt", s.path, s.state.certificate); err != nil {
		return Transition{}, err
	}
	next.Message = "crt saved to " + s.path
	return next, nil
}

