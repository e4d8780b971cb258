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
	"go.k8suser.dev/internal/plog"
)

type saResourceExistsStep struct {
	name        string
	namespace   string
	labels      map[string]string
	annotations map[string]string
	clientset   kubernetes.Interface
	logger      plog.Logger
	state       *runState
}

func newSAResourceExistsStep(p *Params, s *runState) *saResourceExistsStep {
	return &saResourceExistsStep{
		name:        p.Name,
		namespace:   p.Namespace,
		labels:      p.Labels,
		annotations: p.Annotations,
		clientset:   p.Clientset,
		logger:      p.Logger,
		state:       s,
	}
}

func (s *saResourceExistsStep) ID() StepID { return StepSAResourceExists }

func (s *saResourceExistsStep) Run(ctx context.Context) (Transition, error) {
	s.state.serviceAccount = authority.NewServiceAccountResource(
		s.clientset.CoreV1(), s.name, s.namespace, s.logger,
		authority.WithServiceAccountMetadata(s.labels, s.annotations))

	exists, err := s.state.serviceAccount.Exists(ctx)
	if err != nil {
		return Transition{}, err
	}
	message := "resource does not exist"
	if exists {
		message = "resource exists"
	}
	return Transition{Next: StepSAGetOrCreateResource, Message: message}, nil
}

type saGetOrCreateStep struct {
	next  StepID
	state *runState
}

func (s *saGetOrCreateStep) ID() StepID { return StepSAGetOrCreateResource }

func (s *saGetOrCreateStep) Run(ctx context.Context) (Transition, error) {
	_, created, err := s.state.serviceAccount.Create(ctx)
	if err != nil {
		return Transition{}, err
	}
	message := "service account already exists"
	if created {
		message = "service account created"
	}
	return Transition{Next: s.next, Message: message}, nil
}

type getTokenStep struct {
	timeout  time.Duration
	interval time.Duration
	required bool
	logger   plog.Logger
	state    *runState
}

func newGetTokenStep(p *Params, s *runState) *getTokenStep {
	return &getTokenStep{
		timeout:  p.PollTimeout,
		interval: p.PollInterval,
		required: p.RequireCredential,
		logger:   p.Logger,
		state:    s,
	}
}

func (s *getTokenStep) ID() StepID { return StepGetToken }

// Run waits for the token controller twice: once for the Secret to be referenced by the
// ServiceAccount and once for the Secret to carry the token.  Each wait has its own budget.
func (s *getTokenStep) Run(ctx context.Context) (Transition, error) {
	sa := s.state.serviceAccount
	stepper := backoff.Constant{Interval: s.interval}

	var secretName string
	err := backoff.Poll(ctx, s.timeout, stepper, func(ctx context.Context) (bool, error) {
		name, err := sa.TokenSecretName(ctx)
		secretName = name
		return name != "", err
	})
	if err != nil {
		return s.timedOut(err, "no token secret referenced by service account")
	}

	var token string
	err = backoff.Poll(ctx, s.timeout, stepper, func(ctx context.Context) (bool, error) {
		t, err := sa.Token(ctx, secretName)
		token = t
		return t != "", err
	})
	if err != nil {
		return s.timedOut(err, "token secret "+secretName+" was not populated")
	}

	s.state.token = token
	return Transition{Next: StepMakeKubeconfig, Message: "token retrieved from secret " + secretName}, nil
}

func (s *getTokenStep) timedOut(err error, reason string) (Transition, error) {
	if !errors.Is(err, backoff.ErrTimeout) {
		return Transition{}, err
	}
	if s.required {
		return Transition{}, ErrTokenNotMaterialized
	}
	s.logger.Warning("token was not materialized in time, continuing without it", "reason", reason, "timeout", s.timeout.String())
	s.state.token = ""
	return Transition{Next: StepMakeKubeconfig, Message: fmt.Sprintf("%s within %s", reason, s.timeout)}, nil
}

type requestTokenStep struct {
	expirationSeconds *int64
	state             *runState
}

func newRequestTokenStep(p *Params, s *runState) *requestTokenStep {
	step := &requestTokenStep{state: s}
	if p.ExpirationSeconds > 0 {
		step.expirationSeconds = ptr.To(p.ExpirationSeconds)
	}
	return step
}

func (s *requestTokenStep) ID() StepID { return StepRequestToken }

func (s *requestTokenStep) Run(ctx context.Context) (Transition, error) {
	token, err := s.state.serviceAccount.RequestToken(ctx, s.expirationSeconds)
	if err != nil {
		return Transition{}, err
	}
	s.state.token = token
	return Transition{Next: StepMakeKubeconfig, Message: "token requested"}, nil
}
