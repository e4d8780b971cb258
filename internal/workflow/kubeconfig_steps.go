// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"

	"k8s.io/client-go/rest"

	"go.k8suser.dev/internal/kubeconfig"
)

type makeKubeconfigStep struct {
	name        string
	clusterName string
	contextName string
	restConfig  *rest.Config
	state       *runState
}

func newMakeKubeconfigStep(p *Params, s *runState) *makeKubeconfigStep {
	return &makeKubeconfigStep{
		name:        p.Name,
		clusterName: p.ClusterName,
		contextName: p.ContextName,
		restConfig:  p.RestConfig,
		state:       s,
	}
}

func (s *makeKubeconfigStep) ID() StepID { return StepMakeKubeconfig }

func (s *makeKubeconfigStep) Run(_ context.Context) (Transition, error) {
	cluster, err := kubeconfig.NewClusterFragment(s.clusterName, s.restConfig)
	if err != nil {
		return Transition{}, err
	}
	bundle, err := s.bundle()
	if err != nil {
		return Transition{}, err
	}
	s.state.profile = kubeconfig.NewProfile(cluster, bundle, s.contextName)
	if _, err := s.state.profile.Generate(); err != nil {
		return Transition{}, err
	}
	return Transition{Next: StepSaveKubeconfig, Message: "kubeconfig generated"}, nil
}

// bundle picks the credential form from what the earlier steps produced.
func (s *makeKubeconfigStep) bundle() (kubeconfig.Bundle, error) {
	if s.state.key == nil {
		return kubeconfig.TokenBundle{UserName: s.name, Token: s.state.token}, nil
	}
	keyPEM, err := s.state.key.PEM()
	if err != nil {
		return nil, err
	}
	return kubeconfig.KeyBundle{
		UserName:    s.name,
		Key:         keyPEM,
		CSR:         s.state.csr.PEM(),
		Certificate: s.state.certificate,
	}, nil
}

type saveKubeconfigStep struct {
	path  string
	state *runState
}

func (s *saveKubeconfigStep) ID() StepID { return StepSaveKubeconfig }

func (s *saveKubeconfigStep) Run(_ context.Context) (Transition, error) {
	if err := s.state.profile.Save(s.path); err != nil {
		return Transition{}, err
	}
	return Transition{Next: StepEnd, Message: "kubeconfig saved to " + s.path}, nil
}
