// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"io"
	"time"

	certificatesv1 "k8s.io/api/certificates/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"go.k8suser.dev/internal/pki"
	"go.k8suser.dev/internal/plog"
)

const (
	DefaultPollTimeout  = 10 * time.Second
	DefaultPollInterval = time.Second
)

// Params are the inputs of one run.
type Params struct {
	// Name of the identity.  It names the remote objects, the user entry and the local files.
	Name string
	// Namespace of the ServiceAccount.  Only used by the token catalogs.
	Namespace   string
	Labels      map[string]string
	Annotations map[string]string

	// Clientset reaches the cluster, and RestConfig describes how it does so.
	Clientset  kubernetes.Interface
	RestConfig *rest.Config

	ClusterName   string
	ContextName   string
	CredsDir      string
	OutKubeconfig string

	// InKey and InCSR are paths of existing material to use instead of generating it.
	InKey       string
	InCSR       string
	KeyPassword []byte
	KeySize     int
	Subject     []pki.Attribute
	DNSNames    []string

	Groups     []string
	Usages     []certificatesv1.KeyUsage
	SignerName string
	// ExpirationSeconds is the requested credential lifetime, or zero for the cluster default.
	ExpirationSeconds int64

	PollTimeout  time.Duration
	PollInterval time.Duration
	// RequireCredential fails the run when a poll times out instead of writing an empty credential.
	RequireCredential bool

	// Out receives the human readable progress of the run.
	Out    io.Writer
	Logger plog.Logger
}

func (p *Params) setDefaults() {
	if p.PollTimeout == 0 {
		p.PollTimeout = DefaultPollTimeout
	}
	if p.PollInterval <= 0 {
		p.PollInterval = DefaultPollInterval
	}
	if p.Out == nil {
		p.Out = io.Discard
	}
	if p.Logger == nil {
		p.Logger = plog.New()
	}
	if p.ContextName == "" {
		p.ContextName = p.Name + "@" + p.ClusterName
	}
}
