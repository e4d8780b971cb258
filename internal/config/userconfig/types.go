// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package userconfig

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"go.k8suser.dev/internal/plog"
)

// Config contains knobs to set up an instance of k8s-user.
type Config struct {
	// Kubeconfig is the kubeconfig used to reach the cluster.  Empty means the default
	// loading rules (KUBECONFIG, then ~/.kube/config).
	Kubeconfig string `json:"kubeconfig,omitempty"`
	// KubeconfigContext selects a context of Kubeconfig instead of its current context.
	KubeconfigContext string `json:"kubeconfigContext,omitempty"`

	// ClusterName and ContextName name the entries of the generated kubeconfig.
	ClusterName string `json:"clusterName,omitempty"`
	ContextName string `json:"contextName,omitempty"`
	// CredsDir receives the key, request and certificate.  Nothing is saved there when empty.
	CredsDir      string `json:"credsDir,omitempty"`
	OutKubeconfig string `json:"outKubeconfig,omitempty"`

	Namespace   string            `json:"namespace,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`

	CSR CSRSpec `json:"csr,omitempty"`

	// ExpirationSeconds is the lifetime requested for certificates and bound tokens.
	ExpirationSeconds int64 `json:"expirationSeconds,omitempty"`

	Poll PollSpec `json:"poll,omitempty"`
	// RequireCredential fails the run when a certificate or token does not show up in time.
	RequireCredential *bool `json:"requireCredential,omitempty"`

	Log plog.LogSpec `json:"log,omitempty"`
}

// CSRSpec configures the certificate signing request of a user.
type CSRSpec struct {
	KeySize int `json:"keySize,omitempty"`
	// Subject holds extra distinguished name attributes such as "O=system:masters".
	Subject    []string `json:"subject,omitempty"`
	DNSNames   []string `json:"dnsNames,omitempty"`
	Groups     []string `json:"groups,omitempty"`
	Usages     []string `json:"usages,omitempty"`
	SignerName string   `json:"signerName,omitempty"`
}

// PollSpec bounds the waits for asynchronously issued credentials.
type PollSpec struct {
	Timeout  *metav1.Duration `json:"timeout,omitempty"`
	Interval *metav1.Duration `json:"interval,omitempty"`
}
