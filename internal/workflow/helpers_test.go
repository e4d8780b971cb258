// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"bytes"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	certificatesv1 "k8s.io/api/certificates/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
	coretesting "k8s.io/client-go/testing"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"go.k8suser.dev/internal/certauthority"
	"go.k8suser.dev/internal/plog"
)

const testKeySize = 2048

//nolint:gochecknoglobals
var csrGVR = certificatesv1.SchemeGroupVersion.WithResource("certificatesigningrequests")

type testCluster struct {
	client     *fake.Clientset
	ca         *certauthority.CA
	restConfig *rest.Config
}

func newTestCluster(t *testing.T, objects ...runtime.Object) *testCluster {
	t.Helper()
	ca, err := certauthority.New("test-cluster-ca", time.Hour)
	require.NoError(t, err)
	return &testCluster{
		client: fake.NewSimpleClientset(objects...),
		ca:     ca,
		restConfig: &rest.Config{
			Host:            "https://cluster.example.com:6443",
			TLSClientConfig: rest.TLSClientConfig{CAData: ca.Bundle()},
		},
	}
}

// signOnApproval makes the fake cluster behave like a signer that issues a certificate as soon
// as a request is approved.  The issued certificates are appended to issued.
func (c *testCluster) signOnApproval(t *testing.T, issued *[][]byte) {
	t.Helper()
	c.client.PrependReactor("update", "certificatesigningrequests", func(action coretesting.Action) (bool, runtime.Object, error) {
		if action.GetSubresource() != "approval" {
			return false, nil, nil
		}
		csr := action.(coretesting.UpdateAction).GetObject().(*certificatesv1.CertificateSigningRequest).DeepCopy()
		certPEM, err := c.ca.SignCSR(csr.Spec.Request, csr.Spec.Usages, time.Hour)
		if err != nil {
			return true, nil, err
		}
		csr.Status.Certificate = certPEM
		if err := c.client.Tracker().Update(csrGVR, csr, ""); err != nil {
			return true, nil, err
		}
		*issued = append(*issued, certPEM)
		return true, csr, nil
	})
}

func (c *testCluster) params(t *testing.T, name string) (Params, *bytes.Buffer) {
	t.Helper()
	logger, _ := plog.TestLogger(t)
	out := &bytes.Buffer{}
	credsDir := filepath.Join(t.TempDir(), "creds")
	return Params{
		Name:          name,
		Namespace:     "default",
		Clientset:     c.client,
		RestConfig:    c.restConfig,
		ClusterName:   "test-cluster",
		ContextName:   name + "@test-cluster",
		CredsDir:      credsDir,
		OutKubeconfig: filepath.Join(credsDir, name+".kubeconfig"),
		KeySize:       testKeySize,
		PollTimeout:   time.Second,
		PollInterval:  5 * time.Millisecond,
		Out:           out,
		Logger:        logger,
	}, out
}

func countActions(client *fake.Clientset, verb, resource string) int {
	n := 0
	for _, a := range client.Actions() {
		if a.GetVerb() == verb && a.GetResource().Resource == resource {
			n++
		}
	}
	return n
}

func loadKubeconfig(t *testing.T, path string) *clientcmdapi.Config {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	config, err := clientcmd.Load(data)
	require.NoError(t, err)
	require.Len(t, config.Clusters, 1)
	require.Len(t, config.AuthInfos, 1)
	require.Len(t, config.Contexts, 1)
	return config
}

func x509VerifyOptions(c *testCluster) x509.VerifyOptions {
	return x509.VerifyOptions{
		Roots:     c.ca.Pool(),
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
}
