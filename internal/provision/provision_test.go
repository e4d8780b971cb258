// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"
	authenticationv1 "k8s.io/api/authentication/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
	coretesting "k8s.io/client-go/testing"
	"k8s.io/client-go/tools/clientcmd"

	"go.k8suser.dev/internal/plog"
	"go.k8suser.dev/internal/workflow"
)

func TestKind(t *testing.T) {
	tests := []struct {
		kind    Kind
		name    string
		catalog workflow.Catalog
	}{
		{kind: KindCSR, name: "csr", catalog: workflow.CSRCatalog},
		{kind: KindToken, name: "token", catalog: workflow.TokenCatalog},
		{kind: KindTokenRequest, name: "token-request", catalog: workflow.TokenRequestCatalog},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.name, tt.kind.String())
			require.Equal(t, tt.catalog.Name, tt.kind.Catalog().Name)
			parsed, err := ParseKind(tt.name)
			require.NoError(t, err)
			require.Equal(t, tt.kind, parsed)
		})
	}

	require.Equal(t, "Kind(7)", Kind(7).String())
	_, err := ParseKind("oidc")
	require.EqualError(t, err, `unknown identity kind "oidc"`)
}

func TestIdentityValidate(t *testing.T) {
	tests := []struct {
		name     string
		identity Identity
		kind     Kind
		wantErr  string
	}{
		{
			name:     "valid user",
			identity: Identity{Name: "alice"},
			kind:     KindCSR,
		},
		{
			name:     "namespace is ignored for users",
			identity: Identity{Name: "alice", Namespace: "Not_Valid"},
			kind:     KindCSR,
		},
		{
			name:     "valid service account with metadata",
			identity: Identity{Name: "bob", Namespace: "team-a", Labels: map[string]string{"team": "a"}, Annotations: map[string]string{"example.com/owner": "ops"}},
			kind:     KindToken,
		},
		{
			name:     "missing name",
			identity: Identity{},
			kind:     KindCSR,
			wantErr:  "name: Required value",
		},
		{
			name:     "name is not a DNS subdomain",
			identity: Identity{Name: "Alice Smith"},
			kind:     KindCSR,
			wantErr:  `name: Invalid value: "Alice Smith": a lowercase RFC 1123 subdomain must consist of`,
		},
		{
			name:     "missing namespace",
			identity: Identity{Name: "bob"},
			kind:     KindTokenRequest,
			wantErr:  "namespace: Required value: required for service account identities",
		},
		{
			name:     "namespace with uppercase letters",
			identity: Identity{Name: "bob", Namespace: "Team"},
			kind:     KindToken,
			wantErr:  `namespace: Invalid value: "Team": a lowercase RFC 1123 label must consist of`,
		},
		{
			name:     "namespace with dots",
			identity: Identity{Name: "bob", Namespace: "team.a"},
			kind:     KindToken,
			wantErr:  `namespace: Invalid value: "team.a": must not contain dots`,
		},
		{
			name:     "bad label value",
			identity: Identity{Name: "bob", Namespace: "default", Labels: map[string]string{"team": "has spaces"}},
			kind:     KindToken,
			wantErr:  `labels: Invalid value: "has spaces"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.identity.Validate(tt.kind)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNew(t *testing.T) {
	_, err := New(Identity{Name: "alice"}, Kind(9))
	require.EqualError(t, err, "unknown identity kind Kind(9)")

	_, err = New(Identity{Name: "bob"}, KindToken)
	require.ErrorContains(t, err, "invalid identity: namespace: Required value")

	p, err := New(Identity{Name: "bob", Namespace: "default"}, KindToken)
	require.NoError(t, err)
	require.Equal(t, defaultLockTimeout, p.lockTimeout)
}

type testEnv struct {
	client *fake.Clientset
	params workflow.Params
	out    *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "serviceaccounts/token", func(_ coretesting.Action) (bool, runtime.Object, error) {
		return true, &authenticationv1.TokenRequest{Status: authenticationv1.TokenRequestStatus{Token: "bound-token"}}, nil
	})
	logger, _ := plog.TestLogger(t)
	out := &bytes.Buffer{}
	return &testEnv{
		client: client,
		out:    out,
		params: workflow.Params{
			Clientset:    client,
			RestConfig:   &rest.Config{Host: "https://cluster.example.com", TLSClientConfig: rest.TLSClientConfig{CAData: []byte("ca")}},
			ClusterName:  "prod",
			CredsDir:     filepath.Join(t.TempDir(), "creds"),
			KeySize:      2048,
			PollTimeout:  20 * time.Millisecond,
			PollInterval: 5 * time.Millisecond,
			Out:          out,
			Logger:       logger,
		},
	}
}

func TestCreate(t *testing.T) {
	env := newTestEnv(t)
	p, err := New(Identity{Name: "bob", Namespace: "default", Labels: map[string]string{"team": "a"}}, KindTokenRequest)
	require.NoError(t, err)

	require.NoError(t, p.Create(context.Background(), env.params))

	path := DefaultKubeconfigPath(env.params.CredsDir, "bob")
	config, err := clientcmd.LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "bound-token", config.AuthInfos["bob"].Token)
	require.Equal(t, "bob@prod", config.CurrentContext)
	require.Contains(t, env.out.String(), "Running: request_token\n")

	sa, err := env.client.Tracker().Get(serviceAccountsGVR, "default", "bob")
	require.NoError(t, err)
	require.NotNil(t, sa)

	// a second run finds the kubeconfig of the first
	err = p.Create(context.Background(), env.params)
	var conflict *workflow.ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, &workflow.ConflictError{Kind: "kubeconfig", Path: path}, conflict)
}

func TestCreateConflictsMakeNoRemoteCalls(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		existing func(params workflow.Params) string
		mutate   func(params *workflow.Params)
		wantKind string
	}{
		{
			name:     "explicit kubeconfig path",
			kind:     KindToken,
			mutate:   func(params *workflow.Params) { params.OutKubeconfig = filepath.Join(params.CredsDir, "custom.yaml") },
			existing: func(params workflow.Params) string { return filepath.Join(params.CredsDir, "custom.yaml") },
			wantKind: "kubeconfig",
		},
		{
			name:     "key of a user",
			kind:     KindCSR,
			existing: func(params workflow.Params) string { return workflow.KeyPath(params.CredsDir, "alice") },
			wantKind: "key",
		},
		{
			name:     "certificate of a user",
			kind:     KindCSR,
			existing: func(params workflow.Params) string { return workflow.CertPath(params.CredsDir, "alice") },
			wantKind: "crt",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.mutate != nil {
				tt.mutate(&env.params)
			}
			existing := tt.existing(env.params)
			require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o700))
			require.NoError(t, os.WriteFile(existing, []byte("keep me"), 0o600))

			p, err := New(Identity{Name: "alice", Namespace: "default"}, tt.kind)
			require.NoError(t, err)
			err = p.Create(context.Background(), env.params)

			require.Equal(t, &workflow.ConflictError{Kind: tt.wantKind, Path: existing}, err)
			require.Empty(t, env.client.Actions())
			require.Empty(t, env.out.String())
			got, err := os.ReadFile(existing)
			require.NoError(t, err)
			require.Equal(t, "keep me", string(got))
		})
	}
}

func TestCheckConflictsSkipsSuppliedMaterial(t *testing.T) {
	credsDir := t.TempDir()
	keyPath := workflow.KeyPath(credsDir, "alice")
	csrPath := workflow.CSRPath(credsDir, "alice")
	require.NoError(t, os.WriteFile(keyPath, []byte("supplied"), 0o600))
	require.NoError(t, os.WriteFile(csrPath, []byte("supplied"), 0o600))

	p, err := New(Identity{Name: "alice"}, KindCSR)
	require.NoError(t, err)
	params := workflow.Params{
		Name:          "alice",
		CredsDir:      credsDir,
		OutKubeconfig: DefaultKubeconfigPath(credsDir, "alice"),
		InKey:         keyPath,
		InCSR:         csrPath,
	}
	require.NoError(t, p.checkConflicts(params))

	params.InCSR = ""
	require.Equal(t, &workflow.ConflictError{Kind: "csr", Path: csrPath}, p.checkConflicts(params))
}

func TestCreateWaitsForLock(t *testing.T) {
	env := newTestEnv(t)
	p, err := New(Identity{Name: "bob", Namespace: "default"}, KindTokenRequest)
	require.NoError(t, err)
	p.lockTimeout = 50 * time.Millisecond

	path := DefaultKubeconfigPath(env.params.CredsDir, "bob")
	require.NoError(t, os.MkdirAll(env.params.CredsDir, 0o700))
	other := flock.New(path + ".lock")
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = other.Unlock() })

	err = p.Create(context.Background(), env.params)
	require.ErrorContains(t, err, "another run is provisioning bob: could not lock "+path+".lock")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, env.client.Actions())

	require.NoError(t, other.Unlock())
	require.NoError(t, p.Create(context.Background(), env.params))
}

//nolint:gochecknoglobals
var serviceAccountsGVR = corev1.SchemeGroupVersion.WithResource("serviceaccounts")
