// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	certificatesv1 "k8s.io/api/certificates/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	coretesting "k8s.io/client-go/testing"
	clocktesting "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	"go.k8suser.dev/internal/plog"
)

//nolint:gochecknoglobals
var csrGR = schema.GroupResource{Group: "certificates.k8s.io", Resource: "certificatesigningrequests"}

func newTestCSRResource(t *testing.T, client *fake.Clientset, opts ...CSROpt) *CSRResource {
	t.Helper()
	logger, _ := plog.TestLogger(t)
	return NewCSRResource(client.CertificatesV1().CertificateSigningRequests(), "alice", []byte("fake-request"), logger, opts...)
}

func existingCSR(conditions ...certificatesv1.CertificateSigningRequestCondition) *certificatesv1.CertificateSigningRequest {
	return &certificatesv1.CertificateSigningRequest{
		ObjectMeta: metav1.ObjectMeta{Name: "alice"},
		Spec: certificatesv1.CertificateSigningRequestSpec{
			Request:    []byte("fake-request"),
			SignerName: certificatesv1.KubeAPIServerClientSignerName,
		},
		Status: certificatesv1.CertificateSigningRequestStatus{Conditions: conditions},
	}
}

func countActions(client *fake.Clientset, verb string) int {
	n := 0
	for _, a := range client.Actions() {
		if a.GetVerb() == verb {
			n++
		}
	}
	return n
}

func TestCSRGetUsesCacheUntilInvalidated(t *testing.T) {
	client := fake.NewSimpleClientset(existingCSR())
	r := newTestCSRResource(t, client)
	ctx := context.Background()

	first, err := r.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := r.Get(ctx)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, countActions(client, "get"))

	r.Invalidate()
	_, err = r.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, countActions(client, "get"))
}

func TestCSRGetNotFoundIsNotAnError(t *testing.T) {
	client := fake.NewSimpleClientset()
	r := newTestCSRResource(t, client)

	got, err := r.Get(context.Background())
	require.NoError(t, err)
	require.Nil(t, got)

	exists, err := r.Exists(context.Background())
	require.NoError(t, err)
	require.False(t, exists)
}

func TestCSRGetPropagatesOtherErrors(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("get", "certificatesigningrequests", func(_ coretesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(csrGR, "alice", errors.New("no access"))
	})
	r := newTestCSRResource(t, client)

	_, err := r.Exists(context.Background())
	require.Error(t, err)
	require.True(t, apierrors.IsForbidden(err))
	require.Contains(t, err.Error(), `could not get certificate signing request "alice"`)
}

func TestCSRCreate(t *testing.T) {
	tests := []struct {
		name        string
		objects     []runtime.Object
		reactor     func(client *fake.Clientset) coretesting.ReactionFunc
		opts        []CSROpt
		wantCreated bool
		wantCreates int
		wantSpec    *certificatesv1.CertificateSigningRequestSpec
		wantLabels  map[string]string
		wantErr     string
	}{
		{
			name:        "absent resource is created with defaults",
			wantCreated: true,
			wantCreates: 1,
			wantSpec: &certificatesv1.CertificateSigningRequestSpec{
				Request:    []byte("fake-request"),
				SignerName: certificatesv1.KubeAPIServerClientSignerName,
				Groups:     []string{"system:authenticated"},
				Usages:     []certificatesv1.KeyUsage{certificatesv1.UsageClientAuth},
			},
		},
		{
			name: "absent resource is created with options",
			opts: []CSROpt{
				WithSignerName("example.com/signer"),
				WithGroups([]string{"devs"}),
				WithUsages([]certificatesv1.KeyUsage{certificatesv1.UsageClientAuth, certificatesv1.UsageDigitalSignature}),
				WithExpirationSeconds(ptr.To[int32](3600)),
				WithCSRMetadata(map[string]string{"team": "platform"}, nil),
			},
			wantCreated: true,
			wantCreates: 1,
			wantSpec: &certificatesv1.CertificateSigningRequestSpec{
				Request:           []byte("fake-request"),
				SignerName:        "example.com/signer",
				ExpirationSeconds: ptr.To[int32](3600),
				Groups:            []string{"devs"},
				Usages:            []certificatesv1.KeyUsage{certificatesv1.UsageClientAuth, certificatesv1.UsageDigitalSignature},
			},
			wantLabels: map[string]string{"team": "platform"},
		},
		{
			name:        "existing resource is returned without a create call",
			objects:     []runtime.Object{existingCSR()},
			wantCreates: 0,
		},
		{
			name: "losing a create race returns the winner's object",
			reactor: func(client *fake.Clientset) coretesting.ReactionFunc {
				return func(_ coretesting.Action) (bool, runtime.Object, error) {
					if err := client.Tracker().Add(existingCSR()); err != nil {
						return true, nil, err
					}
					return true, nil, apierrors.NewAlreadyExists(csrGR, "alice")
				}
			},
			wantCreates: 1,
		},
		{
			name: "other create errors are returned",
			reactor: func(_ *fake.Clientset) coretesting.ReactionFunc {
				return func(_ coretesting.Action) (bool, runtime.Object, error) {
					return true, nil, apierrors.NewForbidden(csrGR, "alice", errors.New("no access"))
				}
			},
			wantCreates: 1,
			wantErr:     `could not create certificate signing request "alice": certificatesigningrequests.certificates.k8s.io "alice" is forbidden: no access`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := fake.NewSimpleClientset(tt.objects...)
			if tt.reactor != nil {
				client.PrependReactor("create", "certificatesigningrequests", tt.reactor(client))
			}
			r := newTestCSRResource(t, client, tt.opts...)

			got, created, err := r.Create(context.Background())
			require.Equal(t, tt.wantCreates, countActions(client, "create"))
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantCreated, created)
			require.NotNil(t, got)
			require.Equal(t, "alice", got.Name)
			if tt.wantSpec != nil {
				require.Equal(t, *tt.wantSpec, got.Spec)
				require.Equal(t, tt.wantLabels, got.Labels)
			}
		})
	}
}

func TestCSRApproveReplacesConditions(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	client := fake.NewSimpleClientset(existingCSR(certificatesv1.CertificateSigningRequestCondition{
		Type:   "SomethingElse",
		Status: corev1.ConditionTrue,
		Reason: "Preexisting",
	}))
	r := newTestCSRResource(t, client, withCSRClock(clocktesting.NewFakePassiveClock(now)))
	ctx := context.Background()

	// warm the cache with the pre-approval object; Approve must not use it
	_, err := r.Get(ctx)
	require.NoError(t, err)

	approved, err := r.Approve(ctx)
	require.NoError(t, err)
	require.Equal(t, []certificatesv1.CertificateSigningRequestCondition{{
		Type:           certificatesv1.CertificateApproved,
		Status:         corev1.ConditionTrue,
		Reason:         approvalReason,
		Message:        approvalMessage,
		LastUpdateTime: metav1.NewTime(now),
	}}, approved.Status.Conditions)
	require.True(t, IsApproved(approved))
	require.Equal(t, 2, countActions(client, "get"))

	var sawApproval bool
	for _, a := range client.Actions() {
		if a.GetVerb() == "update" && a.GetSubresource() == "approval" {
			sawApproval = true
		}
	}
	require.True(t, sawApproval)
}

func TestCSRApproveMissingResource(t *testing.T) {
	r := newTestCSRResource(t, fake.NewSimpleClientset())

	_, err := r.Approve(context.Background())
	require.True(t, errors.Is(err, ErrCSRNotFound))
}

func TestCSRCertificateAlwaysReadsFresh(t *testing.T) {
	client := fake.NewSimpleClientset(existingCSR())
	r := newTestCSRResource(t, client)
	ctx := context.Background()

	cert, err := r.Certificate(ctx)
	require.NoError(t, err)
	require.Empty(t, cert)

	issued := existingCSR()
	issued.Status.Certificate = []byte("fake-cert")
	_, err = client.CertificatesV1().CertificateSigningRequests().UpdateStatus(ctx, issued, metav1.UpdateOptions{})
	require.NoError(t, err)

	cert, err = r.Certificate(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("fake-cert"), cert)
}

func TestIsApproved(t *testing.T) {
	require.False(t, IsApproved(nil))
	require.False(t, IsApproved(existingCSR()))
	require.True(t, IsApproved(existingCSR(certificatesv1.CertificateSigningRequestCondition{Type: certificatesv1.CertificateApproved})))
}
