// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"

	"github.com/pkg/errors"
	certificatesv1 "k8s.io/api/certificates/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	certificatesv1client "k8s.io/client-go/kubernetes/typed/certificates/v1"
	"k8s.io/utils/clock"

	"go.k8suser.dev/internal/constable"
	"go.k8suser.dev/internal/plog"
)

const (
	// ErrCSRNotFound is returned when an operation requires the CertificateSigningRequest to exist.
	ErrCSRNotFound = constable.Error("certificate signing request does not exist")

	approvalReason  = "ApprovedForUser"
	approvalMessage = "This certificate was approved by k8s-user."
)

//nolint:gochecknoglobals
var (
	// DefaultGroups are requested when no groups were configured.
	DefaultGroups = []string{"system:authenticated"}
	// DefaultUsages are requested when no usages were configured.
	DefaultUsages = []certificatesv1.KeyUsage{certificatesv1.UsageClientAuth}
)

// CSRResource manages a single CertificateSigningRequest object.
type CSRResource struct {
	client            certificatesv1client.CertificateSigningRequestInterface
	name              string
	request           []byte
	signerName        string
	groups            []string
	usages            []certificatesv1.KeyUsage
	expirationSeconds *int32
	labels            map[string]string
	annotations       map[string]string
	clock             clock.PassiveClock
	logger            plog.Logger

	cached *certificatesv1.CertificateSigningRequest
}

type CSROpt func(*CSRResource)

func WithSignerName(signerName string) CSROpt {
	return func(r *CSRResource) {
		if signerName != "" {
			r.signerName = signerName
		}
	}
}

func WithGroups(groups []string) CSROpt {
	return func(r *CSRResource) {
		if len(groups) > 0 {
			r.groups = groups
		}
	}
}

func WithUsages(usages []certificatesv1.KeyUsage) CSROpt {
	return func(r *CSRResource) {
		if len(usages) > 0 {
			r.usages = usages
		}
	}
}

func WithExpirationSeconds(expirationSeconds *int32) CSROpt {
	return func(r *CSRResource) {
		r.expirationSeconds = expirationSeconds
	}
}

// WithCSRMetadata sets the labels and annotations of the object created by Create.
func WithCSRMetadata(labels, annotations map[string]string) CSROpt {
	return func(r *CSRResource) {
		r.labels = labels
		r.annotations = annotations
	}
}

func withCSRClock(c clock.PassiveClock) CSROpt {
	return func(r *CSRResource) {
		r.clock = c
	}
}

// NewCSRResource returns a wrapper for the CertificateSigningRequest called name carrying the
// PEM encoded request.  Nothing is read from or written to the cluster yet.
func NewCSRResource(
	client certificatesv1client.CertificateSigningRequestInterface,
	name string,
	request []byte,
	logger plog.Logger,
	opts ...CSROpt,
) *CSRResource {
	r := &CSRResource{
		client:     client,
		name:       name,
		request:    request,
		signerName: certificatesv1.KubeAPIServerClientSignerName,
		groups:     DefaultGroups,
		usages:     DefaultUsages,
		clock:      clock.RealClock{},
		logger:     logger.WithValues("csr", name),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *CSRResource) Name() string {
	return r.name
}

// Invalidate drops the cached copy so that the next Get reads from the cluster.
func (r *CSRResource) Invalidate() {
	r.cached = nil
}

// Get returns the cached object, reading it from the cluster if there is no cached copy.
// It returns nil without an error when the object does not exist.
func (r *CSRResource) Get(ctx context.Context) (*certificatesv1.CertificateSigningRequest, error) {
	if r.cached != nil {
		return r.cached, nil
	}
	csr, err := r.client.Get(ctx, r.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		r.logger.Debug("certificate signing request not found")
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not get certificate signing request %q", r.name)
	}
	r.cached = csr
	return csr, nil
}

// Exists reports whether the object exists, using the cached copy when there is one.
func (r *CSRResource) Exists(ctx context.Context) (bool, error) {
	csr, err := r.Get(ctx)
	if err != nil {
		return false, err
	}
	return csr != nil, nil
}

// Desired returns the object that Create would submit.
func (r *CSRResource) Desired() *certificatesv1.CertificateSigningRequest {
	return &certificatesv1.CertificateSigningRequest{
		TypeMeta: metav1.TypeMeta{
			Kind:       "CertificateSigningRequest",
			APIVersion: certificatesv1.SchemeGroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:        r.name,
			Labels:      r.labels,
			Annotations: r.annotations,
		},
		Spec: certificatesv1.CertificateSigningRequestSpec{
			Request:           r.request,
			SignerName:        r.signerName,
			ExpirationSeconds: r.expirationSeconds,
			Groups:            r.groups,
			Usages:            r.usages,
		},
	}
}

// Create submits the request unless an object with the same name already exists, in which
// case the existing object is returned.  The existence check always goes to the cluster.
func (r *CSRResource) Create(ctx context.Context) (*certificatesv1.CertificateSigningRequest, bool, error) {
	r.Invalidate()
	existing, err := r.Get(ctx)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		r.logger.Info("certificate signing request already exists, reusing it")
		return existing, false, nil
	}

	created, err := r.client.Create(ctx, r.Desired(), metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		// someone else created it between our read and our write
		r.Invalidate()
		existing, err = r.Get(ctx)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "could not create certificate signing request %q", r.name)
	}
	r.cached = created
	r.logger.Debug("created certificate signing request", "signerName", r.signerName)
	return created, true, nil
}

// Approve reads the current object and replaces its whole condition list with a single
// Approved condition.  Conditions set by anyone else are dropped.
func (r *CSRResource) Approve(ctx context.Context) (*certificatesv1.CertificateSigningRequest, error) {
	r.Invalidate()
	current, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.Wrapf(ErrCSRNotFound, "could not approve %q", r.name)
	}

	update := current.DeepCopy()
	update.Status.Conditions = []certificatesv1.CertificateSigningRequestCondition{{
		Type:           certificatesv1.CertificateApproved,
		Status:         corev1.ConditionTrue,
		Reason:         approvalReason,
		Message:        approvalMessage,
		LastUpdateTime: metav1.NewTime(r.clock.Now()),
	}}

	approved, err := r.client.UpdateApproval(ctx, r.name, update, metav1.UpdateOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "could not approve certificate signing request %q", r.name)
	}
	r.cached = approved
	return approved, nil
}

// Certificate reads the object from the cluster and returns the issued certificate, which is
// empty when the signer has not issued it yet or when the object does not exist.
func (r *CSRResource) Certificate(ctx context.Context) ([]byte, error) {
	r.Invalidate()
	current, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	return current.Status.Certificate, nil
}

// IsApproved reports whether csr carries an Approved condition.
func IsApproved(csr *certificatesv1.CertificateSigningRequest) bool {
	if csr == nil {
		return false
	}
	for _, c := range csr.Status.Conditions {
		if c.Type == certificatesv1.CertificateApproved {
			return true
		}
	}
	return false
}
