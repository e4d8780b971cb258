// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	authenticationv1 "k8s.io/api/authentication/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	corev1client "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/utils/ptr"

	"go.k8suser.dev/internal/constable"
	"go.k8suser.dev/internal/plog"
)

// ErrEmptyTokenResponse is returned when the TokenRequest API answers without a token.
const ErrEmptyTokenResponse = constable.Error("token request returned no token")

// ServiceAccountResource manages a single ServiceAccount and the Secret holding its token.
type ServiceAccountResource struct {
	client      corev1client.CoreV1Interface
	name        string
	namespace   string
	labels      map[string]string
	annotations map[string]string
	logger      plog.Logger

	cached *corev1.ServiceAccount
}

type ServiceAccountOpt func(*ServiceAccountResource)

// WithServiceAccountMetadata sets the labels and annotations of the object created by Create.
func WithServiceAccountMetadata(labels, annotations map[string]string) ServiceAccountOpt {
	return func(r *ServiceAccountResource) {
		r.labels = labels
		r.annotations = annotations
	}
}

func NewServiceAccountResource(
	client corev1client.CoreV1Interface,
	name string,
	namespace string,
	logger plog.Logger,
	opts ...ServiceAccountOpt,
) *ServiceAccountResource {
	r := &ServiceAccountResource{
		client:    client,
		name:      name,
		namespace: namespace,
		logger:    logger.WithValues("serviceAccount", name, "namespace", namespace),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ServiceAccountResource) Name() string {
	return r.name
}

func (r *ServiceAccountResource) Namespace() string {
	return r.namespace
}

// Invalidate drops the cached ServiceAccount.
func (r *ServiceAccountResource) Invalidate() {
	r.cached = nil
}

// Get returns the cached ServiceAccount, reading it from the cluster if there is no cached copy.
// It returns nil without an error when the ServiceAccount does not exist.
func (r *ServiceAccountResource) Get(ctx context.Context) (*corev1.ServiceAccount, error) {
	if r.cached != nil {
		return r.cached, nil
	}
	sa, err := r.client.ServiceAccounts(r.namespace).Get(ctx, r.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		r.logger.Debug("service account not found")
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not get service account %s/%s", r.namespace, r.name)
	}
	r.cached = sa
	return sa, nil
}

// Exists reports whether the ServiceAccount exists, using the cached copy when there is one.
func (r *ServiceAccountResource) Exists(ctx context.Context) (bool, error) {
	sa, err := r.Get(ctx)
	if err != nil {
		return false, err
	}
	return sa != nil, nil
}

// Desired returns the object that Create would submit.
func (r *ServiceAccountResource) Desired() *corev1.ServiceAccount {
	return &corev1.ServiceAccount{
		TypeMeta: metav1.TypeMeta{
			Kind:       "ServiceAccount",
			APIVersion: corev1.SchemeGroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:        r.name,
			Namespace:   r.namespace,
			Labels:      r.labels,
			Annotations: r.annotations,
		},
		AutomountServiceAccountToken: ptr.To(false),
	}
}

// Create creates the ServiceAccount unless it already exists, in which case the existing
// object is returned.  The boolean result reports whether this call created it.
func (r *ServiceAccountResource) Create(ctx context.Context) (*corev1.ServiceAccount, bool, error) {
	existing, err := r.Get(ctx)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	created, err := r.client.ServiceAccounts(r.namespace).Create(ctx, r.Desired(), metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		r.Invalidate()
		existing, err = r.Get(ctx)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "could not create service account %s/%s", r.namespace, r.name)
	}
	r.cached = created
	r.logger.Debug("created service account")
	return created, true, nil
}

// TokenSecretName reads the ServiceAccount from the cluster and returns the name of the first
// referenced Secret whose name contains "token".  It returns an empty string when there is none
// yet or when the ServiceAccount does not exist.
func (r *ServiceAccountResource) TokenSecretName(ctx context.Context) (string, error) {
	r.Invalidate()
	sa, err := r.Get(ctx)
	if err != nil || sa == nil {
		return "", err
	}
	for _, ref := range sa.Secrets {
		if strings.Contains(ref.Name, "token") {
			return ref.Name, nil
		}
	}
	return "", nil
}

// Secret reads the named Secret from the cluster, bypassing any cache.  It returns nil without
// an error when the Secret does not exist.
func (r *ServiceAccountResource) Secret(ctx context.Context, secretName string) (*corev1.Secret, error) {
	secret, err := r.client.Secrets(r.namespace).Get(ctx, secretName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		r.logger.Debug("token secret not found", "secret", secretName)
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not get secret %s/%s", r.namespace, secretName)
	}
	return secret, nil
}

// Token returns the token field of the named Secret, or an empty string when the Secret does
// not exist or has not been populated by the token controller yet.
func (r *ServiceAccountResource) Token(ctx context.Context, secretName string) (string, error) {
	secret, err := r.Secret(ctx, secretName)
	if err != nil || secret == nil {
		return "", err
	}
	return string(secret.Data[corev1.ServiceAccountTokenKey]), nil
}

// RequestToken asks the TokenRequest API for a bound token for the ServiceAccount.
func (r *ServiceAccountResource) RequestToken(ctx context.Context, expirationSeconds *int64) (string, error) {
	tokenRequest := &authenticationv1.TokenRequest{
		Spec: authenticationv1.TokenRequestSpec{
			ExpirationSeconds: expirationSeconds,
		},
	}
	response, err := r.client.ServiceAccounts(r.namespace).CreateToken(ctx, r.name, tokenRequest, metav1.CreateOptions{})
	if err != nil {
		return "", errors.Wrapf(err, "could not request token for service account %s/%s", r.namespace, r.name)
	}
	if response == nil || response.Status.Token == "" {
		return "", ErrEmptyTokenResponse
	}
	r.logger.Debug("received token", "expirationTimestamp", response.Status.ExpirationTimestamp)
	return response.Status.Token, nil
}
