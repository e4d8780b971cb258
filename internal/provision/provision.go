// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package provision creates the credentials of one named identity.
package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	apivalidation "k8s.io/apimachinery/pkg/api/validation"
	metav1validation "k8s.io/apimachinery/pkg/apis/meta/v1/validation"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"go.k8suser.dev/internal/workflow"
)

const (
	defaultLockTimeout       = 10 * time.Second
	defaultLockRetryInterval = 10 * time.Millisecond
)

// Kind selects how the identity authenticates.
type Kind int

const (
	// KindCSR issues a client certificate.
	KindCSR Kind = iota
	// KindToken reads the token of a ServiceAccount token Secret.
	KindToken
	// KindTokenRequest requests a bound ServiceAccount token.
	KindTokenRequest
)

//nolint:gochecknoglobals
var kindCatalogs = map[Kind]workflow.Catalog{
	KindCSR:          workflow.CSRCatalog,
	KindToken:        workflow.TokenCatalog,
	KindTokenRequest: workflow.TokenRequestCatalog,
}

func (k Kind) String() string {
	if catalog, ok := kindCatalogs[k]; ok {
		return catalog.Name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Catalog returns the workflow that provisions this kind of identity.
func (k Kind) Catalog() workflow.Catalog {
	return kindCatalogs[k]
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for kind, catalog := range kindCatalogs {
		if catalog.Name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown identity kind %q", s)
}

// Identity is the user or ServiceAccount being provisioned.
type Identity struct {
	Name string
	// Namespace is only meaningful for ServiceAccounts.
	Namespace   string
	Labels      map[string]string
	Annotations map[string]string
}

// Validate checks that the identity can name the objects and files it will own.
func (i Identity) Validate(kind Kind) error {
	var errs field.ErrorList
	if i.Name == "" {
		errs = append(errs, field.Required(field.NewPath("name"), ""))
	} else {
		for _, msg := range validation.IsDNS1123Subdomain(i.Name) {
			errs = append(errs, field.Invalid(field.NewPath("name"), i.Name, msg))
		}
	}
	if kind.Catalog().Namespaced() {
		switch {
		case i.Namespace == "":
			errs = append(errs, field.Required(field.NewPath("namespace"), "required for service account identities"))
		default:
			for _, msg := range validation.IsDNS1123Label(i.Namespace) {
				errs = append(errs, field.Invalid(field.NewPath("namespace"), i.Namespace, msg))
			}
		}
	}
	errs = append(errs, metav1validation.ValidateLabels(i.Labels, field.NewPath("labels"))...)
	errs = append(errs, apivalidation.ValidateAnnotations(i.Annotations, field.NewPath("annotations"))...)
	return errs.ToAggregate()
}

// Provisioner binds one identity to the workflow of its kind.
type Provisioner struct {
	identity          Identity
	kind              Kind
	lockTimeout       time.Duration
	lockRetryInterval time.Duration
}

func New(identity Identity, kind Kind) (*Provisioner, error) {
	if _, ok := kindCatalogs[kind]; !ok {
		return nil, fmt.Errorf("unknown identity kind %s", kind)
	}
	if err := identity.Validate(kind); err != nil {
		return nil, errors.Wrap(err, "invalid identity")
	}
	return &Provisioner{
		identity:          identity,
		kind:              kind,
		lockTimeout:       defaultLockTimeout,
		lockRetryInterval: defaultLockRetryInterval,
	}, nil
}

// Create runs the workflow of the identity's kind.  params supplies everything except the
// identity itself.  The run holds an exclusive lock next to the output kubeconfig and refuses
// to start when any file it would write already exists.
func (p *Provisioner) Create(ctx context.Context, params workflow.Params) error {
	params.Name = p.identity.Name
	params.Namespace = p.identity.Namespace
	params.Labels = p.identity.Labels
	params.Annotations = p.identity.Annotations
	if params.OutKubeconfig == "" {
		params.OutKubeconfig = DefaultKubeconfigPath(params.CredsDir, p.identity.Name)
	}

	unlock, err := p.lock(ctx, params.OutKubeconfig)
	if err != nil {
		return err
	}
	defer unlock()

	if err := p.checkConflicts(params); err != nil {
		return err
	}

	engine, err := workflow.New(p.kind.Catalog(), params)
	if err != nil {
		return err
	}
	return engine.Run(ctx)
}

// DefaultKubeconfigPath is where the kubeconfig goes when no path was given.
func DefaultKubeconfigPath(credsDir, name string) string {
	return filepath.Join(credsDir, name+".kubeconfig")
}

func (p *Provisioner) lock(ctx context.Context, kubeconfigPath string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(kubeconfigPath), 0o700); err != nil {
		return nil, errors.Wrap(err, "could not create kubeconfig directory")
	}
	lock := flock.New(kubeconfigPath + ".lock")

	lockCtx, cancel := context.WithTimeout(ctx, p.lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, p.lockRetryInterval)
	if err != nil || !locked {
		return nil, fmt.Errorf("another run is provisioning %s: could not lock %s: %w", p.identity.Name, lock.Path(), err)
	}
	return func() { _ = lock.Unlock() }, nil
}

// checkConflicts fails before anything is sent to the cluster if a file that the run will
// create is already present.
func (p *Provisioner) checkConflicts(params workflow.Params) error {
	type artifact struct{ kind, path string }
	artifacts := []artifact{{"kubeconfig", params.OutKubeconfig}}
	if p.kind == KindCSR && params.CredsDir != "" {
		if params.InKey == "" {
			artifacts = append(artifacts, artifact{"key", workflow.KeyPath(params.CredsDir, params.Name)})
		}
		if params.InCSR == "" {
			artifacts = append(artifacts, artifact{"csr", workflow.CSRPath(params.CredsDir, params.Name)})
		}
		artifacts = append(artifacts, artifact{"crt", workflow.CertPath(params.CredsDir, params.Name)})
	}
	for _, a := range artifacts {
		if _, err := os.Lstat(a.path); err == nil {
			return &workflow.ConflictError{Kind: a.kind, Path: a.path}
		}
	}
	return nil
}
