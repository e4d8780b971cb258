// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"

	"go.k8suser.dev/internal/constable"
)

const (
	// ErrCertificateNotIssued is returned by get_cert when no certificate appeared before the
	// poll timeout and Params.RequireCredential is set.
	ErrCertificateNotIssued = constable.Error("certificate was not issued before the poll timeout")
	// ErrTokenNotMaterialized is the token equivalent of ErrCertificateNotIssued.
	ErrTokenNotMaterialized = constable.Error("token was not materialized before the poll timeout")
	// ErrKeyMismatch means a supplied certificate signing request was made for another key.
	ErrKeyMismatch = constable.Error("certificate signing request does not match the private key")
	// ErrCSRNotApproved means the cluster accepted the approval update but the stored object has
	// no Approved condition.
	ErrCSRNotApproved = constable.Error("approval was not recorded on the certificate signing request")
)

// ConflictError means an artifact would overwrite an existing file.
type ConflictError struct {
	// Kind is what was about to be written, e.g. "key".
	Kind string
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists at %s", e.Kind, e.Path)
}
