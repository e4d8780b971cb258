// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package authority wraps the two Kubernetes resource kinds that a provisioning workflow
// drives: CertificateSigningRequests and ServiceAccounts (plus their token Secrets).
//
// Each wrapper keeps the last object it read from the cluster.  Reads through Get are served
// from that copy until Invalidate is called, so callers that need to observe a mutation made
// by someone else (approval, certificate issuance, token materialization) must invalidate
// first.  Methods that are inherently about fresh state invalidate on their own.
//
// A NotFound response is never returned as an error.  It is reported as a nil object or a
// false existence check, since it is the expected signal for create-or-reuse decisions.
// Every other API error is returned with its original cause intact, so that callers may
// still use the helpers in k8s.io/apimachinery/pkg/api/errors on it.
package authority
