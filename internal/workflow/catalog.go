// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package workflow

import "slices"

// Catalog is a named set of steps and the step that starts it.
type Catalog struct {
	Name  string
	Start StepID
	Steps []StepID

	// credentialStep is the step that follows sa_get_or_create_resource.
	credentialStep StepID
}

func (c Catalog) Contains(id StepID) bool {
	return slices.Contains(c.Steps, id)
}

// Namespaced reports whether the catalog works on namespaced objects.
func (c Catalog) Namespaced() bool {
	return c.Contains(StepSAResourceExists)
}

//nolint:gochecknoglobals
var (
	// CSRCatalog issues a client certificate through a CertificateSigningRequest.
	CSRCatalog = Catalog{
		Name:  "csr",
		Start: StepGetCSRAndKey,
		Steps: []StepID{
			StepGetCSRAndKey,
			StepSaveKey,
			StepSaveCSR,
			StepCSRResourceExists,
			StepCSRCreateResource,
			StepCSRApproveResource,
			StepGetCert,
			StepSaveCert,
			StepMakeKubeconfig,
			StepSaveKubeconfig,
			StepEnd,
		},
	}

	// TokenCatalog waits for the token controller to fill the ServiceAccount's token Secret.
	TokenCatalog = Catalog{
		Name:  "token",
		Start: StepSAResourceExists,
		Steps: []StepID{
			StepSAResourceExists,
			StepSAGetOrCreateResource,
			StepGetToken,
			StepMakeKubeconfig,
			StepSaveKubeconfig,
			StepEnd,
		},
		credentialStep: StepGetToken,
	}

	// TokenRequestCatalog asks the TokenRequest API for a bound token.
	TokenRequestCatalog = Catalog{
		Name:  "token-request",
		Start: StepSAResourceExists,
		Steps: []StepID{
			StepSAResourceExists,
			StepSAGetOrCreateResource,
			StepRequestToken,
			StepMakeKubeconfig,
			StepSaveKubeconfig,
			StepEnd,
		},
		credentialStep: StepRequestToken,
	}
)

// newStep builds the step id for one run.
func (c Catalog) newStep(id StepID, p *Params, s *runState) Step {
	switch id {
	case StepGetCSRAndKey:
		return newGetCSRAndKeyStep(p, s)
	case StepSaveKey:
		return newSaveKeyStep(p, s)
	case StepSaveCSR:
		return newSaveCSRStep(p, s)
	case StepCSRResourceExists:
		return &csrResourceExistsStep{state: s}
	case StepCSRCreateResource:
		return &csrCreateResourceStep{state: s}
	case StepCSRApproveResource:
		return &csrApproveResourceStep{state: s}
	case StepGetCert:
		return newGetCertStep(p, s)
	case StepSaveCert:
		return newSaveCertStep(p, s)
	case StepSAResourceExists:
		return newSAResourceExistsStep(p, s)
	case StepSAGetOrCreateResource:
		return &saGetOrCreateStep{state: s, next: c.credentialStep}
	case StepGetToken:
		return newGetTokenStep(p, s)
	case StepRequestToken:
		return newRequestTokenStep(p, s)
	case StepMakeKubeconfig:
		return newMakeKubeconfigStep(p, s)
	case StepSaveKubeconfig:
		return &saveKubeconfigStep{path: p.OutKubeconfig, state: s}
	case StepEnd:
		return endStep{}
	default:
		return nil
	}
}
