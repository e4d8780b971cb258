// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"fmt"
)

// StepID names one step of a workflow.  The set of steps is closed.
type StepID int

const (
	// StepNone is the zero value.  A Transition to StepNone finishes the run.
	StepNone StepID = iota
	StepGetCSRAndKey
	StepSaveKey
	StepSaveCSR
	StepCSRResourceExists
	StepCSRCreateResource
	StepCSRApproveResource
	StepGetCert
	StepSaveCert
	StepSAResourceExists
	StepSAGetOrCreateResource
	StepGetToken
	StepRequestToken
	StepMakeKubeconfig
	StepSaveKubeconfig
	StepEnd
)

//nolint:gochecknoglobals
var stepNames = map[StepID]string{
	StepNone:                  "none",
	StepGetCSRAndKey:          "get_csr_and_key",
	StepSaveKey:               "save_key",
	StepSaveCSR:               "save_csr",
	StepCSRResourceExists:     "csr_resource_exists",
	StepCSRCreateResource:     "csr_create_resource",
	StepCSRApproveResource:    "csr_approve_resource",
	StepGetCert:               "get_cert",
	StepSaveCert:              "save_cert",
	StepSAResourceExists:      "sa_resource_exists",
	StepSAGetOrCreateResource: "sa_get_or_create_resource",
	StepGetToken:              "get_token",
	StepRequestToken:          "request_token",
	StepMakeKubeconfig:        "make_kubeconfig",
	StepSaveKubeconfig:        "save_kubeconfig",
	StepEnd:                   "end",
}

func (s StepID) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("StepID(%d)", int(s))
}

// Transition is the outcome of a step: which step runs next, and a message for the user.
type Transition struct {
	Next    StepID
	Message string
}

// Step is one unit of work.  A step receives everything it needs when it is constructed.
type Step interface {
	ID() StepID
	Run(ctx context.Context) (Transition, error)
}

type endStep struct{}

func (endStep) ID() StepID { return StepEnd }

func (endStep) Run(_ context.Context) (Transition, error) {
	return Transition{Next: StepNone}, nil
}
