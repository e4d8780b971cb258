// Copyright 2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package workflow provisions one identity by running a catalog of steps against the cluster.
//
// Every step performs one action and names the step that runs after it.  The engine starts at
// the catalog's start step and follows those transitions until a step returns StepNone.  Steps
// share a run state that lives only as long as the Engine.
package workflow

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"

	"go.k8suser.dev/internal/authority"
	"go.k8suser.dev/internal/constable"
	"go.k8suser.dev/internal/kubeconfig"
	"go.k8suser.dev/internal/pki"
	"go.k8suser.dev/internal/plog"
)

const (
	errNoName          = constable.Error("identity name must not be empty")
	errNoNamespace     = constable.Error("namespace must not be empty for service account identities")
	errNoClient        = constable.Error("a cluster client and its rest config are required")
	errNoOutKubeconfig = constable.Error("output kubeconfig path must not be empty")
	errInCSRWithoutKey = constable.Error("an input certificate signing request requires its input key")
	errBadExpiration   = constable.Error("expiration seconds must be between 0 and 2147483647")
)

// runState holds what earlier steps produced for later steps.
type runState struct {
	key            *pki.Key
	csr            *pki.CSR
	csrResource    *authority.CSRResource
	certificate    []byte
	serviceAccount *authority.ServiceAccountResource
	token          string
	profile        *kubeconfig.Profile
}

// Engine runs one catalog once.  It is not safe for concurrent use.
type Engine struct {
	catalog Catalog
	steps   map[StepID]Step
	out     io.Writer
	logger  plog.Logger
	state   *runState
	visited []StepID
}

// New validates params and builds the steps of catalog for a single run.
func New(catalog Catalog, params Params) (*Engine, error) {
	if err := validate(catalog, &params); err != nil {
		return nil, err
	}
	params.setDefaults()

	runID := uuid.NewString()
	params.Logger = params.Logger.WithValues("runID", runID, "catalog", catalog.Name, "identity", params.Name)

	state := &runState{}
	steps := make(map[StepID]Step, len(catalog.Steps))
	for _, id := range catalog.Steps {
		step := catalog.newStep(id, &params, state)
		if step == nil {
			return nil, fmt.Errorf("catalog %s lists unknown step %s", catalog.Name, id)
		}
		steps[id] = step
	}

	return &Engine{
		catalog: catalog,
		steps:   steps,
		out:     params.Out,
		logger:  params.Logger,
		state:   state,
	}, nil
}

func validate(catalog Catalog, p *Params) error {
	switch {
	case p.Name == "":
		return errNoName
	case catalog.Namespaced() && p.Namespace == "":
		return errNoNamespace
	case p.Clientset == nil || p.RestConfig == nil:
		return errNoClient
	case p.OutKubeconfig == "":
		return errNoOutKubeconfig
	case p.InCSR != "" && p.InKey == "":
		return errInCSRWithoutKey
	case p.ExpirationSeconds < 0 || p.ExpirationSeconds > math.MaxInt32:
		return errBadExpiration
	}
	return nil
}

// Run executes the catalog from its start step.  The first failing step ends the run and its
// error is returned as is.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("starting workflow")
	for id := e.catalog.Start; id != StepNone; {
		if err := ctx.Err(); err != nil {
			return err
		}
		step, ok := e.steps[id]
		if !ok {
			return fmt.Errorf("step %s is not part of the %s catalog", id, e.catalog.Name)
		}

		e.visited = append(e.visited, id)
		_, _ = fmt.Fprintf(e.out, "Running: %s\n", id)
		e.logger.Debug("running step", "step", id.String())

		transition, err := step.Run(ctx)
		if err != nil {
			e.logger.Error("step failed", err, "step", id.String())
			return err
		}
		if transition.Message != "" {
			_, _ = fmt.Fprintf(e.out, "  %s\n", transition.Message)
			e.logger.Info(transition.Message, "step", id.String())
		}
		id = transition.Next
	}
	e.logger.Info("workflow finished")
	return nil
}

// Visited returns the steps in the order they ran.
func (e *Engine) Visited() []StepID {
	return e.visited
}

// Profile returns the generated kubeconfig, or nil before make_kubeconfig has run.
func (e *Engine) Profile() *kubeconfig.Profile {
	return e.state.profile
}
