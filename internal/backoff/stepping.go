// Copyright 2023-2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package backoff runs a condition repeatedly until it is done, fails, or runs out of time.
package backoff

import (
	"context"
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"go.k8suser.dev/internal/constable"
)

// ErrTimeout is returned by Poll when the condition was not done before the timeout elapsed.
const ErrTimeout = constable.Error("timed out waiting for the condition")

type Stepper interface {
	Step() time.Duration
}

// Constant waits the same interval between every attempt.
type Constant struct {
	Interval time.Duration
}

func (c Constant) Step() time.Duration {
	return c.Interval
}

func wrapConditionWithNoPanics(ctx context.Context, condition wait.ConditionWithContextFunc) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			if err2, ok := r.(error); ok {
				err = err2
				return
			}
		}
	}()

	return condition(ctx)
}

// WithContext calls condition until it reports done, returns an error, or ctx is done.
// The first attempt happens immediately.
func WithContext(ctx context.Context, backoff Stepper, condition wait.ConditionWithContextFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if ok, err := wrapConditionWithNoPanics(ctx, condition); err != nil || ok {
			return err
		}

		waitBeforeRetry := backoff.Step()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitBeforeRetry):
		}
	}
}

// Poll is WithContext bounded by timeout.  Running out of time yields ErrTimeout, while
// cancellation of ctx itself is still reported as ctx.Err().
func Poll(ctx context.Context, timeout time.Duration, backoff Stepper, condition wait.ConditionWithContextFunc) error {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := WithContext(pollCtx, backoff, condition)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return ErrTimeout
	}
	return err
}
