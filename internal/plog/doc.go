// Copyright 2020-2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package plog implements a thin layer over klog to help enforce k8s-user's logging convention.
// Logs are always structured as a constant message with key and value pairs of related metadata.
//
// The logging levels in order of increasing verbosity are:
// error, warning, info, debug, trace and all.
//
// error and warning logs are always emitted (there is no way for the end user to disable them),
// and thus should be used sparingly.  Ideally, logs at these levels should be actionable.
//
// info should be reserved for "nice to know" information, such as the progress of a provisioning
// workflow.  debug should be used for information targeted at developers and to aid in support
// cases.  Care must be taken at this level to not leak any secrets into the log stream: private
// keys and bearer tokens must never be logged at any level.
//
// trace should be used to log information related to timing (i.e. how long a bounded poll waited).
// all is reserved for the most verbose and security sensitive information, such as the full
// request and response bodies exchanged with the cluster.
package plog
