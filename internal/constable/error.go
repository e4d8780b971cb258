// Copyright 2020-2026 the k8s-user contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package constable provides an error type that can be declared as a constant.
package constable

var _ error = Error("")

// Error is a string that implements the error interface, so that sentinel
// errors can be compared with errors.Is and declared in const blocks.
type Error string

func (e Error) Error() string {
	return string(e)
}
