// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidToken indicates a malformed, badly signed or expired bearer token.
var ErrInvalidToken = errors.New("invalid token")

// ErrTenantRequired indicates a tenant-scoped route was hit without any
// resolvable tenant context.
var ErrTenantRequired = errors.New("tenant context required")

// ErrDuplicateTenant indicates a tenant with the same subdomain already exists.
var ErrDuplicateTenant = errors.New("tenant subdomain already exists")

// ErrServiceUnavailable indicates the registry has no address for a service.
var ErrServiceUnavailable = errors.New("service unavailable")

// ErrUpstream indicates a network-level failure while forwarding to an upstream.
var ErrUpstream = errors.New("upstream communication error")

// ErrProvisioning indicates tenant resource provisioning failed and was
// unwound cleanly.
var ErrProvisioning = errors.New("provisioning failed")

// ErrUnwindFailed indicates provisioning failed AND the compensating unwind
// also failed, leaving backend state that needs operator attention.
var ErrUnwindFailed = errors.New("provisioning unwind failed")

// ErrValidation indicates a request failed input validation.
var ErrValidation = errors.New("validation failed")
