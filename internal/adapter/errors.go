package adapter

import "errors"

// Transport error taxonomy. The coordinator picks its recovery strategy by
// matching these with [errors.Is]:
//
//	ErrTransientNetwork  — retry with backoff
//	ErrAuthExpired       — pause the queue until credentials are refreshed
//	ErrPermissionDenied  — drop the mutation, surface to the caller
//	ErrValidation        — drop the mutation, surface to the caller
var (
	ErrTransientNetwork = errors.New("transient network error")
	ErrAuthExpired      = errors.New("authentication expired")
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("mutation rejected as invalid")
)
