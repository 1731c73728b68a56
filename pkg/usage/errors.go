package usage

import "errors"

var (
	ErrNotFound       = errors.New("usage limits not found")
	ErrUnknownQuota   = errors.New("unknown quota type")
	ErrStoreFailure   = errors.New("usage store failure")
	ErrNoPlanResolver = errors.New("plan resolver is required")
)
