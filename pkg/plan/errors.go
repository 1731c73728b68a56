package plan

import "errors"

var (
	ErrPlanNotFound       = errors.New("plan not found")
	ErrInvalidCatalog     = errors.New("invalid plan catalog")
	ErrFailedToLoadPlans  = errors.New("failed to load plan catalog")
	ErrCatalogFileMissing = errors.New("plan catalog file not found")
)
