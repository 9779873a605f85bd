package training

import "errors"

// Sentinel errors for the training service layer.
var (
	ErrDomainNotFound     = errors.New("domain not found")
	ErrConfigNotFound     = errors.New("training config not found")
	ErrAnalysisInProgress = errors.New("analysis already in progress for domain")
)
