package ingest

import "errors"

// Sentinel errors for the ingest service layer.
var (
	ErrMarkerNotFound = errors.New("file marker not found")
	ErrOutsideLogDir  = errors.New("file is outside the MTA log directory")
)
