package retriever

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady matches every NotReadyError via errors.Is.
	ErrNotReady = errors.New("not ready")
	// ErrCountMismatch means the index and the metadata file were not built together.
	ErrCountMismatch = errors.New("index vector count does not match metadata record count")
	// ErrDimensionMismatch means the embedding model and the index disagree on vector size.
	ErrDimensionMismatch = errors.New("embedding dimension does not match index dimension")
	// ErrAlreadyLoaded is returned when Load is called on a store that already left Unloaded.
	ErrAlreadyLoaded = errors.New("store has already been loaded")
	// ErrInvalidK is returned for k < 1.
	ErrInvalidK = errors.New("k must be at least 1")
)

// NotReadyError is returned by queries issued before a successful load.
type NotReadyError struct {
	Component string
	State     State
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s is not ready (state=%s)", e.Component, e.State)
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

// LoadError describes why loading the index, the metadata or the model failed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
