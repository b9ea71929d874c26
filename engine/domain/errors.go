package domain

import (
	"errors"
	"fmt"
)

// Configuration errors. Fatal: reported at setup time, never at request time.
var (
	ErrChunkConfig     = errors.New("chunk overlap must be smaller than chunk size")
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// Validation errors for transport-boundary checks.
var (
	ErrQuestionTooShort = errors.New("question too short")
	ErrQuestionTooLong  = errors.New("question too long")
	ErrEmptyURL         = errors.New("document url is empty")
	ErrEmptyTitle       = errors.New("document title is empty")
)

// IndexError reports that the similarity index was unreachable or returned
// data violating its contract. Propagated to the caller of RankAndFilter.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string { return fmt.Sprintf("index %s: %v", e.Op, e.Err) }

func (e *IndexError) Unwrap() error { return e.Err }

// ProviderError normalizes every LLM backend failure mode: auth failure,
// network failure or timeout, non-2xx status, malformed response body.
// It never carries tokens or raw response bodies.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
