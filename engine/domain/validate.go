package domain

import "unicode/utf8"

// Question length bounds enforced at the transport boundary.
const (
	MinQuestionLen = 3
	MaxQuestionLen = 1000
)

// ValidateDocument checks a parsed page before ingestion. Empty content is
// allowed: the chunker emits a single empty chunk for it.
func ValidateDocument(doc Document) error {
	if doc.URL == "" {
		return ErrEmptyURL
	}
	if doc.Title == "" {
		return ErrEmptyTitle
	}
	return nil
}

// ValidateQuestion checks an inbound question against the length bounds.
func ValidateQuestion(q string) error {
	n := utf8.RuneCountInString(q)
	if n < MinQuestionLen {
		return ErrQuestionTooShort
	}
	if n > MaxQuestionLen {
		return ErrQuestionTooLong
	}
	return nil
}
