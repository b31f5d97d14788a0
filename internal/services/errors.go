package services

import (
	"errors"
	"strings"
)

// Common service errors
var (
	ErrNotFound          = errors.New("record not found")
	ErrNoActiveYear      = errors.New("organization has no active fiscal year")
	ErrClosingInProgress = errors.New("a year-end closing is already in progress for this organization")
	ErrInvalidState      = errors.New("invalid state transition")
)

// IssueKind classifies a failed closing precondition
type IssueKind string

const (
	// IssueConfiguration covers a missing, duplicated or misplaced P&L ledger
	IssueConfiguration IssueKind = "configuration"
	// IssueStateConflict covers a missing active year or an already existing next year
	IssueStateConflict IssueKind = "state_conflict"
	// IssueConsistency covers an unbalanced trial balance
	IssueConsistency IssueKind = "consistency"
)

// ValidationIssue is one failed precondition
type ValidationIssue struct {
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
}

// ValidationError carries every failed precondition of a closing attempt
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	return "year-end closing validation failed: " + strings.Join(e.Messages(), "; ")
}

// Messages returns the human readable message of every issue
func (e *ValidationError) Messages() []string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.Message)
	}
	return msgs
}

// Has reports whether any issue is of the given kind
func (e *ValidationError) Has(kind IssueKind) bool {
	for _, issue := range e.Issues {
		if issue.Kind == kind {
			return true
		}
	}
	return false
}
