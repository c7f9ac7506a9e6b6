// Package approval holds the rules of an approval request independent of storage:
// its types and statuses, the typed change payloads, and the transition guards.
package approval

import (
	"sort"
	"strings"
	"unicode/utf8"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/model"
)

// Type is the kind of change a request proposes.
type Type string

const (
	TypeCreation Type = model.ApprovalTypeCreation
	TypeEdit     Type = model.ApprovalTypeEdit
	TypeDeletion Type = model.ApprovalTypeDeletion
)

// Status is the lifecycle state of a request: PENDING until decided, then terminal.
type Status string

const (
	StatusPending  Status = model.ApprovalPending
	StatusApproved Status = model.ApprovalApproved
	StatusRejected Status = model.ApprovalRejected
)

const (
	// MinRejectionReasonLength is enforced by the HTTP layer when binding a rejection.
	MinRejectionReasonLength = 10
	// CancellationReason is recorded when the requester withdraws a pending request.
	CancellationReason = "Cancelled by requester"
)

func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case TypeCreation, TypeEdit, TypeDeletion:
		return t, nil
	default:
		return "", apperror.Validation("approval_type must be one of CREATION, EDIT, DELETION")
	}
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	default:
		return "", apperror.Validation("status must be one of PENDING, APPROVED, REJECTED")
	}
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// EnsurePending fails with AlreadyDecided unless status is PENDING.
func EnsurePending(status string) error {
	if Status(status) != StatusPending {
		return apperror.AlreadyDecided("a decision has already been made on this request").
			WithParams(map[string]interface{}{"status": status})
	}
	return nil
}

// ValidateRejectionReason requires a non-blank reason.
func ValidateRejectionReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperror.Validation("rejection reason is required")
	}
	return nil
}

// MeetsReasonLength reports whether reason is long enough for an interactive rejection.
func MeetsReasonLength(reason string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(reason)) >= MinRejectionReasonLength
}

// NormalizeRoles trims, de-duplicates and sorts role names, dropping empty ones.
func NormalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Intersects reports whether any role appears in both sets.
func Intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, r := range a {
		set[r] = struct{}{}
	}
	for _, r := range b {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}
