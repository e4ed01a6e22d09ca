package circulation

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide how to react
// (404 / 422 / retry once / 503 ...).
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindPrecondition
	KindConflict
	KindTransient
	KindDataInconsistency
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPrecondition:
		return "precondition_failed"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindDataInconsistency:
		return "data_inconsistency"
	}
	return "unknown"
}

// Reason names the concrete rule that failed.
type Reason string

const (
	ReasonMemberNotFound      Reason = "MemberNotFound"
	ReasonBookNotFound        Reason = "BookNotFound"
	ReasonCopyNotFound        Reason = "CopyNotFound"
	ReasonLoanNotFound        Reason = "LoanNotFound"
	ReasonReservationNotFound Reason = "ReservationNotFound"
	ReasonFineNotFound        Reason = "FineNotFound"

	ReasonMemberNotActive        Reason = "MemberNotActive"
	ReasonExcessiveFines         Reason = "ExcessiveFines"
	ReasonLoanLimitReached       Reason = "LoanLimitReached"
	ReasonCopyNotAvailable       Reason = "CopyNotAvailable"
	ReasonInvalidDueDate         Reason = "InvalidDueDate"
	ReasonNotReturnable          Reason = "NotReturnable"
	ReasonInvalidCondition       Reason = "InvalidCondition"
	ReasonNotActive              Reason = "NotActive"
	ReasonInvalidExtension       Reason = "InvalidExtension"
	ReasonExtensionLimitExceeded Reason = "ExtensionLimitExceeded"
	ReasonReservationConflict    Reason = "ReservationConflict"
	ReasonDuplicateReservation   Reason = "DuplicateReservation"
	ReasonReasonRequired         Reason = "ReasonRequired"
	ReasonAlreadySettled         Reason = "AlreadySettled"
	ReasonAmountMismatch         Reason = "AmountMismatch"
	ReasonInvalidAmount          Reason = "InvalidAmount"
	ReasonInvalidFineType        Reason = "InvalidFineType"
	ReasonInvalidStatus          Reason = "InvalidStatus"
	ReasonCopyHasActiveLoans     Reason = "CopyHasActiveLoans"
	ReasonBookHasActiveLoans     Reason = "BookHasActiveLoans"
	ReasonBookHasReservations    Reason = "BookHasReservations"
	ReasonMemberHasHistory       Reason = "MemberHasHistory"
	ReasonInvalidInput           Reason = "InvalidInput"

	ReasonConcurrentUpdate Reason = "ConcurrentUpdate"
	ReasonStorage          Reason = "StorageUnavailable"
	ReasonNegativeBalance  Reason = "NegativeBalance"
)

// Error is the typed failure returned by every circulation operation.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 匹配 Kind；target 带 Reason 时 Reason 也必须相同。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrPrecondition      = &Error{Kind: KindPrecondition}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrTransient         = &Error{Kind: KindTransient}
	ErrDataInconsistency = &Error{Kind: KindDataInconsistency}

	ErrMemberNotFound      = &Error{Kind: KindNotFound, Reason: ReasonMemberNotFound}
	ErrBookNotFound        = &Error{Kind: KindNotFound, Reason: ReasonBookNotFound}
	ErrCopyNotFound        = &Error{Kind: KindNotFound, Reason: ReasonCopyNotFound}
	ErrLoanNotFound        = &Error{Kind: KindNotFound, Reason: ReasonLoanNotFound}
	ErrReservationNotFound = &Error{Kind: KindNotFound, Reason: ReasonReservationNotFound}
	ErrFineNotFound        = &Error{Kind: KindNotFound, Reason: ReasonFineNotFound}

	ErrMemberNotActive        = &Error{Kind: KindPrecondition, Reason: ReasonMemberNotActive}
	ErrExcessiveFines         = &Error{Kind: KindPrecondition, Reason: ReasonExcessiveFines}
	ErrLoanLimitReached       = &Error{Kind: KindPrecondition, Reason: ReasonLoanLimitReached}
	ErrCopyNotAvailable       = &Error{Kind: KindPrecondition, Reason: ReasonCopyNotAvailable}
	ErrInvalidDueDate         = &Error{Kind: KindPrecondition, Reason: ReasonInvalidDueDate}
	ErrNotReturnable          = &Error{Kind: KindPrecondition, Reason: ReasonNotReturnable}
	ErrNotActive              = &Error{Kind: KindPrecondition, Reason: ReasonNotActive}
	ErrInvalidExtension       = &Error{Kind: KindPrecondition, Reason: ReasonInvalidExtension}
	ErrExtensionLimitExceeded = &Error{Kind: KindPrecondition, Reason: ReasonExtensionLimitExceeded}
	ErrReservationConflict    = &Error{Kind: KindPrecondition, Reason: ReasonReservationConflict}
	ErrDuplicateReservation   = &Error{Kind: KindPrecondition, Reason: ReasonDuplicateReservation}
	ErrReasonRequired         = &Error{Kind: KindPrecondition, Reason: ReasonReasonRequired}
	ErrAlreadySettled         = &Error{Kind: KindPrecondition, Reason: ReasonAlreadySettled}
	ErrAmountMismatch         = &Error{Kind: KindPrecondition, Reason: ReasonAmountMismatch}
	ErrCopyHasActiveLoans     = &Error{Kind: KindPrecondition, Reason: ReasonCopyHasActiveLoans}
	ErrBookHasActiveLoans     = &Error{Kind: KindPrecondition, Reason: ReasonBookHasActiveLoans}
	ErrBookHasReservations    = &Error{Kind: KindPrecondition, Reason: ReasonBookHasReservations}
	ErrMemberHasHistory       = &Error{Kind: KindPrecondition, Reason: ReasonMemberHasHistory}
)

// ErrNoRecord is returned by repositories when a lookup by id or filter
// resolves nothing. Services turn it into a typed NotFound.
var ErrNoRecord = errors.New("record not found")

func notFound(r Reason, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Reason: r, Message: fmt.Sprintf(format, args...)}
}

func precondition(r Reason, format string, args ...any) *Error {
	return &Error{Kind: KindPrecondition, Reason: r, Message: fmt.Sprintf(format, args...)}
}

// Conflict wraps err as an optimistic/locking conflict. Used by store implementations.
func Conflict(msg string, err error) *Error {
	return &Error{Kind: KindConflict, Reason: ReasonConcurrentUpdate, Message: msg, Err: err}
}

// Transient wraps err as a retry-safe storage failure. Used by store implementations.
func Transient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Reason: ReasonStorage, Message: msg, Err: err}
}

// lookup 把仓储的 ErrNoRecord 转成带 Reason 的 NotFound，其余错误按存储错误归类。
func lookup(err error, r Reason, entity, id string) error {
	if errors.Is(err, ErrNoRecord) {
		return notFound(r, "%s %s not found", entity, id)
	}
	return storageErr(err)
}

// storageErr leaves typed errors untouched and classifies everything else.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transient("storage operation timed out", err)
	}
	return Transient("storage failure", err)
}

// KindOf returns the Kind of a circulation error, 0 for foreign errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

// ReasonOf returns the Reason of a circulation error, "" for foreign errors.
func ReasonOf(err error) Reason {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}
