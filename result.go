package ike

import "github.com/msgboxio/ikev1/protocol"

// StfStatus is what a transition handler hands back to the dispatcher.
// Handlers never advance state or schedule timers themselves; the
// dispatcher owns every side effect of the result.
type StfStatus int

const (
	StfOk StfStatus = iota
	StfSuspend
	StfIgnore
	StfFail
	StfFatal
	StfInternalError
)

func (s StfStatus) String() string {
	switch s {
	case StfOk:
		return "OK"
	case StfSuspend:
		return "SUSPEND"
	case StfIgnore:
		return "IGNORE"
	case StfFail:
		return "FAIL"
	case StfFatal:
		return "FATAL"
	case StfInternalError:
		return "INTERNAL_ERROR"
	default:
		return "Unknown"
	}
}

// Result pairs a status with the notification a failure should emit
type Result struct {
	Status StfStatus
	Notify protocol.NotificationType
}

func Ok() Result            { return Result{Status: StfOk} }
func Suspend() Result       { return Result{Status: StfSuspend} }
func Ignore() Result        { return Result{Status: StfIgnore} }
func Fatal() Result         { return Result{Status: StfFatal} }
func InternalError() Result { return Result{Status: StfInternalError} }

func Fail(n protocol.NotificationType) Result {
	return Result{Status: StfFail, Notify: n}
}
