package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateID       = errors.New("duplicate job id")
	ErrInvalidInput      = errors.New("invalid input")
	ErrQueueFull         = errors.New("queue full")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotReady          = errors.New("result not ready")
	ErrWaitTimeout       = errors.New("wait timed out")
	ErrWorkerCrashed     = errors.New("worker crashed")
)

// WorkerCrashMessage is stored on jobs that were mid-flight when the
// executor died, so callers can tell a crash apart from an ordinary
// generation failure.
const WorkerCrashMessage = "worker crashed while processing this job"
