package refcache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrCacheUnavailable = errors.New("refcache: cache unavailable")
	ErrDeserialization  = errors.New("refcache: stored payload does not match domain type")
	ErrNotPopulated     = errors.New("refcache: domain not populated")
	ErrWriteRejected    = errors.New("refcache: store rejected the write")
)

// CacheUnavailableError is a transport or server failure of the shared store.
// It is never turned into an empty result.
type CacheUnavailableError struct {
	Domain string
	Op     string // get, set, add, exists, del, gen_snapshot, gen_bump
	Err    error
}

func (e *CacheUnavailableError) Error() string {
	return fmt.Sprintf("refcache: %s %q: cache unavailable: %v", e.Op, e.Domain, e.Err)
}

func (e *CacheUnavailableError) Unwrap() error        { return e.Err }
func (e *CacheUnavailableError) Is(target error) bool { return target == ErrCacheUnavailable }

// DeserializationError means the stored payload could not be decoded as the
// domain's element type.
type DeserializationError struct {
	Domain string
	Err    error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("refcache: decode %q: %v", e.Domain, e.Err)
}

func (e *DeserializationError) Unwrap() error        { return e.Err }
func (e *DeserializationError) Is(target error) bool { return target == ErrDeserialization }

// WriteRejectedError means the store refused a refresh (memory pressure). The
// previous entry has been dropped, so the next read reloads from the source.
type WriteRejectedError struct {
	Domain string
}

func (e *WriteRejectedError) Error() string {
	return fmt.Sprintf("refcache: refresh %q: store rejected the write; entry dropped", e.Domain)
}

func (e *WriteRejectedError) Is(target error) bool { return target == ErrWriteRejected }

// NotPopulatedError is returned by WaitUntilPopulated. TimedOut is set when the
// caller's timeout elapsed; otherwise Err holds the context error.
type NotPopulatedError struct {
	Domain   string
	TimedOut bool
	Waited   time.Duration
	Err      error
}

func (e *NotPopulatedError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("refcache: %q not populated: timed out after %s", e.Domain, e.Waited)
	}
	return fmt.Sprintf("refcache: %q not populated: %v", e.Domain, e.Err)
}

func (e *NotPopulatedError) Unwrap() error        { return e.Err }
func (e *NotPopulatedError) Is(target error) bool { return target == ErrNotPopulated }

type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q failed: gen bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate %q: gen bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Key)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}

func (e *InvalidateError) Is(target error) bool { return target == ErrCacheUnavailable }

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
