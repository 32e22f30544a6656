package swcache

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateEntry is returned when one batch holds the same request
	// identity twice.
	ErrDuplicateEntry = errors.New("swcache: duplicate request in batch")
	// ErrSetRejected is returned when a provider refuses a batch write
	// under pressure.
	ErrSetRejected = errors.New("swcache: provider rejected write")
)

// FetchError is a failed network fetch. Status is set when the network
// answered with a non-2xx status during install; Err is set when the call
// itself failed.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: bad status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("fetch %s: unknown error", e.URL)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Install stages, reported in InstallError.Stage.
const (
	StageOpen  = "open"
	StageFetch = "fetch"
	StageWrite = "write"
)

// InstallError reports why an install cycle failed. Nothing from the batch
// is stored when it is returned.
type InstallError struct {
	Store string
	Stage string
	Err   error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %q failed at %s: %v", e.Store, e.Stage, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

// DeleteError is returned when both the generation bump and the provider
// delete failed, so the entry may still be served.
type DeleteError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete %q failed: gen bump and delete failed: bump=%v; delete=%v",
		e.Key, e.BumpErr, e.DelErr)
}

func (e *DeleteError) Unwrap() []error {
	return []error{e.BumpErr, e.DelErr}
}
