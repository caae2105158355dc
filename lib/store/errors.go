package store

import (
	"fmt"

	"github.com/ValentinKolb/vKV/lib/versioning"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrStorageAccess marks a failure of the backend. The cause is kept.
	ErrStorageAccess = errors.New("storage access failed")
	// ErrStorageInitialization is returned when a store is requested outside the ready window of its manager.
	ErrStorageInitialization = errors.New("storage not initialized")
	// ErrNoSuchStore is returned for requests with an unknown store name.
	ErrNoSuchStore = errors.New("no such store")
	// ErrObsoleteVersion is returned by stores that reject obsolete writes.
	ErrObsoleteVersion = errors.New("obsolete version")
)

// AccessError marks err as ErrStorageAccess and adds a message
func AccessError(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrStorageAccess)
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

// RetCode is the numeric code of a store level error as sent over the wire
type RetCode uint16

const (
	RetCSuccess               RetCode = iota // 0: Command executed successfully.
	RetCInternalError                        // 1: Command failed due to an unclassified error.
	RetCNoSuchStore                          // 2: The store name is unknown.
	RetCMalformedVersion                     // 3: The supplied vector clock could not be decoded.
	RetCObsoleteVersion                      // 4: The write was rejected because it is obsolete.
	RetCStorageAccess                        // 5: The backend failed.
	RetCStorageInitialization                // 6: The store is not (or no longer) available.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCNoSuchStore:
		return "NoSuchStore"
	case RetCMalformedVersion:
		return "MalformedVersion"
	case RetCObsoleteVersion:
		return "ObsoleteVersion"
	case RetCStorageAccess:
		return "StorageAccess"
	case RetCStorageInitialization:
		return "StorageInitialization"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(c))
	}
}

// CodeOf maps an error to its return code. nil maps to RetCSuccess.
// A corrupt stored record is an access failure even though it wraps ErrMalformedVersion.
func CodeOf(err error) RetCode {
	switch {
	case err == nil:
		return RetCSuccess
	case errors.Is(err, ErrNoSuchStore):
		return RetCNoSuchStore
	case errors.Is(err, ErrObsoleteVersion):
		return RetCObsoleteVersion
	case errors.Is(err, ErrStorageInitialization):
		return RetCStorageInitialization
	case errors.Is(err, ErrStorageAccess):
		return RetCStorageAccess
	case errors.Is(err, versioning.ErrMalformedVersion):
		return RetCMalformedVersion
	default:
		return RetCInternalError
	}
}

// ErrorOf turns a return code and message received from a remote peer back into an
// error that matches the sentinel of the code with errors.Is.
func ErrorOf(code RetCode, msg string) error {
	if code == RetCSuccess {
		return nil
	}
	err := errors.Newf("remote error (code %s): %s", code, msg)
	switch code {
	case RetCNoSuchStore:
		return errors.Mark(err, ErrNoSuchStore)
	case RetCMalformedVersion:
		return errors.Mark(err, versioning.ErrMalformedVersion)
	case RetCObsoleteVersion:
		return errors.Mark(err, ErrObsoleteVersion)
	case RetCStorageAccess:
		return errors.Mark(err, ErrStorageAccess)
	case RetCStorageInitialization:
		return errors.Mark(err, ErrStorageInitialization)
	default:
		return err
	}
}
