package errors

import (
	"fmt"
)

type ErrCode int

type SetupErr struct {
	Code ErrCode
	Msg  string
}

func (e *SetupErr) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Msg)
}

func new(code ErrCode, msg string) *SetupErr {
	return &SetupErr{
		Code: code,
		Msg:  msg,
	}
}

const (
	privilege ErrCode = iota
	userDB
	drift
)

// Pre-defined errors.
var (
	NotRoot          = new(privilege, "must run as root")
	UserCreateFailed = new(userDB, "useradd failed")
	UserLookupFailed = new(userDB, "user database lookup failed")
	UserMissing      = new(userDB, "service account does not exist")

	MissingArtifact = new(drift, "expected artifact is missing")
	ContentInvalid  = new(drift, "artifact content does not parse")
	ModeDrift       = new(drift, "artifact permission bits differ from packaged default")
	OwnerDrift      = new(drift, "artifact is not owned by the service account")
)
