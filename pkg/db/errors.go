package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	mssql "github.com/denisenkom/go-mssqldb"
)

// ErrorKind classifies a connection or query failure.
type ErrorKind string

const (
	// Connect-phase kinds.
	KindAuthFailed       ErrorKind = "auth_failed"
	KindHostUnreachable  ErrorKind = "host_unreachable"
	KindTimeout          ErrorKind = "timeout"
	KindDatabaseNotFound ErrorKind = "database_not_found"

	// Execute-phase kinds.
	KindSyntaxError      ErrorKind = "syntax_error"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindExecutionTimeout ErrorKind = "execution_timeout"
	KindConnectionLost   ErrorKind = "connection_lost"

	// Driver errors that fit no bucket above.
	KindUnknown ErrorKind = "unknown"
)

// Error is a structured connection or query failure with the driver detail
// preserved.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Number  int32     `json:"number,omitempty"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// SQL Server error numbers the engine cares about.
const (
	mssqlLoginFailed    = 18456
	mssqlCannotOpenDB   = 4060
	mssqlDBDoesNotExist = 911
	mssqlSyntaxError    = 102
	mssqlSyntaxNearKw   = 156
	mssqlSelectDenied   = 229
	mssqlExecDenied     = 230
)

func classifyConnect(err error) *Error {
	if e := asClassified(err); e != nil {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: err.Error()}
	}

	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Number {
		case mssqlLoginFailed:
			return &Error{Kind: KindAuthFailed, Number: sqlErr.Number, Message: sqlErr.Message}
		case mssqlCannotOpenDB, mssqlDBDoesNotExist:
			return &Error{Kind: KindDatabaseNotFound, Number: sqlErr.Number, Message: sqlErr.Message}
		}
		return &Error{Kind: KindUnknown, Number: sqlErr.Number, Message: sqlErr.Message}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTimeout, Message: err.Error()}
		}
		return &Error{Kind: KindHostUnreachable, Message: err.Error()}
	}

	return &Error{Kind: KindUnknown, Message: err.Error()}
}

func classifyExecute(err error) *Error {
	if e := asClassified(err); e != nil {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindExecutionTimeout, Message: err.Error()}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return &Error{Kind: KindConnectionLost, Message: err.Error()}
	}

	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Number {
		case mssqlSyntaxError, mssqlSyntaxNearKw:
			return &Error{Kind: KindSyntaxError, Number: sqlErr.Number, Message: sqlErr.Message}
		case mssqlSelectDenied, mssqlExecDenied:
			return &Error{Kind: KindPermissionDenied, Number: sqlErr.Number, Message: sqlErr.Message}
		}
		return &Error{Kind: KindUnknown, Number: sqlErr.Number, Message: sqlErr.Message}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindExecutionTimeout, Message: err.Error()}
		}
		return &Error{Kind: KindConnectionLost, Message: err.Error()}
	}

	return &Error{Kind: KindUnknown, Message: err.Error()}
}

func asClassified(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
