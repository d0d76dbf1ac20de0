package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/cerebro-dash/apiserver/internal/srp6"
	"github.com/go-sql-driver/mysql"
	"github.com/samber/oops"
)

var (
	// ErrDuplicateAccount is returned when a username is already provisioned.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrAccountNotFound is returned for operations on an unknown account id.
	ErrAccountNotFound = errors.New("account not found")

	// ErrWeakEntropy is returned when no salt could be drawn. It is not retried.
	ErrWeakEntropy = srp6.ErrWeakEntropy

	// ErrUpstreamUnavailable is returned when a store times out or refuses
	// the connection. Callers decide whether to retry.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrInvalidInput is returned for requests that fail validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCategory is returned for a category outside the fixed set.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrInvalidCredentials is returned when an operator login fails.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExportDisabled is returned when no object storage is configured.
	ErrExportDisabled = errors.New("directory export is not configured")
)

// storeError classifies a failure from the named store. Timeouts and
// connection failures become ErrUpstreamUnavailable; anything else keeps its
// cause under a generic code.
func storeError(storeName string, err error) error {
	if isUnavailable(err) {
		return oops.Code("UPSTREAM_UNAVAILABLE").
			With("store", storeName).
			Wrap(fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, storeName, err))
	}
	return oops.Code("STORE_FAILED").
		With("store", storeName).
		Wrapf(err, "%s store", storeName)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func accountNotFound(id int64) error {
	return oops.Code("ACCOUNT_NOT_FOUND").
		With("account_id", id).
		Wrap(ErrAccountNotFound)
}

func invalidInput(format string, args ...any) error {
	return oops.Code("INVALID_INPUT").
		Wrap(fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...)))
}
