package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")

	// Feed errors.
	ErrConnectTimeout     = errors.New("price feed connect timeout")
	ErrNotConnected       = errors.New("price feed not connected")
	ErrReconnectExhausted = errors.New("price feed reconnect attempts exhausted")

	// Lifecycle errors. All are recoverable: the caller simply does not get a
	// new position and may retry later.
	ErrAlreadyOpen       = errors.New("a position is already open")
	ErrInsufficientFunds = errors.New("stake exceeds available bankroll")
	ErrNoOpenTrade       = errors.New("no open trade")
	ErrTradeNotStarted   = errors.New("trade not started")
	ErrTradeStarted      = errors.New("trade already started")
	ErrSessionLocked     = errors.New("session locked by red-zone threshold")
)

// EntryRejectedError is returned by Open when the entry validator rejects the
// trade. Reasons holds every failed check, not just the first.
type EntryRejectedError struct {
	Reasons []string
}

func (e *EntryRejectedError) Error() string {
	return fmt.Sprintf("entry rejected: %s", strings.Join(e.Reasons, "; "))
}
