package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrScanNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "scan")
}

// ErrInsufficientCredits carries the required/current/deficit payload so the
// HTTP layer can answer 402 with useful numbers.
type ErrInsufficientCredits struct {
	error
	Required  int
	Available int
}

func NewErrInsufficientCredits(required, available int) *ErrInsufficientCredits {
	return &ErrInsufficientCredits{
		error:     fmt.Errorf("insufficient credits: required %d, available %d", required, available),
		Required:  required,
		Available: available,
	}
}

func (e *ErrInsufficientCredits) Deficit() int {
	return e.Required - e.Available
}

type ErrScanAlreadyFinished struct {
	error
}

func NewErrScanAlreadyFinished(id uuid.UUID) *ErrScanAlreadyFinished {
	return &ErrScanAlreadyFinished{fmt.Errorf("scan %s already reached a terminal state", id)}
}

type ErrScanInProgress struct {
	error
}

func NewErrScanInProgress(id uuid.UUID) *ErrScanInProgress {
	return &ErrScanInProgress{fmt.Errorf("scan %s is still being processed", id)}
}

type ErrInvalidSitemapURL struct {
	error
}

func NewErrInvalidSitemapURL(message string) *ErrInvalidSitemapURL {
	return &ErrInvalidSitemapURL{fmt.Errorf("bad request: %s", message)}
}

type ErrInvalidCreditAmount struct {
	error
}

func NewErrInvalidCreditAmount(amount, maxTopUp int) *ErrInvalidCreditAmount {
	return &ErrInvalidCreditAmount{fmt.Errorf("credit amount %d is outside the allowed range 1..%d", amount, maxTopUp)}
}

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(id int64) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("job %d not found", id)}
}

type ErrJobAccessForbidden struct {
	error
}

func NewErrJobAccessForbidden(id int64) *ErrJobAccessForbidden {
	return &ErrJobAccessForbidden{fmt.Errorf("job %d does not belong to the caller", id)}
}
