package service

import "errors"

var (
	// ErrNotFound is returned for unknown offer or invoice references.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateRank is returned when the rank is already assigned for
	// the offer.
	ErrDuplicateRank = errors.New("rank already assigned for this offer")

	// ErrNotEligible is returned when the invoice is not in the offer's
	// current eligible set.
	ErrNotEligible = errors.New("invoice is not eligible for this offer")

	// ErrNotHitCounter is returned when a winner operation targets an
	// offer that is not a festival hit-counter.
	ErrNotHitCounter = errors.New("winner selection requires a hit counter offer")

	// ErrOfferCompleted is returned when an operation targets an offer
	// already in its terminal state.
	ErrOfferCompleted = errors.New("offer is already completed")

	// ErrOfferNotActive is returned when deactivating a non-active offer.
	ErrOfferNotActive = errors.New("offer is not active")

	// ErrWinnerAttached is returned when cancelling an invoice that an
	// announced winner references. Winners are durable history; the
	// invoice stays active.
	ErrWinnerAttached = errors.New("invoice is tied to an announced winner")

	// ErrNoWinners is returned when completing an offer with no winners
	// announced yet.
	ErrNoWinners = errors.New("no winners announced for this offer")

	// ErrNotEnoughEligible is returned by the random draw when fewer than
	// three distinct customers qualify.
	ErrNotEnoughEligible = errors.New("not enough eligible customers for winner selection")
)
