package service

import "errors"

var (
	// ErrInstrumentExists is returned when creating an instrument whose code is taken
	ErrInstrumentExists = errors.New("instrument already exists")

	// ErrInstrumentNotFound is returned when a code resolves to no instrument
	ErrInstrumentNotFound = errors.New("instrument not found")

	// ErrInvalidRequest is returned when request data is invalid or incomplete
	ErrInvalidRequest = errors.New("invalid request")

	// ErrOrderNotFound is returned when an order id resolves to nothing
	ErrOrderNotFound = errors.New("order not found")

	// ErrUsageExhausted is returned when the conditional usage increment finds
	// the global limit already reached
	ErrUsageExhausted = errors.New("instrument usage limit exhausted")

	// ErrUsageAlreadyRecorded is returned when an order already has a usage record
	ErrUsageAlreadyRecorded = errors.New("usage already recorded for order")
)
