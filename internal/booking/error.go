package booking

import (
	"errors"
	"fmt"
)

var (
	ErrIdempotencyKey = errors.New("idempotency key not found")
	ErrNextID         = errors.New("get next id from generator")
	ErrLogic          = errors.New("logic error")
	ErrRecordNotFound = errors.New("record not found")
	ErrConflict       = errors.New("reservation conflict")
	ErrRateTable      = errors.New("rate table is missing a price")

	// ErrIdempotencyKeyTaken is returned by a store when another transaction
	// committed a reservation under the same idempotency key first.
	ErrIdempotencyKeyTaken = errors.New("idempotency key already used")
)

type AvailabilityError struct {
	verdict Verdict
}

func NewAvailabilityError(verdict Verdict) *AvailabilityError {
	return &AvailabilityError{verdict: verdict}
}

func IsAvailabilityError(err error) *AvailabilityError {
	if err == nil {
		return nil
	}

	var availabilityError *AvailabilityError

	if errors.As(err, &availabilityError) {
		return availabilityError
	}

	return nil
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("reservation is unavailable: %s", e.verdict.Reason)
}

func (e *AvailabilityError) Verdict() Verdict {
	return e.verdict
}

// ConflictError is returned by stores when the authoritative write-time check fails.
type ConflictError struct {
	Reason         Reason
	RoomID         string
	ProgramID      string
	Conflicting    int
	AvailableStock int
}

func NewRoomConflict(roomID string, conflicting int) *ConflictError {
	//nolint:exhaustruct
	return &ConflictError{Reason: ReasonDateConflict, RoomID: roomID, Conflicting: conflicting}
}

func NewStockConflict(programID string, availableStock int) *ConflictError {
	//nolint:exhaustruct
	return &ConflictError{Reason: ReasonInsufficientStock, ProgramID: programID, AvailableStock: availableStock}
}

func (e *ConflictError) Error() string {
	if e.ProgramID != "" {
		return fmt.Sprintf("program '%v' has %d places left: %v", e.ProgramID, e.AvailableStock, ErrConflict)
	}

	return fmt.Sprintf("room '%v' has %d conflicting reservations: %v", e.RoomID, e.Conflicting, ErrConflict)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func (e *ConflictError) verdict() Verdict {
	v := unavailable(e.Reason)

	if e.ProgramID != "" {
		stock := e.AvailableStock
		v.Details.Conflicts = []ProgramConflict{{
			ProgramID: e.ProgramID,
			Reason:    e.Reason,
			Details:   Details{AvailableStock: &stock}, //nolint:exhaustruct
		}}

		return v
	}

	v.Details.ConflictingReservations = e.Conflicting

	return v
}

type InputError struct {
	fields map[string][]string
}

func newInputError() *InputError {
	return &InputError{
		fields: make(map[string][]string),
	}
}

func IsInputError(err error) *InputError {
	if err == nil {
		return nil
	}

	var inputError *InputError

	if errors.As(err, &inputError) {
		return inputError
	}

	return nil
}

func (ie *InputError) fieldsCount() int {
	return len(ie.fields)
}

func (ie *InputError) addError(field, msg string) {
	ie.fields[field] = append(ie.fields[field], msg)
}

func (ie *InputError) addViolations(violations Violations) {
	for _, v := range violations {
		if v.Severity == SeverityError {
			ie.addError(v.Field, v.Message)
		}
	}
}

func (ie *InputError) Error() string {
	return fmt.Sprintf("%+v", ie.fields)
}

func (ie *InputError) Fields() map[string][]string {
	return ie.fields
}
