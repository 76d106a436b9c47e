package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is matched by every ContractError.
var ErrInvalidInput = errors.New("invalid input")

// ContractError reports a structural problem with the input. It is the only
// error Run returns besides cancellation; bad data inside rows is recorded
// as validation codes instead.
type ContractError struct {
	Field   string
	Message string
}

func (e *ContractError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidInput, e.Message)
	}
	return fmt.Sprintf("%s: %s %s", ErrInvalidInput, e.Field, e.Message)
}

// Is lets errors.Is(err, ErrInvalidInput) match.
func (e *ContractError) Is(target error) bool { return target == ErrInvalidInput }

func validate(in *Input) error {
	if in == nil {
		return &ContractError{Message: "input is nil"}
	}
	switch {
	case in.NewClients == nil:
		return &ContractError{Field: "new_clients", Message: "is missing"}
	case in.Bookings == nil:
		return &ContractError{Field: "bookings", Message: "is missing"}
	case in.Purchases == nil:
		return &ContractError{Field: "purchases", Message: "is missing"}
	}
	return nil
}
