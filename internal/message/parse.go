package message

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"strconv"

	"github.com/wagiedev/transactor-go/internal/errors"
)

// maxExactFloatID is the largest id a float can carry without rounding (2^53).
const maxExactFloatID = 1 << 53

var (
	errNotNumber  = stderrors.New("not a number")
	errFractional = stderrors.New("not an integer")
	errNegative   = stderrors.New("negative")
	errInexact    = stderrors.New("exceeds exact integer range")
)

// Decision is the classified form of one inbound frame.
type Decision struct {
	Op   Op
	ID   uint64
	Body any
}

// Parse classifies one decoded frame.
//
// A stop frame needs no further fields. Request and response frames need a
// numeric non-negative integer id and a body (which may be null).
//
// Returns a *errors.RejectedError when the frame is malformed.
func Parse(data any) (*Decision, error) {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, reject("message is not an object", nil, data)
	}

	rawOp, ok := obj[FieldOp]
	if !ok {
		return nil, reject("missing 'op' field", nil, data)
	}

	opName, ok := rawOp.(string)
	if !ok {
		return nil, reject("'op' field is not a string", nil, data)
	}

	op := Op(opName)

	switch op {
	case OpStop:
		return &Decision{Op: OpStop}, nil

	case OpRequest, OpResponse:

	default:
		return nil, reject(fmt.Sprintf("unknown op %q", opName), nil, data)
	}

	rawID, ok := obj[FieldID]
	if !ok {
		return nil, reject("missing 'id' field", nil, data)
	}

	id, err := ToID(rawID)
	if err != nil {
		return nil, reject("invalid 'id' field", err, data)
	}

	body, ok := obj[FieldBody]
	if !ok {
		return nil, reject("missing 'body' field", nil, data)
	}

	return &Decision{Op: op, ID: id, Body: body}, nil
}

// ToID converts a decoded numeric value into a correlation id.
//
// Fractional, negative, and imprecise values are rejected, never truncated.
func ToID(v any) (uint64, error) {
	switch n := v.(type) {
	case json.Number:
		if id, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return id, nil
		}

		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s", errNotNumber, n)
		}

		return floatID(f)
	case float64:
		return floatID(n)
	case float32:
		return floatID(float64(n))
	case uint64:
		return n, nil
	case uint:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case int64:
		return signedID(n)
	case int:
		return signedID(int64(n))
	case int32:
		return signedID(int64(n))
	default:
		return 0, fmt.Errorf("%w: %T", errNotNumber, v)
	}
}

func floatID(f float64) (uint64, error) {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return 0, fmt.Errorf("%w: %v", errNotNumber, f)
	case f < 0:
		return 0, fmt.Errorf("%w: %v", errNegative, f)
	case f != math.Trunc(f):
		return 0, fmt.Errorf("%w: %v", errFractional, f)
	case f > maxExactFloatID:
		return 0, fmt.Errorf("%w: %v", errInexact, f)
	}

	return uint64(f), nil
}

func signedID(n int64) (uint64, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", errNegative, n)
	}

	return uint64(n), nil
}

func reject(reason string, err error, data any) *errors.RejectedError {
	return &errors.RejectedError{Reason: reason, Err: err, Data: data}
}
