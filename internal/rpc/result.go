package rpc

import (
	"encoding/json"

	"github.com/streamspace-dev/pluginrt/internal/rterrors"
)

// Result is the wire envelope for every RPC response: a two-element
// tagged result [error?, value?], per spec.md §5's wire protocol
// contract. Exactly one of Err/Value is populated on the wire.
type Result[T any] struct {
	Err   *rterrors.Response `json:"-"`
	Value T                  `json:"-"`
}

// Ok builds a successful Result.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Fail builds a failed Result from a runtime error.
func Fail[T any](err *rterrors.Error) Result[T] {
	resp := err.ToResponse()
	return Result[T]{Err: &resp}
}

// MarshalJSON encodes as the two-element tagged array [error, value].
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal([2]any{r.Err, nil})
	}
	pair := [2]any{r.Err, r.Value}
	return json.Marshal(pair)
}

// UnmarshalJSON decodes the two-element tagged array form.
func (r *Result[T]) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair[0]) > 0 && string(pair[0]) != "null" {
		var errResp rterrors.Response
		if err := json.Unmarshal(pair[0], &errResp); err != nil {
			return err
		}
		r.Err = &errResp
	}
	if len(pair[1]) > 0 && string(pair[1]) != "null" {
		var v T
		if err := json.Unmarshal(pair[1], &v); err != nil {
			return err
		}
		r.Value = v
	}
	return nil
}
