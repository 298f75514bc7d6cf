// Package gql holds the wire types exchanged with the movie tracker API.
package gql

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Request is a named query or mutation with its variables. Values are
// treated as immutable once handed to the client.
type Request struct {
	OperationName string         `json:"operationName,omitempty"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response is the result envelope. Data and Errors may both be present
// when the server reports a partial success.
type Response struct {
	Data       json.RawMessage `json:"data,omitempty"`
	Errors     gqlerror.List   `json:"errors,omitempty"`
	Extensions map[string]any  `json:"extensions,omitempty"`
}

var null = []byte("null")

// HasData reports whether the envelope carries a non-null data member.
func (r *Response) HasData() bool {
	if r == nil {
		return false
	}
	d := bytes.TrimSpace(r.Data)
	return len(d) > 0 && !bytes.Equal(d, null)
}

// HasErrors reports whether the server returned protocol errors.
func (r *Response) HasErrors() bool { return r != nil && len(r.Errors) > 0 }

// UnmarshalData decodes the data member into v. A missing or null data
// member leaves v untouched.
func (r *Response) UnmarshalData(v any) error {
	if !r.HasData() {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("gql: decode data: %w", err)
	}
	return nil
}

// DataMap decodes the data member into a generic map. Numbers are kept as
// json.Number so large integer ids survive. It returns nil without error
// when the envelope has no data.
func (r *Response) DataMap() (map[string]any, error) {
	if !r.HasData() {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.Data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("gql: decode data: %w", err)
	}
	return m, nil
}

// NewResponse builds an envelope around already-decoded data. It is used
// when replaying cached values.
func NewResponse(data map[string]any) (*Response, error) {
	if data == nil {
		return &Response{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("gql: encode data: %w", err)
	}
	return &Response{Data: raw}, nil
}
