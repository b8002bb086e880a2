// Package decoder declares the MessageDecoder contract that extracts a
// semantic key from an encoded field payload (typically GRIB). Its
// implementation is explicitly out of scope (spec.md §1: "message
// decoders that extract keys from GRIB" are an external collaborator,
// specified only at their interface).
package decoder

import "github.com/ecmwf-go/fdb/pkg/key"

// MessageDecoder extracts the keyword->value pairs a payload carries.
// fdb itself never interprets payload bytes, and nothing in this module
// implements, registers or calls a MessageDecoder.
type MessageDecoder interface {
	// Decode returns the keys embedded in payload. It must not retain
	// payload after returning.
	Decode(payload []byte) (*key.Key, error)
}
