// Package ipc provides Parcel, the ordered typed buffer requests and replies
// travel in between a client and the privileged side.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrShortRead is returned when a Pop runs past the last field.
	ErrShortRead = errors.New("ipc: read past end of parcel")
	// ErrKindMismatch is returned when the next field has a different kind.
	ErrKindMismatch = errors.New("ipc: field kind mismatch")
)

// Kind tags one parcel field.
type Kind string

const (
	KindString Kind = "string"
	KindInt32  Kind = "int32"
	KindBytes  Kind = "bytes"
)

// Field is one typed value.
type Field struct {
	Kind  Kind   `json:"kind"`
	Str   string `json:"str,omitempty"`
	Int   int32  `json:"int,omitempty"`
	Bytes []byte `json:"bytes,omitempty"`
}

// Parcel is an ordered list of typed fields with a read cursor.
// Pushes append; pops consume from the front. Not safe for concurrent use.
type Parcel struct {
	fields []Field
	pos    int
}

// New returns an empty parcel.
func New() *Parcel {
	return &Parcel{}
}

// PushString appends a string and returns p for chaining.
func (p *Parcel) PushString(s string) *Parcel {
	p.fields = append(p.fields, Field{Kind: KindString, Str: s})
	return p
}

// PushInt32 appends an int32. It satisfies the dispatcher's Reply; use PushInt
// when building a request fluently.
func (p *Parcel) PushInt32(v int32) {
	p.fields = append(p.fields, Field{Kind: KindInt32, Int: v})
}

// PushBytes appends a copy of b and returns p for chaining.
func (p *Parcel) PushBytes(b []byte) *Parcel {
	p.fields = append(p.fields, Field{Kind: KindBytes, Bytes: append([]byte(nil), b...)})
	return p
}

// PushInt appends an int32 and returns p for chaining.
func (p *Parcel) PushInt(v int32) *Parcel {
	p.PushInt32(v)
	return p
}

func (p *Parcel) next(k Kind) (Field, error) {
	if p.pos >= len(p.fields) {
		return Field{}, fmt.Errorf("%w: want %s at %d", ErrShortRead, k, p.pos)
	}
	f := p.fields[p.pos]
	if f.Kind != k {
		return Field{}, fmt.Errorf("%w: want %s at %d, have %s", ErrKindMismatch, k, p.pos, f.Kind)
	}
	p.pos++
	return f, nil
}

// PopString consumes the next field, which must be a string.
func (p *Parcel) PopString() (string, error) {
	f, err := p.next(KindString)
	return f.Str, err
}

// PopInt32 consumes the next field, which must be an int32.
func (p *Parcel) PopInt32() (int32, error) {
	f, err := p.next(KindInt32)
	return f.Int, err
}

// PopBytes consumes the next field, which must be a byte slice.
func (p *Parcel) PopBytes() ([]byte, error) {
	f, err := p.next(KindBytes)
	return f.Bytes, err
}

// Len is the total number of fields, read or not.
func (p *Parcel) Len() int {
	return len(p.fields)
}

// Remaining is the number of fields not yet popped.
func (p *Parcel) Remaining() int {
	return len(p.fields) - p.pos
}

// Rewind moves the read cursor back to the first field.
func (p *Parcel) Rewind() {
	p.pos = 0
}

// MarshalJSON encodes the fields only; the cursor is not part of the wire form.
func (p *Parcel) MarshalJSON() ([]byte, error) {
	fields := p.fields
	if fields == nil {
		fields = []Field{}
	}
	return json.Marshal(struct {
		Fields []Field `json:"fields"`
	}{fields})
}

// UnmarshalJSON replaces the fields and rewinds the cursor. Unknown kinds are rejected.
func (p *Parcel) UnmarshalJSON(data []byte) error {
	var wire struct {
		Fields []Field `json:"fields"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	for i, f := range wire.Fields {
		switch f.Kind {
		case KindString, KindInt32, KindBytes:
		default:
			return fmt.Errorf("%w: unknown kind %q at %d", ErrKindMismatch, f.Kind, i)
		}
	}
	p.fields = wire.Fields
	p.pos = 0
	return nil
}
