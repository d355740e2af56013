package descriptor

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// Signature version byte. Bump when the canonical serialization changes.
const sigVersion = 0x01

// Section tags for the canonical serialization.
const (
	tagField       = 0x01
	tagMethod      = 0x02
	tagStatic      = 0x03
	tagConstructor = 0x04
)

// Signature renders the deterministic structural signature of a class:
// field names and type tokens, method names and parameter/result tokens,
// constructor parameter tokens, all in descriptor order. Rebuilding the
// same class always yields the same string.
func Signature(d *Class) string {
	var b strings.Builder

	b.WriteString("class:")
	b.WriteString(d.Name)

	b.WriteString("|fields:")
	for i, f := range d.Fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Name)
		b.WriteByte(':')
		b.WriteString(f.Spec.Token())
		if f.ReadOnly {
			b.WriteString(":ro")
		}
	}

	b.WriteString("|methods:")
	writeMethodSigs(&b, d.Methods)

	b.WriteString("|statics:")
	writeMethodSigs(&b, d.Statics)

	b.WriteString("|ctors:")
	first := true
	if d.Niladic != nil {
		b.WriteString("()")
		first = false
	}
	for _, ct := range d.Constructors {
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteByte('(')
		for i, p := range ct.Params {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(p.Token())
		}
		b.WriteByte(')')
	}

	return b.String()
}

func writeMethodSigs(b *strings.Builder, methods []Method) {
	for i, m := range methods {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(m.BaseName)
		b.WriteByte('(')
		for j, p := range m.Params {
			if j > 0 {
				b.WriteByte(';')
			}
			b.WriteString(p.Token())
		}
		b.WriteByte(')')
		if m.Result != nil {
			b.WriteString("->")
			b.WriteString(m.Result.Token())
		}
		if m.ReturnsErr {
			b.WriteByte('!')
		}
	}
}

// Hash computes the hex SHA-256 content hash of the class's canonical
// binary serialization. Unlike the readable signature, the serialization
// is length-prefixed so no member name can alias section boundaries.
func Hash(d *Class) string {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(sigVersion)
	s.writeString(d.Name)

	s.writeUint32(uint32(len(d.Fields)))
	for _, f := range d.Fields {
		s.writeByte(tagField)
		s.writeString(f.Name)
		s.writeString(f.Spec.Token())
		s.writeBool(f.ReadOnly)
	}

	s.writeUint32(uint32(len(d.Methods)))
	for _, m := range d.Methods {
		s.serializeMethod(tagMethod, m)
	}

	s.writeUint32(uint32(len(d.Statics)))
	for _, m := range d.Statics {
		s.serializeMethod(tagStatic, m)
	}

	ctors := len(d.Constructors)
	if d.Niladic != nil {
		ctors++
	}
	s.writeUint32(uint32(ctors))
	if d.Niladic != nil {
		s.writeByte(tagConstructor)
		s.writeUint32(0)
	}
	for _, ct := range d.Constructors {
		s.writeByte(tagConstructor)
		s.writeUint32(uint32(len(ct.Params)))
		for _, p := range ct.Params {
			s.writeString(p.Token())
		}
	}

	sum := sha256.Sum256(s.buf)
	return hex.EncodeToString(sum[:])
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) serializeMethod(tag byte, m Method) {
	s.writeByte(tag)
	s.writeString(m.BaseName)
	s.writeUint32(uint32(len(m.Params)))
	for _, p := range m.Params {
		s.writeString(p.Token())
	}
	if m.Result != nil {
		s.writeBool(true)
		s.writeString(m.Result.Token())
	} else {
		s.writeBool(false)
	}
	s.writeBool(m.ReturnsErr)
}
