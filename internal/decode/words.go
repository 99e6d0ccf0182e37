// Package decode interprets raw 16 bit register words as wider numeric types
// and lays a read result out as display rows.
package decode

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

type Type string

const (
	Uint16  Type = "uint16"
	Int16   Type = "int16"
	Uint32  Type = "uint32"
	Int32   Type = "int32"
	Float32 Type = "float32"
)

// Types lists every decoder in display order.
var Types = []Type{Uint16, Int16, Uint32, Int32, Float32}

// Wide reports whether the type needs a register pair.
func (t Type) Wide() bool { return t == Uint32 || t == Int32 || t == Float32 }

func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uint16", "u16":
		return Uint16, nil
	case "int16", "i16":
		return Int16, nil
	case "uint32", "u32":
		return Uint32, nil
	case "int32", "i32":
		return Int32, nil
	case "float32", "f32", "float":
		return Float32, nil
	}
	return "", fmt.Errorf("unknown decoder type %q", s)
}

type Endianness string

const (
	BigEndian    Endianness = "big"
	LittleEndian Endianness = "little"
)

type WordOrder string

const (
	HighFirst WordOrder = "high-first"
	LowFirst  WordOrder = "low-first"
)

// Assemble builds the 4 byte big-endian image of a register pair. With
// LowFirst the second register holds the high word. Little endianness swaps
// the bytes inside each word.
func Assemble(a, b uint16, e Endianness, o WordOrder) [4]byte {
	hi, lo := a, b
	if o == LowFirst {
		hi, lo = b, a
	}
	var buf [4]byte
	putWord(buf[0:2], hi, e)
	putWord(buf[2:4], lo, e)
	return buf
}

func putWord(dst []byte, w uint16, e Endianness) {
	if e == LittleEndian {
		binary.LittleEndian.PutUint16(dst, w)
		return
	}
	binary.BigEndian.PutUint16(dst, w)
}

func Uint32Of(buf [4]byte) uint32   { return binary.BigEndian.Uint32(buf[:]) }
func Int32Of(buf [4]byte) int32     { return int32(Uint32Of(buf)) }
func Float32Of(buf [4]byte) float32 { return math.Float32frombits(Uint32Of(buf)) }
func Int16Of(w uint16) int16        { return int16(w) }
