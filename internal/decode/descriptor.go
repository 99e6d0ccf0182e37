package decode

import (
	"fmt"
	"strings"
)

type Descriptor struct {
	Type       Type       `json:"type" yaml:"type"`
	Endianness Endianness `json:"endianness" yaml:"endianness"`
	WordOrder  WordOrder  `json:"wordOrder" yaml:"wordOrder"`
	Enabled    bool       `json:"enabled" yaml:"enabled"`
}

func Default(t Type) Descriptor {
	return Descriptor{Type: t, Endianness: BigEndian, WordOrder: HighFirst}
}

// Set behaves like a map keyed by Type but keeps the order the service sent.
type Set []Descriptor

func DefaultSet() Set {
	out := make(Set, 0, len(Types))
	for _, t := range Types {
		out = append(out, Default(t))
	}
	return out
}

// Put returns a copy of s with d replacing the entry of the same type in
// place, or appended when the type is new.
func (s Set) Put(d Descriptor) Set {
	out := make(Set, len(s), len(s)+1)
	copy(out, s)
	for i := range out {
		if out[i].Type == d.Type {
			out[i] = d
			return out
		}
	}
	return append(out, d)
}

// Get returns the descriptor for t, or the disabled default.
func (s Set) Get(t Type) Descriptor {
	for _, d := range s {
		if d.Type == t {
			return d
		}
	}
	return Default(t)
}

// Enabled lists the enabled descriptors in display order.
func (s Set) Enabled() []Descriptor {
	var out []Descriptor
	for _, t := range Types {
		if d := s.Get(t); d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

func (s Set) Validate() error {
	for i, d := range s {
		if _, err := ParseType(string(d.Type)); err != nil {
			return fmt.Errorf("decoders[%d]: %w", i, err)
		}
		if d.Endianness != BigEndian && d.Endianness != LittleEndian {
			return fmt.Errorf("decoders[%d/%s]: endianness must be big or little", i, d.Type)
		}
		if d.WordOrder != HighFirst && d.WordOrder != LowFirst {
			return fmt.Errorf("decoders[%d/%s]: wordOrder must be high-first or low-first", i, d.Type)
		}
	}
	return nil
}

// ParseSpec reads a short decoder option list such as "le,lf" or "off" on
// top of base. Recognised tokens: be, le, hf, lf, on, off.
func ParseSpec(spec string, base Descriptor) (Descriptor, error) {
	d := base
	d.Enabled = true
	spec = strings.ToLower(strings.TrimSpace(spec))
	if spec == "" {
		return d, nil
	}
	for _, part := range strings.FieldsFunc(spec, func(r rune) bool { return r == ',' || r == ' ' }) {
		switch part {
		case "be", "big":
			d.Endianness = BigEndian
		case "le", "little":
			d.Endianness = LittleEndian
		case "hf", "high-first":
			d.WordOrder = HighFirst
		case "lf", "low-first":
			d.WordOrder = LowFirst
		case "on":
			d.Enabled = true
		case "off":
			d.Enabled = false
		default:
			return base, fmt.Errorf("invalid decoder option %q (use be|le, hf|lf, on|off)", part)
		}
	}
	return d, nil
}

func (d Descriptor) String() string {
	state := "off"
	if d.Enabled {
		state = "on"
	}
	return fmt.Sprintf("%s %s %s %s", d.Type, d.Endianness, d.WordOrder, state)
}
