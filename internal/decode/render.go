package decode

import (
	"fmt"
	"math"
	"strconv"

	"github.com/fisaks/mbconsole/internal/mbc"
)

type Base int

const (
	Dec Base = 10
	Hex Base = 16
)

func ParseBase(s string) (Base, error) {
	switch s {
	case "10", "dec", "decimal":
		return Dec, nil
	case "16", "hex":
		return Hex, nil
	}
	return 0, fmt.Errorf("invalid base %q (use dec|hex)", s)
}

func (b Base) String() string {
	if b == Hex {
		return "hex"
	}
	return "dec"
}

// Format renders v as 0x%04x in hex, decimal otherwise.
func (b Base) Format(v uint32) string {
	if b == Hex {
		return fmt.Sprintf("0x%04x", v)
	}
	return strconv.FormatUint(uint64(v), 10)
}

type Layout struct {
	AddressBase   int // 0 or 1, legend only
	AddressFormat Base
	ValueBase     Base
	Columns       int
}

type Cell struct {
	Text   string
	Span   int
	Detail string // full precision value for floats
}

type Row struct {
	Label string
	Type  Type // empty for base rows
	Cells []Cell
}

func (r Row) Decoded() bool { return r.Type != "" }

const Placeholder = "-"

// Render tiles a result into rows of layout.Columns values. Every base row
// is followed by one row per enabled decoder, register results only.
func Render(result *mbc.ReadResult, set Set, layout Layout) []Row {
	if result == nil || result.Failed() {
		return nil
	}
	cols := max(layout.Columns, 1)

	values := result.RegValues
	registers := len(values) > 0
	if !registers {
		values = make([]uint16, len(result.BoolValues))
		for i, b := range result.BoolValues {
			if b {
				values[i] = 1
			}
		}
	}

	var decoders []Descriptor
	if registers {
		decoders = set.Enabled()
	}

	var rows []Row
	for offset := 0; offset < len(values); offset += cols {
		chunk := values[offset:min(offset+cols, len(values))]
		rows = append(rows, baseRow(uint32(result.Address)+uint32(offset), chunk, layout))
		for _, d := range decoders {
			rows = append(rows, decodedRow(d, chunk, cols))
		}
	}
	return rows
}

func baseRow(addr uint32, chunk []uint16, layout Layout) Row {
	row := Row{Label: layout.AddressFormat.Format(addr), Cells: make([]Cell, 0, len(chunk))}
	for _, v := range chunk {
		row.Cells = append(row.Cells, Cell{Text: layout.ValueBase.Format(uint32(v)), Span: 1})
	}
	return row
}

func decodedRow(d Descriptor, chunk []uint16, cols int) Row {
	row := Row{Label: string(d.Type), Type: d.Type}

	switch d.Type {
	case Uint16:
		for _, w := range chunk {
			row.Cells = append(row.Cells, Cell{Text: strconv.FormatUint(uint64(w), 10), Span: 1})
		}
		return row
	case Int16:
		for _, w := range chunk {
			row.Cells = append(row.Cells, Cell{Text: strconv.Itoa(int(Int16Of(w))), Span: 1})
		}
		return row
	}

	for i := 0; i+1 < len(chunk); i += 2 {
		buf := Assemble(chunk[i], chunk[i+1], d.Endianness, d.WordOrder)
		row.Cells = append(row.Cells, wideCell(d.Type, buf))
	}
	if len(row.Cells) == 0 {
		row.Cells = []Cell{{Text: Placeholder, Span: cols}}
	}
	return row
}

func wideCell(t Type, buf [4]byte) Cell {
	switch t {
	case Int32:
		return Cell{Text: strconv.FormatInt(int64(Int32Of(buf)), 10), Span: 2}
	case Float32:
		f := Float32Of(buf)
		return Cell{Text: FormatFloat(f), Span: 2, Detail: strconv.FormatFloat(float64(f), 'g', -1, 32)}
	default:
		return Cell{Text: strconv.FormatUint(uint64(Uint32Of(buf)), 10), Span: 2}
	}
}

// FormatFloat prints three decimals, switching to exponent notation from
// 1e21 upwards.
func FormatFloat(v float32) string {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case f == 0:
		return "0.000"
	case math.Abs(f) >= 1e21:
		return strconv.FormatFloat(f, 'e', 3, 64)
	}
	return strconv.FormatFloat(f, 'f', 3, 64)
}

// Legend is the caption shown above a rendered table.
func (l Layout) Legend() string {
	return fmt.Sprintf("address base %d, addresses %s, values %s", l.AddressBase, l.AddressFormat, l.ValueBase)
}
