package wasm

import (
	"bytes"
	"errors"
	"fmt"

	pmerrors "pmat/internal/errors"
)

var (
	magic = []byte{0x00, 0x61, 0x73, 0x6D}

	errTruncated = errors.New("unexpected end of data")
	errOverflow  = errors.New("integer representation too long")
)

var sectionNames = [...]string{
	"custom", "type", "import", "function", "table", "memory", "global",
	"export", "start", "element", "code", "data", "datacount", "tag",
}

// SectionName names a section id, or "unknown".
func SectionName(id byte) string {
	if int(id) < len(sectionNames) {
		return sectionNames[id]
	}
	return "unknown"
}

// ParseBinary decodes the section table of a wasm module and walks every
// function body.
func ParseBinary(path string, data []byte) (*Module, error) {
	if !IsBinary(data) {
		return nil, pmerrors.Parse(path, "missing wasm magic number", nil)
	}
	m := &Module{Format: FormatBinary, Bodies: []FunctionMetrics{}, Sections: []Section{}, CustomSections: []string{}}
	r := &reader{buf: data, pos: 4}
	v, err := r.fixed32()
	if err != nil {
		return nil, pmerrors.Parse(path, "truncated header", err)
	}
	m.Version = v

	names := map[int]string{}
	for r.pos < len(r.buf) {
		start := r.pos
		id, err := r.byte()
		if err != nil {
			return nil, pmerrors.Parse(path, "truncated section header", err)
		}
		size, err := r.u32()
		if err != nil {
			return nil, pmerrors.Parse(path, "truncated section header", err)
		}
		end := r.pos + int(size)
		if end > len(r.buf) {
			return nil, pmerrors.Parse(path, fmt.Sprintf("%s section at offset %d overruns the file", SectionName(id), start), errTruncated)
		}
		m.Sections = append(m.Sections, Section{ID: id, Name: SectionName(id), Offset: start, Size: int(size)})
		sec := &reader{buf: r.buf[:end], pos: r.pos}
		if err := m.section(id, sec, names); err != nil {
			return nil, pmerrors.Parse(path, fmt.Sprintf("%s section at offset %d", SectionName(id), start), err)
		}
		r.pos = end
	}
	for i := range m.Bodies {
		b := &m.Bodies[i]
		if n, ok := names[b.Index]; ok {
			b.Name = n
		} else {
			b.Name = fmt.Sprintf("func[%d]", b.Index)
		}
	}
	return m, nil
}

func (m *Module) section(id byte, r *reader, exportNames map[int]string) error {
	if id == 0 {
		name, err := r.name()
		if err != nil {
			return err
		}
		m.CustomSections = append(m.CustomSections, name)
		return nil
	}
	if id == 8 {
		m.HasStart = true
		return nil
	}
	count, err := r.u32()
	if err != nil {
		return err
	}
	n := int(count)
	switch id {
	case 1:
		m.Types = n
	case 2:
		m.Imports = n
		return m.imports(r, n)
	case 3:
		m.Functions = n
	case 4:
		m.Tables += n
		for range n {
			if _, err := r.byte(); err != nil {
				return err
			}
			minimum, _, _, err := r.limits()
			if err != nil {
				return err
			}
			m.MaxTableSize = max(m.MaxTableSize, minimum)
		}
	case 5:
		for range n {
			m.Memories++
			if err := m.memory(r); err != nil {
				return err
			}
		}
	case 6:
		m.Globals = n
	case 7:
		m.Exports = n
		for range n {
			name, err := r.name()
			if err != nil {
				return err
			}
			kind, err := r.byte()
			if err != nil {
				return err
			}
			idx, err := r.u32()
			if err != nil {
				return err
			}
			if _, seen := exportNames[int(idx)]; kind == 0 && !seen {
				exportNames[int(idx)] = name
			}
		}
	case 9:
		m.Elements = n
	case 10:
		return m.code(r, n)
	case 11:
		m.DataSegments = n
	}
	return nil
}

func (m *Module) imports(r *reader, n int) error {
	for range n {
		if _, err := r.name(); err != nil {
			return err
		}
		if _, err := r.name(); err != nil {
			return err
		}
		kind, err := r.byte()
		if err != nil {
			return err
		}
		switch kind {
		case 0:
			m.ImportedFunctions++
			_, err = r.u32()
		case 1:
			m.Tables++
			if _, err = r.byte(); err == nil {
				var minimum uint32
				minimum, _, _, err = r.limits()
				m.MaxTableSize = max(m.MaxTableSize, minimum)
			}
		case 2:
			m.Memories++
			err = m.memory(r)
		case 3:
			_, err = r.bytes(2)
		case 4:
			if _, err = r.byte(); err == nil {
				_, err = r.u32()
			}
		default:
			err = fmt.Errorf("unknown import kind 0x%02x", kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// memory records the first memory's limits.
func (m *Module) memory(r *reader) error {
	minimum, maximum, hasMax, err := r.limits()
	if err != nil {
		return err
	}
	if m.Memories == 1 {
		m.MemoryPages, m.MaxMemoryPages, m.HasMemoryMax = minimum, maximum, hasMax
	}
	return nil
}

func (m *Module) code(r *reader, n int) error {
	for i := range n {
		size, err := r.u32()
		if err != nil {
			return err
		}
		end := r.pos + int(size)
		if end > len(r.buf) {
			return fmt.Errorf("function body %d: %w", i, errTruncated)
		}
		body := &reader{buf: r.buf[:end], pos: r.pos}
		fm, err := decodeBody(body)
		if err != nil {
			return fmt.Errorf("function body %d at offset %d: %w", i, r.pos, err)
		}
		fm.Index = m.ImportedFunctions + i
		fm.Size = int(size)
		m.Bodies = append(m.Bodies, fm)
		r.pos = end
	}
	return nil
}

type control byte

const (
	ctlBlock control = iota
	ctlLoop
	ctlIf
)

// decodeBody walks one function body. SIMD and atomic prefixes are counted
// and end decoding of the body, since their immediates vary per subop.
func decodeBody(r *reader) (FunctionMetrics, error) {
	fm := FunctionMetrics{Cyclomatic: 1}
	groups, err := r.u32()
	if err != nil {
		return fm, err
	}
	for range groups {
		n, err := r.u32()
		if err != nil {
			return fm, err
		}
		if _, err := r.byte(); err != nil {
			return fm, err
		}
		fm.Locals += int(n)
	}

	var stack []control
	for r.pos < len(r.buf) {
		op, err := r.byte()
		if err != nil {
			return fm, err
		}
		fm.Instructions++
		switch {
		case op == 0x02 || op == 0x03 || op == 0x04:
			if err := r.blockType(); err != nil {
				return fm, err
			}
			stack = append(stack, control(op-0x02))
			if op == 0x04 {
				fm.Cyclomatic++
			}
			fm.MaxBlockDepth = max(fm.MaxBlockDepth, len(stack))
			fm.MaxLoopDepth = max(fm.MaxLoopDepth, loops(stack))
		case op == 0x0B:
			if len(stack) == 0 {
				return fm, nil
			}
			stack = stack[:len(stack)-1]
		case op == 0x0C:
			_, err = r.u32()
		case op == 0x0D:
			fm.Cyclomatic++
			_, err = r.u32()
		case op == 0x0E:
			var labels uint32
			if labels, err = r.u32(); err == nil {
				fm.Cyclomatic += int(labels)
				for range labels + 1 {
					if _, err = r.u32(); err != nil {
						break
					}
				}
			}
		case op == 0x10 || op == 0x12:
			fm.Calls++
			_, err = r.u32()
		case op == 0x11 || op == 0x13:
			fm.IndirectCalls++
			if _, err = r.u32(); err == nil {
				_, err = r.u32()
			}
		case op == 0x1C:
			var n uint32
			if n, err = r.u32(); err == nil {
				_, err = r.bytes(int(n))
			}
		case op >= 0x20 && op <= 0x26:
			_, err = r.u32()
		case op >= 0x28 && op <= 0x35:
			fm.Memory.Loads++
			err = r.memarg()
		case op >= 0x36 && op <= 0x3E:
			fm.Memory.Stores++
			err = r.memarg()
		case op == 0x3F:
			fm.Memory.Sizes++
			_, err = r.byte()
		case op == 0x40:
			fm.Memory.Grows++
			_, err = r.byte()
		case op == 0x41 || op == 0x42:
			err = r.sleb()
		case op == 0x43:
			_, err = r.bytes(4)
		case op == 0x44:
			_, err = r.bytes(8)
		case op == 0xD0:
			_, err = r.byte()
		case op == 0xD2:
			_, err = r.u32()
		case op == 0xFC:
			err = r.miscOp(&fm.Memory)
		case op == 0xFD:
			fm.Memory.SIMD++
			fm.Truncated = true
			return fm, nil
		case op == 0xFE:
			fm.Memory.Atomics++
			fm.Truncated = true
			return fm, nil
		case op <= 0x01, op == 0x05, op == 0x0F, op == 0x1A, op == 0x1B,
			op >= 0x45 && op <= 0xC4, op == 0xD1:
		default:
			return fm, fmt.Errorf("unknown opcode 0x%02x at offset %d", op, r.pos-1)
		}
		if err != nil {
			return fm, err
		}
	}
	return fm, errors.New("function body is missing its end")
}

func loops(stack []control) int {
	n := 0
	for _, c := range stack {
		if c == ctlLoop {
			n++
		}
	}
	return n
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) fixed32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// u32 reads an unsigned LEB128 value of at most five bytes.
func (r *reader) u32() (uint32, error) {
	var v uint32
	for shift := 0; shift < 35; shift += 7 {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		v |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, errOverflow
}

// sleb skips a signed LEB128 value of up to 64 bits.
func (r *reader) sleb() error {
	for range 10 {
		b, err := r.byte()
		if err != nil {
			return err
		}
		if b&0x80 == 0 {
			return nil
		}
	}
	return errOverflow
}

func (r *reader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) limits() (minimum, maximum uint32, hasMax bool, err error) {
	flags, err := r.byte()
	if err != nil {
		return 0, 0, false, err
	}
	if minimum, err = r.u32(); err != nil {
		return 0, 0, false, err
	}
	if flags&0x01 != 0 {
		maximum, err = r.u32()
		hasMax = true
	}
	return minimum, maximum, hasMax, err
}

// blockType reads an empty type, a value type or a type index.
func (r *reader) blockType() error {
	b, err := r.byte()
	if err != nil {
		return err
	}
	if b == 0x40 || (b >= 0x6F && b <= 0x7F) {
		return nil
	}
	r.pos--
	return r.sleb()
}

func (r *reader) memarg() error {
	if _, err := r.u32(); err != nil {
		return err
	}
	_, err := r.u32()
	return err
}

// miscOp reads the 0xFC prefixed saturating, bulk memory and table ops.
func (r *reader) miscOp(stats *MemoryOpStats) error {
	sub, err := r.u32()
	if err != nil {
		return err
	}
	var imm []func() error
	u32 := func() error { _, err := r.u32(); return err }
	b := func() error { _, err := r.byte(); return err }
	switch sub {
	case 0, 1, 2, 3, 4, 5, 6, 7:
	case 8:
		stats.Bulk++
		imm = []func() error{u32, b}
	case 9, 13, 15, 16, 17:
		imm = []func() error{u32}
	case 10:
		stats.Bulk++
		imm = []func() error{b, b}
	case 11:
		stats.Bulk++
		imm = []func() error{b}
	case 12, 14:
		imm = []func() error{u32, u32}
	default:
		return fmt.Errorf("unknown 0xfc subopcode %d", sub)
	}
	for _, read := range imm {
		if err := read(); err != nil {
			return err
		}
	}
	return nil
}

// IsBinary reports whether data starts with the wasm magic number and a
// version word.
func IsBinary(data []byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:4], magic)
}
