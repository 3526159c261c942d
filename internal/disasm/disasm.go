// Package disasm formats compiled chunks as a readable assembly-style dump,
// for --disasm/debugging support in cmd/fer. It is a pure reader: it never
// mutates a chunk or function, and has no say in how the VM actually
// dispatches instructions.
package disasm

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xirelogy/go-fer/internal/chunk"
	"github.com/xirelogy/go-fer/internal/value"
)

// Disassembler writes a readable dump of one or more functions to w,
// recursing into nested function constants exactly once each.
type Disassembler struct {
	w       io.Writer
	visited map[*value.FunctionObj]bool
	printed bool
}

// New constructs a disassembler that writes to w.
func New(w io.Writer) *Disassembler {
	return &Disassembler{w: w, visited: make(map[*value.FunctionObj]bool)}
}

// DisassembleFunction emits a dump for fn and, recursively, every nested
// function reachable through its constant pool.
func (d *Disassembler) DisassembleFunction(label string, fn *value.FunctionObj) error {
	if fn == nil || fn.Chunk == nil {
		return fmt.Errorf("disasm: nil function")
	}
	if d.visited[fn] {
		return nil
	}
	d.visited[fn] = true

	d.startSection()
	name := label
	if name == "" && fn.Name != nil {
		name = fn.Name.Chars
	}
	if name == "" {
		name = "<script>"
	}
	source := fn.Source
	if source == "" {
		source = "<unknown>"
	}
	fmt.Fprintf(d.w, "func %s (arity=%d, upvalues=%d) source=%s\n", name, fn.Arity, fn.UpvalueCount, source)

	if err := d.disassembleChunk(fn.Chunk); err != nil {
		return err
	}

	for idx, c := range fn.Chunk.Constants {
		val, ok := c.(value.Value)
		if !ok || !val.IsObj() {
			continue
		}
		child, ok := val.Obj.(*value.FunctionObj)
		if !ok {
			continue
		}
		childName := ""
		if child.Name != nil {
			childName = child.Name.Chars
		} else {
			childName = fmt.Sprintf("<closure@const:%d>", idx)
		}
		if err := d.DisassembleFunction(childName, child); err != nil {
			return err
		}
	}
	return nil
}

// PrintNative emits a one-line header for a host-provided native function.
func (d *Disassembler) PrintNative(name string) {
	d.startSection()
	if name == "" {
		name = "<native>"
	}
	fmt.Fprintf(d.w, "func %s [native]\n", name)
}

func (d *Disassembler) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}

func (d *Disassembler) disassembleChunk(c *chunk.Chunk) error {
	code := c.Code
	for ip := 0; ip < len(code); {
		offset := ip
		op := chunk.OpCode(code[ip])
		ip++
		line := 0
		if offset < len(c.Lines) {
			line = c.Lines[offset]
		}
		lineStr := "-"
		if line > 0 {
			lineStr = strconv.Itoa(line)
		}
		operands, err := d.decodeOperands(op, c, &ip)
		if err != nil {
			return fmt.Errorf("disasm: offset %d: %w", offset, err)
		}
		fmt.Fprintf(d.w, "%04d %4s %-20s", offset, lineStr, op.String())
		if detail := strings.TrimSpace(operands); detail != "" {
			fmt.Fprintf(d.w, " %s", detail)
		}
		fmt.Fprintln(d.w)
	}
	return nil
}

func readU8(code []byte, ip *int) (byte, error) {
	if *ip >= len(code) {
		return 0, fmt.Errorf("truncated operand")
	}
	b := code[*ip]
	*ip++
	return b, nil
}

func readU16(code []byte, ip *int) (uint16, error) {
	hi, err := readU8(code, ip)
	if err != nil {
		return 0, err
	}
	lo, err := readU8(code, ip)
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

func formatConst(c interface{}) string {
	val, ok := c.(value.Value)
	if !ok {
		return "?"
	}
	return value.Print(val)
}

func constOperand(name string, c *chunk.Chunk, ip *int) (string, error) {
	idx, err := readU8(c.Code, ip)
	if err != nil {
		return "", err
	}
	if int(idx) >= len(c.Constants) {
		return "", fmt.Errorf("%s index out of range: %d", name, idx)
	}
	return fmt.Sprintf("%d ; %s=%s", idx, name, formatConst(c.Constants[idx])), nil
}

func byteOperand(label string, c *chunk.Chunk, ip *int) (string, error) {
	b, err := readU8(c.Code, ip)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d ; %s", b, label), nil
}

func jumpOperand(dir string, c *chunk.Chunk, ip *int) (string, error) {
	delta, err := readU16(c.Code, ip)
	if err != nil {
		return "", err
	}
	target := *ip
	if dir == "fwd" {
		target += int(delta)
	} else {
		target -= int(delta)
	}
	return fmt.Sprintf("%d -> %04d", delta, target), nil
}

func (d *Disassembler) decodeOperands(op chunk.OpCode, c *chunk.Chunk, ip *int) (string, error) {
	switch op {
	case chunk.OpConstant:
		return constOperand("const", c, ip)
	case chunk.OpGetLocal, chunk.OpSetLocal:
		return byteOperand("slot", c, ip)
	case chunk.OpGetGlobal, chunk.OpSetGlobal, chunk.OpDefineGlobal, chunk.OpDefineGlobalPerm:
		return constOperand("name", c, ip)
	case chunk.OpGetUpvalue, chunk.OpSetUpvalue:
		return byteOperand("upvalue", c, ip)
	case chunk.OpGetProperty, chunk.OpSetProperty, chunk.OpGetSuper:
		return constOperand("prop", c, ip)
	case chunk.OpJump, chunk.OpJumpIfFalse:
		return jumpOperand("fwd", c, ip)
	case chunk.OpLoop:
		return jumpOperand("back", c, ip)
	case chunk.OpCall:
		return byteOperand("argc", c, ip)
	case chunk.OpInvoke, chunk.OpSuperInvoke:
		nameStr, err := constOperand("method", c, ip)
		if err != nil {
			return "", err
		}
		argc, err := readU8(c.Code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s, argc=%d", nameStr, argc), nil
	case chunk.OpClosure:
		fnStr, err := constOperand("fn", c, ip)
		if err != nil {
			return "", err
		}
		fnVal, ok := c.Constants[c.Code[*ip-1]].(value.Value)
		upCount := 0
		if ok && fnVal.IsObj() {
			if fnObj, ok := fnVal.Obj.(*value.FunctionObj); ok {
				upCount = fnObj.UpvalueCount
			}
		}
		for i := 0; i < upCount; i++ {
			if _, err := readU8(c.Code, ip); err != nil {
				return "", err
			}
			if _, err := readU8(c.Code, ip); err != nil {
				return "", err
			}
		}
		return fnStr, nil
	case chunk.OpList, chunk.OpDictionary:
		return byteOperand("count", c, ip)
	case chunk.OpClass, chunk.OpMethod:
		return constOperand("name", c, ip)
	default:
		return "", nil
	}
}
