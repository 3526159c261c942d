package vm

import "github.com/xirelogy/go-fer/internal/value"

// collectGarbage runs one mark-and-sweep cycle: mark every root, drain the
// gray worklist tracing each object's references, sweep the string pool
// (so interning alone can't keep a dead string "reachable"), then sweep the
// general allocation list. This layer mirrors Fer's original ownership
// model for testability; Go's own runtime GC remains the real memory
// backstop underneath it (see DESIGN.md).
func (v *VM) collectGarbage() {
	v.gray = v.gray[:0]
	v.markRoots()
	for len(v.gray) > 0 {
		o := v.gray[len(v.gray)-1]
		v.gray = v.gray[:len(v.gray)-1]
		v.blacken(o)
	}
	v.strings.Sweep()
	v.sweep()
	v.nextGC = v.bytesAllocated * 2
	if v.nextGC < 1<<16 {
		v.nextGC = 1 << 16
	}
}

func (v *VM) markRoots() {
	for i := 0; i < v.stackTop; i++ {
		v.markValue(v.stack[i])
	}
	for i := 0; i < v.frameCount; i++ {
		v.markObject(v.frames[i].Closure)
	}
	for up := v.openUpvalues; up != nil; up = up.Next {
		v.markObject(up)
	}
	v.markTable(v.globals)
	v.markTable(v.permGlobals)
	v.markObject(v.initString)
}

func (v *VM) markValue(val value.Value) {
	if val.IsObj() {
		v.markObject(val.Obj)
	}
}

func (v *VM) markObject(o value.Object) {
	if o == nil {
		return
	}
	h := o.Header()
	if h.Marked {
		return
	}
	h.Marked = true
	v.gray = append(v.gray, o)
}

func (v *VM) markTable(t value.StringTable) {
	if t == nil {
		return
	}
	for _, k := range t.Keys() {
		v.markObject(k)
		if val, ok := t.Get(k); ok {
			v.markValue(val)
		}
	}
}

// blacken traces the outgoing references of a single gray object, graying
// whatever it finds unmarked.
func (v *VM) blacken(o value.Object) {
	switch obj := o.(type) {
	case *value.StringObj:
		// leaf: owns no references
	case *value.ListObj:
		for _, e := range obj.Elements {
			v.markValue(e)
		}
	case *value.DictObj:
		v.markTable(obj.Table)
	case *value.FunctionObj:
		if obj.Name != nil { // the top-level script has no name
			v.markObject(obj.Name)
		}
		for _, c := range obj.Chunk.Constants {
			if val, ok := c.(value.Value); ok {
				v.markValue(val)
			}
		}
	case *value.NativeObj:
		// leaf: the host closure isn't heap-tracked
	case *value.ClosureObj:
		v.markObject(obj.Function)
		for _, up := range obj.Upvalues {
			v.markObject(up)
		}
	case *value.UpvalueObj:
		if obj.Closed {
			v.markValue(obj.Value)
		}
	case *value.ClassObj:
		v.markObject(obj.Name)
		v.markTable(obj.Methods)
	case *value.InstanceObj:
		v.markObject(obj.Class)
		v.markTable(obj.Fields)
	case *value.BoundMethodObj:
		v.markValue(obj.Receiver)
		v.markObject(obj.Method)
	}
}

// sweep walks the intrusive allocation list, unlinking every object left
// unmarked and clearing the mark bit on every survivor for the next cycle.
func (v *VM) sweep() {
	var prev value.Object
	obj := v.objects
	for obj != nil {
		h := obj.Header()
		if h.Marked {
			h.Marked = false
			prev = obj
			obj = h.Next
			continue
		}
		dead := obj
		obj = h.Next
		if prev != nil {
			prev.Header().Next = obj
		} else {
			v.objects = obj
		}
		v.bytesAllocated -= approxSize(dead)
	}
}
