package chunk

// OpCode identifies a single bytecode instruction. Each opcode's operands and
// stack effect are defined by its case in the VM dispatch loop (internal/vm,
// step).
type OpCode byte

const (
	OpConstant OpCode = iota
	OpNil
	OpTrue
	OpFalse
	OpPop

	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpSetGlobal
	OpDefineGlobal
	OpDefineGlobalPerm
	OpGetUpvalue
	OpSetUpvalue
	OpGetProperty
	OpSetProperty
	OpGetSuper
	OpGetItem
	OpSetItem

	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate

	OpPrint

	OpJump
	OpJumpIfFalse
	OpLoop

	OpCall
	OpInvoke
	OpSuperInvoke
	OpClosure
	OpCloseUpvalue
	OpReturn

	OpList
	OpDictionary

	OpClass
	OpInherit
	OpMethod
)

var names = [...]string{
	OpConstant:          "CONSTANT",
	OpNil:               "NIL",
	OpTrue:              "TRUE",
	OpFalse:             "FALSE",
	OpPop:               "POP",
	OpGetLocal:          "GET_LOCAL",
	OpSetLocal:          "SET_LOCAL",
	OpGetGlobal:         "GET_GLOBAL",
	OpSetGlobal:         "SET_GLOBAL",
	OpDefineGlobal:      "DEFINE_GLOBAL",
	OpDefineGlobalPerm:  "DEFINE_GLOBAL_PERM",
	OpGetUpvalue:        "GET_UPVALUE",
	OpSetUpvalue:        "SET_UPVALUE",
	OpGetProperty:       "GET_PROPERTY",
	OpSetProperty:       "SET_PROPERTY",
	OpGetSuper:          "GET_SUPER",
	OpGetItem:           "GET_ITEM",
	OpSetItem:           "SET_ITEM",
	OpEqual:             "EQUAL",
	OpGreater:           "GREATER",
	OpLess:              "LESS",
	OpAdd:               "ADD",
	OpSubtract:          "SUBTRACT",
	OpMultiply:          "MULTIPLY",
	OpDivide:            "DIVIDE",
	OpNot:               "NOT",
	OpNegate:            "NEGATE",
	OpPrint:             "PRINT",
	OpJump:              "JUMP",
	OpJumpIfFalse:       "JUMP_IF_FALSE",
	OpLoop:              "LOOP",
	OpCall:              "CALL",
	OpInvoke:            "INVOKE",
	OpSuperInvoke:       "SUPER_INVOKE",
	OpClosure:           "CLOSURE",
	OpCloseUpvalue:      "CLOSE_UPVALUE",
	OpReturn:            "RETURN",
	OpList:              "LIST",
	OpDictionary:        "DICTIONARY",
	OpClass:             "CLASS",
	OpInherit:           "INHERIT",
	OpMethod:            "METHOD",
}

func (op OpCode) String() string {
	if int(op) < len(names) && names[op] != "" {
		return "OP_" + names[op]
	}
	return "OP_UNKNOWN"
}
