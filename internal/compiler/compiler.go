// Package compiler implements Fer's single-pass compiler: a Pratt
// (operator-precedence) parser that emits bytecode directly into the
// current function's chunk as it parses, with no intermediate syntax tree.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xirelogy/go-fer/internal/chunk"
	"github.com/xirelogy/go-fer/internal/scanner"
	"github.com/xirelogy/go-fer/internal/token"
	"github.com/xirelogy/go-fer/internal/value"
)

// Allocator is the subset of *vm.VM the compiler needs: interning strings
// for name/literal constants and allocating function objects for the
// top-level script and every nested fun/method. Compiling and running share
// one allocator so every object the compiler creates is already on the VM's
// allocation list.
type Allocator interface {
	NewString(s string) *value.StringObj
	NewFunction() *value.FunctionObj
}

// CompileError aggregates every error reported during a failed compile.
type CompileError struct {
	Messages []string
}

func (e *CompileError) Error() string { return strings.Join(e.Messages, "\n") }

// FunctionType distinguishes the kind of body currently being compiled,
// governing slot-0 reservation and what `return`/`this` mean.
type functionType int

const (
	typeFunction functionType = iota
	typeInitializer
	typeMethod
	typeScript
)

type local struct {
	name       string
	depth      int // -1 while declared but not yet initialized
	isCaptured bool
	isPerm     bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

type loopState struct {
	enclosing  *loopState
	start      int
	scopeDepth int
	breakJumps []int
}

// frame is one nested compiler invocation: the function-in-progress plus its
// locals/upvalues/scope bookkeeping.
type frame struct {
	enclosing *frame
	function  *value.FunctionObj
	typ       functionType
	locals    []local
	upvalues  []upvalueRef
	scope     int
	loop      *loopState
}

type classState struct {
	enclosing      *classState
	hasSuperclass  bool
}

// Compiler holds all single-pass compilation state: the scanner, the current
// lookahead pair of tokens, and the stack of in-progress function frames.
type Compiler struct {
	alloc Allocator
	sc    *scanner.Scanner

	previous token.Token
	current  token.Token

	hadError  bool
	panicMode bool
	errors    []string

	source string

	cur   *frame
	class *classState
}

// Compile compiles source into a top-level script function. name is used as
// the function's Source field for error/backtrace reporting.
func Compile(alloc Allocator, source, name string) (*value.FunctionObj, error) {
	c := &Compiler{alloc: alloc, sc: scanner.New(source), source: name}
	c.pushFrame(typeScript, "")

	c.advance()
	for !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.EOF, "Expect end of expression.")

	fn := c.endFrame()
	if c.hadError {
		return nil, &CompileError{Messages: c.errors}
	}
	return fn, nil
}

func (c *Compiler) pushFrame(typ functionType, name string) {
	fn := c.alloc.NewFunction()
	fn.Source = c.source
	if name != "" {
		fn.Name = c.alloc.NewString(name)
	}
	f := &frame{enclosing: c.cur, function: fn, typ: typ, scope: 0}
	// Slot 0 is reserved: the callee itself at top level/in functions, `this`
	// in methods and initializers.
	slotName := ""
	if typ == typeMethod || typ == typeInitializer {
		slotName = "this"
	}
	f.locals = append(f.locals, local{name: slotName, depth: 0})
	c.cur = f
}

func (c *Compiler) endFrame() *value.FunctionObj {
	c.emitReturn()
	fn := c.cur.function
	fn.UpvalueCount = len(c.cur.upvalues)
	c.cur = c.cur.enclosing
	return fn
}

func (c *Compiler) chunk() *chunk.Chunk { return c.cur.function.Chunk }

// ---- token plumbing -------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.sc.Next()
		if c.current.Type != token.Illegal {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t token.Type) bool { return c.current.Type == t }

func (c *Compiler) match(t token.Type) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t token.Type, msg string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) error(msg string)          { c.errorAt(c.previous, msg) }

func (c *Compiler) errorAt(tok token.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	loc := fmt.Sprintf("[line %d] Error", tok.Line)
	switch tok.Type {
	case token.EOF:
		loc += " at end"
	case token.Illegal:
		// lexeme is already the message
	default:
		loc += fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	c.errors = append(c.errors, fmt.Sprintf("%s: %s", loc, msg))
	c.hadError = true
}

// synchronize recovers from a panic by skipping to the next statement
// boundary or declaration keyword, matching the original compiler's
// synchronize().
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != token.EOF {
		if c.previous.Type == token.Semicolon {
			return
		}
		switch c.current.Type {
		case token.Class, token.Fun, token.Var, token.Perm, token.For,
			token.If, token.While, token.Print, token.Return:
			return
		}
		c.advance()
	}
}

// ---- byte/constant emission ------------------------------------------

func (c *Compiler) emitByte(b byte) { c.chunk().Write(b, c.previous.Line) }
func (c *Compiler) emitOp(op chunk.OpCode) { c.emitByte(byte(op)) }
func (c *Compiler) emitOpByte(op chunk.OpCode, operand byte) {
	c.emitOp(op)
	c.emitByte(operand)
}

func (c *Compiler) emitReturn() {
	if c.cur.typ == typeInitializer {
		c.emitOpByte(chunk.OpGetLocal, 0)
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) makeConstant(v value.Value) byte {
	// Reuse an equal constant already in the pool, so repeated literals and
	// names share one slot.
	for i, existing := range c.chunk().Constants {
		if ev, ok := existing.(value.Value); ok && value.Equal(ev, v) {
			return byte(i)
		}
	}
	idx, err := c.chunk().AddConstant(v)
	if err != nil {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOpByte(chunk.OpConstant, c.makeConstant(v))
}

// emitJump writes a placeholder forward jump and returns its operand offset,
// to be patched once the target is known.
func (c *Compiler) emitJump(op chunk.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return c.chunk().Len() - 2
}

// patchJump backpatches a forward jump emitted by emitJump, storing a
// relative offset counted from the instruction immediately after the
// operand.
func (c *Compiler) patchJump(offset int) {
	jump := c.chunk().Len() - offset - 2
	if jump > 0xffff {
		c.error("Too much code to jump over.")
		return
	}
	c.chunk().Code[offset] = byte(jump >> 8)
	c.chunk().Code[offset+1] = byte(jump)
}

// emitLoop emits a backward LOOP instruction to loopStart.
func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := c.chunk().Len() - loopStart + 2
	if offset > 0xffff {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// ---- scope & local/upvalue resolution ---------------------------------

func (c *Compiler) beginScope() { c.cur.scope++ }

func (c *Compiler) endScope() {
	c.cur.scope--
	for len(c.cur.locals) > 0 && c.cur.locals[len(c.cur.locals)-1].depth > c.cur.scope {
		last := c.cur.locals[len(c.cur.locals)-1]
		if last.isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		c.cur.locals = c.cur.locals[:len(c.cur.locals)-1]
	}
}

func (c *Compiler) identifierConstant(name string) byte {
	return c.makeConstant(value.FromObject(c.alloc.NewString(name)))
}

func (c *Compiler) addLocal(name string, isPerm bool) {
	if len(c.cur.locals) >= 256 {
		c.error("Too many local variables in function.")
		return
	}
	c.cur.locals = append(c.cur.locals, local{name: name, depth: -1, isPerm: isPerm})
}

// declareVariable registers the identifier just consumed as a local (no-op
// at global scope, where binding happens through a named constant instead).
// It rejects a name already declared in the current scope: the backwards
// scan stops at the first initialized local of an enclosing scope, while a
// placeholder local still being initialized (depth == -1) never stops it.
// The new local is appended after the scan, so it is not compared with itself.
func (c *Compiler) declareVariable(name string, isPerm bool) {
	if c.cur.scope == 0 {
		return
	}
	for i := len(c.cur.locals) - 1; i >= 0; i-- {
		l := c.cur.locals[i]
		if l.depth != -1 && l.depth < c.cur.scope {
			break
		}
		if l.name == name {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name, isPerm)
}

func (c *Compiler) markInitialized() {
	if c.cur.scope == 0 {
		return
	}
	c.cur.locals[len(c.cur.locals)-1].depth = c.cur.scope
}

// resolveLocal searches f's own locals, from innermost out.
func resolveLocal(f *frame, name string) (int, bool) {
	for i := len(f.locals) - 1; i >= 0; i-- {
		if f.locals[i].name == name {
			return i, true
		}
	}
	return -1, false
}

// resolveUpvalue recursively resolves name in enclosing frames, adding
// upvalue entries along the way and deduplicating against existing ones.
func (c *Compiler) resolveUpvalue(f *frame, name string) (int, bool) {
	if f.enclosing == nil {
		return -1, false
	}
	if slot, ok := resolveLocal(f.enclosing, name); ok {
		f.enclosing.locals[slot].isCaptured = true
		return c.addUpvalue(f, byte(slot), true), true
	}
	if idx, ok := c.resolveUpvalue(f.enclosing, name); ok {
		return c.addUpvalue(f, byte(idx), false), true
	}
	return -1, false
}

func (c *Compiler) addUpvalue(f *frame, index byte, isLocal bool) int {
	for i, up := range f.upvalues {
		if up.index == index && up.isLocal == isLocal {
			return i
		}
	}
	if len(f.upvalues) >= 256 {
		c.error("Too many closure variables in function.")
		return 0
	}
	f.upvalues = append(f.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(f.upvalues) - 1
}

// ---- declarations -------------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(token.Class):
		c.classDeclaration()
	case c.match(token.Fun):
		c.funDeclaration()
	case c.match(token.Var):
		c.varDeclaration(false)
	case c.match(token.Perm):
		c.varDeclaration(true)
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) parseVariable(errMsg string, isPerm bool) byte {
	c.consume(token.Identifier, errMsg)
	name := c.previous.Lexeme
	c.declareVariable(name, isPerm)
	if c.cur.scope > 0 {
		return 0
	}
	return c.identifierConstant(name)
}

func (c *Compiler) defineVariable(global byte, isPerm bool) {
	if c.cur.scope > 0 {
		c.markInitialized()
		return
	}
	if isPerm {
		c.emitOpByte(chunk.OpDefineGlobalPerm, global)
	} else {
		c.emitOpByte(chunk.OpDefineGlobal, global)
	}
}

func (c *Compiler) varDeclaration(isPerm bool) {
	global := c.parseVariable("Expect variable name.", isPerm)
	if c.match(token.Equal) {
		c.expression()
	} else {
		if isPerm {
			c.error("Permanent variable must be initialized.")
		}
		c.emitOp(chunk.OpNil)
	}
	c.consume(token.Semicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global, isPerm)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.", false)
	c.markInitialized()
	c.function(typeFunction)
	c.defineVariable(global, false)
}

func (c *Compiler) function(typ functionType) {
	name := c.previous.Lexeme
	c.pushFrame(typ, name)
	c.beginScope()

	c.consume(token.LeftParen, "Expect '(' after function name.")
	if !c.check(token.RightParen) {
		for {
			c.cur.function.Arity++
			if c.cur.function.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			paramConst := c.parseVariable("Expect parameter name.", false)
			c.defineVariable(paramConst, false)
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after parameters.")
	c.consume(token.LeftBrace, "Expect '{' before function body.")
	c.block()

	upvals := c.cur.upvalues
	fn := c.endFrame()

	c.emitOpByte(chunk.OpClosure, c.makeConstant(value.FromObject(fn)))
	for _, up := range upvals {
		if up.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(up.index)
	}
}

func (c *Compiler) method() {
	c.consume(token.Identifier, "Expect method name.")
	name := c.previous.Lexeme
	nameConst := c.identifierConstant(name)
	typ := typeMethod
	if name == "init" {
		typ = typeInitializer
	}
	c.function(typ)
	c.emitOpByte(chunk.OpMethod, nameConst)
}

func (c *Compiler) classDeclaration() {
	c.consume(token.Identifier, "Expect class name.")
	className := c.previous
	nameConst := c.identifierConstant(className.Lexeme)
	c.declareVariable(className.Lexeme, false)
	c.emitOpByte(chunk.OpClass, nameConst)
	c.defineVariable(nameConst, false)

	cls := &classState{enclosing: c.class}
	c.class = cls

	if c.match(token.Less) {
		c.consume(token.Identifier, "Expect superclass name.")
		if c.previous.Lexeme == className.Lexeme {
			c.error("A class can't inherit from itself.")
		}
		c.namedVariable(c.previous.Lexeme, false)

		c.beginScope()
		c.addLocal("super", false)
		c.markInitialized()

		c.namedVariable(className.Lexeme, false)
		c.emitOp(chunk.OpInherit)
		cls.hasSuperclass = true
	}

	c.namedVariable(className.Lexeme, false)
	c.consume(token.LeftBrace, "Expect '{' before class body.")
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RightBrace, "Expect '}' after class body.")
	c.emitOp(chunk.OpPop)

	if cls.hasSuperclass {
		c.endScope()
	}
	c.class = cls.enclosing
}

// ---- statements ----------------------------------------------------------

func (c *Compiler) statement() {
	switch {
	case c.match(token.Print):
		c.printStatement()
	case c.match(token.Return):
		c.returnStatement()
	case c.match(token.While):
		c.whileStatement()
	case c.match(token.For):
		c.forStatement()
	case c.match(token.Break):
		c.breakStatement()
	case c.match(token.Continue):
		c.continueStatement()
	case c.match(token.If):
		c.ifStatement()
	case c.match(token.LeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RightBrace, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *Compiler) returnStatement() {
	if c.cur.typ == typeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(token.Semicolon) {
		c.emitReturn()
		return
	}
	if c.cur.typ == typeInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after return value.")
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.match(token.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := c.chunk().Len()
	loop := &loopState{enclosing: c.cur.loop, start: loopStart, scopeDepth: c.cur.scope}
	c.cur.loop = loop

	c.consume(token.LeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)

	for _, j := range loop.breakJumps {
		c.patchJump(j)
	}
	c.cur.loop = loop.enclosing
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LeftParen, "Expect '(' after 'for'.")

	if c.match(token.Semicolon) {
		// no initializer
	} else if c.match(token.Var) {
		c.varDeclaration(false)
	} else {
		c.expressionStatement()
	}

	loopStart := c.chunk().Len()
	loop := &loopState{enclosing: c.cur.loop, start: loopStart, scopeDepth: c.cur.scope}
	c.cur.loop = loop

	exitJump := -1
	if !c.match(token.Semicolon) {
		c.expression()
		c.consume(token.Semicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.OpJumpIfFalse)
		c.emitOp(chunk.OpPop)
	}

	if !c.match(token.RightParen) {
		bodyJump := c.emitJump(chunk.OpJump)

		incrementStart := c.chunk().Len()
		c.expression()
		c.emitOp(chunk.OpPop)
		c.consume(token.RightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		loop.start = loopStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(chunk.OpPop)
	}

	for _, j := range loop.breakJumps {
		c.patchJump(j)
	}
	c.cur.loop = loop.enclosing
	c.endScope()
}

// discardLocals pops (without leaving scope) every local declared inside the
// current loop's body, used by break/continue before jumping.
func (c *Compiler) discardLocals(depth int) {
	for i := len(c.cur.locals) - 1; i >= 0 && c.cur.locals[i].depth > depth; i-- {
		if c.cur.locals[i].isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
	}
}

func (c *Compiler) breakStatement() {
	if c.cur.loop == nil {
		c.error("Can't use 'break' outside of a loop.")
		c.consume(token.Semicolon, "Expect ';' after 'break'.")
		return
	}
	c.discardLocals(c.cur.loop.scopeDepth)
	c.consume(token.Semicolon, "Expect ';' after 'break'.")
	jump := c.emitJump(chunk.OpJump)
	c.cur.loop.breakJumps = append(c.cur.loop.breakJumps, jump)
}

func (c *Compiler) continueStatement() {
	if c.cur.loop == nil {
		c.error("Can't use 'continue' outside of a loop.")
		c.consume(token.Semicolon, "Expect ';' after 'continue'.")
		return
	}
	c.discardLocals(c.cur.loop.scopeDepth)
	c.consume(token.Semicolon, "Expect ';' after 'continue'.")
	c.emitLoop(c.cur.loop.start)
}

// ---- expressions: Pratt parser -------------------------------------------

type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . () []
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[token.Type]parseRule

func init() {
	rules = map[token.Type]parseRule{
		token.LeftParen:    {(*Compiler).grouping, (*Compiler).call, precCall},
		token.Dot:          {nil, (*Compiler).dot, precCall},
		token.LeftBracket:  {(*Compiler).list, (*Compiler).index, precCall},
		token.Minus:        {(*Compiler).unary, (*Compiler).binary, precTerm},
		token.Plus:         {nil, (*Compiler).binary, precTerm},
		token.Slash:        {nil, (*Compiler).binary, precFactor},
		token.Star:         {nil, (*Compiler).binary, precFactor},
		token.Bang:         {(*Compiler).unary, nil, precNone},
		token.BangEqual:    {nil, (*Compiler).binary, precEquality},
		token.EqualEqual:   {nil, (*Compiler).binary, precEquality},
		token.Greater:      {nil, (*Compiler).binary, precComparison},
		token.GreaterEqual: {nil, (*Compiler).binary, precComparison},
		token.Less:         {nil, (*Compiler).binary, precComparison},
		token.LessEqual:    {nil, (*Compiler).binary, precComparison},
		token.Identifier:   {(*Compiler).variable, nil, precNone},
		token.String:       {(*Compiler).string, nil, precNone},
		token.Number:       {(*Compiler).number, nil, precNone},
		token.And:          {nil, (*Compiler).and, precAnd},
		token.Or:           {nil, (*Compiler).or, precOr},
		token.False:        {(*Compiler).literal, nil, precNone},
		token.True:         {(*Compiler).literal, nil, precNone},
		token.Nil:          {(*Compiler).literal, nil, precNone},
		token.This:         {(*Compiler).this, nil, precNone},
		token.Super:        {(*Compiler).super, nil, precNone},
		token.LeftBrace:    {(*Compiler).dict, nil, precNone},
	}
}

func getRule(t token.Type) parseRule {
	if r, ok := rules[t]; ok {
		return r
	}
	return parseRule{}
}

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func (c *Compiler) parsePrecedence(p precedence) {
	c.advance()
	prefix := getRule(c.previous.Type).prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := p <= precAssignment
	prefix(c, canAssign)

	for p <= getRule(c.current.Type).precedence {
		c.advance()
		infix := getRule(c.previous.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.Equal) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.consume(token.RightParen, "Expect ')' after expression.")
}

func (c *Compiler) number(canAssign bool) {
	n, _ := strconv.ParseFloat(c.previous.Lexeme, 64)
	c.emitConstant(value.Number(n))
}

func (c *Compiler) string(canAssign bool) {
	raw := c.previous.Lexeme[1 : len(c.previous.Lexeme)-1]
	s := unescape(raw)
	c.emitConstant(value.FromObject(c.alloc.NewString(s)))
}

// unescape consumes each backslash-prefixed byte verbatim (no translation
// table), matching the original scanner's `\`-escape semantics exactly.
func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func (c *Compiler) literal(canAssign bool) {
	switch c.previous.Type {
	case token.False:
		c.emitOp(chunk.OpFalse)
	case token.True:
		c.emitOp(chunk.OpTrue)
	case token.Nil:
		c.emitOp(chunk.OpNil)
	}
}

func (c *Compiler) unary(canAssign bool) {
	op := c.previous.Type
	c.parsePrecedence(precUnary)
	switch op {
	case token.Bang:
		c.emitOp(chunk.OpNot)
	case token.Minus:
		c.emitOp(chunk.OpNegate)
	}
}

func (c *Compiler) binary(canAssign bool) {
	op := c.previous.Type
	rule := getRule(op)
	c.parsePrecedence(rule.precedence + 1)
	switch op {
	case token.BangEqual:
		c.emitOp(chunk.OpEqual)
		c.emitOp(chunk.OpNot)
	case token.EqualEqual:
		c.emitOp(chunk.OpEqual)
	case token.Greater:
		c.emitOp(chunk.OpGreater)
	case token.GreaterEqual:
		c.emitOp(chunk.OpLess)
		c.emitOp(chunk.OpNot)
	case token.Less:
		c.emitOp(chunk.OpLess)
	case token.LessEqual:
		c.emitOp(chunk.OpGreater)
		c.emitOp(chunk.OpNot)
	case token.Plus:
		c.emitOp(chunk.OpAdd)
	case token.Minus:
		c.emitOp(chunk.OpSubtract)
	case token.Star:
		c.emitOp(chunk.OpMultiply)
	case token.Slash:
		c.emitOp(chunk.OpDivide)
	}
}

func (c *Compiler) and(canAssign bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or(canAssign bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) call(canAssign bool) {
	argc := c.argumentList()
	c.emitOpByte(chunk.OpCall, argc)
}

func (c *Compiler) argumentList() byte {
	var argc int
	if !c.check(token.RightParen) {
		for {
			c.expression()
			argc++
			if argc > 255 {
				c.error("Can't have more than 255 arguments.")
			}
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after arguments.")
	return byte(argc)
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(token.Identifier, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous.Lexeme)

	if canAssign && c.match(token.Equal) {
		c.expression()
		c.emitOpByte(chunk.OpSetProperty, name)
	} else if c.match(token.LeftParen) {
		argc := c.argumentList()
		c.emitOpByte(chunk.OpInvoke, name)
		c.emitByte(argc)
	} else {
		c.emitOpByte(chunk.OpGetProperty, name)
	}
}

func (c *Compiler) index(canAssign bool) {
	c.expression()
	c.consume(token.RightBracket, "Expect ']' after index.")
	if canAssign && c.match(token.Equal) {
		c.expression()
		c.emitOp(chunk.OpSetItem)
	} else {
		c.emitOp(chunk.OpGetItem)
	}
}

func (c *Compiler) list(canAssign bool) {
	var count int
	if !c.check(token.RightBracket) {
		for {
			c.expression()
			count++
			if count > 255 {
				c.error("Can't have more than 255 elements in one list.")
			}
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightBracket, "Expect ']' after list elements.")
	c.emitOpByte(chunk.OpList, byte(count))
}

func (c *Compiler) dict(canAssign bool) {
	var count int
	if !c.check(token.RightBrace) {
		for {
			if c.match(token.Identifier) || c.match(token.String) {
				lex := c.previous.Lexeme
				if c.previous.Type == token.String {
					lex = unescape(lex[1 : len(lex)-1])
				}
				c.emitConstant(value.FromObject(c.alloc.NewString(lex)))
			} else {
				c.errorAtCurrent("Expect key.")
			}
			c.consume(token.Colon, "Expect ':' after key.")
			c.expression()
			count++
			if count > 255 {
				c.error("Can't have more than 255 elements in dictionary.")
			}
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightBrace, "Expect '}' after dictionary elements.")
	c.emitOpByte(chunk.OpDictionary, byte(count))
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous.Lexeme, canAssign)
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp chunk.OpCode
	var arg byte

	if slot, ok := resolveLocal(c.cur, name); ok {
		if c.cur.locals[slot].depth == -1 {
			c.error("Can't read local variable in its own initializer.")
		}
		getOp, setOp, arg = chunk.OpGetLocal, chunk.OpSetLocal, byte(slot)
	} else if idx, ok := c.resolveUpvalue(c.cur, name); ok {
		getOp, setOp, arg = chunk.OpGetUpvalue, chunk.OpSetUpvalue, byte(idx)
	} else {
		getOp, setOp, arg = chunk.OpGetGlobal, chunk.OpSetGlobal, c.identifierConstant(name)
	}

	if canAssign && c.match(token.Equal) {
		if getOp == chunk.OpGetLocal && c.cur.locals[arg].isPerm {
			c.error("Can't reassign to permanent variable.")
		}
		c.expression()
		c.emitOpByte(setOp, arg)
	} else {
		c.emitOpByte(getOp, arg)
	}
}

func (c *Compiler) this(canAssign bool) {
	if c.class == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.variable(false)
}

var syntheticSuper = "super"
var syntheticThis = "this"

func (c *Compiler) super(canAssign bool) {
	if c.class == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.class.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}
	c.consume(token.Dot, "Expect '.' after 'super'.")
	c.consume(token.Identifier, "Expect superclass method name.")
	name := c.identifierConstant(c.previous.Lexeme)

	c.namedVariable(syntheticThis, false)
	if c.match(token.LeftParen) {
		argc := c.argumentList()
		c.namedVariable(syntheticSuper, false)
		c.emitOpByte(chunk.OpSuperInvoke, name)
		c.emitByte(argc)
	} else {
		c.namedVariable(syntheticSuper, false)
		c.emitOpByte(chunk.OpGetSuper, name)
	}
}
