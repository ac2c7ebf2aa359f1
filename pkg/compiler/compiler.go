// Package compiler lowers a parsed *ast.Program into flat bytecode:
// one []opcode.Instruction array, a deduplicated constant pool, and a
// name pool, laid out the way codegen.py's generate() flattens nested
// function bodies into a single address space.
//
// Names are never resolved to slots here — pkg/vm walks the closure chain
// at run time for every LOAD_NAME/STORE, the way lvm.py's run() loop does.
// This is a deliberate departure from the teacher's SymbolTable-based
// local/global/builtin slot compiler.
package compiler

import (
	"fmt"

	"lucy/pkg/ast"
	"lucy/pkg/opcode"
	"lucy/pkg/value"
)

// Error reports a compile-time error that isn't a parse error: an invalid
// assignment target, an unsyntactic break/continue, an unexpected AST node.
type Error struct {
	Message string
}

func (e *Error) Error() string { return "COMPILE_ERROR: " + e.Message }

// Program is the compiler's output: one flat instruction array spanning
// the top level followed by every function body, a constant pool, and a
// name pool referenced by LOAD_NAME/STORE/GLOBAL/IMPORT*.
type Program struct {
	Code      []opcode.Instruction
	Consts    []value.Value
	Names     []string
	EntryAddr int
}

type loopLabels struct {
	breakAddr    *opcode.Address
	continueAddr *opcode.Address
}

// unit is one function body (or the top-level program) being assembled.
// Units are compiled depth-first as their Function literals are
// encountered, then concatenated in the order they were created.
type unit struct {
	code   []opcode.Instruction
	fn     *value.Function // nil for the top-level unit
	parent *unit           // lexically enclosing unit, nil for the top-level unit
}

type Compiler struct {
	units  []*unit
	cur    *unit
	consts []value.Value
	names  []string
	loops  []loopLabels

	// pending records every *opcode.Address still referring to a
	// not-yet-finalized absolute index, paired with the unit+offset of the
	// JUMP-family instruction whose Arg must be patched once layout is
	// known.
	pending []patch
}

type patch struct {
	u      *unit
	offset int
	addr   *opcode.Address
}

func New() *Compiler {
	c := &Compiler{}
	top := &unit{}
	c.units = append(c.units, top)
	c.cur = top
	return c
}

// Compile lowers a full program to a flat Program ready for pkg/vm.
func Compile(prog *ast.Program) (*Program, error) {
	c := New()
	for _, stmt := range prog.Statements {
		if err := c.compileStatement(stmt); err != nil {
			return nil, err
		}
	}
	// The top level runs in its own frame exactly like a function body, so
	// it needs the same implicit `return null;` to terminate that frame's
	// RETURN-driven execution loop.
	c.emit(opcode.LOAD_CONST, c.addConst(value.Null{}))
	c.emit(opcode.RETURN, 0)
	return c.finish()
}

// propagateClosures ensures every function lexically enclosing a closure
// literal (`|...|`) is itself marked is_closure, even if declared with
// plain `func`. Without this, a `func(){ func(){ |x|{...} } }` nesting
// would leave the middle unit's BaseClosure nil at LOAD_CONST time,
// breaking the base_closure chain a deeply nested closure relies on to
// reach names captured further out (spec §4.3/§9).
func (c *Compiler) propagateClosures() {
	for _, u := range c.units {
		if u.fn == nil || !u.fn.IsClosure {
			continue
		}
		for p := u.parent; p != nil && p.fn != nil && !p.fn.IsClosure; p = p.parent {
			p.fn.IsClosure = true
		}
	}
}

func (c *Compiler) finish() (*Program, error) {
	c.propagateClosures()
	offsets := make([]int, len(c.units))
	flat := make([]opcode.Instruction, 0)
	for i, u := range c.units {
		offsets[i] = len(flat)
		flat = append(flat, u.code...)
	}
	for i, u := range c.units {
		if u.fn != nil {
			u.fn.Address = offsets[i]
		}
	}
	for _, p := range c.pending {
		idx := -1
		for i, u := range c.units {
			if u == p.u {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, &Error{Message: "internal: unresolved jump unit"}
		}
		flat[offsets[idx]+p.offset].Arg = p.addr.Resolved + offsets[idx]
	}
	return &Program{Code: flat, Consts: c.consts, Names: c.names, EntryAddr: offsets[0]}, nil
}

func (c *Compiler) emit(op opcode.OpCode, arg int) int {
	c.cur.code = append(c.cur.code, opcode.Instruction{Op: op, Arg: arg})
	return len(c.cur.code) - 1
}

// emitJump emits a jump-family instruction targeting addr, which may not
// yet be resolved; the final pass fixes up the instruction's Arg once addr
// is set via Address.Set.
func (c *Compiler) emitJump(op opcode.OpCode, addr *opcode.Address) {
	offset := c.emit(op, 0)
	c.pending = append(c.pending, patch{u: c.cur, offset: offset, addr: addr})
}

func (c *Compiler) here() *opcode.Address {
	addr := &opcode.Address{}
	addr.Set(len(c.cur.code))
	return addr
}

// addConst interns a constant by (Go type, value) equality, matching
// codegen.py's add_literal_list type-strict dedup: Int(1) and Float(1.0)
// are never folded together.
func (c *Compiler) addConst(v value.Value) int {
	for i, existing := range c.consts {
		if sameTypeAndValue(existing, v) {
			return i
		}
	}
	c.consts = append(c.consts, v)
	return len(c.consts) - 1
}

func sameTypeAndValue(a, b value.Value) bool {
	switch av := a.(type) {
	case value.Int:
		bv, ok := b.(value.Int)
		return ok && av == bv
	case value.Float:
		bv, ok := b.(value.Float)
		return ok && av == bv
	case value.String:
		bv, ok := b.(value.String)
		return ok && av == bv
	case value.Bool:
		bv, ok := b.(value.Bool)
		return ok && av == bv
	case value.Null:
		_, ok := b.(value.Null)
		return ok
	default:
		return false // *value.Function consts are never deduped: each literal is distinct
	}
}

func (c *Compiler) addName(name string) int {
	for i, existing := range c.names {
		if existing == name {
			return i
		}
	}
	c.names = append(c.names, name)
	return len(c.names) - 1
}

func (c *Compiler) compileBlock(b *ast.Block) error {
	for _, stmt := range b.Statements {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStatement(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.ExpressionStatement:
		if err := c.compileExpression(s.Expression); err != nil {
			return err
		}
		c.emit(opcode.POP, 0)
		return nil
	case *ast.Assignment:
		return c.compileAssignment(s)
	case *ast.If:
		return c.compileIf(s)
	case *ast.Loop:
		return c.compileLoop(s)
	case *ast.While:
		return c.compileWhile(s)
	case *ast.For:
		return c.compileFor(s)
	case *ast.Break:
		if len(c.loops) == 0 {
			return &Error{Message: "UNSYNTACTIC_BREAK: break outside loop"}
		}
		c.emitJump(opcode.JUMP, c.loops[len(c.loops)-1].breakAddr)
		return nil
	case *ast.Continue:
		if len(c.loops) == 0 {
			return &Error{Message: "UNSYNTACTIC_CONTINUE: continue outside loop"}
		}
		c.emitJump(opcode.JUMP, c.loops[len(c.loops)-1].continueAddr)
		return nil
	case *ast.Goto:
		return c.compileGoto(s)
	case *ast.Return:
		if s.Value == nil {
			c.emit(opcode.LOAD_CONST, c.addConst(value.Null{}))
		} else if err := c.compileExpression(s.Value); err != nil {
			return err
		}
		c.emit(opcode.RETURN, 0)
		return nil
	case *ast.Global:
		for _, name := range s.Names {
			c.emit(opcode.GLOBAL, c.addName(name.Name))
		}
		return nil
	case *ast.Import:
		return c.compileImport(s)
	case *ast.FromImport:
		return c.compileFromImport(s)
	default:
		return &Error{Message: fmt.Sprintf("UNEXPECTED_AST_NODE: %T", stmt)}
	}
}

// compileAssignment handles both plain `=` and compound `op=` assignment,
// and both Identifier and Member targets. A compound Member assignment
// evaluates its object (and, for an index target, its key) only once: via
// DUP for `t.x += 1` and via DUP_TWO for `t[k] += 1`, so a side-effecting
// index expression like `t[f()] += 1` does not call f() twice.
func (c *Compiler) compileAssignment(a *ast.Assignment) error {
	switch target := a.Target.(type) {
	case *ast.Identifier:
		if a.Op == "" {
			if err := c.compileExpression(a.Value); err != nil {
				return err
			}
		} else {
			if err := c.compileExpression(target); err != nil {
				return err
			}
			if err := c.compileExpression(a.Value); err != nil {
				return err
			}
			c.emitBinaryOp(a.Op)
		}
		c.emit(opcode.STORE, c.addName(target.Name))
		return nil
	case *ast.Member:
		if target.Kind == "." {
			name := target.Property.(*ast.Identifier).Name
			if err := c.compileExpression(target.Object); err != nil {
				return err
			}
			if a.Op != "" {
				c.emit(opcode.DUP, 0)
				c.emit(opcode.GET_ATTR, c.addName(name))
				if err := c.compileExpression(a.Value); err != nil {
					return err
				}
				c.emitBinaryOp(a.Op)
			} else if err := c.compileExpression(a.Value); err != nil {
				return err
			}
			c.emit(opcode.SET_ATTR, c.addName(name))
			return nil
		}
		if err := c.compileExpression(target.Object); err != nil {
			return err
		}
		if err := c.compileExpression(target.Property); err != nil {
			return err
		}
		if a.Op != "" {
			c.emit(opcode.DUP_TWO, 0)
			c.emit(opcode.GET_ITEM, 0)
			if err := c.compileExpression(a.Value); err != nil {
				return err
			}
			c.emitBinaryOp(a.Op)
		} else if err := c.compileExpression(a.Value); err != nil {
			return err
		}
		c.emit(opcode.SET_ITEM, 0)
		return nil
	default:
		return &Error{Message: "ASSIGNING_TO_RVALUE: invalid assignment target"}
	}
}

func (c *Compiler) emitBinaryOp(op string) {
	switch op {
	case "+":
		c.emit(opcode.ADD, 0)
	case "-":
		c.emit(opcode.SUB, 0)
	case "*":
		c.emit(opcode.MUL, 0)
	case "/":
		c.emit(opcode.DIV, 0)
	case "%":
		c.emit(opcode.MOD, 0)
	}
}

func (c *Compiler) compileIf(s *ast.If) error {
	if err := c.compileExpression(s.Test); err != nil {
		return err
	}
	elseAddr := &opcode.Address{}
	c.emitJump(opcode.JUMP_IF_FALSE, elseAddr)
	if err := c.compileBlock(s.Then); err != nil {
		return err
	}
	if s.Else != nil {
		endAddr := &opcode.Address{}
		c.emitJump(opcode.JUMP, endAddr)
		elseAddr.Set(len(c.cur.code))
		if err := c.compileBlock(s.Else); err != nil {
			return err
		}
		endAddr.Set(len(c.cur.code))
	} else {
		elseAddr.Set(len(c.cur.code))
	}
	return nil
}

func (c *Compiler) compileLoop(s *ast.Loop) error {
	start := c.here()
	breakAddr := &opcode.Address{}
	c.loops = append(c.loops, loopLabels{breakAddr: breakAddr, continueAddr: start})
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	c.loops = c.loops[:len(c.loops)-1]
	c.emitJump(opcode.JUMP, start)
	breakAddr.Set(len(c.cur.code))
	return nil
}

func (c *Compiler) compileWhile(s *ast.While) error {
	start := c.here()
	if err := c.compileExpression(s.Test); err != nil {
		return err
	}
	breakAddr := &opcode.Address{}
	c.emitJump(opcode.JUMP_IF_FALSE, breakAddr)
	c.loops = append(c.loops, loopLabels{breakAddr: breakAddr, continueAddr: start})
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	c.loops = c.loops[:len(c.loops)-1]
	c.emitJump(opcode.JUMP, start)
	breakAddr.Set(len(c.cur.code))
	return nil
}

// compileFor emits the re-entrant FOR protocol (spec §3.3 FOR): the
// iterator value sits on the stack for the duration of the loop. Each
// iteration, FOR calls it with zero arguments without popping it, binds
// the loop variable to the result, and jumps to the break target the
// moment that result is Null.
func (c *Compiler) compileFor(s *ast.For) error {
	if err := c.compileExpression(s.Iter); err != nil {
		return err
	}
	start := c.here()
	breakAddr := &opcode.Address{}
	c.emitJump(opcode.FOR, breakAddr)
	c.emit(opcode.STORE, c.addName(s.Var.Name))
	c.loops = append(c.loops, loopLabels{breakAddr: breakAddr, continueAddr: start})
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	c.loops = c.loops[:len(c.loops)-1]
	c.emitJump(opcode.JUMP, start)
	breakAddr.Set(len(c.cur.code))
	c.emit(opcode.POP, 0) // drop the iterator
	return nil
}

// compileGoto compiles a tail call: evaluate callee and args exactly like a
// normal Call, but emit GOTO instead of CALL so the VM pops the caller's
// frame before transferring control (spec invariant P8, constant call-stack
// depth for tail-recursive code).
func (c *Compiler) compileGoto(s *ast.Goto) error {
	argc, err := c.compileCallOperands(s.Call.Callee, s.Call.Args)
	if err != nil {
		return err
	}
	c.emit(opcode.GOTO, argc)
	return nil
}

func (c *Compiler) compileImport(s *ast.Import) error {
	name := s.Alias
	if name == "" {
		name = s.Path[len(s.Path)-1]
	}
	pathConst := c.addConst(value.String(joinDots(s.Path)))
	c.emit(opcode.IMPORT, pathConst)
	c.emit(opcode.STORE, c.addName(name))
	return nil
}

// compileFromImport compiles `from a.b import x, y as z;` / `from a.b import *;`.
// Per spec §4.9, IMPORT alone resolves the dotted path down to the module
// table and leaves it on the stack; IMPORT_FROM/IMPORT_STAR then peek that
// same table (not pop it), so one IMPORT can back several IMPORT_FROMs —
// the trailing POP drops the module table once every name has been pulled.
func (c *Compiler) compileFromImport(s *ast.FromImport) error {
	pathConst := c.addConst(value.String(joinDots(s.Path)))
	c.emit(opcode.IMPORT, pathConst)
	if s.Star {
		c.emit(opcode.IMPORT_STAR, 0)
		c.emit(opcode.POP, 0)
		return nil
	}
	for _, item := range s.Items {
		name := item.Alias
		if name == "" {
			name = item.Name
		}
		c.emit(opcode.IMPORT_FROM, c.addName(item.Name))
		c.emit(opcode.STORE, c.addName(name))
	}
	c.emit(opcode.POP, 0)
	return nil
}

func joinDots(path []string) string {
	out := path[0]
	for _, p := range path[1:] {
		out += "." + p
	}
	return out
}

func (c *Compiler) compileExpression(expr ast.Expression) error {
	switch e := expr.(type) {
	case *ast.Literal:
		return c.compileLiteral(e)
	case *ast.Identifier:
		c.emit(opcode.LOAD_NAME, c.addName(e.Name))
		return nil
	case *ast.Unary:
		if err := c.compileExpression(e.Arg); err != nil {
			return err
		}
		switch e.Op {
		case "-":
			c.emit(opcode.NEG, 0)
		case "!":
			c.emit(opcode.NOT, 0)
		case "+":
			// unary plus is a no-op; the operand is already on the stack
		}
		return nil
	case *ast.Binary:
		return c.compileBinary(e)
	case *ast.Member:
		if err := c.compileExpression(e.Object); err != nil {
			return err
		}
		if e.Kind == "." {
			ident := e.Property.(*ast.Identifier)
			c.emit(opcode.GET_ATTR, c.addName(ident.Name))
		} else {
			if err := c.compileExpression(e.Property); err != nil {
				return err
			}
			c.emit(opcode.GET_ITEM, 0)
		}
		return nil
	case *ast.Call:
		return c.compileCall(e)
	case *ast.Table:
		return c.compileTable(e)
	case *ast.Function:
		return c.compileFunction(e)
	default:
		return &Error{Message: fmt.Sprintf("UNEXPECTED_AST_NODE: %T", expr)}
	}
}

// compileCall compiles a Call expression, including the method-call
// self-passing convention (spec §3.3.1/§4.3): when the callee is a Member
// access (`obj.m(...)` or `obj[k](...)`), obj is duplicated, the member is
// fetched off the duplicate, and obj is pushed back onto the stack as the
// call's implicit first argument ahead of the explicit ones.
func (c *Compiler) compileCall(e *ast.Call) error {
	argc, err := c.compileCallOperands(e.Callee, e.Args)
	if err != nil {
		return err
	}
	c.emit(opcode.CALL, argc)
	return nil
}

// compileCallOperands pushes the callee followed by all of its arguments
// (injecting a self argument first for a Member callee), returning the
// total argument count CALL/GOTO should consume.
func (c *Compiler) compileCallOperands(callee ast.Expression, args []ast.Expression) (int, error) {
	argc := len(args)
	if member, ok := callee.(*ast.Member); ok {
		if err := c.compileExpression(member.Object); err != nil {
			return 0, err
		}
		c.emit(opcode.DUP, 0)
		if member.Kind == "." {
			ident := member.Property.(*ast.Identifier)
			c.emit(opcode.GET_ATTR, c.addName(ident.Name))
		} else {
			if err := c.compileExpression(member.Property); err != nil {
				return 0, err
			}
			c.emit(opcode.GET_ITEM, 0)
		}
		c.emit(opcode.ROT_TWO, 0)
		argc++
	} else if err := c.compileExpression(callee); err != nil {
		return 0, err
	}
	for _, arg := range args {
		if err := c.compileExpression(arg); err != nil {
			return 0, err
		}
	}
	return argc, nil
}

func (c *Compiler) compileLiteral(lit *ast.Literal) error {
	switch v := lit.Value.(type) {
	case nil:
		c.emit(opcode.LOAD_CONST, c.addConst(value.Null{}))
	case bool:
		c.emit(opcode.LOAD_CONST, c.addConst(value.Bool(v)))
	case int64:
		c.emit(opcode.LOAD_CONST, c.addConst(value.Int(v)))
	case float64:
		c.emit(opcode.LOAD_CONST, c.addConst(value.Float(v)))
	case string:
		c.emit(opcode.LOAD_CONST, c.addConst(value.String(v)))
	default:
		return &Error{Message: fmt.Sprintf("unexpected literal payload %T", lit.Value)}
	}
	return nil
}

// compileBinary handles and/or with short-circuit jumps and every other
// binary operator as a plain stack op.
func (c *Compiler) compileBinary(b *ast.Binary) error {
	switch b.Op {
	case "AND":
		if err := c.compileExpression(b.Left); err != nil {
			return err
		}
		end := &opcode.Address{}
		c.emitJump(opcode.JUMP_IF_FALSE_OR_POP, end)
		if err := c.compileExpression(b.Right); err != nil {
			return err
		}
		end.Set(len(c.cur.code))
		return nil
	case "OR":
		if err := c.compileExpression(b.Left); err != nil {
			return err
		}
		end := &opcode.Address{}
		c.emitJump(opcode.JUMP_IF_TRUE_OR_POP, end)
		if err := c.compileExpression(b.Right); err != nil {
			return err
		}
		end.Set(len(c.cur.code))
		return nil
	}
	if err := c.compileExpression(b.Left); err != nil {
		return err
	}
	if err := c.compileExpression(b.Right); err != nil {
		return err
	}
	switch b.Op {
	case "+":
		c.emit(opcode.ADD, 0)
	case "-":
		c.emit(opcode.SUB, 0)
	case "*":
		c.emit(opcode.MUL, 0)
	case "/":
		c.emit(opcode.DIV, 0)
	case "%":
		c.emit(opcode.MOD, 0)
	case "IS":
		c.emit(opcode.IS, 0)
	case "==":
		c.emit(opcode.COMPARE_OP, opcode.CmpEQ)
	case "!=":
		c.emit(opcode.COMPARE_OP, opcode.CmpNE)
	case "<":
		c.emit(opcode.COMPARE_OP, opcode.CmpLT)
	case "<=":
		c.emit(opcode.COMPARE_OP, opcode.CmpLE)
	case ">":
		c.emit(opcode.COMPARE_OP, opcode.CmpGT)
	case ">=":
		c.emit(opcode.COMPARE_OP, opcode.CmpGE)
	default:
		return &Error{Message: fmt.Sprintf("unexpected binary operator %q", b.Op)}
	}
	return nil
}

// compileTable builds a table literal by pushing (key, value) pairs and
// letting BUILD_TABLE consume them; positional properties get their
// insertion index as an Int key.
func (c *Compiler) compileTable(t *ast.Table) error {
	for i, prop := range t.Properties {
		if prop.Key != nil {
			if err := c.compileExpression(prop.Key); err != nil {
				return err
			}
		} else {
			c.emit(opcode.LOAD_CONST, c.addConst(value.Int(int64(i))))
		}
		if err := c.compileExpression(prop.Value); err != nil {
			return err
		}
	}
	c.emit(opcode.BUILD_TABLE, len(t.Properties))
	return nil
}

// compileFunction compiles a function literal's body into its own unit and
// emits a LOAD_CONST of its *value.Function descriptor; pkg/vm wraps that
// constant in a fresh Closure every time the LOAD_CONST executes (spec
// §3.2 closures).
func (c *Compiler) compileFunction(f *ast.Function) error {
	fn := &value.Function{ParamsNum: len(f.Params), IsClosure: f.IsClosure}
	newUnit := &unit{fn: fn, parent: c.cur}
	c.units = append(c.units, newUnit)

	parent := c.cur
	parentLoops := c.loops
	c.cur = newUnit
	c.loops = nil

	for _, param := range f.Params {
		c.emit(opcode.STORE, c.addName(param.Name))
	}
	if err := c.compileBlock(f.Body); err != nil {
		return err
	}
	// Implicit `return null;` if control falls off the end of the body.
	c.emit(opcode.LOAD_CONST, c.addConst(value.Null{}))
	c.emit(opcode.RETURN, 0)

	c.cur = parent
	c.loops = parentLoops

	c.emit(opcode.LOAD_CONST, c.addConst(fn))
	return nil
}
