// Package vm is Lucy's stack-based bytecode interpreter: a fetch-decode
// execute loop over a flat compiler.Program, transliterated from lvm.py's
// LVM.run(). Function calls, metamethod dispatch, and the FOR iterator
// protocol are all expressed here as one shared recursive `call` helper
// rather than lvm.py's single re-entrant call_flag/PC-revisit trick — Go's
// native call stack makes straightforward recursion the idiomatic
// equivalent, and it preserves every invariant (arity checks, tail-call
// frame popping, closure capture) the Python original enforces.
package vm

import (
	"fmt"
	"strings"

	"lucy/pkg/compiler"
	"lucy/pkg/lucyerr"
	"lucy/pkg/opcode"
	"lucy/pkg/token"
	"lucy/pkg/value"
)

// Frame is one call-stack entry: the closure whose code is executing, the
// next instruction index, and the compiled Program that code/consts/names
// index is read against. prog is per-frame rather than per-VM so that a
// single VM can run frames belonging to different modules' Programs in the
// same call stack (spec §4.9's cross-module CALL).
type Frame struct {
	closure *value.Closure
	pc      int
	prog    *compiler.Program
}

// VM executes one compiled Program against a shared operand stack and call
// stack, resolving every name through the closure chain at run time.
type VM struct {
	prog   *compiler.Program
	stack  []value.Value
	frames []*Frame

	globalClosure *value.Closure
	builtins      *value.Table
	importer      *Importer

	// lastTailResult carries a GOTO's computed value when the tail call
	// resolves to a builtin or table __call__ rather than a bytecode
	// frame, across the return-to-caller boundary in the GOTO case below.
	lastTailResult value.Value
}

func New(prog *compiler.Program, importer *Importer) *VM {
	global := value.NewClosure(&value.Function{Address: prog.EntryAddr, Name: "<module>"}, nil, nil)
	global.GlobalClosure = global
	global.Program = prog
	return &VM{
		prog:          prog,
		globalClosure: global,
		builtins:      value.NewTable(),
		importer:      importer,
	}
}

// SetBuiltins installs the ambient builtin namespace (spec §6.3) consulted
// after the global frame when a name can't be found anywhere else.
func (vm *VM) SetBuiltins(builtins *value.Table) { vm.builtins = builtins }

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) top() value.Value { return vm.stack[len(vm.stack)-1] }

func (vm *VM) popN(n int) []value.Value {
	args := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = vm.pop()
	}
	return args
}

// Run executes the program's top level to completion.
func (vm *VM) Run() (value.Value, error) {
	vm.frames = append(vm.frames, &Frame{closure: vm.globalClosure, pc: vm.prog.EntryAddr, prog: vm.prog})
	return vm.execUntil(0)
}

func (vm *VM) curFrame() *Frame { return vm.frames[len(vm.frames)-1] }

func rtErr(code lucyerr.ErrorCode, format string, args ...interface{}) error {
	return lucyerr.New(code, token.Location{}, format, args...)
}

// requireBool enforces Lucy's strict condition typing: NOT and every
// JUMP_IF_* opcode demand an actual Bool operand, matching lvm.py's
// check_type(arg, (BooleanData,)) calls rather than falling back to
// truthiness coercion.
func (vm *VM) requireBool(v value.Value) (bool, error) {
	b, ok := v.(value.Bool)
	if !ok {
		return false, rtErr(lucyerr.TypeError, "expected a bool condition, got %s", describeKind(v))
	}
	return bool(b), nil
}

// execUntil runs frames until the call stack depth drops back to
// baseDepth, returning the value that frame RETURNed (or a GOTO tail call
// resolved immediately, e.g. into a builtin).
func (vm *VM) execUntil(baseDepth int) (value.Value, error) {
	for len(vm.frames) > baseDepth {
		frame := vm.curFrame()
		if frame.pc < 0 || frame.pc >= len(frame.prog.Code) {
			return nil, rtErr(lucyerr.UnexpectedASTNode, "program counter %d out of range", frame.pc)
		}
		instr := frame.prog.Code[frame.pc]
		frame.pc++

		switch instr.Op {
		case opcode.POP:
			vm.pop()

		case opcode.DUP:
			vm.push(vm.top())

		case opcode.DUP_TWO:
			n := len(vm.stack)
			a, b := vm.stack[n-2], vm.stack[n-1]
			vm.push(a)
			vm.push(b)

		case opcode.ROT_TWO:
			n := len(vm.stack)
			vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]

		case opcode.LOAD_CONST:
			vm.push(vm.loadConst(frame, instr.Arg))

		case opcode.LOAD_NAME:
			name := frame.prog.Names[instr.Arg]
			// Spec §4.4: an unresolved name is simply Null, never a runtime
			// error — LOAD_NAME has already exhausted local/upvalue/global/
			// builtin lookup by the time resolveLoad reports not-found.
			v, ok := vm.resolveLoad(frame.closure, name)
			if !ok {
				v = value.Null{}
			}
			vm.push(v)

		case opcode.STORE:
			name := frame.prog.Names[instr.Arg]
			val := vm.pop()
			vm.resolveForStore(frame.closure, name).Set(value.String(name), val)

		case opcode.GLOBAL:
			name := frame.prog.Names[instr.Arg]
			frame.closure.Variables().Set(value.String(name), value.TheGlobalRef)

		case opcode.BUILD_TABLE:
			n := instr.Arg
			pairs := vm.popN(2 * n)
			tbl := value.NewTable()
			for i := 0; i < n; i++ {
				key := pairs[2*i]
				if err := checkHashable(key); err != nil {
					return nil, err
				}
				tbl.Set(key, pairs[2*i+1])
			}
			vm.push(tbl)

		case opcode.GET_ATTR:
			name := frame.prog.Names[instr.Arg]
			obj := vm.pop()
			v, err := vm.getAttr(obj, name)
			if err != nil {
				return nil, err
			}
			vm.push(v)

		case opcode.SET_ATTR:
			name := frame.prog.Names[instr.Arg]
			val := vm.pop()
			obj := vm.pop()
			if err := vm.setAttr(obj, name, val); err != nil {
				return nil, err
			}

		case opcode.GET_ITEM:
			key := vm.pop()
			obj := vm.pop()
			v, err := vm.getItem(obj, key)
			if err != nil {
				return nil, err
			}
			vm.push(v)

		case opcode.SET_ITEM:
			val := vm.pop()
			key := vm.pop()
			obj := vm.pop()
			if err := vm.setItem(obj, key, val); err != nil {
				return nil, err
			}

		case opcode.FOR:
			iter := vm.top()
			result, err := vm.call(iter, nil)
			if err != nil {
				return nil, err
			}
			if _, isNull := result.(value.Null); isNull {
				// Leave the iterator itself on the stack; the compiler
				// emits an explicit POP at the break target to drop it.
				frame.pc = instr.Arg
			} else {
				vm.push(result)
			}

		case opcode.NEG:
			v := vm.pop()
			result, err := vm.negate(v)
			if err != nil {
				return nil, err
			}
			vm.push(result)

		case opcode.NOT:
			v := vm.pop()
			b, err := vm.requireBool(v)
			if err != nil {
				return nil, err
			}
			vm.push(value.Bool(!b))

		case opcode.ADD, opcode.SUB, opcode.MUL, opcode.DIV, opcode.MOD:
			right := vm.pop()
			left := vm.pop()
			result, err := vm.arith(instr.Op, left, right)
			if err != nil {
				return nil, err
			}
			vm.push(result)

		case opcode.IS:
			right := vm.pop()
			left := vm.pop()
			vm.push(value.Bool(isSame(left, right)))

		case opcode.COMPARE_OP:
			right := vm.pop()
			left := vm.pop()
			result, err := vm.compare(instr.Arg, left, right)
			if err != nil {
				return nil, err
			}
			vm.push(result)

		case opcode.JUMP:
			frame.pc = instr.Arg

		case opcode.JUMP_IF_TRUE:
			b, err := vm.requireBool(vm.pop())
			if err != nil {
				return nil, err
			}
			if b {
				frame.pc = instr.Arg
			}

		case opcode.JUMP_IF_FALSE:
			b, err := vm.requireBool(vm.pop())
			if err != nil {
				return nil, err
			}
			if !b {
				frame.pc = instr.Arg
			}

		case opcode.JUMP_IF_TRUE_OR_POP:
			b, err := vm.requireBool(vm.top())
			if err != nil {
				return nil, err
			}
			if b {
				frame.pc = instr.Arg
			} else {
				vm.pop()
			}

		case opcode.JUMP_IF_FALSE_OR_POP:
			b, err := vm.requireBool(vm.top())
			if err != nil {
				return nil, err
			}
			if !b {
				frame.pc = instr.Arg
			} else {
				vm.pop()
			}

		case opcode.CALL:
			args := vm.popN(instr.Arg)
			callee := vm.pop()
			result, err := vm.call(callee, args)
			if err != nil {
				return nil, err
			}
			vm.push(result)

		case opcode.GOTO:
			if err := vm.doGoto(baseDepth, instr.Arg); err != nil {
				return nil, err
			}
			if len(vm.frames) == baseDepth {
				return vm.lastTailResult, nil
			}

		case opcode.RETURN:
			val := vm.pop()
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == baseDepth {
				return val, nil
			}
			vm.push(val)

		case opcode.IMPORT:
			path := string(frame.prog.Consts[instr.Arg].(value.String))
			mod, err := vm.importer.Resolve(path)
			if err != nil {
				return nil, err
			}
			vm.push(mod)

		case opcode.IMPORT_FROM:
			// Spec §4.9: the module table is already on top of the stack
			// (pushed by the preceding IMPORT), peeked rather than popped so
			// several IMPORT_FROM names can share one IMPORT.
			name := frame.prog.Names[instr.Arg]
			mod, ok := vm.top().(*value.Table)
			if !ok {
				return nil, rtErr(lucyerr.TypeError, "cannot import from a %s value", describeKind(vm.top()))
			}
			v, ok := mod.Get(value.String(name))
			if !ok {
				return nil, rtErr(lucyerr.ImportError, "cannot find %q in module", name)
			}
			vm.push(v)

		case opcode.IMPORT_STAR:
			mod, ok := vm.top().(*value.Table)
			if !ok {
				return nil, rtErr(lucyerr.TypeError, "cannot import * from a %s value", describeKind(vm.top()))
			}
			dest := frame.closure.Variables()
			for _, k := range mod.Keys() {
				name, ok := k.(value.String)
				if !ok || strings.HasPrefix(string(name), "_") {
					continue
				}
				v, _ := mod.RawGet(k)
				dest.Set(k, v)
			}

		default:
			return nil, rtErr(lucyerr.UnexpectedASTNode, "unhandled opcode %s", instr.Op)
		}
	}
	return value.Null{}, nil
}

func (vm *VM) loadConst(frame *Frame, idx int) value.Value {
	c := frame.prog.Consts[idx]
	fn, ok := c.(*value.Function)
	if !ok {
		return c
	}
	var base *value.Closure
	if fn.IsClosure {
		base = frame.closure
	}
	closure := value.NewClosure(fn, base, frame.closure.GlobalClosure)
	closure.Program = frame.prog
	return closure
}

func (vm *VM) resolveLoad(start *value.Closure, name string) (value.Value, bool) {
	global := start.GlobalClosure
	if global == nil {
		global = vm.globalClosure
	}
	for c := start; c != nil; c = c.BaseClosure {
		if v, ok := c.Variables().RawGet(value.String(name)); ok {
			if _, isRef := v.(value.GlobalRef); isRef {
				return global.Variables().RawGet(value.String(name))
			}
			return v, true
		}
	}
	if v, ok := global.Variables().RawGet(value.String(name)); ok {
		return v, true
	}
	return vm.builtins.RawGet(value.String(name))
}

func (vm *VM) resolveForStore(start *value.Closure, name string) *value.Table {
	global := start.GlobalClosure
	if global == nil {
		global = vm.globalClosure
	}
	for c := start; c != nil; c = c.BaseClosure {
		if v, ok := c.Variables().RawGet(value.String(name)); ok {
			if _, isRef := v.(value.GlobalRef); isRef {
				return global.Variables()
			}
			return c.Variables()
		}
	}
	return start.Variables()
}

// call invokes any Lucy-callable value: a bytecode Closure (runs a nested
// frame to completion), an ExtendFunction (a Go builtin), or a Table
// bearing __call__.
func (vm *VM) call(callee value.Value, args []value.Value) (value.Value, error) {
	switch fn := callee.(type) {
	case *value.ExtendFunction:
		if fn.ParamsNum != len(args) {
			return nil, rtErr(lucyerr.CallError, "%s expects %d arguments, got %d", fn.Inspect(), fn.ParamsNum, len(args))
		}
		return fn.Fn(args)

	case *value.Closure:
		if fn.Function.ParamsNum != len(args) {
			return nil, rtErr(lucyerr.CallError, "%s expects %d arguments, got %d", fn.Inspect(), fn.Function.ParamsNum, len(args))
		}
		calleeProg, _ := fn.Program.(*compiler.Program)
		if calleeProg == nil {
			calleeProg = vm.prog
		}
		callClosure := value.NewClosure(fn.Function, fn.BaseClosure, fn.GlobalClosure)
		callClosure.Program = calleeProg
		baseDepth := len(vm.frames)
		vm.frames = append(vm.frames, &Frame{closure: callClosure, pc: fn.Function.Address, prog: calleeProg})
		for i := len(args) - 1; i >= 0; i-- {
			vm.push(args[i])
		}
		return vm.execUntil(baseDepth)

	case *value.Table:
		if mm, ok := fn.Get(value.String(value.MetaCall)); ok {
			return vm.call(mm, args)
		}
		return nil, rtErr(lucyerr.CallError, "table is not callable")

	default:
		return nil, rtErr(lucyerr.CallError, "%s is not callable", describeKind(callee))
	}
}

func (vm *VM) doGoto(baseDepth int, argNum int) error {
	args := vm.popN(argNum)
	callee := vm.pop()

	if closure, ok := callee.(*value.Closure); ok {
		if closure.Function.ParamsNum != len(args) {
			return rtErr(lucyerr.CallError, "%s expects %d arguments, got %d", closure.Inspect(), closure.Function.ParamsNum, len(args))
		}
		calleeProg, _ := closure.Program.(*compiler.Program)
		if calleeProg == nil {
			calleeProg = vm.prog
		}
		tailClosure := value.NewClosure(closure.Function, closure.BaseClosure, closure.GlobalClosure)
		tailClosure.Program = calleeProg
		vm.frames = vm.frames[:len(vm.frames)-1]
		vm.frames = append(vm.frames, &Frame{closure: tailClosure, pc: closure.Function.Address, prog: calleeProg})
		for i := len(args) - 1; i >= 0; i-- {
			vm.push(args[i])
		}
		return nil
	}

	result, err := vm.call(callee, args)
	if err != nil {
		return err
	}
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.lastTailResult = result
	if len(vm.frames) > baseDepth {
		vm.push(result)
	}
	return nil
}

func describeKind(v value.Value) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("a %s value", v.Kind())
}
