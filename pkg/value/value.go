// Package value defines Lucy's runtime value model: the data a compiled
// program loads, stores, and operates on inside pkg/vm.
package value

import (
	"fmt"
	"strconv"
	"strings"

	"lucy/pkg/opcode"
)

// Kind identifies a Value's dynamic type, the same distinction Lucy's
// builtin `type()` function surfaces to scripts.
type Kind string

const (
	KindNull    Kind = "null"
	KindBool    Kind = "bool"
	KindInt     Kind = "int"
	KindFloat   Kind = "float"
	KindString  Kind = "string"
	KindTable   Kind = "table"
	KindClosure Kind = "closure"
)

// Value is the interface every Lucy runtime datum implements.
type Value interface {
	Kind() Kind
	Inspect() string
}

// Null is Lucy's single absent-value type. Assigning Null to a table key or
// a bound name deletes the binding (spec §3.1 table semantics).
type Null struct{}

func (Null) Kind() Kind      { return KindNull }
func (Null) Inspect() string { return "null" }

type Bool bool

func (Bool) Kind() Kind        { return KindBool }
func (b Bool) Inspect() string { return strconv.FormatBool(bool(b)) }

type Int int64

func (Int) Kind() Kind        { return KindInt }
func (i Int) Inspect() string { return strconv.FormatInt(int64(i), 10) }

type Float float64

func (Float) Kind() Kind        { return KindFloat }
func (f Float) Inspect() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }

type String string

func (String) Kind() Kind        { return KindString }
func (s String) Inspect() string { return string(s) }

// Reserved metamethod keys a Table may bind to overload an operator
// (spec §3.4). Looked up on the table's own entries first, then walked up
// __base__ like any other attribute.
const (
	MetaAdd     = "__add__"
	MetaSub     = "__sub__"
	MetaMul     = "__mul__"
	MetaDiv     = "__div__"
	MetaMod     = "__mod__"
	MetaNeg     = "__neg__"
	MetaLT      = "__lt__"
	MetaLE      = "__le__"
	MetaEQ      = "__eq__"
	MetaNE      = "__ne__"
	MetaGT      = "__gt__"
	MetaGE      = "__ge__"
	MetaGetAttr = "__getattr__"
	MetaGetItem = "__getitem__"
	MetaSetAttr = "__setattr__"
	MetaSetItem = "__setitem__"
	MetaCall    = "__call__"
	MetaLen     = "__len__"
	MetaBase    = "__base__"
)

// Table is Lucy's single composite type: an ordered-insertion hash map with
// an optional prototype (__base__) consulted when a key is missing locally.
// Tables have reference semantics — assignment and passing copy the
// pointer, never the contents, matching lucy_data.py's TableData.
type Table struct {
	entries map[Value]Value
	order   []Value // insertion order, for stable iteration
}

func NewTable() *Table {
	return &Table{entries: make(map[Value]Value)}
}

func (*Table) Kind() Kind { return KindTable }

func (t *Table) Inspect() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range t.order {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", k.Inspect(), t.entries[k].Inspect())
	}
	b.WriteByte('}')
	return b.String()
}

// RawGet looks up key on this table only, never consulting __base__.
func (t *Table) RawGet(key Value) (Value, bool) {
	v, ok := t.entries[key]
	return v, ok
}

// Get walks the __base__ prototype chain until key is found or the chain
// ends, mirroring lucy_data.py's TableData.__getitem__.
func (t *Table) Get(key Value) (Value, bool) {
	cur := t
	seen := map[*Table]bool{}
	for cur != nil && !seen[cur] {
		seen[cur] = true
		if v, ok := cur.entries[key]; ok {
			return v, true
		}
		base, ok := cur.entries[String(MetaBase)]
		if !ok {
			return Null{}, false
		}
		baseTable, ok := base.(*Table)
		if !ok {
			return Null{}, false
		}
		cur = baseTable
	}
	return Null{}, false
}

// Set installs key=val on this table directly. Storing Null deletes the
// binding, matching lucy_data.py's TableData.__setitem__.
func (t *Table) Set(key, val Value) {
	if _, isNull := val.(Null); isNull {
		if _, existed := t.entries[key]; existed {
			delete(t.entries, key)
			for i, k := range t.order {
				if k == key {
					t.order = append(t.order[:i], t.order[i+1:]...)
					break
				}
			}
		}
		return
	}
	if _, existed := t.entries[key]; !existed {
		t.order = append(t.order, key)
	}
	t.entries[key] = val
}

func (t *Table) Len() int { return len(t.order) }

// Keys returns the table's own keys in insertion order (not including any
// inherited through __base__).
func (t *Table) Keys() []Value {
	out := make([]Value, len(t.order))
	copy(out, t.order)
	return out
}

// Function is a compiled function's static descriptor: its parameter
// count, the address its body begins at in the flattened code array, and
// whether it is a closure literal requiring a captured base_closure.
type Function struct {
	ParamsNum int
	Address   int
	IsClosure bool
	Name      string // for disassembly/error messages only
}

// Function sits in the constant pool as a Value so the compiler can
// LOAD_CONST it directly; pkg/vm wraps it in a fresh *Closure every time
// that LOAD_CONST executes, rather than ever handing out the descriptor
// itself as a callable value.
func (*Function) Kind() Kind        { return KindClosure }
func (f *Function) Inspect() string { return "function:" + f.Name }

// ExtendFunction is a builtin implemented in Go rather than Lucy bytecode
// (spec §6.2/§6.3), invoked by the VM's CALL handler exactly like a Closure.
// ParamsNum is declared and checked exactly, the same arity contract a
// Closure's Function.ParamsNum gets.
type ExtendFunction struct {
	Name      string
	ParamsNum int
	Fn        func(args []Value) (Value, error)
}

func (*ExtendFunction) Kind() Kind        { return KindClosure }
func (f *ExtendFunction) Inspect() string { return "builtin:" + f.Name }

// Closure pairs a Function descriptor with the base_closure it was created
// under, lazily allocating its own local-variable table on first use —
// mirroring lucy_data.py's ClosureData.
type Closure struct {
	Function      *Function
	BaseClosure   *Closure // enclosing closure this one was built inside, nil at top level
	GlobalClosure *Closure // this closure's home module's global-frame closure
	// Program is the *compiler.Program this closure's code belongs to,
	// stamped by pkg/vm at LOAD_CONST time. It is opaque here (interface{})
	// because pkg/compiler already imports pkg/value, so this package can't
	// import pkg/compiler back; pkg/vm type-asserts it when pushing a call
	// frame. Carrying it on the Closure rather than the Function descriptor
	// is what lets a closure exported from one module (spec §4.9) be called
	// from another without re-entering a host driver: the calling VM reads
	// code/consts/names out of the callee's own home Program instead of its
	// own, exactly the "active module_id" switch spec §4.9 describes.
	Program   interface{}
	variables *Table
}

func NewClosure(fn *Function, base, global *Closure) *Closure {
	return &Closure{Function: fn, BaseClosure: base, GlobalClosure: global}
}

func (*Closure) Kind() Kind { return KindClosure }

func (c *Closure) Inspect() string {
	if c.Function != nil && c.Function.Name != "" {
		return "closure:" + c.Function.Name
	}
	return "closure"
}

// Variables returns this closure's local-variable table, allocating it on
// first access.
func (c *Closure) Variables() *Table {
	if c.variables == nil {
		c.variables = NewTable()
	}
	return c.variables
}

// GlobalRef is the sentinel the GLOBAL instruction installs when a name is
// declared with `global`: LOAD_NAME/STORE treat its presence as a redirect to the
// program's global closure instead of a real value (lucy_data.py's
// GlobalReference, a singleton since any instance means the same thing).
type GlobalRef struct{}

func (GlobalRef) Kind() Kind      { return KindNull }
func (GlobalRef) Inspect() string { return "<global reference>" }

var TheGlobalRef = GlobalRef{}

// Truthy implements Lucy's strict truthiness: only Bool(false) and Null are
// falsy (spec's resolved open question — no implicit 0/"" falsiness).
func Truthy(v Value) bool {
	switch v := v.(type) {
	case Null:
		return false
	case Bool:
		return bool(v)
	default:
		return true
	}
}

// CompareOpName renders a COMPARE_OP argument for error messages and
// disassembly.
func CompareOpName(arg int) string {
	if arg >= 0 && arg < len(opcode.CompareOpNames) {
		return opcode.CompareOpNames[arg]
	}
	return "?"
}
