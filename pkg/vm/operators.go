package vm

import (
	"lucy/pkg/lucyerr"
	"lucy/pkg/opcode"
	"lucy/pkg/value"
)

func isSame(a, b value.Value) bool {
	switch av := a.(type) {
	case value.Null:
		_, ok := b.(value.Null)
		return ok
	case value.Bool:
		bv, ok := b.(value.Bool)
		return ok && av == bv
	case value.Int:
		bv, ok := b.(value.Int)
		return ok && av == bv
	case value.Float:
		bv, ok := b.(value.Float)
		return ok && av == bv
	case value.String:
		bv, ok := b.(value.String)
		return ok && av == bv
	case *value.Table:
		bv, ok := b.(*value.Table)
		return ok && av == bv
	case *value.Closure:
		bv, ok := b.(*value.Closure)
		return ok && av == bv
	case *value.ExtendFunction:
		bv, ok := b.(*value.ExtendFunction)
		return ok && av == bv
	default:
		return false
	}
}

// checkHashable enforces spec §4.5/§7: only Null, Bool, Int, Float, and
// String may be used as a table key (lvm.py's HASHABLE_DATA_TYPE) — a Table
// or Closure used as a key raises TYPE_ERROR rather than hashing by Go
// pointer identity.
func checkHashable(v value.Value) error {
	switch v.(type) {
	case value.Null, value.Bool, value.Int, value.Float, value.String:
		return nil
	default:
		return rtErr(lucyerr.TypeError, "table-index not hashable: a %s value", v.Kind())
	}
}

// asFloat reports whether v is numeric and its float64 value.
func asFloat(v value.Value) (float64, bool) {
	switch n := v.(type) {
	case value.Int:
		return float64(n), true
	case value.Float:
		return float64(n), true
	default:
		return 0, false
	}
}

func (vm *VM) negate(v value.Value) (value.Value, error) {
	switch n := v.(type) {
	case value.Int:
		return -n, nil
	case value.Float:
		return -n, nil
	case *value.Table:
		if mm, ok := n.Get(value.String(value.MetaNeg)); ok {
			return vm.call(mm, []value.Value{n})
		}
	}
	return nil, rtErr(lucyerr.TypeError, "cannot negate a %s value", v.Kind())
}

var arithMeta = map[opcode.OpCode]string{
	opcode.ADD: value.MetaAdd,
	opcode.SUB: value.MetaSub,
	opcode.MUL: value.MetaMul,
	opcode.DIV: value.MetaDiv,
	opcode.MOD: value.MetaMod,
}

// arith implements +, -, *, /, % with int/int, float promotion, string
// concatenation for ADD, and a metamethod fallback when the left operand is
// a table exposing the corresponding __op__ key.
func (vm *VM) arith(op opcode.OpCode, left, right value.Value) (value.Value, error) {
	if op == opcode.ADD {
		if ls, ok := left.(value.String); ok {
			if rs, ok := right.(value.String); ok {
				return ls + rs, nil
			}
		}
	}

	li, lInt := left.(value.Int)
	ri, rInt := right.(value.Int)
	if lInt && rInt {
		switch op {
		case opcode.ADD:
			return li + ri, nil
		case opcode.SUB:
			return li - ri, nil
		case opcode.MUL:
			return li * ri, nil
		case opcode.DIV:
			if ri == 0 {
				return nil, rtErr(lucyerr.TypeError, "division by zero")
			}
			return li / ri, nil
		case opcode.MOD:
			if ri == 0 {
				return nil, rtErr(lucyerr.TypeError, "division by zero")
			}
			return li % ri, nil
		}
	}

	if lf, ok := asFloat(left); ok {
		if rf, ok := asFloat(right); ok {
			switch op {
			case opcode.ADD:
				return value.Float(lf + rf), nil
			case opcode.SUB:
				return value.Float(lf - rf), nil
			case opcode.MUL:
				return value.Float(lf * rf), nil
			case opcode.DIV:
				if rf == 0 {
					return nil, rtErr(lucyerr.TypeError, "division by zero")
				}
				return value.Float(lf / rf), nil
			case opcode.MOD:
				if rf == 0 {
					return nil, rtErr(lucyerr.TypeError, "division by zero")
				}
				return value.Float(mathMod(lf, rf)), nil
			}
		}
	}

	if tbl, ok := left.(*value.Table); ok {
		if mm, ok := tbl.Get(value.String(arithMeta[op])); ok {
			return vm.call(mm, []value.Value{left, right})
		}
	}
	return nil, rtErr(lucyerr.TypeError, "unsupported operand types for %s: %s and %s", op, left.Kind(), right.Kind())
}

func mathMod(a, b float64) float64 {
	m := a - b*float64(int64(a/b))
	return m
}

var compareMeta = map[int]string{
	opcode.CmpLT: value.MetaLT,
	opcode.CmpLE: value.MetaLE,
	opcode.CmpEQ: value.MetaEQ,
	opcode.CmpNE: value.MetaNE,
	opcode.CmpGT: value.MetaGT,
	opcode.CmpGE: value.MetaGE,
}

func (vm *VM) compare(arg int, left, right value.Value) (value.Value, error) {
	if arg == opcode.CmpEQ || arg == opcode.CmpNE {
		if eq, ok := scalarEquals(left, right); ok {
			if arg == opcode.CmpEQ {
				return value.Bool(eq), nil
			}
			return value.Bool(!eq), nil
		}
	}

	if ls, ok := left.(value.String); ok {
		if rs, ok := right.(value.String); ok {
			return value.Bool(compareOrdered(arg, stringCompare(ls, rs))), nil
		}
	}
	if lf, ok := asFloat(left); ok {
		if rf, ok := asFloat(right); ok {
			var c int
			switch {
			case lf < rf:
				c = -1
			case lf > rf:
				c = 1
			}
			return value.Bool(compareOrdered(arg, c)), nil
		}
	}

	if tbl, ok := left.(*value.Table); ok {
		if mm, ok := tbl.Get(value.String(compareMeta[arg])); ok {
			return vm.call(mm, []value.Value{left, right})
		}
	}
	return nil, rtErr(lucyerr.TypeError, "unsupported comparison between %s and %s", left.Kind(), right.Kind())
}

// scalarEquals reports equality for == / != when it can be decided without
// numeric/string ordering (Null, Bool, and reference types); ok is false
// when the caller should fall through to the ordered comparison path.
func scalarEquals(left, right value.Value) (eq bool, ok bool) {
	switch l := left.(type) {
	case value.Null:
		_, isNull := right.(value.Null)
		return isNull, true
	case value.Bool:
		r, isBool := right.(value.Bool)
		return isBool && l == r, isBool
	case *value.Table, *value.Closure, *value.ExtendFunction:
		return isSame(left, right), true
	default:
		return false, false
	}
}

func stringCompare(a, b value.String) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareOrdered(arg int, c int) bool {
	switch arg {
	case opcode.CmpLT:
		return c < 0
	case opcode.CmpLE:
		return c <= 0
	case opcode.CmpEQ:
		return c == 0
	case opcode.CmpNE:
		return c != 0
	case opcode.CmpGT:
		return c > 0
	case opcode.CmpGE:
		return c >= 0
	}
	return false
}

func (vm *VM) getAttr(obj value.Value, name string) (value.Value, error) {
	tbl, ok := obj.(*value.Table)
	if !ok {
		return nil, rtErr(lucyerr.TypeError, "cannot get attribute %q of a %s value", name, obj.Kind())
	}
	// Metamethod wins unconditionally when present (spec §4.5, lvm.py:258):
	// a direct value under the same key never shadows __getattr__.
	if mm, ok := tbl.Get(value.String(value.MetaGetAttr)); ok {
		return vm.call(mm, []value.Value{tbl, value.String(name)})
	}
	if v, ok := tbl.Get(value.String(name)); ok {
		return v, nil
	}
	return nil, rtErr(lucyerr.TypeError, "table has no attribute %q", name)
}

func (vm *VM) setAttr(obj value.Value, name string, val value.Value) error {
	tbl, ok := obj.(*value.Table)
	if !ok {
		return rtErr(lucyerr.TypeError, "cannot set attribute %q of a %s value", name, obj.Kind())
	}
	if mm, ok := tbl.Get(value.String(value.MetaSetAttr)); ok {
		_, err := vm.call(mm, []value.Value{tbl, value.String(name), val})
		return err
	}
	tbl.Set(value.String(name), val)
	return nil
}

func (vm *VM) getItem(obj value.Value, key value.Value) (value.Value, error) {
	tbl, ok := obj.(*value.Table)
	if !ok {
		return nil, rtErr(lucyerr.TypeError, "cannot index a %s value", obj.Kind())
	}
	if err := checkHashable(key); err != nil {
		return nil, err
	}
	// Metamethod wins unconditionally when present (spec §4.5, lvm.py:258):
	// a direct value under the same key never shadows __getitem__.
	if mm, ok := tbl.Get(value.String(value.MetaGetItem)); ok {
		return vm.call(mm, []value.Value{tbl, key})
	}
	if v, ok := tbl.Get(key); ok {
		return v, nil
	}
	return value.Null{}, nil
}

func (vm *VM) setItem(obj value.Value, key value.Value, val value.Value) error {
	tbl, ok := obj.(*value.Table)
	if !ok {
		return rtErr(lucyerr.TypeError, "cannot index-assign a %s value", obj.Kind())
	}
	if err := checkHashable(key); err != nil {
		return err
	}
	if mm, ok := tbl.Get(value.String(value.MetaSetItem)); ok {
		_, err := vm.call(mm, []value.Value{tbl, key, val})
		return err
	}
	tbl.Set(key, val)
	return nil
}
