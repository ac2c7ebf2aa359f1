// Package serialize implements the neutral on-disk bytecode form (spec
// §6.4): a *compiler.Program dumped to and loaded from JSON, tagged the
// way dump.py's dump_code/load_code tag function and global-reference
// literals so Function constants and ExtendFunction bindings round-trip
// without ambiguity against plain ints, floats, and strings.
package serialize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"lucy/pkg/compiler"
	"lucy/pkg/opcode"
	"lucy/pkg/value"
)

// instruction is the wire form of a single opcode.Instruction: an
// [opcode_name, argument] pair, matching dump_code's code_list encoding.
type instruction [2]json.RawMessage

// dumpedProgram is the on-disk shape of a compiler.Program.
type dumpedProgram struct {
	Code      []instruction     `json:"code"`
	Consts    []json.RawMessage `json:"consts"`
	Names     []string          `json:"names"`
	EntryAddr int               `json:"entry_addr"`
}

type functionLiteral struct {
	ParamsNum      int    `json:"params_num"`
	Address        *int   `json:"address"`
	Extend         bool   `json:"extend"`
	ExtendArgument string `json:"extend_argument,omitempty"`
	Name           string `json:"name,omitempty"`
	IsClosure      bool   `json:"is_closure,omitempty"`
}

// Dump renders prog as Lucy's neutral bytecode JSON form.
func Dump(prog *compiler.Program) ([]byte, error) {
	out := dumpedProgram{
		Names:     prog.Names,
		EntryAddr: prog.EntryAddr,
	}
	for _, ins := range prog.Code {
		nameJSON, err := json.Marshal(ins.Op.String())
		if err != nil {
			return nil, err
		}
		argJSON, err := json.Marshal(ins.Arg)
		if err != nil {
			return nil, err
		}
		out.Code = append(out.Code, instruction{nameJSON, argJSON})
	}
	for _, c := range prog.Consts {
		raw, err := dumpValue(c)
		if err != nil {
			return nil, err
		}
		out.Consts = append(out.Consts, raw)
	}
	return json.MarshalIndent(out, "", "  ")
}

func dumpValue(v value.Value) (json.RawMessage, error) {
	switch x := v.(type) {
	case *value.Function:
		lit := functionLiteral{ParamsNum: x.ParamsNum, Extend: false, Name: x.Name, IsClosure: x.IsClosure}
		addr := x.Address
		lit.Address = &addr
		return marshalTagged("function", lit)
	case *value.ExtendFunction:
		lit := functionLiteral{ParamsNum: x.ParamsNum, Extend: true, ExtendArgument: x.Name, Name: x.Name}
		return marshalTagged("function", lit)
	case value.GlobalRef:
		return marshalTagged("global_reference", struct{}{})
	case value.Null:
		return json.Marshal(nil)
	case value.Bool:
		return json.Marshal(bool(x))
	case value.Int:
		return json.Marshal(int64(x))
	case value.Float:
		raw, err := json.Marshal(float64(x))
		if err != nil {
			return nil, err
		}
		// Keep a fraction or exponent in the text so an integral float such
		// as 3.0 loads back as a Float rather than an Int.
		if !bytes.ContainsAny(raw, ".eE") {
			raw = append(raw, ".0"...)
		}
		return raw, nil
	case value.String:
		return json.Marshal(string(x))
	default:
		return nil, fmt.Errorf("serialize: cannot dump a %s constant", v.Kind())
	}
}

func marshalTagged(tag string, payload interface{}) (json.RawMessage, error) {
	return json.Marshal([2]interface{}{tag, payload})
}

// Load parses a dumped bytecode file back into a *compiler.Program.
// extendResolver supplies the ExtendFunction bound to each extend_argument
// name the dump references (the host namespace isn't itself serialized).
func Load(data []byte, extendResolver func(name string) (*value.ExtendFunction, bool)) (*compiler.Program, error) {
	var in dumpedProgram
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("serialize: invalid bytecode file: %w", err)
	}

	prog := &compiler.Program{
		Names:     in.Names,
		EntryAddr: in.EntryAddr,
	}
	for i, ins := range in.Code {
		var name string
		if err := json.Unmarshal(ins[0], &name); err != nil {
			return nil, fmt.Errorf("serialize: code[%d]: %w", i, err)
		}
		op, ok := opcode.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("serialize: code[%d]: unknown opcode %q", i, name)
		}
		var arg int
		if err := json.Unmarshal(ins[1], &arg); err != nil {
			return nil, fmt.Errorf("serialize: code[%d]: %w", i, err)
		}
		prog.Code = append(prog.Code, opcode.Instruction{Op: op, Arg: arg})
	}
	for i, raw := range in.Consts {
		v, err := loadValue(raw, extendResolver)
		if err != nil {
			return nil, fmt.Errorf("serialize: consts[%d]: %w", i, err)
		}
		prog.Consts = append(prog.Consts, v)
	}
	return prog, nil
}

func loadValue(raw json.RawMessage, extendResolver func(name string) (*value.ExtendFunction, bool)) (value.Value, error) {
	if string(raw) == "null" {
		return value.Null{}, nil
	}

	var tagged [2]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err == nil {
		var tag string
		if err := json.Unmarshal(tagged[0], &tag); err == nil {
			switch tag {
			case "function":
				var lit functionLiteral
				if err := json.Unmarshal(tagged[1], &lit); err != nil {
					return nil, err
				}
				if lit.Extend {
					if extendResolver == nil {
						return nil, fmt.Errorf("no extend-function resolver supplied for %q", lit.ExtendArgument)
					}
					fn, ok := extendResolver(lit.ExtendArgument)
					if !ok {
						return nil, fmt.Errorf("unresolved extend function %q", lit.ExtendArgument)
					}
					return fn, nil
				}
				addr := 0
				if lit.Address != nil {
					addr = *lit.Address
				}
				return &value.Function{ParamsNum: lit.ParamsNum, Address: addr, IsClosure: lit.IsClosure, Name: lit.Name}, nil
			case "global_reference":
				return value.TheGlobalRef, nil
			}
		}
	}

	var plain interface{}
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	switch p := plain.(type) {
	case nil:
		return value.Null{}, nil
	case bool:
		return value.Bool(p), nil
	case string:
		return value.String(p), nil
	case float64:
		if p == float64(int64(p)) {
			var asInt int64
			if err := json.Unmarshal(raw, &asInt); err == nil {
				return value.Int(asInt), nil
			}
		}
		return value.Float(p), nil
	default:
		return nil, fmt.Errorf("unsupported literal shape %T", plain)
	}
}
