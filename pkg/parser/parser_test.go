package parser

import (
	"testing"

	"lucy/pkg/ast"
)

func mustParse(t *testing.T, input string) *ast.Program {
	t.Helper()
	prog, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", input, err)
	}
	return prog
}

func TestAssignmentAndBinaryPrecedence(t *testing.T) {
	prog := mustParse(t, `x = 1 + 2 * 3;`)
	if len(prog.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(prog.Statements))
	}
	assign, ok := prog.Statements[0].(*ast.Assignment)
	if !ok {
		t.Fatalf("statement is not *ast.Assignment, got %T", prog.Statements[0])
	}
	ident, ok := assign.Target.(*ast.Identifier)
	if !ok || ident.Name != "x" {
		t.Fatalf("assignment target not identifier x, got %#v", assign.Target)
	}
	add, ok := assign.Value.(*ast.Binary)
	if !ok || add.Op != "+" {
		t.Fatalf("expected top-level +, got %#v", assign.Value)
	}
	mul, ok := add.Right.(*ast.Binary)
	if !ok || mul.Op != "*" {
		t.Fatalf("expected * to bind tighter than +, got %#v", add.Right)
	}
}

func TestCompoundAssignment(t *testing.T) {
	prog := mustParse(t, `total.sum += 1;`)
	assign, ok := prog.Statements[0].(*ast.Assignment)
	if !ok {
		t.Fatalf("statement is not *ast.Assignment, got %T", prog.Statements[0])
	}
	if assign.Op != "+" {
		t.Fatalf("expected compound op +, got %q", assign.Op)
	}
	member, ok := assign.Target.(*ast.Member)
	if !ok || member.Kind != "." {
		t.Fatalf("expected member target, got %#v", assign.Target)
	}
}

func TestIfElseIfChain(t *testing.T) {
	prog := mustParse(t, `
if x < 1 {
	y = 1;
} else if x < 2 {
	y = 2;
} else {
	y = 3;
}
`)
	ifStmt, ok := prog.Statements[0].(*ast.If)
	if !ok {
		t.Fatalf("statement is not *ast.If, got %T", prog.Statements[0])
	}
	if ifStmt.Else == nil || len(ifStmt.Else.Statements) != 1 {
		t.Fatalf("expected else-if folded into a single-statement block, got %#v", ifStmt.Else)
	}
	if _, ok := ifStmt.Else.Statements[0].(*ast.If); !ok {
		t.Fatalf("expected nested *ast.If in else branch, got %T", ifStmt.Else.Statements[0])
	}
}

func TestForLoopAndBreakContinue(t *testing.T) {
	prog := mustParse(t, `
for v in range(10) {
	if v is 5 {
		break;
	}
	continue;
}
`)
	forStmt, ok := prog.Statements[0].(*ast.For)
	if !ok {
		t.Fatalf("statement is not *ast.For, got %T", prog.Statements[0])
	}
	if forStmt.Var.Name != "v" {
		t.Fatalf("expected loop variable v, got %q", forStmt.Var.Name)
	}
	call, ok := forStmt.Iter.(*ast.Call)
	if !ok {
		t.Fatalf("expected call iterator, got %#v", forStmt.Iter)
	}
	callee, ok := call.Callee.(*ast.Identifier)
	if !ok || callee.Name != "range" {
		t.Fatalf("expected range() call, got %#v", call.Callee)
	}
}

func TestGotoRequiresCall(t *testing.T) {
	if _, err := Parse(`goto 1 + 2;`); err == nil {
		t.Fatal("expected error for goto with non-call target")
	}
	prog := mustParse(t, `goto loop_body(n - 1);`)
	gotoStmt, ok := prog.Statements[0].(*ast.Goto)
	if !ok {
		t.Fatalf("statement is not *ast.Goto, got %T", prog.Statements[0])
	}
	callee, ok := gotoStmt.Call.Callee.(*ast.Identifier)
	if !ok || callee.Name != "loop_body" {
		t.Fatalf("expected call to loop_body, got %#v", gotoStmt.Call.Callee)
	}
}

func TestImportAndFromImport(t *testing.T) {
	prog := mustParse(t, `
import a.b.c as abc;
from x.y import f, g as gg;
from z import *;
`)
	imp, ok := prog.Statements[0].(*ast.Import)
	if !ok {
		t.Fatalf("statement 0 is not *ast.Import, got %T", prog.Statements[0])
	}
	if len(imp.Path) != 3 || imp.Path[2] != "c" || imp.Alias != "abc" {
		t.Fatalf("unexpected import node: %#v", imp)
	}
	from, ok := prog.Statements[1].(*ast.FromImport)
	if !ok {
		t.Fatalf("statement 1 is not *ast.FromImport, got %T", prog.Statements[1])
	}
	if len(from.Items) != 2 || from.Items[1].Name != "g" || from.Items[1].Alias != "gg" {
		t.Fatalf("unexpected from-import items: %#v", from.Items)
	}
	star, ok := prog.Statements[2].(*ast.FromImport)
	if !ok || !star.Star {
		t.Fatalf("expected star import, got %#v", prog.Statements[2])
	}
}

func TestTablePositionalAndKeyed(t *testing.T) {
	prog := mustParse(t, `t = {1, 2, name: "lucy"};`)
	assign := prog.Statements[0].(*ast.Assignment)
	table, ok := assign.Value.(*ast.Table)
	if !ok {
		t.Fatalf("expected table literal, got %#v", assign.Value)
	}
	if len(table.Properties) != 3 {
		t.Fatalf("expected 3 properties, got %d", len(table.Properties))
	}
	if table.Properties[0].Key != nil {
		t.Fatalf("expected positional property to have nil key, got %#v", table.Properties[0].Key)
	}
	if table.Properties[2].Key == nil {
		t.Fatal("expected keyed property to have a key")
	}
}

func TestClosureLiteral(t *testing.T) {
	prog := mustParse(t, `make_adder = func(n) { return |x| { return x + n; }; };`)
	assign := prog.Statements[0].(*ast.Assignment)
	fn, ok := assign.Value.(*ast.Function)
	if !ok || fn.IsClosure {
		t.Fatalf("expected plain func, got %#v", assign.Value)
	}
	ret := fn.Body.Statements[0].(*ast.Return)
	inner, ok := ret.Value.(*ast.Function)
	if !ok || !inner.IsClosure {
		t.Fatalf("expected closure literal in nested return, got %#v", ret.Value)
	}
}

func TestMemberAndCallChain(t *testing.T) {
	prog := mustParse(t, `a.b[c](1, 2).d;`)
	stmt, ok := prog.Statements[0].(*ast.ExpressionStatement)
	if !ok {
		t.Fatalf("statement is not *ast.ExpressionStatement, got %T", prog.Statements[0])
	}
	outer, ok := stmt.Expression.(*ast.Member)
	if !ok || outer.Kind != "." {
		t.Fatalf("expected outer .d member access, got %#v", stmt.Expression)
	}
	call, ok := outer.Object.(*ast.Call)
	if !ok || len(call.Args) != 2 {
		t.Fatalf("expected call with 2 args, got %#v", outer.Object)
	}
	index, ok := call.Callee.(*ast.Member)
	if !ok || index.Kind != "[]" {
		t.Fatalf("expected b[c] index access as callee, got %#v", call.Callee)
	}
}

func TestLogicalShortCircuitOperators(t *testing.T) {
	prog := mustParse(t, `ok = a and b or c;`)
	assign := prog.Statements[0].(*ast.Assignment)
	or, ok := assign.Value.(*ast.Binary)
	if !ok || or.Op != "OR" {
		t.Fatalf("expected top-level or, got %#v", assign.Value)
	}
	and, ok := or.Left.(*ast.Binary)
	if !ok || and.Op != "AND" {
		t.Fatalf("expected and to bind tighter than or, got %#v", or.Left)
	}
}

func TestUnaryPrecedence(t *testing.T) {
	prog := mustParse(t, `x = -a + !b;`)
	assign := prog.Statements[0].(*ast.Assignment)
	add, ok := assign.Value.(*ast.Binary)
	if !ok || add.Op != "+" {
		t.Fatalf("expected top-level +, got %#v", assign.Value)
	}
	if _, ok := add.Left.(*ast.Unary); !ok {
		t.Fatalf("expected unary - on left, got %#v", add.Left)
	}
	if _, ok := add.Right.(*ast.Unary); !ok {
		t.Fatalf("expected unary ! on right, got %#v", add.Right)
	}
}
