package value

import "testing"

func TestTablePrototypeChain(t *testing.T) {
	base := NewTable()
	base.Set(String("greeting"), String("hi"))

	child := NewTable()
	child.Set(String(MetaBase), base)

	if _, ok := child.RawGet(String("greeting")); ok {
		t.Fatal("RawGet should not see inherited keys")
	}
	v, ok := child.Get(String("greeting"))
	if !ok || v != String("hi") {
		t.Fatalf("expected inherited greeting=hi, got %#v, %v", v, ok)
	}

	child.Set(String("greeting"), String("hello"))
	v, _ = child.Get(String("greeting"))
	if v != String("hello") {
		t.Fatalf("expected local override to shadow base, got %#v", v)
	}
}

func TestTableAssignNullDeletes(t *testing.T) {
	tbl := NewTable()
	tbl.Set(String("x"), Int(1))
	if tbl.Len() != 1 {
		t.Fatalf("expected len 1, got %d", tbl.Len())
	}
	tbl.Set(String("x"), Null{})
	if tbl.Len() != 0 {
		t.Fatalf("expected assigning null to delete the key, got len %d", tbl.Len())
	}
	if _, ok := tbl.RawGet(String("x")); ok {
		t.Fatal("deleted key should not be found")
	}
}

func TestTableKeysPreservesInsertionOrder(t *testing.T) {
	tbl := NewTable()
	tbl.Set(String("b"), Int(2))
	tbl.Set(String("a"), Int(1))
	tbl.Set(String("c"), Int(3))
	keys := tbl.Keys()
	want := []string{"b", "a", "c"}
	for i, k := range want {
		if keys[i] != String(k) {
			t.Fatalf("keys[%d] = %v, want %v", i, keys[i], k)
		}
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Null{}, false},
		{Bool(false), false},
		{Bool(true), true},
		{Int(0), true},
		{Float(0), true},
		{String(""), true},
	}
	for _, c := range cases {
		if got := Truthy(c.v); got != c.want {
			t.Errorf("Truthy(%#v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestClosureVariablesLazy(t *testing.T) {
	fn := &Function{ParamsNum: 0, Address: 0, Name: "f"}
	c := NewClosure(fn, nil, nil)
	vars := c.Variables()
	vars.Set(String("n"), Int(5))
	if v, ok := c.Variables().Get(String("n")); !ok || v != Int(5) {
		t.Fatalf("expected lazily-created variables table to persist, got %#v", v)
	}
}

func TestTableReferenceSemantics(t *testing.T) {
	tbl := NewTable()
	tbl.Set(String("x"), Int(1))
	alias := tbl
	alias.Set(String("x"), Int(2))
	if v, _ := tbl.Get(String("x")); v != Int(2) {
		t.Fatal("tables should have reference semantics, not value semantics")
	}
}
