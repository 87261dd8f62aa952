package api

import "testing"

func TestTaskInputHash_CallStyleIndependent(t *testing.T) {
	cc := CallContext{TaskName: "foo"}
	params := []string{"a", "b", "c"}

	positional, err := BindArguments(params, nil, []any{1, 2, 3})
	if err != nil {
		t.Fatalf("binding failed: %v", err)
	}
	named, err := BindArguments(params, map[string]any{"c": 3}, []any{1, Named("b", 2)})
	if err != nil {
		t.Fatalf("binding failed: %v", err)
	}

	if TaskInputHash(cc, positional) != TaskInputHash(cc, named) {
		t.Fatal("equivalent arguments must hash identically regardless of call style")
	}
}

func TestTaskInputHash_DistinguishesArguments(t *testing.T) {
	cc := CallContext{TaskName: "foo"}

	h1 := TaskInputHash(cc, map[string]any{"x": 1})
	h2 := TaskInputHash(cc, map[string]any{"x": 2})
	if h1 == h2 {
		t.Fatal("different argument values must hash differently")
	}
}

func TestTaskInputHash_DistinguishesTasks(t *testing.T) {
	args := map[string]any{"x": 1}

	h1 := TaskInputHash(CallContext{TaskName: "foo"}, args)
	h2 := TaskInputHash(CallContext{TaskName: "bar"}, args)
	if h1 == h2 {
		t.Fatal("same arguments to different tasks must hash differently")
	}
}

func TestTaskInputHash_Deterministic(t *testing.T) {
	cc := CallContext{TaskName: "foo"}
	args := map[string]any{"a": 1, "b": "two", "c": []int{3}}

	first := TaskInputHash(cc, args)
	for i := 0; i < 10; i++ {
		if TaskInputHash(cc, args) != first {
			t.Fatal("hash must be deterministic across calls")
		}
	}
}

func TestConstantCacheKey(t *testing.T) {
	fn := ConstantCacheKey("always")
	if fn(CallContext{}, nil) != "always" || fn(CallContext{TaskName: "x"}, map[string]any{"a": 1}) != "always" {
		t.Fatal("ConstantCacheKey must ignore its inputs")
	}
}
