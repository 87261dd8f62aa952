package api

import "fmt"

// NamedArg passes an argument by parameter name instead of position.
// Positional and named styles may be mixed, but positional arguments must
// come first, exactly as in an ordinary function call.
type NamedArg struct {
	Name  string
	Value any
}

// Named is a convenience constructor for NamedArg.
func Named(name string, value any) NamedArg {
	return NamedArg{Name: name, Value: value}
}

// BindArguments resolves a call's argument list into a parameter->value map.
//
// The resolved map is independent of calling style: f(1, 2, 3) and
// f(a=1, b=2, c=3) bind to the same map for parameters [a b c]. This is the
// single argument representation used for body invocation and cache-key
// computation.
func BindArguments(params []string, defaults map[string]any, args []any) (map[string]any, error) {
	bound := make(map[string]any, len(params))
	pos := 0
	sawNamed := false

	for _, arg := range args {
		if named, ok := arg.(NamedArg); ok {
			sawNamed = true
			if !containsParam(params, named.Name) {
				return nil, fmt.Errorf("unexpected argument %q", named.Name)
			}
			if _, dup := bound[named.Name]; dup {
				return nil, fmt.Errorf("argument %q given more than once", named.Name)
			}
			bound[named.Name] = named.Value
			continue
		}

		if sawNamed {
			return nil, fmt.Errorf("positional argument after named argument")
		}
		if pos >= len(params) {
			return nil, fmt.Errorf("too many positional arguments: got %d, expected at most %d", countPositional(args), len(params))
		}
		bound[params[pos]] = arg
		pos++
	}

	for _, p := range params {
		if _, ok := bound[p]; ok {
			continue
		}
		def, ok := defaults[p]
		if !ok {
			return nil, fmt.Errorf("missing argument %q", p)
		}
		bound[p] = def
	}

	return bound, nil
}

// countPositional counts the leading positional arguments of a call, so
// error messages for mixed calls report the positional count alone.
func countPositional(args []any) int {
	n := 0
	for _, arg := range args {
		if _, ok := arg.(NamedArg); ok {
			break
		}
		n++
	}
	return n
}

func containsParam(params []string, name string) bool {
	for _, p := range params {
		if p == name {
			return true
		}
	}
	return false
}
