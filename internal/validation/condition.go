package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Op string

const (
	OpExists Op = ""
	OpEq     Op = "==="
	OpNeq    Op = "!=="
	OpGTE    Op = ">="
	OpLTE    Op = "<="
	OpGT     Op = ">"
	OpLT     Op = "<"
)

var operators = []Op{OpEq, OpNeq, OpGTE, OpLTE, OpGT, OpLT}

var ErrMalformed = errors.New("malformed condition")

type LiteralKind int

const (
	KindString LiteralKind = iota
	KindNumber
	KindBool
	KindNull
)

type Literal struct {
	Kind LiteralKind
	Str  string
	Num  float64
	Bool bool
}

// Condition is a parsed custom check: a path, an operator and a literal.
// OpExists conditions carry no literal.
type Condition struct {
	Left  string
	Op    Op
	Right Literal
}

// ParseCondition accepts "<path><op><literal>"; any other text is an
// existence check on itself. Nothing is ever executed.
func ParseCondition(expr string) (Condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Condition{}, fmt.Errorf("%w: empty expression", ErrMalformed)
	}

	idx := -1
	var op Op
	for _, cand := range operators {
		i := strings.Index(expr, string(cand))
		if i < 0 {
			continue
		}
		if idx == -1 || i < idx || (i == idx && len(cand) > len(op)) {
			idx, op = i, cand
		}
	}

	if idx < 0 {
		// anything without a known operator is an existence check; a
		// path that cannot be resolved simply does not exist
		return Condition{Left: expr, Op: OpExists}, nil
	}

	left := strings.TrimSpace(expr[:idx])
	right := strings.TrimSpace(expr[idx+len(op):])
	if !validPath(left) {
		return Condition{}, fmt.Errorf("%w: invalid path %q", ErrMalformed, left)
	}
	if right == "" {
		return Condition{}, fmt.Errorf("%w: missing value after %s", ErrMalformed, op)
	}
	return Condition{Left: left, Op: op, Right: parseLiteral(right)}, nil
}

// EvaluateCondition parses expr and evaluates it against body.
func EvaluateCondition(body any, expr string) (bool, error) {
	c, err := ParseCondition(expr)
	if err != nil {
		return false, err
	}
	return c.Eval(body), nil
}

func (c Condition) Eval(body any) bool {
	v, found := Lookup(body, c.Left)
	switch c.Op {
	case OpExists:
		return found && v != nil && validPath(c.Left)
	case OpEq:
		return found && strictEqual(v, c.Right)
	case OpNeq:
		return !found || !strictEqual(v, c.Right)
	}
	if !found {
		return false
	}
	return compare(v, c.Right, c.Op)
}

func parseLiteral(s string) Literal {
	if len(s) >= 2 {
		q := s[0]
		if (q == '\'' || q == '"') && s[len(s)-1] == q {
			return Literal{Kind: KindString, Str: s[1 : len(s)-1]}
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return Literal{Kind: KindNumber, Num: n}
	}
	switch s {
	case "true":
		return Literal{Kind: KindBool, Bool: true}
	case "false":
		return Literal{Kind: KindBool, Bool: false}
	case "null":
		return Literal{Kind: KindNull}
	}
	return Literal{Kind: KindString, Str: s}
}

func strictEqual(v any, lit Literal) bool {
	switch lit.Kind {
	case KindNumber:
		n, ok := v.(float64)
		return ok && n == lit.Num
	case KindString:
		s, ok := v.(string)
		return ok && s == lit.Str
	case KindBool:
		b, ok := v.(bool)
		return ok && b == lit.Bool
	case KindNull:
		return v == nil
	}
	return false
}

func compare(v any, lit Literal, op Op) bool {
	if lit.Kind == KindString {
		s, ok := v.(string)
		if !ok {
			return false
		}
		return ordered(strings.Compare(s, lit.Str), op)
	}

	left, ok := toNumber(v)
	if !ok {
		return false
	}
	var right float64
	switch lit.Kind {
	case KindNumber:
		right = lit.Num
	case KindBool:
		if lit.Bool {
			right = 1
		}
	}
	switch {
	case left < right:
		return ordered(-1, op)
	case left > right:
		return ordered(1, op)
	default:
		return ordered(0, op)
	}
}

func ordered(cmp int, op Op) bool {
	switch op {
	case OpGT:
		return cmp > 0
	case OpGTE:
		return cmp >= 0
	case OpLT:
		return cmp < 0
	case OpLTE:
		return cmp <= 0
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case nil:
		return 0, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return n, err == nil
	}
	return 0, false
}

func validPath(p string) bool {
	if p == "" {
		return false
	}
	for _, seg := range strings.Split(p, ".") {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			case r == '_' || r == '$' || r == '-':
			default:
				return false
			}
		}
	}
	return true
}
