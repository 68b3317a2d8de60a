package collection

import (
	"strings"
)

const (
	// VarRoot is the identifier that lifted literals are bound to.
	VarRoot = "vars"
	// VarPrefix prefixes every lifted literal within a rewritten condition.
	VarPrefix = VarRoot + "."
)

// liftNames are the names given to lifted literals, in order.  Literals past
// the last name stay within the condition.
var liftNames = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}

// LiftedArgs holds the string literals lifted out of a condition.
type LiftedArgs interface {
	Get(name string) (any, bool)
	Map() map[string]any
}

// liftLiterals replaces quoted string literals with variables so that
// conditions which differ only by literals share a cached compilation, eg.
// `stock.symbol == "IBM"` becomes `stock.symbol == vars.a`.
//
// Conditions containing escapes, raw or byte strings, or triple quoted
// strings are returned unchanged.
func liftLiterals(cond string) (string, LiftedArgs) {
	if strings.ContainsRune(cond, '\\') || strings.Contains(cond, `"""`) || strings.Contains(cond, `'''`) {
		return cond, offsetArgs{}
	}

	l := lifter{src: cond, out: &strings.Builder{}, args: offsetArgs{src: cond, offsets: map[string][2]int{}}}
	if !l.lift() {
		return cond, offsetArgs{}
	}
	return l.out.String(), l.args
}

type lifter struct {
	src  string
	idx  int
	out  *strings.Builder
	args offsetArgs
}

// lift rewrites src into out, returning false if the condition can't be
// lifted.
func (l *lifter) lift() bool {
	for l.idx < len(l.src) {
		char := l.src[l.idx]
		if char != '"' && char != '\'' {
			l.out.WriteByte(char)
			l.idx++
			continue
		}

		// r"..." and b"..." prefixes change the literal's meaning.
		if l.idx > 0 && isIdentChar(l.src[l.idx-1]) {
			return false
		}

		start := l.idx + 1
		end := strings.IndexByte(l.src[start:], char)
		if end < 0 {
			// Unterminated;  leave this for the parser to report.
			return false
		}
		end += start
		l.idx = end + 1

		n := len(l.args.offsets)
		if n >= len(liftNames) {
			l.out.WriteString(l.src[start-1 : end+1])
			continue
		}
		l.args.offsets[liftNames[n]] = [2]int{start, end}
		l.out.WriteString(VarPrefix + liftNames[n])
	}
	return true
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// offsetArgs references lifted literals by their offsets within the unlifted
// condition, avoiding a copy of each literal.
type offsetArgs struct {
	src     string
	offsets map[string][2]int
}

func (o offsetArgs) Get(name string) (any, bool) {
	off, ok := o.offsets[name]
	if !ok {
		return nil, false
	}
	return o.src[off[0]:off[1]], true
}

func (o offsetArgs) Map() map[string]any {
	res := make(map[string]any, len(o.offsets))
	for k, off := range o.offsets {
		res[k] = o.src[off[0]:off[1]]
	}
	return res
}
