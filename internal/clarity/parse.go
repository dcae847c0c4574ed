package clarity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is returned for literals Parse cannot read.
var ErrSyntax = errors.New("clarity: invalid literal")

// Parse reads a value from its canonical rendering. It accepts everything
// String produces: u5, true, "text", 'ST1..., none, (some v), (ok v),
// (err v) and (tuple (k v) ...).
func Parse(s string) (Value, error) {
	p := &parser{src: s}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("%w: trailing input at %d in %q", ErrSyntax, p.pos, s)
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) fail(msg string) error {
	return fmt.Errorf("%w: %s at %d in %q", ErrSyntax, msg, p.pos, p.src)
}

func (p *parser) value() (Value, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.fail("unexpected end")
	}

	switch c := p.src[p.pos]; {
	case c == '(':
		return p.list()
	case c == '"':
		return p.str()
	case c == '\'':
		p.pos++
		atom := p.atom()
		if !validPrincipal(atom) {
			return nil, p.fail("invalid principal")
		}
		return Principal(atom), nil
	default:
		return p.word()
	}
}

func (p *parser) word() (Value, error) {
	atom := p.atom()
	switch {
	case atom == "true":
		return Bool(true), nil
	case atom == "false":
		return Bool(false), nil
	case atom == "none":
		return None(), nil
	case len(atom) > 1 && atom[0] == 'u':
		n, err := strconv.ParseUint(atom[1:], 10, 64)
		if err != nil {
			return nil, p.fail("invalid uint " + atom)
		}
		return UInt(n), nil
	default:
		return nil, p.fail("unknown token " + strconv.Quote(atom))
	}
}

func (p *parser) atom() string {
	start := p.pos
	for p.pos < len(p.src) && !isSpace(p.src[p.pos]) && p.src[p.pos] != '(' && p.src[p.pos] != ')' {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) str() (Value, error) {
	start := p.pos
	p.pos++
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '\\':
			p.pos += 2
			continue
		case '"':
			p.pos++
			s, err := strconv.Unquote(p.src[start:p.pos])
			if err != nil {
				return nil, p.fail("invalid string")
			}
			for i := 0; i < len(s); i++ {
				if s[i] > 0x7e || s[i] < 0x20 && s[i] != '\n' && s[i] != '\t' {
					return nil, p.fail("non-ascii string")
				}
			}
			return StringASCII(s), nil
		}
		p.pos++
	}
	return nil, p.fail("unterminated string")
}

func (p *parser) list() (Value, error) {
	p.pos++ // (
	p.skipSpace()
	head := p.atom()

	var out Value
	switch head {
	case "some", "ok", "err":
		inner, err := p.value()
		if err != nil {
			return nil, err
		}
		switch head {
		case "some":
			out = Some(inner)
		case "ok":
			out = Ok(inner)
		default:
			out = Err(inner)
		}
	case "tuple":
		fields := map[string]Value{}
		for {
			p.skipSpace()
			if p.pos < len(p.src) && p.src[p.pos] == ')' {
				break
			}
			if p.pos >= len(p.src) || p.src[p.pos] != '(' {
				return nil, p.fail("expected tuple field")
			}
			p.pos++
			p.skipSpace()
			name := p.atom()
			if name == "" {
				return nil, p.fail("empty tuple key")
			}
			v, err := p.value()
			if err != nil {
				return nil, err
			}
			if err := p.close(); err != nil {
				return nil, err
			}
			fields[name] = v
		}
		out = NewTuple(fields)
	default:
		return nil, p.fail("unknown form " + strconv.Quote(head))
	}

	if err := p.close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *parser) close() error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != ')' {
		return p.fail("expected )")
	}
	p.pos++
	return nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// validPrincipal accepts ST.../SP... addresses optionally followed by
// ".contract-name".
func validPrincipal(s string) bool {
	addr, name, hasName := strings.Cut(s, ".")
	if len(addr) < 2 || addr[0] != 'S' {
		return false
	}
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	if hasName {
		if name == "" {
			return false
		}
		for i := 0; i < len(name); i++ {
			c := name[i]
			if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
				return false
			}
		}
	}
	return true
}
