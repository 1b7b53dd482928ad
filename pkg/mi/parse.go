package mi

import (
	"strconv"
	"strings"
)

// Prompt is the line GDB prints after each complete answer.
const Prompt = "(gdb)"

// IsPrompt reports whether line is the MI prompt.
func IsPrompt(line string) bool {
	return strings.TrimSpace(line) == Prompt
}

var recordTypes = map[byte]RecordType{
	'^': RecordResult,
	'*': RecordExec,
	'+': RecordStatus,
	'=': RecordNotify,
	'~': RecordConsole,
	'@': RecordTarget,
	'&': RecordLog,
}

// ParseLine decodes one line of MI output.
//
// Lines that do not start with an optional token followed by a record
// prefix are returned as RecordOutput with the line as payload. Lines that
// do start like a record but break the grammar yield a *ParseError.
func ParseLine(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")

	p := &parser{src: line}
	token, hasToken := p.token()
	if p.eof() {
		return Record{Type: RecordOutput, Payload: line}, nil
	}
	typ, ok := recordTypes[p.peek()]
	if !ok {
		return Record{Type: RecordOutput, Payload: line}, nil
	}
	p.pos++

	rec := Record{Type: typ}
	if hasToken {
		rec.Token = token
	}

	if typ.IsStream() {
		if hasToken {
			return Record{}, p.fail("token on stream record")
		}
		s, err := p.cstring()
		if err != nil {
			return Record{}, err
		}
		if !p.eof() {
			return Record{}, p.fail("trailing data after stream record")
		}
		rec.Payload = s
		return rec, nil
	}

	rec.Message = p.class()
	if rec.Message == "" {
		return Record{}, p.fail("missing record class")
	}
	results, err := p.results()
	if err != nil {
		return Record{}, err
	}
	rec.Results = results
	return rec, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool  { return p.pos >= len(p.src) }
func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) fail(reason string) error {
	return &ParseError{Line: p.src, Offset: p.pos, Reason: reason}
}

func (p *parser) token() (uint64, bool) {
	start := p.pos
	for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, false
	}
	n, err := strconv.ParseUint(p.src[start:p.pos], 10, 64)
	if err != nil {
		p.pos = start
		return 0, false
	}
	return n, true
}

func (p *parser) class() string {
	start := p.pos
	for !p.eof() && p.peek() != ',' {
		p.pos++
	}
	return p.src[start:p.pos]
}

// results parses ( "," result )* up to the end of the line.
func (p *parser) results() (Tuple, error) {
	t := Tuple{}
	for !p.eof() {
		if p.peek() != ',' {
			return nil, p.fail("expected ','")
		}
		p.pos++
		// -target-download emits bare tuples: +download,{section=".text",...}
		if !p.eof() && p.peek() == '{' {
			inner, err := p.tuple()
			if err != nil {
				return nil, err
			}
			for k, v := range inner {
				t.add(k, v)
			}
			continue
		}
		name, value, err := p.result()
		if err != nil {
			return nil, err
		}
		t.add(name, value)
	}
	return t, nil
}

// add stores value under name. GDB repeats keys inside some tuples
// (for example multiple "frame" entries); those collapse into a list.
func (t Tuple) add(name string, value any) {
	prev, ok := t[name]
	if !ok {
		t[name] = value
		return
	}
	if list, isList := prev.([]any); isList {
		t[name] = append(list, value)
		return
	}
	t[name] = []any{prev, value}
}

func (p *parser) result() (string, any, error) {
	start := p.pos
	for !p.eof() && p.peek() != '=' {
		c := p.peek()
		if c == ',' || c == '{' || c == '}' || c == '[' || c == ']' || c == '"' {
			return "", nil, p.fail("invalid variable name")
		}
		p.pos++
	}
	if p.eof() || p.pos == start {
		return "", nil, p.fail("expected variable=value")
	}
	name := p.src[start:p.pos]
	p.pos++
	value, err := p.value()
	return name, value, err
}

func (p *parser) value() (any, error) {
	if p.eof() {
		return nil, p.fail("missing value")
	}
	switch p.peek() {
	case '"':
		return p.cstring()
	case '{':
		return p.tuple()
	case '[':
		return p.list()
	default:
		return nil, p.fail("unexpected character in value")
	}
}

func (p *parser) tuple() (Tuple, error) {
	p.pos++ // {
	t := Tuple{}
	if !p.eof() && p.peek() == '}' {
		p.pos++
		return t, nil
	}
	for {
		name, value, err := p.result()
		if err != nil {
			return nil, err
		}
		t.add(name, value)
		if p.eof() {
			return nil, p.fail("unterminated tuple")
		}
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return t, nil
		default:
			return nil, p.fail("expected ',' or '}'")
		}
	}
}

// list parses both value lists and result lists; the names of a result
// list are dropped, keeping its values in order.
func (p *parser) list() ([]any, error) {
	p.pos++ // [
	list := []any{}
	if !p.eof() && p.peek() == ']' {
		p.pos++
		return list, nil
	}
	for {
		if p.eof() {
			return nil, p.fail("unterminated list")
		}
		var (
			v   any
			err error
		)
		switch p.peek() {
		case '"', '{', '[':
			v, err = p.value()
		default:
			_, v, err = p.result()
		}
		if err != nil {
			return nil, err
		}
		list = append(list, v)
		if p.eof() {
			return nil, p.fail("unterminated list")
		}
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return list, nil
		default:
			return nil, p.fail("expected ',' or ']'")
		}
	}
}

// cstring decodes a C string starting at the opening quote.
func (p *parser) cstring() (string, error) {
	if p.eof() || p.peek() != '"' {
		return "", p.fail("expected '\"'")
	}
	p.pos++
	var b strings.Builder
	for {
		if p.eof() {
			return "", p.fail("unterminated string")
		}
		c := p.peek()
		p.pos++
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if p.eof() {
				return "", p.fail("dangling escape")
			}
			e := p.peek()
			p.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'f':
				b.WriteByte('\f')
			case 'v':
				b.WriteByte('\v')
			case 'a':
				b.WriteByte('\a')
			case 'b':
				b.WriteByte('\b')
			case 'e':
				b.WriteByte(0x1b)
			case '0', '1', '2', '3', '4', '5', '6', '7':
				// Up to three octal digits, the first already consumed.
				n := int(e - '0')
				for i := 0; i < 2 && !p.eof() && p.peek() >= '0' && p.peek() <= '7'; i++ {
					n = n*8 + int(p.peek()-'0')
					p.pos++
				}
				b.WriteByte(byte(n))
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
}

// Quote renders s as a C string suitable for an MI command argument.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
