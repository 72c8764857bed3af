package macroengine

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Parse compiles source text into a Macro, using the chain-call grammar:
//
//	expr := call ('.' call)*
//	call := NAME '(' args? ')'
//	args := arg (',' arg)*
//	arg  := expr | literal | '$' NAME | NAME
func Parse(source string, store *VariableStore, mapping SystemMapping, config *Config, logger *Logger) (*Macro, error) {
	p := &parser{
		src:     source,
		store:   store,
		mapping: mapping,
		config:  config,
		logger:  logger,
	}
	p.skipSpace()
	m, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, &SyntaxErr{Message: "unexpected trailing input", Position: p.pos}
	}
	return m, nil
}

type parser struct {
	src     string
	pos     int
	store   *VariableStore
	mapping SystemMapping
	config  *Config
	logger  *Logger
}

// parsedArg is one parsed call argument: either a resolved Value (literal,
// $name reference, or bare directional token) or a nested child Macro
// (when the argument itself was an expr).
type parsedArg struct {
	isMacro bool
	macro   *Macro
	value   Value
}

func (p *parser) newMacro(sourceText string) *Macro {
	return NewMacro(sourceText, p.store, p.mapping, p.config, p.logger)
}

// parseExpr parses a chain of '.'-joined calls into a single Macro; every
// call in the chain appends steps to the same Macro object.
func (p *parser) parseExpr() (*Macro, error) {
	start := p.pos
	m := p.newMacro("")
	for {
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		if err := dispatchCall(m, name, args); err != nil {
			return nil, err
		}

		p.skipSpace()
		if p.peekByte() == '.' {
			p.pos++
			p.skipSpace()
			continue
		}
		break
	}
	m.sourceText = strings.TrimSpace(p.src[start:p.pos])
	return m, nil
}

func (p *parser) parseArgList() ([]parsedArg, error) {
	p.skipSpace()
	if p.peekByte() != '(' {
		return nil, &SyntaxErr{Message: "expected '('", Position: p.pos}
	}
	p.pos++
	p.skipSpace()

	var args []parsedArg
	if p.peekByte() == ')' {
		p.pos++
		return args, nil
	}

	for {
		arg, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		p.skipSpace()
		switch p.peekByte() {
		case ',':
			p.pos++
			p.skipSpace()
			continue
		case ')':
			p.pos++
			return args, nil
		default:
			return nil, &SyntaxErr{Message: "expected ',' or ')'", Position: p.pos}
		}
	}
}

func (p *parser) parseArg() (parsedArg, error) {
	p.skipSpace()
	switch {
	case p.peekByte() == '$':
		p.pos++
		name, err := p.parseName()
		if err != nil {
			return parsedArg{}, err
		}
		if err := validateVariableName(name); err != nil {
			return parsedArg{}, err
		}
		return parsedArg{value: Variable(name)}, nil

	case p.peekByte() == '"':
		s, err := p.parseQuotedString()
		if err != nil {
			return parsedArg{}, err
		}
		return parsedArg{value: Str(s)}, nil

	case isDigit(p.peekByte()) || (p.peekByte() == '-' && isDigit(p.peekByteAt(1))):
		v, err := p.parseNumber()
		if err != nil {
			return parsedArg{}, err
		}
		return parsedArg{value: v}, nil

	case isNameStart(p.peekByte()):
		save := p.pos
		name, err := p.parseName()
		if err != nil {
			return parsedArg{}, err
		}
		p.skipSpace()
		if p.peekByte() == '(' {
			// This is a nested call chain (expr), not a bare token: rewind
			// and parse it as a full expression.
			p.pos = save
			child, err := p.parseExpr()
			if err != nil {
				return parsedArg{}, err
			}
			return parsedArg{isMacro: true, macro: child}, nil
		}
		return parsedArg{value: Str(name)}, nil

	default:
		return parsedArg{}, &SyntaxErr{Message: "unexpected character in argument", Position: p.pos}
	}
}

func (p *parser) parseName() (string, error) {
	start := p.pos
	if !isNameStart(p.peekByte()) {
		return "", &SyntaxErr{Message: "expected identifier", Position: p.pos}
	}
	p.pos++
	for isNameCont(p.peekByte()) {
		p.pos++
	}
	return p.src[start:p.pos], nil
}

func (p *parser) parseQuotedString() (string, error) {
	start := p.pos
	p.pos++ // opening quote
	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			return "", &SyntaxErr{Message: "unterminated string literal", Position: start}
		}
		c := p.src[p.pos]
		if c == '"' {
			p.pos++
			return b.String(), nil
		}
		if c == '\\' && p.pos+1 < len(p.src) {
			p.pos++
			switch p.src[p.pos] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"', '\\':
				b.WriteByte(p.src[p.pos])
			default:
				b.WriteByte(p.src[p.pos])
			}
			p.pos++
			continue
		}
		b.WriteByte(c)
		p.pos++
	}
}

func (p *parser) parseNumber() (Value, error) {
	start := p.pos
	if p.peekByte() == '-' {
		p.pos++
	}
	for isDigit(p.peekByte()) {
		p.pos++
	}
	isFloat := false
	if p.peekByte() == '.' && isDigit(p.peekByteAt(1)) {
		isFloat = true
		p.pos++
		for isDigit(p.peekByte()) {
			p.pos++
		}
	}
	text := p.src[start:p.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, &SyntaxErr{Message: "invalid float literal " + text, Position: start}
		}
		return Float(f), nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Value{}, &SyntaxErr{Message: "invalid int literal " + text, Position: start}
	}
	return Int(n), nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) peekByte() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) peekByteAt(offset int) byte {
	idx := p.pos + offset
	if idx >= len(p.src) {
		return 0
	}
	return p.src[idx]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isNameCont(c byte) bool {
	return isNameStart(c) || isDigit(c)
}

// optionalMacroArg returns args[idx]'s child macro, or nil if idx is out of
// range or the argument was not written as a nested call.
func optionalMacroArg(args []parsedArg, idx int) *Macro {
	if idx >= len(args) || !args[idx].isMacro {
		return nil
	}
	return args[idx].macro
}

func optionalValueArg(args []parsedArg, idx int) *Value {
	if idx >= len(args) || args[idx].isMacro {
		return nil
	}
	v := args[idx].value
	return &v
}

func requireArgs(args []parsedArg, n int, op string) error {
	if len(args) < n {
		return &SyntaxErr{Message: fmt.Sprintf("%s requires %d argument(s), got %d", op, n, len(args))}
	}
	return nil
}

// dispatchCall routes one parsed call to the corresponding Macro builder
// method.
func dispatchCall(m *Macro, name string, args []parsedArg) error {
	switch name {
	case "k":
		if err := requireArgs(args, 1, "k"); err != nil {
			return err
		}
		return m.addKey(args[0].value)

	case "w", "wait":
		if err := requireArgs(args, 1, name); err != nil {
			return err
		}
		return m.addWait(args[0].value)

	case "r", "repeat":
		if err := requireArgs(args, 2, name); err != nil {
			return err
		}
		child := optionalMacroArg(args, 1)
		if child == nil {
			return &SyntaxErr{Message: name + "'s second argument must be a call expression"}
		}
		return m.addRepeat(args[0].value, child)

	case "h", "hold":
		switch len(args) {
		case 0:
			return m.addHoldNone()
		case 1:
			if args[0].isMacro {
				return m.addHoldChild(args[0].macro)
			}
			return m.addHoldKey(args[0].value)
		default:
			return &SyntaxErr{Message: name + " takes at most one argument"}
		}

	case "m", "modify":
		if err := requireArgs(args, 2, name); err != nil {
			return err
		}
		child := optionalMacroArg(args, 1)
		if child == nil {
			return &SyntaxErr{Message: name + "'s second argument must be a call expression"}
		}
		return m.addModify(args[0].value, child)

	case "mouse":
		if err := requireArgs(args, 2, "mouse"); err != nil {
			return err
		}
		return m.addMouse(args[0].value, args[1].value)

	case "wheel":
		if err := requireArgs(args, 2, "wheel"); err != nil {
			return err
		}
		return m.addWheel(args[0].value, args[1].value)

	case "e", "event":
		if err := requireArgs(args, 3, name); err != nil {
			return err
		}
		return m.addEvent(args[0].value, args[1].value, args[2].value)

	case "set":
		if err := requireArgs(args, 2, "set"); err != nil {
			return err
		}
		return m.addSet(args[0].value, args[1].value)

	case "if_eq":
		if err := requireArgs(args, 2, "if_eq"); err != nil {
			return err
		}
		return m.addIfEq(args[0].value, args[1].value, optionalMacroArg(args, 2), optionalMacroArg(args, 3))

	case "ifeq":
		if err := requireArgs(args, 2, "ifeq"); err != nil {
			return err
		}
		return m.addIfeq(args[0].value, args[1].value, optionalMacroArg(args, 2), optionalMacroArg(args, 3))

	case "if_tap":
		thenChild := optionalMacroArg(args, 0)
		elseChild := optionalMacroArg(args, 1)
		return m.addIfTap(thenChild, elseChild, optionalValueArg(args, 2))

	case "if_single":
		if err := requireArgs(args, 2, "if_single"); err != nil {
			return err
		}
		thenChild := optionalMacroArg(args, 0)
		elseChild := optionalMacroArg(args, 1)
		if thenChild == nil || elseChild == nil {
			return &SyntaxErr{Message: "if_single's then/else arguments must be call expressions"}
		}
		return m.addIfSingle(thenChild, elseChild, optionalValueArg(args, 2))

	default:
		return &SyntaxErr{Message: fmt.Sprintf("unknown macro operation %q", name)}
	}
}
