package parser

import "strings"

type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenString
	TokenDot
	TokenLeftBracket
	TokenRightBracket
	TokenIllegal
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of path"
	case TokenIdent:
		return "identifier"
	case TokenString:
		return "string"
	case TokenDot:
		return "'.'"
	case TokenLeftBracket:
		return "'['"
	case TokenRightBracket:
		return "']'"
	default:
		return "illegal character"
	}
}

type Token struct {
	Type   TokenType
	Value  string
	Column int
}

// Lexer tokenizes path expressions such as body.items[0]["first name"].
type Lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) NextToken() Token {
	tok := Token{Column: l.pos + 1}

	switch l.ch {
	case 0:
		tok.Type = TokenEOF
	case '.':
		tok.Type = TokenDot
		tok.Value = "."
		l.readChar()
	case '[':
		tok.Type = TokenLeftBracket
		tok.Value = "["
		l.readChar()
	case ']':
		tok.Type = TokenRightBracket
		tok.Value = "]"
		l.readChar()
	case '"', '\'':
		return l.readString(tok)
	default:
		if !isIdentChar(l.ch) {
			tok.Type = TokenIllegal
			tok.Value = string(l.ch)
			l.readChar()
			return tok
		}
		start := l.pos
		for isIdentChar(l.ch) {
			l.readChar()
		}
		tok.Type = TokenIdent
		tok.Value = l.input[start:l.pos]
	}
	return tok
}

func (l *Lexer) readString(tok Token) Token {
	quote := l.ch
	l.readChar()

	var b strings.Builder
	for l.ch != quote {
		if l.ch == 0 {
			tok.Type = TokenIllegal
			tok.Value = "unterminated string"
			return tok
		}
		if l.ch == '\\' {
			l.readChar()
			if l.ch == 0 {
				continue
			}
		}
		b.WriteByte(l.ch)
		l.readChar()
	}
	l.readChar()

	tok.Type = TokenString
	tok.Value = b.String()
	return tok
}

func isIdentChar(ch byte) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		return true
	case ch == '_' || ch == '-' || ch == '$' || ch == '@' || ch == ':':
		return true
	case ch >= 0x80:
		return true
	}
	return false
}
