package rcsparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseError reports a malformed archive; the analysis pass treats
// this as "not a valid archive" per spec §6.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// parser is a recursive-descent reader over the RCS grammar's header,
// deltas, desc, and deltatext sections, in that fixed order.
type parser struct {
	lex *lexer
	tok Token
}

// Parse reads one RCS ",v" archive to completion.
func Parse(src []byte) (*Archive, error) {
	p := &parser{lex: newLexer(strings.NewReader(string(src)))}
	p.advance()

	archive := newArchive()
	if err := p.parseHeader(archive); err != nil {
		return nil, err
	}
	if err := p.parseDeltas(archive); err != nil {
		return nil, err
	}
	p.parseDesc()
	if err := p.parseDeltaTexts(archive); err != nil {
		return nil, err
	}
	if archive.Head == "" {
		return nil, &ParseError{Line: p.tok.Line, Message: "archive has no head revision"}
	}
	return archive, nil
}

func (p *parser) advance() { p.tok = p.lex.next() }

func (p *parser) skipSemicolon() {
	if p.tok.Type == TokenSemicolon {
		p.advance()
	}
}

func (p *parser) parseHeader(archive *Archive) error {
	for p.tok.Type == TokenIdent {
		switch p.tok.Value {
		case "head":
			p.advance()
			if p.tok.Type == TokenNumber {
				archive.Head = p.tok.Value
				p.advance()
			}
			p.skipSemicolon()

		case "branch":
			p.advance()
			if p.tok.Type == TokenNumber {
				archive.Branch = p.tok.Value
				p.advance()
			}
			p.skipSemicolon()

		case "access":
			p.advance()
			for p.tok.Type == TokenIdent {
				p.advance()
			}
			p.skipSemicolon()

		case "symbols":
			p.advance()
			for p.tok.Type == TokenIdent {
				name := p.tok.Value
				p.advance()
				if p.tok.Type != TokenColon {
					return &ParseError{Line: p.tok.Line, Message: "expected ':' in symbols"}
				}
				p.advance()
				if p.tok.Type != TokenNumber {
					return &ParseError{Line: p.tok.Line, Message: "expected revision number in symbols"}
				}
				archive.Symbols = append(archive.Symbols, SymbolDef{Name: name, Revnum: p.tok.Value})
				p.advance()
			}
			p.skipSemicolon()

		case "locks":
			p.advance()
			for p.tok.Type == TokenIdent {
				p.advance()
				if p.tok.Type == TokenColon {
					p.advance()
					if p.tok.Type == TokenNumber {
						p.advance()
					}
				}
			}
			p.skipSemicolon()

		case "strict":
			p.advance()
			p.skipSemicolon()

		case "expand":
			p.advance()
			if p.tok.Type == TokenString {
				archive.Expand = p.tok.Value
				p.advance()
			}
			p.skipSemicolon()

		case "comment":
			p.advance()
			if p.tok.Type == TokenString {
				p.advance()
			}
			p.skipSemicolon()

		default:
			return nil // first delta revision number follows
		}
	}
	return nil
}

func (p *parser) parseDeltas(archive *Archive) error {
	for p.tok.Type == TokenNumber {
		rev := p.tok.Value
		p.advance()
		d := &DeltaHeader{Revision: rev}

		for p.tok.Type == TokenIdent && p.tok.Value != "desc" {
			switch p.tok.Value {
			case "date":
				p.advance()
				if p.tok.Type != TokenNumber {
					return &ParseError{Line: p.tok.Line, Message: "expected date value"}
				}
				ts, err := parseRCSDate(p.tok.Value)
				if err != nil {
					return &ParseError{Line: p.tok.Line, Message: err.Error()}
				}
				d.Date = ts
				p.advance()
				p.skipSemicolon()

			case "author":
				p.advance()
				if p.tok.Type == TokenIdent {
					d.Author = p.tok.Value
					p.advance()
				}
				p.skipSemicolon()

			case "state":
				p.advance()
				if p.tok.Type == TokenIdent {
					d.State = p.tok.Value
					p.advance()
				}
				p.skipSemicolon()

			case "branches":
				p.advance()
				for p.tok.Type == TokenNumber {
					d.Branches = append(d.Branches, p.tok.Value)
					p.advance()
				}
				p.skipSemicolon()

			case "next":
				p.advance()
				if p.tok.Type == TokenNumber {
					d.Next = p.tok.Value
					p.advance()
				}
				p.skipSemicolon()

			default:
				// Unrecognized per-delta field (e.g. "commitid"); skip
				// its value up to the terminating semicolon.
				p.advance()
				for p.tok.Type != TokenEOF && p.tok.Type != TokenSemicolon && p.tok.Type != TokenNumber {
					p.advance()
				}
				p.skipSemicolon()
			}
		}

		archive.Deltas[rev] = d
		archive.DeltaOrder = append(archive.DeltaOrder, rev)
	}
	return nil
}

func (p *parser) parseDesc() {
	if p.tok.Type == TokenIdent && p.tok.Value == "desc" {
		p.advance()
		if p.tok.Type == TokenString {
			p.advance()
		}
	}
}

func (p *parser) parseDeltaTexts(archive *Archive) error {
	for p.tok.Type != TokenEOF {
		if p.tok.Type != TokenNumber {
			return &ParseError{Line: p.tok.Line, Message: "expected revision number in deltatext section"}
		}
		rev := p.tok.Value
		p.advance()

		if _, ok := archive.Deltas[rev]; !ok {
			return &ParseError{Line: p.tok.Line, Message: fmt.Sprintf("deltatext for undefined revision %q", rev)}
		}

		for p.tok.Type == TokenIdent {
			switch p.tok.Value {
			case "log":
				p.advance()
				if p.tok.Type == TokenString {
					archive.Logs[rev] = p.tok.Value
					p.advance()
				}
			case "text":
				p.advance()
				if p.tok.Type == TokenString {
					archive.HasDeltatext[rev] = p.tok.Value != ""
					p.advance()
				}
			default:
				p.advance()
			}
		}
	}
	return nil
}

// parseRCSDate parses an RCS date field, accepting both the pre-Y2K
// two-digit-year form ("93.03.14.10.00.00") and the four-digit form
// RCS has written since 1999 ("2001.03.14.10.00.00").
func parseRCSDate(s string) (time.Time, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 6 {
		return time.Time{}, fmt.Errorf("malformed date %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed date year %q", parts[0])
	}
	if year < 100 {
		year += 1900
	}
	month, _ := strconv.Atoi(parts[1])
	day, _ := strconv.Atoi(parts[2])
	hour, _ := strconv.Atoi(parts[3])
	minute, _ := strconv.Atoi(parts[4])
	second, _ := strconv.Atoi(parts[5])
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}
