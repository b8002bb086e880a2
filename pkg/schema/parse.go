package schema

import (
	"fmt"
	"strings"

	"github.com/ecmwf-go/fdb/pkg/registry"
)

// Parse reads schema grammar text: a sequence of top-level rule blocks
// `[k1, k2, ... [k3, k4 [k5, k6]]]`, three nesting levels, `?` for
// optional keywords, `k:t` for an explicit type, `#` line comments.
func Parse(text string, reg *registry.Registry) (*Schema, error) {
	s := New(reg)
	p := &parser{src: stripComments(text), reg: reg}
	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		lvl, err := p.parseLevel(0)
		if err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		s.Rules = append(s.Rules, &Rule{DB: lvl})
	}
	return s, nil
}

func stripComments(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if idx := strings.IndexByte(l, '#'); idx >= 0 {
			lines[i] = l[:idx]
		}
	}
	return strings.Join(lines, "\n")
}

type parser struct {
	src string
	pos int
	reg *registry.Registry
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) skipSpace() {
	for !p.eof() {
		c := p.src[p.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			p.pos++
			continue
		}
		break
	}
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

// parseLevel parses one "[ ... ]" block: a comma-separated keyword list
// followed by zero or more nested "[ ... ]" levels, up to depth 2
// (db->index->datum).
func (p *parser) parseLevel(depth int) (*Level, error) {
	p.skipSpace()
	if p.peek() != '[' {
		return nil, fmt.Errorf("expected '[' at position %d", p.pos)
	}
	p.pos++ // consume '['

	lvl := &Level{}
	for {
		p.skipSpace()
		if p.peek() == '[' {
			if depth >= 2 {
				return nil, fmt.Errorf("schema grammar nests more than three levels")
			}
			child, err := p.parseLevel(depth + 1)
			if err != nil {
				return nil, err
			}
			lvl.Children = append(lvl.Children, child)
			p.skipSpace()
			continue
		}
		if p.peek() == ']' || p.eof() {
			break
		}
		if p.peek() == ',' {
			p.pos++
			continue
		}
		kw, err := p.parseKeyword()
		if err != nil {
			return nil, err
		}
		lvl.Keywords = append(lvl.Keywords, kw)
	}
	p.skipSpace()
	if p.peek() != ']' {
		return nil, fmt.Errorf("expected ']' at position %d", p.pos)
	}
	p.pos++ // consume ']'
	return lvl, nil
}

func (p *parser) parseKeyword() (Keyword, error) {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if c == ',' || c == ']' || c == '[' || c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			break
		}
		p.pos++
	}
	tok := p.src[start:p.pos]
	if tok == "" {
		return Keyword{}, fmt.Errorf("empty keyword at position %d", start)
	}
	kw := Keyword{Type: registry.TypeAny}
	if strings.HasSuffix(tok, "?") {
		kw.Optional = true
		tok = strings.TrimSuffix(tok, "?")
	}
	if idx := strings.IndexByte(tok, ':'); idx >= 0 {
		kw.Name = tok[:idx]
		kw.Type = registry.TypeKind(tok[idx+1:])
		if p.reg != nil {
			// An explicit "k:t" annotation binds the keyword's
			// canonicalization policy for the lifetime of the registry,
			// so every Key typed against it (not just ones produced by
			// this schema) canonicalizes consistently.
			p.reg.Bind(kw.Name, kw.Type)
		}
	} else {
		kw.Name = tok
	}
	if kw.Name == "" {
		return Keyword{}, fmt.Errorf("empty keyword name at position %d", start)
	}
	return kw, nil
}
