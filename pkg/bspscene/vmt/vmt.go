// Package vmt parses Valve material definition documents (KeyValues text)
// into the fields the scene builder cares about.
package vmt

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrSyntax is returned for documents that do not parse as KeyValues.
var ErrSyntax = errors.New("malformed material document")

// Document is a parsed material definition: a shader name and its
// key/value block, possibly with nested sub-blocks.
type Document struct {
	Shader string
	Root   *Block
}

// Block is one brace-delimited key/value group. Keys are lowercased.
type Block struct {
	Keys map[string]string
	Sub  map[string]*Block
}

func newBlock() *Block {
	return &Block{
		Keys: make(map[string]string),
		Sub:  make(map[string]*Block),
	}
}

// Parse decodes a material document.
func Parse(data []byte) (*Document, error) {
	lx := &lexer{src: string(data)}

	shader, tok := lx.next()
	if tok != tokString {
		return nil, errors.Wrap(ErrSyntax, "expected shader name")
	}

	if _, tok = lx.next(); tok != tokOpen {
		return nil, errors.Wrapf(ErrSyntax, "expected '{' after shader %q", shader)
	}

	root, err := parseBlock(lx)
	if err != nil {
		return nil, err
	}

	return &Document{Shader: shader, Root: root}, nil
}

func parseBlock(lx *lexer) (*Block, error) {
	b := newBlock()

	for {
		key, tok := lx.next()

		switch tok {
		case tokClose:
			return b, nil
		case tokEOF:
			return nil, errors.Wrap(ErrSyntax, "unexpected end of document inside block")
		case tokOpen:
			return nil, errors.Wrap(ErrSyntax, "unexpected '{'")
		}

		key = strings.ToLower(key)

		val, tok := lx.next()

		switch tok {
		case tokOpen:
			sub, err := parseBlock(lx)
			if err != nil {
				return nil, err
			}
			b.Sub[key] = sub
		case tokString:
			b.Keys[key] = val
		default:
			return nil, errors.Wrapf(ErrSyntax, "key %q has no value", key)
		}
	}
}

// IsPatch reports whether the document is a patch shader wrapping another
// material.
func (d *Document) IsPatch() bool {
	return strings.EqualFold(d.Shader, "patch")
}

// Include returns the wrapped material path of a patch document.
func (d *Document) Include() string {
	return d.Root.Keys["include"]
}

// ApplyPatch overlays this patch document's insert/replace blocks onto the
// included base document.
func (d *Document) ApplyPatch(base *Document) *Document {
	for _, name := range []string{"insert", "replace"} {
		if sub, ok := d.Root.Sub[name]; ok {
			for k, v := range sub.Keys {
				base.Root.Keys[k] = v
			}
		}
	}

	return base
}

// Material is the resolved view of a document.
type Material struct {
	Shader             string
	BaseTexture        string
	BaseTexture2       string
	BumpMap            string
	SurfaceProp        string
	Translucent        bool
	AlphaTest          bool
	AlphaTestReference float32
}

// Material extracts the renderable fields from the document.
func (d *Document) Material() *Material {
	keys := d.Root.Keys

	m := &Material{
		Shader:             strings.ToLower(d.Shader),
		BaseTexture:        keys["$basetexture"],
		BaseTexture2:       keys["$basetexture2"],
		BumpMap:            keys["$bumpmap"],
		SurfaceProp:        strings.ToLower(keys["$surfaceprop"]),
		Translucent:        boolValue(keys["$translucent"]),
		AlphaTest:          boolValue(keys["$alphatest"]),
		AlphaTestReference: 0.5,
	}

	if v, err := strconv.ParseFloat(keys["$alphatestreference"], 32); err == nil {
		m.AlphaTestReference = float32(v)
	}

	// glass renders translucent regardless of the flag
	if m.SurfaceProp == "glass" {
		m.Translucent = true
	}

	return m
}

// IsWater reports whether the material uses a water shader.
func (m *Material) IsWater() bool {
	return m.Shader == "water"
}

func boolValue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true":
		return true
	}
	return false
}

type token int

const (
	tokEOF token = iota
	tokString
	tokOpen
	tokClose
)

type lexer struct {
	src string
	pos int
}

func (lx *lexer) next() (string, token) {
	for {
		lx.skipSpace()

		if lx.pos >= len(lx.src) {
			return "", tokEOF
		}

		// line comment
		if lx.src[lx.pos] == '/' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '/' {
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
			continue
		}

		break
	}

	switch c := lx.src[lx.pos]; c {
	case '{':
		lx.pos++
		return "", tokOpen
	case '}':
		lx.pos++
		return "", tokClose
	case '"':
		lx.pos++
		start := lx.pos
		for lx.pos < len(lx.src) && lx.src[lx.pos] != '"' {
			lx.pos++
		}
		s := lx.src[start:lx.pos]
		if lx.pos < len(lx.src) {
			lx.pos++ // closing quote
		}
		return s, tokString
	default:
		start := lx.pos
		for lx.pos < len(lx.src) && !isSpace(lx.src[lx.pos]) &&
			lx.src[lx.pos] != '{' && lx.src[lx.pos] != '}' && lx.src[lx.pos] != '"' {
			lx.pos++
		}
		return lx.src[start:lx.pos], tokString
	}
}

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.src) && isSpace(lx.src[lx.pos]) {
		lx.pos++
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
