// Package document turns the upstream markdown into a flat, depth-first
// sequence of typed nodes and classifies each node by what it can
// contribute to a token record.
//
// Only three node kinds matter: images (region flags, named by their alt
// text), text (expiry dates and table boundary sentinels) and code spans
// (the tokens). Everything else is reported as KindOther.
package document

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Kind is the parser-level kind of a node.
type Kind int

const (
	KindOther Kind = iota
	KindImage
	KindText
	KindCode
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindText:
		return "text"
	case KindCode:
		return "code"
	default:
		return "other"
	}
}

// Node is one parsed document node.
// Text holds the literal for text and code nodes, and the alt text for
// images (empty when the image's first child is not plain text).
type Node struct {
	Kind Kind
	Text string
}

// ParseError reports that the raw document could not be parsed into nodes
// at all. Malformed rows never produce a ParseError.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse document: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

var errInvalidUTF8 = errors.New("document is not valid UTF-8")

// Parse parses markdown source and returns its nodes in depth-first
// pre-order. Code span contents are folded into the code node and not
// visited separately.
func Parse(src string) (nodes []Node, err error) {
	if !utf8.ValidString(src) {
		return nil, &ParseError{Err: errInvalidUTF8}
	}

	defer func() {
		if r := recover(); r != nil {
			nodes = nil
			err = &ParseError{Err: fmt.Errorf("markdown parser panic: %v", r)}
		}
	}()

	source := []byte(src)
	root := goldmark.New().Parser().Parse(text.NewReader(source))

	walkErr := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Image:
			nodes = append(nodes, Node{Kind: KindImage, Text: altText(v, source)})
		case *ast.Text:
			nodes = append(nodes, Node{Kind: KindText, Text: string(v.Segment.Value(source))})
		case *ast.String:
			nodes = append(nodes, Node{Kind: KindText, Text: string(v.Value)})
		case *ast.CodeSpan:
			nodes = append(nodes, Node{Kind: KindCode, Text: inlineLiteral(v, source)})
			return ast.WalkSkipChildren, nil
		case *ast.Document:
		default:
			nodes = append(nodes, Node{Kind: KindOther})
		}
		return ast.WalkContinue, nil
	})
	if walkErr != nil {
		return nil, &ParseError{Err: walkErr}
	}
	return nodes, nil
}

// altText returns the image's alt text when its first child is plain text.
func altText(img *ast.Image, source []byte) string {
	t, ok := img.FirstChild().(*ast.Text)
	if !ok {
		return ""
	}
	return string(t.Segment.Value(source))
}

// inlineLiteral concatenates the raw text children of an inline node.
func inlineLiteral(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(source))
		case *ast.String:
			b.Write(v.Value)
		}
	}
	return b.String()
}
