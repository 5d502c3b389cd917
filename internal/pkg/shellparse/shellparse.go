// Package shellparse wraps mvdan.cc/sh to split scripts into statements and to
// list the simple commands a piece of shell text would run.
package shellparse

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ErrUnparseable marks text the bash parser rejected. Split still returns a
// line based fallback alongside it.
var ErrUnparseable = errors.New("shell text could not be parsed")

// Statement is one top-level logical statement of a script.
type Statement struct {
	Text string
	Line int
}

// Redirect is an output or input redirection attached to a command.
type Redirect struct {
	Op     string
	Target string
}

// IsWrite reports whether the redirect writes to its target.
func (r Redirect) IsWrite() bool {
	switch r.Op {
	case ">", ">>", ">|", "&>", "&>>", "<>":
		return true
	default:
		return false
	}
}

// Call is a simple command found anywhere in the tree, including inside
// command and process substitutions.
type Call struct {
	// Name is the base name of the first word, e.g. "rm" for "/bin/rm".
	Name string
	// Args holds every word, Args[0] included, with quoting removed.
	Args []string
	// Assigns holds NAME=value prefixes.
	Assigns []string
	// Downstream lists the names of commands this call's output is piped into.
	Downstream []string
	Redirects  []Redirect
	// Substituted is set for calls inside $(...), backticks or <(...).
	Substituted bool
}

// PipesInto reports whether any downstream command has one of the given
// lower-case names. Comparison ignores case.
func (c Call) PipesInto(names map[string]bool) bool {
	for _, name := range c.Downstream {
		if names[strings.ToLower(name)] {
			return true
		}
	}
	return false
}

// printMinified renders node in minified form. syntax.Printer keeps state
// between calls, so each call gets its own.
func printMinified(buf *bytes.Buffer, node syntax.Node) error {
	return syntax.NewPrinter(syntax.Minify(true)).Print(buf, node)
}

func parse(text string) (*syntax.File, error) {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(text), "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return file, nil
}

// Split breaks a script into top-level statements. Heredocs, && chains and
// compound commands stay a single statement. When the parser rejects the
// script every non-blank, non-comment line becomes a statement and the
// returned error wraps ErrUnparseable.
func Split(script string) ([]Statement, error) {
	file, err := parse(script)
	if err != nil {
		return splitLines(script), err
	}

	statements := make([]Statement, 0, len(file.Stmts))
	for _, stmt := range file.Stmts {
		start := int(stmt.Pos().Offset())
		end := statementEnd(script, stmt)
		if start >= end || end > len(script) {
			continue
		}
		text := strings.TrimSpace(script[start:end])
		if text == "" {
			continue
		}
		statements = append(statements, Statement{Text: text, Line: int(stmt.Pos().Line())})
	}
	return statements, nil
}

func statementEnd(src string, stmt *syntax.Stmt) int {
	end := int(stmt.End().Offset())
	if semi := int(stmt.Semicolon.Offset()); stmt.Semicolon.IsValid() && semi+1 == end && semi < len(src) && src[semi] == ';' {
		end = semi
	}
	for _, redir := range stmt.Redirs {
		if redir.Hdoc == nil {
			continue
		}
		if hdocEnd := heredocEnd(src, end, redir); hdocEnd > end {
			end = hdocEnd
		}
	}
	return end
}

// heredocEnd finds the end of the line holding the heredoc delimiter.
func heredocEnd(src string, from int, redir *syntax.Redirect) int {
	delim := strings.Trim(wordText(redir.Word), `"'`)
	if delim == "" || from >= len(src) {
		return from
	}
	offset := from
	if nl := strings.IndexByte(src[offset:], '\n'); nl >= 0 {
		offset += nl + 1
	} else {
		return from
	}
	for offset < len(src) {
		lineEnd := len(src)
		if nl := strings.IndexByte(src[offset:], '\n'); nl >= 0 {
			lineEnd = offset + nl
		}
		line := src[offset:lineEnd]
		if redir.Op == syntax.DashHdoc {
			line = strings.TrimLeft(line, "\t")
		}
		if line == delim {
			return lineEnd
		}
		offset = lineEnd + 1
	}
	return len(src)
}

func splitLines(script string) []Statement {
	var statements []Statement
	for i, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		statements = append(statements, Statement{Text: trimmed, Line: i + 1})
	}
	return statements
}

// Calls parses text and returns every simple command in source order.
func Calls(text string) ([]Call, error) {
	file, err := parse(text)
	if err != nil {
		return nil, err
	}
	return collectCalls(file), nil
}

func collectCalls(root syntax.Node) []Call {
	var (
		calls      []Call
		index      = map[*syntax.CallExpr]int{}
		stack      []syntax.Node
		substDepth int
	)
	syntax.Walk(root, func(node syntax.Node) bool {
		if node == nil {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			switch top.(type) {
			case *syntax.CmdSubst, *syntax.ProcSubst:
				substDepth--
			}
			return true
		}
		stack = append(stack, node)
		switch n := node.(type) {
		case *syntax.CmdSubst, *syntax.ProcSubst:
			substDepth++
		case *syntax.CallExpr:
			index[n] = len(calls)
			calls = append(calls, newCall(n, substDepth > 0))
		}
		return true
	})

	syntax.Walk(root, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.Stmt:
			if len(n.Redirs) == 0 {
				break
			}
			redirects := convertRedirects(n.Redirs)
			for _, expr := range directCalls(n) {
				i := index[expr]
				calls[i].Redirects = append(calls[i].Redirects, redirects...)
			}
		case *syntax.BinaryCmd:
			if n.Op != syntax.Pipe && n.Op != syntax.PipeAll {
				break
			}
			var downstream []string
			for _, expr := range directCalls(n.Y) {
				downstream = append(downstream, calls[index[expr]].Name)
			}
			for _, expr := range directCalls(n.X) {
				i := index[expr]
				calls[i].Downstream = append(calls[i].Downstream, downstream...)
			}
		}
		return true
	})
	return calls
}

// directCalls lists call expressions under node without entering substitutions.
func directCalls(node syntax.Node) []*syntax.CallExpr {
	var out []*syntax.CallExpr
	syntax.Walk(node, func(n syntax.Node) bool {
		switch expr := n.(type) {
		case *syntax.CmdSubst, *syntax.ProcSubst:
			return false
		case *syntax.CallExpr:
			out = append(out, expr)
		}
		return true
	})
	return out
}

func newCall(expr *syntax.CallExpr, substituted bool) Call {
	call := Call{Substituted: substituted}
	for _, assign := range expr.Assigns {
		if assign.Name == nil {
			continue
		}
		value := ""
		if assign.Value != nil {
			value = wordText(assign.Value)
		}
		call.Assigns = append(call.Assigns, assign.Name.Value+"="+value)
	}
	for _, word := range expr.Args {
		call.Args = append(call.Args, wordText(word))
	}
	if len(call.Args) > 0 {
		call.Name = path.Base(strings.ReplaceAll(call.Args[0], `\`, "/"))
	}
	return call
}

func convertRedirects(redirs []*syntax.Redirect) []Redirect {
	out := make([]Redirect, 0, len(redirs))
	for _, redir := range redirs {
		target := ""
		if redir.Word != nil {
			target = wordText(redir.Word)
		}
		out = append(out, Redirect{Op: redir.Op.String(), Target: target})
	}
	return out
}

// wordText flattens a word, dropping quotes but keeping expansions as written.
func wordText(word *syntax.Word) string {
	if word == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(unescape(p.Value))
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
					continue
				}
				sb.WriteString(printNode(inner))
			}
		default:
			sb.WriteString(printNode(part))
		}
	}
	return sb.String()
}

// unescape drops backslash escapes from an unquoted literal, so r\m reads as rm.
func unescape(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	var sb strings.Builder
	escaped := false
	for _, r := range value {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		sb.WriteRune(r)
	}
	return sb.String()
}

func printNode(node syntax.Node) string {
	var buf bytes.Buffer
	if err := printMinified(&buf, node); err != nil {
		return ""
	}
	return buf.String()
}

// Minify returns the canonical minified form of text, collapsing redundant
// whitespace so "rm   -rf   /" reads as "rm -rf /".
func Minify(text string) (string, error) {
	file, err := parse(text)
	if err != nil {
		return "", err
	}
	syntax.Simplify(file)
	var buf bytes.Buffer
	if err := printMinified(&buf, file); err != nil {
		return "", fmt.Errorf("print shell text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
