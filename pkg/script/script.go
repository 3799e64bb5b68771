// Package script splits migration scripts into individually executable statements.
//
// The ClickHouse native protocol runs a single statement per request, so a script
// containing several statements has to be broken up before it is executed. Splitting
// happens at top-level semicolons only; semicolons inside comments, string literals
// and quoted identifiers are left alone.
//
// Example usage:
//
//	stmts, err := script.Split(`
//		CREATE TABLE users (id UInt64) ENGINE = MergeTree ORDER BY id;
//		-- a comment; with a semicolon
//		INSERT INTO users VALUES (1);
//	`)
//	// len(stmts) == 2
package script

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
)

var scriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\n]*`},
	{Name: "MultilineComment", Pattern: `/\*[\s\S]*?\*/`},
	{Name: "String", Pattern: `'(?:[^'\\]|\\.|'')*'`},
	{Name: "QuotedIdent", Pattern: `"(?:[^"\\]|\\.|"")*"`},
	{Name: "BacktickIdent", Pattern: "`(?:[^`]|``)*`"},
	{Name: "Semicolon", Pattern: `;`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Word", Pattern: "[^\\s;'\"`/-]+"},
	{Name: "Punct", Pattern: `[-/]`},
	{Name: "Other", Pattern: `.`},
})

var (
	semicolon   = scriptLexer.Symbols()["Semicolon"]
	ignorable   = map[lexer.TokenType]bool{}
	ignoreNames = []string{"Comment", "MultilineComment", "Whitespace"}
)

func init() {
	symbols := scriptLexer.Symbols()
	for _, name := range ignoreNames {
		ignorable[symbols[name]] = true
	}
}

// Split breaks sql into statements at top-level semicolons. Fragments that hold only
// whitespace and comments are dropped, so an empty or comment-only script yields no
// statements. Returned statements are trimmed and carry no trailing semicolon.
func Split(sql string) ([]string, error) {
	lex, err := scriptLexer.LexString("", sql)
	if err != nil {
		return nil, errors.Wrap(err, "failed to tokenize script")
	}

	tokens, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, errors.Wrap(err, "failed to tokenize script")
	}

	var (
		statements  []string
		current     strings.Builder
		significant bool
	)

	flush := func() {
		if significant {
			statements = append(statements, strings.TrimSpace(current.String()))
		}
		current.Reset()
		significant = false
	}

	for _, tok := range tokens {
		if tok.EOF() {
			break
		}

		if tok.Type == semicolon {
			flush()
			continue
		}

		if !ignorable[tok.Type] {
			significant = true
		}
		current.WriteString(tok.Value)
	}
	flush()

	return statements, nil
}
