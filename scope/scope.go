// Package scope derives the stable identity a contract is keyed by. The
// identity combines the parser's declared metadata with a hash over only
// the behaviorally relevant parts of its source, so cosmetic edits never
// move a parser out from under its approved contract.
package scope

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"go/parser"
	"go/printer"
	"go/token"
	"sort"
	"strings"
)

// Identity names the scope a contract applies to.
type Identity struct {
	ParserName    string
	ParserVersion string
	Topics        []string
	OutputName    string
	LogicHash     string
}

// LogicHash hashes the executable content of parser source. Comments and
// doc comments are discarded during parsing, and the syntax tree is printed
// with a fresh file set so the output layout is canonical regardless of the
// original formatting. Two sources that differ only in comments, blank
// lines, or indentation hash identically; any change to declarations,
// signatures, or function bodies changes the hash.
func LogicHash(source string) (string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "parser.go", source, parser.SkipObjectResolution)
	if err != nil {
		return "", fmt.Errorf("failed to parse parser source: %w", err)
	}

	var buf bytes.Buffer
	// Printing against an empty file set drops all position information, so
	// the printer falls back to its canonical layout.
	if err := printer.Fprint(&buf, token.NewFileSet(), file); err != nil {
		return "", fmt.Errorf("failed to serialize syntax tree: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// Derive computes the scope id:
// sha256(name + ":" + version + ":" + sorted(topics) + ":" + output + ":" + logicHash).
func Derive(id Identity) string {
	topics := make([]string, len(id.Topics))
	copy(topics, id.Topics)
	sort.Strings(topics)

	material := strings.Join([]string{
		id.ParserName,
		id.ParserVersion,
		strings.Join(topics, ","),
		id.OutputName,
		id.LogicHash,
	}, ":")

	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// DeriveFromSource is the common path: hash the source, then derive the
// scope id from the declared metadata.
func DeriveFromSource(source, parserName, parserVersion string, topics []string, outputName string) (string, error) {
	logicHash, err := LogicHash(source)
	if err != nil {
		return "", err
	}
	return Derive(Identity{
		ParserName:    parserName,
		ParserVersion: parserVersion,
		Topics:        topics,
		OutputName:    outputName,
		LogicHash:     logicHash,
	}), nil
}
