// Package format reformats a buffer snapshot before it is pushed back
// to the room as a canonical code message.
package format

import (
	"golang.org/x/tools/imports"
)

// Formatter turns raw source into formatted source, or reports a
// diagnostic the caller relays to the requesting session.
type Formatter interface {
	Format(src string) (string, error)
}

// Goimports formats Go source with goimports semantics: gofmt plus
// import fixing.
type Goimports struct{}

func (Goimports) Format(src string) (string, error) {
	out, err := imports.Process("prog.go", []byte(src), nil)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
