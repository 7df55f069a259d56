// Package registry maps bank format tags to their statement parsers.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/parser"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/parsers/bpi"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/parsers/revolut"
)

// ErrUnsupported is returned for bank formats that have no parser.
var ErrUnsupported = errors.New("unsupported bank format")

// Registry holds one parser per bank format.
type Registry struct {
	parsers map[domain.BankFormat]parser.Parser
}

// New creates a registry with the built-in parsers.
func New() *Registry {
	r := &Registry{parsers: make(map[domain.BankFormat]parser.Parser)}
	r.Register(revolut.NewParser())
	r.Register(bpi.NewParser())
	return r
}

// Register adds or replaces the parser for p.Format().
func (r *Registry) Register(p parser.Parser) {
	r.parsers[p.Format()] = p
}

// Lookup returns the parser for format, or an error wrapping ErrUnsupported.
func (r *Registry) Lookup(format domain.BankFormat) (parser.Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, format)
	}
	return p, nil
}

// Formats returns the supported formats in sorted order.
func (r *Registry) Formats() []domain.BankFormat {
	formats := make([]domain.BankFormat, 0, len(r.parsers))
	for f := range r.parsers {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}
