package document

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type Parser interface {
	Supports(ext string) bool
	Parse(path string) (*Document, error)
}

// Registry dispatches on file extension; the first parser that
// supports an extension wins.
type Registry struct {
	parsers []Parser
}

func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: parsers}
}

func DefaultRegistry() *Registry {
	return NewRegistry(
		NewTextParser(),
		NewMarkdownParser(),
		NewPDFParser(),
		NewWordParser(),
	)
}

func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

func (r *Registry) Parser(path string) (Parser, error) {
	ext := extension(path)
	for _, p := range r.parsers {
		if p.Supports(ext) {
			return p, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
}

func (r *Registry) Parse(path string) (*Document, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}

	p, err := r.Parser(path)
	if err != nil {
		return nil, err
	}

	return p.Parse(path)
}

func (r *Registry) Supported(path string) bool {
	_, err := r.Parser(path)
	return err == nil
}

func extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func sourceName(path string) string {
	return filepath.Base(path)
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return err
	}

	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidArgument, path)
	}

	return nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return data, nil
}

type extensionSet map[string]struct{}

func newExtensionSet(exts ...string) extensionSet {
	set := make(extensionSet, len(exts))
	for _, ext := range exts {
		set[ext] = struct{}{}
	}
	return set
}

func (s extensionSet) has(ext string) bool {
	_, ok := s[strings.ToLower(ext)]
	return ok
}
