package vocab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// Reserved symbols. Index 0 is always PAD so that padded positions in
// index tensors are distinguishable from real content.
const (
	Pad = "<pad>"
	Unk = "<unk>"
	Sos = "<s>"
	Eos = "</s>"
)

// Reserved indices, stable across save/load.
const (
	PadID = 0
	UnkID = 1
	SosID = 2
	EosID = 3
)

const numReserved = 4

// ErrUnknownSymbol is returned by StrictIndex when a symbol is not in the
// vocabulary. Preprocessing paths must use Index (UNK fallback) instead.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Map is a bidirectional symbol<->index mapping with the four reserved
// entries always present. W2I and I2W are exact inverses.
type Map struct {
	w2i map[string]int
	i2w []string
}

func newWithReserved(capacity int) *Map {
	m := &Map{
		w2i: make(map[string]int, capacity+numReserved),
		i2w: make([]string, 0, capacity+numReserved),
	}
	for _, sym := range []string{Pad, Unk, Sos, Eos} {
		m.w2i[sym] = len(m.i2w)
		m.i2w = append(m.i2w, sym)
	}
	return m
}

func (m *Map) add(sym string) {
	if _, ok := m.w2i[sym]; ok {
		return
	}
	m.w2i[sym] = len(m.i2w)
	m.i2w = append(m.i2w, sym)
}

// FromSymbols builds a Map from a collection of symbols. Duplicates are
// collapsed and symbols are sorted before index assignment so construction
// is deterministic regardless of input order.
func FromSymbols(symbols []string) *Map {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	distinct := make([]string, 0, len(set))
	for s := range set {
		distinct = append(distinct, s)
	}
	sort.Strings(distinct)

	m := newWithReserved(len(distinct))
	for _, s := range distinct {
		m.add(s)
	}
	return m
}

// FromOrdered builds a Map that assigns indices in the given symbol order,
// as produced by Symbols. Used to reconstruct a persisted vocabulary with
// identical indices.
func FromOrdered(symbols []string) *Map {
	m := newWithReserved(len(symbols))
	for _, s := range symbols {
		m.add(s)
	}
	return m
}

// Len returns the number of distinct symbols plus the reserved entries.
func (m *Map) Len() int {
	return len(m.i2w)
}

// Index returns the index of sym, falling back to UNK when absent.
// This is the lookup every preprocessing path must use.
func (m *Map) Index(sym string) int {
	if idx, ok := m.w2i[sym]; ok {
		return idx
	}
	return UnkID
}

// StrictIndex returns the index of sym or ErrUnknownSymbol.
func (m *Map) StrictIndex(sym string) (int, error) {
	idx, ok := m.w2i[sym]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSymbol, sym)
	}
	return idx, nil
}

// Contains reports whether sym is in the vocabulary.
func (m *Map) Contains(sym string) bool {
	_, ok := m.w2i[sym]
	return ok
}

// Symbol returns the symbol at idx. The caller guarantees idx < Len(),
// which holds for any argmax over logits sized to this vocabulary.
func (m *Map) Symbol(idx int) string {
	return m.i2w[idx]
}

// Symbols returns the non-reserved symbols in index order.
func (m *Map) Symbols() []string {
	out := make([]string, len(m.i2w)-numReserved)
	copy(out, m.i2w[numReserved:])
	return out
}

// Save writes the non-reserved symbols, one per line, in index order.
// Loading the result reproduces the exact same symbol-to-index mapping.
func (m *Map) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, sym := range m.i2w[numReserved:] {
		if _, err := fmt.Fprintln(bw, sym); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Load reads a Map saved with Save. Line order determines index order;
// the reserved entries are re-created in front.
func Load(r io.Reader) (*Map, error) {
	m := newWithReserved(0)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		m.add(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// SaveFile writes the vocabulary to path.
func (m *Map) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.Save(f)
}

// LoadFile reads a vocabulary from path.
func LoadFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
