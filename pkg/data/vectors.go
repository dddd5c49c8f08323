package data

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/kristjanb/postagger-go/pkg/vocab"
)

// LoadVectors parses a pretrained word-vector file: one "token v1 v2 ..."
// entry per line, optionally preceded by a "count dim" header. It returns
// the vocabulary of the listed tokens and a (vocabLen, dim) dense table
// whose rows align with the vocabulary indices; the reserved rows stay zero.
func LoadVectors(r io.Reader) (*vocab.Map, *mat.Dense, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	type entry struct {
		token string
		vec   []float64
	}
	var entries []entry
	dim := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		// Header line: "count dim"
		if lineNo == 1 && len(fields) == 2 {
			if _, err := strconv.Atoi(fields[0]); err == nil {
				if _, err := strconv.Atoi(fields[1]); err == nil {
					continue
				}
			}
		}
		vec := make([]float64, len(fields)-1)
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: bad vector component %q: %w", lineNo, f, err)
			}
			vec[i] = v
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, nil, fmt.Errorf("line %d: vector dimension %d, expected %d", lineNo, len(vec), dim)
		}
		entries = append(entries, entry{token: fields[0], vec: vec})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("no vectors found")
	}

	tokens := make([]string, len(entries))
	for i, e := range entries {
		tokens[i] = e.token
	}
	vm := vocab.FromSymbols(tokens)

	table := mat.NewDense(vm.Len(), dim, nil)
	for _, e := range entries {
		table.SetRow(vm.Index(e.token), e.vec)
	}
	return vm, table, nil
}

// LoadTable parses a plain numeric matrix: one row of whitespace-separated
// floats per line. Row order is the index order, which makes the format
// suitable for piece-id-indexed vector tables.
func LoadTable(r io.Reader) (*mat.Dense, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var rows [][]float64
	dim := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		vec := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad table component %q: %w", lineNo, f, err)
			}
			vec[i] = v
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, fmt.Errorf("line %d: row dimension %d, expected %d", lineNo, len(vec), dim)
		}
		rows = append(rows, vec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows found")
	}

	table := mat.NewDense(len(rows), dim, nil)
	for i, vec := range rows {
		table.SetRow(i, vec)
	}
	return table, nil
}

// LoadTableFile reads a numeric matrix from path.
func LoadTableFile(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadTable(f)
}

// LoadVectorsFile reads pretrained vectors from path.
func LoadVectorsFile(path string) (*vocab.Map, *mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return LoadVectors(f)
}
