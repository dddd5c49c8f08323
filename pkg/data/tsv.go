package data

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Dataset is a tagged and optionally lemmatized corpus. The three Sentences
// are parallel: Tags[i][j] and Lemmas[i][j] annotate Tokens[i][j].
type Dataset struct {
	Tokens Sentences
	Tags   Sentences
	Lemmas Sentences
}

// Len returns the number of sentences.
func (d Dataset) Len() int {
	return len(d.Tokens)
}

// TokenSymbols returns every token occurrence, for vocabulary construction.
func (d Dataset) TokenSymbols() []string {
	var out []string
	for _, sent := range d.Tokens {
		out = append(out, sent...)
	}
	return out
}

// TagSymbols returns every tag occurrence.
func (d Dataset) TagSymbols() []string {
	var out []string
	for _, sent := range d.Tags {
		out = append(out, sent...)
	}
	return out
}

// CharSymbols returns every character occurring in tokens and lemmas.
func (d Dataset) CharSymbols() []string {
	var out []string
	collect := func(sents Sentences) {
		for _, sent := range sents {
			for _, tok := range sent {
				for _, r := range tok {
					out = append(out, string(r))
				}
			}
		}
	}
	collect(d.Tokens)
	collect(d.Lemmas)
	return out
}

// ReadCorpus parses the delimited corpus format: one token per line with
// tab-separated annotations (token, tag, lemma), sentences separated by a
// blank line. Missing columns leave the corresponding Sentences nil-free
// but empty for that sentence.
func ReadCorpus(r io.Reader) (Dataset, error) {
	var ds Dataset
	var tokens, tags, lemmas Sentence

	flush := func() {
		if len(tokens) == 0 {
			return
		}
		ds.Tokens = append(ds.Tokens, tokens)
		if len(tags) > 0 {
			ds.Tags = append(ds.Tags, tags)
		}
		if len(lemmas) > 0 {
			ds.Lemmas = append(ds.Lemmas, lemmas)
		}
		tokens, tags, lemmas = nil, nil, nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		fields := strings.Split(line, "\t")
		tokens = append(tokens, fields[0])
		// An empty tag field keeps the lemma in the third column when only
		// lemmas are annotated.
		if len(fields) > 1 && fields[1] != "" {
			tags = append(tags, fields[1])
		}
		if len(fields) > 2 {
			lemmas = append(lemmas, fields[2])
		}
		if len(tags) > 0 && len(tags) != len(tokens) {
			return Dataset{}, fmt.Errorf("line %d: inconsistent tag column", lineNo)
		}
		if len(lemmas) > 0 && len(lemmas) != len(tokens) {
			return Dataset{}, fmt.Errorf("line %d: inconsistent lemma column", lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return Dataset{}, err
	}
	flush()
	return ds, nil
}

// ReadCorpusFile reads a corpus from path.
func ReadCorpusFile(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, err
	}
	defer f.Close()
	return ReadCorpus(f)
}

// WriteCorpus writes tokens with their annotations in the same delimited
// format ReadCorpus parses, so the artifact round-trips unchanged.
// tags and lemmas may be nil to omit the column; lemmas without tags get an
// empty tag column so the lemma stays in its own column.
func WriteCorpus(w io.Writer, tokens, tags, lemmas Sentences) error {
	bw := bufio.NewWriter(w)
	for i, sent := range tokens {
		for j, tok := range sent {
			cols := []string{tok}
			if tags != nil {
				cols = append(cols, tags[i][j])
			} else if lemmas != nil {
				cols = append(cols, "")
			}
			if lemmas != nil {
				cols = append(cols, lemmas[i][j])
			}
			if _, err := fmt.Fprintln(bw, strings.Join(cols, "\t")); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(bw); err != nil {
			return err
		}
	}
	return bw.Flush()
}
