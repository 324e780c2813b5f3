package fasta

import (
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// faiEntry is one line of a .fai index.
type faiEntry struct {
	length    uint64
	offset    uint64
	lineBases uint64
	lineBytes uint64
}

// byteOffset returns the file offset of the base at pos.
func (e faiEntry) byteOffset(pos uint64) uint64 {
	return e.offset + pos/e.lineBases*e.lineBytes + pos%e.lineBases
}

type indexedFasta struct {
	entries map[string]faiEntry
	names   []string

	mu  sync.Mutex
	r   io.ReadSeeker
	buf []byte
}

func readIndex(index io.Reader) (map[string]faiEntry, []string, error) {
	r := tsv.NewReader(index)
	r.FieldsPerRecord = -1
	entries := map[string]faiEntry{}
	var names []string
	for {
		row, err := r.Reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "read FASTA index")
		}
		if len(row) < 5 {
			return nil, nil, errors.Errorf("invalid FASTA index line: %v", row)
		}
		var v [4]uint64
		for i := range v {
			if v[i], err = strconv.ParseUint(row[i+1], 10, 64); err != nil {
				return nil, nil, errors.Wrapf(err, "invalid FASTA index line for %s", row[0])
			}
		}
		if v[2] == 0 || v[3] < v[2] {
			return nil, nil, errors.Errorf("invalid line geometry in FASTA index for %s", row[0])
		}
		entries[row[0]] = faiEntry{length: v[0], offset: v[1], lineBases: v[2], lineBytes: v[3]}
		names = append(names, row[0])
	}
	sort.SliceStable(names, func(i, j int) bool {
		return entries[names[i]].offset < entries[names[j]].offset
	})
	return entries, names, nil
}

// NewIndexed returns a Fasta that reads bases from r on demand, using the
// faidx index read from index.
func NewIndexed(r io.ReadSeeker, index io.Reader) (Fasta, error) {
	entries, names, err := readIndex(index)
	if err != nil {
		return nil, err
	}
	return &indexedFasta{entries: entries, names: names, r: r}, nil
}

func (f *indexedFasta) Get(seqName string, start, end uint64) (string, error) {
	e, ok := f.entries[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found in index: %s", seqName)
	}
	if err := checkRange(seqName, start, end, e.length); err != nil {
		return "", err
	}
	first, last := e.byteOffset(start), e.byteOffset(end-1)
	n := int(last - first + 1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if cap(f.buf) < n {
		f.buf = make([]byte, n)
	}
	raw := f.buf[:n]
	if _, err := f.r.Seek(int64(first), io.SeekStart); err != nil {
		return "", errors.Wrapf(err, "seek to %s:%d", seqName, start)
	}
	if _, err := io.ReadFull(f.r, raw); err != nil {
		return "", errors.Wrapf(err, "read %s:%d-%d", seqName, start, end)
	}
	seq := make([]byte, 0, end-start)
	col := start % e.lineBases
	for i := 0; i < n; {
		take := int(e.lineBases - col)
		if take > n-i {
			take = n - i
		}
		seq = append(seq, raw[i:i+take]...)
		i += take + int(e.lineBytes-e.lineBases)
		col = 0
	}
	return string(seq), nil
}

func (f *indexedFasta) Len(seqName string) (uint64, error) {
	e, ok := f.entries[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found in index: %s", seqName)
	}
	return e.length, nil
}

func (f *indexedFasta) SeqNames() []string { return f.names }
