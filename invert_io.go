package scholarindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARD BUCKET & COMPACT STREAM I/O
// ═══════════════════════════════════════════════════════════════════════════════
// Small helpers specific to the bucketed inverter's intermediate files,
// not shared with the rest of the package, so they live apart from
// binaryio.go's general-purpose helpers.
// ═══════════════════════════════════════════════════════════════════════════════

// bufferedFile is a write-buffered shard bucket: a flat stream of 8-byte
// (token_id, doc_id) pairs, the inverter's sharding pass.
type bufferedFile struct {
	file *os.File
	buf  *bufio.Writer
}

func newBufferedFile(path string) (*bufferedFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &bufferedFile{file: f, buf: bufio.NewWriterSize(f, 64*1024)}, nil
}

func (b *bufferedFile) writePair(tokenID, docID uint32) error {
	var rec [8]byte
	binary.LittleEndian.PutUint32(rec[0:4], tokenID)
	binary.LittleEndian.PutUint32(rec[4:8], docID)
	_, err := b.buf.Write(rec[:])
	return err
}

func (b *bufferedFile) flushAndClose() error {
	if err := b.buf.Flush(); err != nil {
		b.file.Close()
		return err
	}
	return b.file.Close()
}

func closeBuffered(files []*bufferedFile) {
	for _, b := range files {
		if b != nil {
			_ = b.file.Close()
		}
	}
}

var errEOFPair = errors.New("scholarindex: end of shard bucket")

// readPair reads one 8-byte (token_id, doc_id) record, or errEOFPair at a
// clean end-of-file. Any other short read is a format violation.
func readPair(r io.Reader) (tokenID, docID uint32, err error) {
	var rec [8]byte
	n, err := io.ReadFull(r, rec[:])
	if err == io.EOF && n == 0 {
		return 0, 0, errEOFPair
	}
	if err != nil {
		return 0, 0, fmt.Errorf("reading shard pair: %w", err)
	}
	return binary.LittleEndian.Uint32(rec[0:4]), binary.LittleEndian.Uint32(rec[4:8]), nil
}

// compactRecord is one decoded (token_id, doc_ids) record from a compact
// bucket stream.
type compactRecord struct {
	tokenID uint32
	docIDs  []uint32
}

// compactStreamReader sequentially decodes compact-bucket records for the
// inverter's final k-way merge pass.
type compactStreamReader struct {
	file *os.File
	r    *bufio.Reader
}

func newCompactStreamReader(path string) (*compactStreamReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening compact bucket %s: %w", path, err)
	}
	return &compactStreamReader{file: f, r: bufio.NewReaderSize(f, 64*1024)}, nil
}

// next returns the next record, or ok=false at a clean end-of-stream.
func (s *compactStreamReader) next() (compactRecord, bool, error) {
	if _, err := s.r.Peek(1); err == io.EOF {
		return compactRecord{}, false, nil
	}

	tokenID, err := readUint32(s.r)
	if err != nil {
		return compactRecord{}, false, fmt.Errorf("reading compact token_id: %w", err)
	}
	docFreq, err := readUint32(s.r)
	if err != nil {
		return compactRecord{}, false, fmt.Errorf("reading compact doc_freq: %w", err)
	}
	docIDs, err := readUint32Slice(s.r, int(docFreq))
	if err != nil {
		return compactRecord{}, false, fmt.Errorf("reading compact doc_ids: %w", err)
	}
	return compactRecord{tokenID: tokenID, docIDs: docIDs}, true, nil
}

func closeCompactStreams(streams []*compactStreamReader) {
	for _, s := range streams {
		if s != nil {
			_ = s.file.Close()
		}
	}
}
