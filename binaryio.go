package scholarindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED BINARY I/O HELPERS
// ═══════════════════════════════════════════════════════════════════════════════
// Every on-disk artifact in this package is little-endian and length-prefixed
// where variable. The top-level output files are written to a temp name that
// is renamed into place only once the writer closes cleanly, so a failure
// mid-build leaves the prior generation of each such file untouched and its
// .tmp remnant is removed on a best-effort basis. The barrel files under
// barrels/ are the exception: bufio32Writer creates them in place.
// ═══════════════════════════════════════════════════════════════════════════════

// atomicWriter buffers writes to path+".tmp" and renames it onto path when
// Close succeeds. If the caller calls Abort instead, the temp file is
// removed and the prior generation of path is left untouched.
type atomicWriter struct {
	tmpPath   string
	finalPath string
	file      *os.File
	buf       *bufio.Writer
}

func newAtomicWriter(path string) (*atomicWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("creating temp file %s: %w", tmpPath, err)
	}
	return &atomicWriter{
		tmpPath:   tmpPath,
		finalPath: path,
		file:      f,
		buf:       bufio.NewWriter(f),
	}, nil
}

func (w *atomicWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *atomicWriter) writeUint32(v uint32) error {
	return binary.Write(w.buf, binary.LittleEndian, v)
}

func (w *atomicWriter) writeUint64(v uint64) error {
	return binary.Write(w.buf, binary.LittleEndian, v)
}

// Close flushes, syncs, closes, and atomically renames the temp file into
// place. Failure at any step leaves the previous generation of finalPath
// untouched and the temp file is removed on a best-effort basis.
func (w *atomicWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.abort()
		return fmt.Errorf("flushing %s: %w", w.tmpPath, err)
	}
	if err := w.file.Sync(); err != nil {
		w.abort()
		return fmt.Errorf("syncing %s: %w", w.tmpPath, err)
	}
	if err := w.file.Close(); err != nil {
		w.abort()
		return fmt.Errorf("closing %s: %w", w.tmpPath, err)
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		w.abort()
		return fmt.Errorf("renaming %s to %s: %w", w.tmpPath, w.finalPath, err)
	}
	return nil
}

// Abort discards the temp file after a build-aborting error.
func (w *atomicWriter) Abort() {
	w.abort()
}

func (w *atomicWriter) abort() {
	_ = w.file.Close()
	_ = os.Remove(w.tmpPath)
}

// patchLeadingUint32 overwrites the leading u32 of path with v. Used by the
// writers that emit a zero placeholder count up front and only learn the
// true count once their stream is exhausted.
func patchLeadingUint32(path string, v uint32) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reopening %s to patch leading count: %w", path, err)
	}
	defer f.Close()

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("patching leading count in %s: %w", path, err)
	}
	return nil
}

// readUint32 reads a little-endian uint32 from r, wrapping a short read as
// ErrFormatViolation.
func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFormatViolation, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// readUint64 reads a little-endian uint64 from r.
func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFormatViolation, err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// readUint32Slice reads n little-endian uint32 values.
func readUint32Slice(r io.Reader, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	raw := make([]byte, 4*n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatViolation, err)
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
	}
	return out, nil
}

func writeUint32Slice(w io.Writer, vals []uint32) error {
	if len(vals) == 0 {
		return nil
	}
	raw := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], v)
	}
	_, err := w.Write(raw)
	return err
}
