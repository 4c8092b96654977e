package scholarindex

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestAtomicWriter_CloseRenamesIntoPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	w, err := newAtomicWriter(path)
	if err != nil {
		t.Fatalf("newAtomicWriter: %v", err)
	}
	if err := w.writeUint32(42); err != nil {
		t.Fatalf("writeUint32: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("final file missing after Close: %v", err)
	}
	defer f.Close()
	got, err := readUint32(f)
	if err != nil {
		t.Fatalf("readUint32: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestAtomicWriter_AbortLeavesPriorGenerationUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(path, []byte("prior"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := newAtomicWriter(path)
	if err != nil {
		t.Fatalf("newAtomicWriter: %v", err)
	}
	_ = w.writeUint32(99)
	w.Abort()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading prior file: %v", err)
	}
	if string(got) != "prior" {
		t.Errorf("prior file contents = %q, want %q (untouched)", got, "prior")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should be removed after Abort, stat err = %v", err)
	}
}

func TestReadUint32_ShortReadIsFormatViolation(t *testing.T) {
	_, err := readUint32(bytes.NewReader([]byte{1, 2}))
	if !errors.Is(err, ErrFormatViolation) {
		t.Fatalf("readUint32() error = %v, want wrapping ErrFormatViolation", err)
	}
}

func TestUint32SliceRoundTrip(t *testing.T) {
	vals := []uint32{0, 1, 4294967295, 42, 1000000}
	var buf bytes.Buffer
	if err := writeUint32Slice(&buf, vals); err != nil {
		t.Fatalf("writeUint32Slice: %v", err)
	}
	got, err := readUint32Slice(&buf, len(vals))
	if err != nil {
		t.Fatalf("readUint32Slice: %v", err)
	}
	if !reflect.DeepEqual(got, vals) {
		t.Errorf("round trip = %v, want %v", got, vals)
	}
}

func TestReadUint32Slice_ZeroLengthIsNil(t *testing.T) {
	got, err := readUint32Slice(bytes.NewReader(nil), 0)
	if err != nil {
		t.Fatalf("readUint32Slice(0): %v", err)
	}
	if got != nil {
		t.Errorf("readUint32Slice(0) = %v, want nil", got)
	}
}
