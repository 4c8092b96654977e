package scholarindex

import (
	"bufio"
	"encoding/binary"
	"os"
)

// bufio32Writer is a small append-only buffered writer used by the barrel
// writer, one per barrel file, kept open for the whole pass.
type bufio32Writer struct {
	file *os.File
	buf  *bufio.Writer
}

func newBufio32Writer(path string) (*bufio32Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &bufio32Writer{file: f, buf: bufio.NewWriterSize(f, 64*1024)}, nil
}

func (w *bufio32Writer) writeUint32(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.buf.Write(b[:])
	return err
}

func (w *bufio32Writer) writeUint32Slice(vals []uint32) error {
	if len(vals) == 0 {
		return nil
	}
	raw := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], v)
	}
	_, err := w.buf.Write(raw)
	return err
}

func (w *bufio32Writer) close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
