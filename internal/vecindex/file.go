package vecindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
)

// File layout: magic, version, dim, count (little-endian uint32 each), then
// count*dim little-endian float32 in position order.
const (
	fileMagic   = "RSVI"
	fileVersion = 1
	headerSize  = 16
)

// ErrCorruptIndex signals an unreadable index file.
var ErrCorruptIndex = errors.New("corrupt vector index file")

// readFile loads an index. ok is false when the file does not exist.
func readFile(path string) (*Flat, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read index %s: %w", path, err)
	}
	f, err := decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}
	return f, true, nil
}

func decode(data []byte) (*Flat, error) {
	if len(data) < headerSize || string(data[:4]) != fileMagic {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptIndex)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, v)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	n := int(binary.LittleEndian.Uint32(data[12:16]))
	if want := headerSize + n*dim*4; len(data) != want {
		return nil, fmt.Errorf("%w: size %d, want %d", ErrCorruptIndex, len(data), want)
	}
	vecs := make([]float32, n*dim)
	off := headerSize
	for i := range vecs {
		vecs[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
	}
	return &Flat{dim: dim, n: n, data: vecs}, nil
}

// writeFile replaces path atomically. The previous file, if any, is kept at
// the returned backup path until the caller removes or restores it.
func writeFile(path string, dim, n int, vecs []float32) (backup string, err error) {
	tmp := path + ".tmp"
	if err := writeTemp(tmp, dim, n, vecs); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	if _, statErr := os.Stat(path); statErr == nil {
		backup = path + ".bak"
		if err := os.Rename(path, backup); err != nil {
			_ = os.Remove(tmp)
			return "", fmt.Errorf("backup index: %w", err)
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		if backup != "" {
			_ = os.Rename(backup, path)
		}
		_ = os.Remove(tmp)
		return "", fmt.Errorf("replace index: %w", err)
	}
	return backup, nil
}

func writeTemp(tmp string, dim, n int, vecs []float32) error {
	fh, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	w := bufio.NewWriter(fh)
	header := make([]byte, headerSize)
	copy(header, fileMagic)
	binary.LittleEndian.PutUint32(header[4:8], fileVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(dim))
	binary.LittleEndian.PutUint32(header[12:16], uint32(n))
	if _, err := w.Write(header); err != nil {
		fh.Close()
		return fmt.Errorf("write index header: %w", err)
	}
	buf := make([]byte, 4)
	for _, v := range vecs {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := w.Write(buf); err != nil {
			fh.Close()
			return fmt.Errorf("write index data: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		fh.Close()
		return fmt.Errorf("flush index: %w", err)
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		return fmt.Errorf("sync index: %w", err)
	}
	return fh.Close()
}
