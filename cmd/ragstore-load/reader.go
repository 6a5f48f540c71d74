package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/ragstore"
)

// rowCallback receives one row. Returning false stops the scan.
type rowCallback func(doc ragstore.Document) bool

// inputFiles returns the parquet and JSONL files of dir, by name.
func inputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".parquet", ".jsonl", ".ndjson":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .parquet or .jsonl files found in %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

// readFile streams the rows of one input file.
func readFile(path string, cb rowCallback) (int, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return readParquet(path, cb)
	}
	return readJSONL(path, cb)
}

// jsonRow is one line of a JSONL input.
type jsonRow struct {
	Key      string         `json:"key"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Hash     string         `json:"hash"`
}

func readJSONL(path string, cb rowCallback) (int, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n, line := 0, 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var r jsonRow
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
		if !cb(ragstore.Document{Key: r.Key, Text: r.Text, Metadata: r.Metadata, Hash: r.Hash}) {
			return n, nil
		}
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("scan: %w", err)
	}
	return n, nil
}

// docColumns are the leaf indexes of the columns a parquet input may carry.
// metadata holds a JSON object string.
type docColumns struct {
	key      int
	text     int
	metadata int
	hash     int
}

func resolveDocColumns(pf *parquet.File) (docColumns, error) {
	cols := docColumns{key: -1, text: -1, metadata: -1, hash: -1}
	for i, path := range pf.Schema().Columns() {
		if len(path) == 0 {
			continue
		}
		switch path[0] {
		case "key":
			cols.key = i
		case "text":
			cols.text = i
		case "metadata":
			cols.metadata = i
		case "hash":
			cols.hash = i
		}
	}
	if cols.key < 0 || cols.text < 0 {
		return cols, errors.New("parquet schema needs key and text columns")
	}
	return cols, nil
}

func readParquet(path string, cb rowCallback) (int, error) {
	h, err := openParquet(path)
	if err != nil {
		return 0, err
	}
	defer h.Close()

	cols, err := resolveDocColumns(h.pf)
	if err != nil {
		return 0, err
	}

	n := 0
	buf := make([]parquet.Row, 1000)
	for _, rg := range h.pf.RowGroups() {
		rows := parquet.NewRowGroupReader(rg)
		for {
			cnt, readErr := rows.ReadRows(buf)
			for i := 0; i < cnt; i++ {
				doc, err := rowToDocument(buf[i], cols)
				if err != nil {
					return n, fmt.Errorf("row %d: %w", n+1, err)
				}
				n++
				if !cb(doc) {
					return n, nil
				}
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				return n, fmt.Errorf("read rows: %w", readErr)
			}
		}
	}
	return n, nil
}

func rowToDocument(row parquet.Row, cols docColumns) (ragstore.Document, error) {
	var doc ragstore.Document
	for _, v := range row {
		if v.IsNull() {
			continue
		}
		switch v.Column() {
		case cols.key:
			doc.Key = v.String()
		case cols.text:
			doc.Text = v.String()
		case cols.hash:
			doc.Hash = v.String()
		case cols.metadata:
			raw := v.String()
			if raw == "" {
				continue
			}
			if err := json.Unmarshal([]byte(raw), &doc.Metadata); err != nil {
				return doc, fmt.Errorf("metadata: %w", err)
			}
		}
	}
	return doc, nil
}

// parquetHandle wraps parquet.File + underlying os.File for proper cleanup.
type parquetHandle struct {
	pf   *parquet.File
	file *os.File
}

func (h *parquetHandle) Close() {
	_ = h.file.Close()
}

func openParquet(path string) (*parquetHandle, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	return &parquetHandle{pf: pf, file: f}, nil
}
