package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// DefaultMaxLineBytes is the longest line the reader accepts (1MB).
const DefaultMaxLineBytes = 1024 * 1024

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	utf8BOM   = "\xEF\xBB\xBF"
)

// openLog opens path and transparently decompresses gzip and zstd input,
// detected by magic bytes rather than file extension.
func openLog(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(file, 64*1024)
	magic, _ := br.Peek(4)

	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return &stackedCloser{Reader: gz, closers: []func() error{gz.Close, file.Close}}, nil
	case bytes.HasPrefix(magic, zstdMagic):
		dec, err := zstd.NewReader(br)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		return &stackedCloser{Reader: dec, closers: []func() error{
			func() error { dec.Close(); return nil },
			file.Close,
		}}, nil
	}
	return &stackedCloser{Reader: br, closers: []func() error{file.Close}}, nil
}

type stackedCloser struct {
	io.Reader
	closers []func() error
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ReadLines reads every line of path, numbering from 1. Blank lines are
// kept so numbering matches the file. A UTF-8 BOM and trailing CR are
// stripped. maxLineBytes <= 0 selects DefaultMaxLineBytes.
func ReadLines(path string, maxLineBytes int) ([]Line, error) {
	rc, err := openLog(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	scanner := newLineScanner(rc, maxLineBytes)
	lines := make([]Line, 0, 1024)
	num := 0
	for scanner.Scan() {
		num++
		lines = append(lines, Line{Number: num, Text: cleanLine(scanner.Text(), num)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading line %d: %w", num+1, err)
	}
	return lines, nil
}

// ReadSample returns up to max non-blank lines from the top of path.
func ReadSample(path string, max int) ([]string, error) {
	rc, err := openLog(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	scanner := newLineScanner(rc, 0)
	sample := make([]string, 0, max)
	num := 0
	for len(sample) < max && scanner.Scan() {
		num++
		line := cleanLine(scanner.Text(), num)
		if isBlank(line) {
			continue
		}
		sample = append(sample, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sample, nil
}

func newLineScanner(r io.Reader, maxLineBytes int) *bufio.Scanner {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	initial := 64 * 1024
	if initial > maxLineBytes {
		initial = maxLineBytes
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initial), maxLineBytes)
	return scanner
}

func cleanLine(s string, num int) string {
	if num == 1 {
		s = strings.TrimPrefix(s, utf8BOM)
	}
	return strings.TrimSuffix(s, "\r")
}
