package pkg

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ralt/pkgconv/internal/models"
)

const (
	datastreamMagic = "# PaCkAgE DaTaStReAm"
	headerEnd       = "# end of header"
)

// headerEntry is one "PKGINST parts maxsize" line of the datastream header
type headerEntry struct {
	Inst    string
	Parts   int
	MaxSize int64
}

// countingReader tracks the stream offset so archives can be block aligned
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// align skips to the next block boundary
func (c *countingReader) align() error {
	pad := blocks(c.n)*blockSize - c.n
	if pad == 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, c, pad)
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// align pads the stream with NULs up to the next block boundary
func (c *countingWriter) align() error {
	pad := blocks(c.n)*blockSize - c.n
	if pad == 0 {
		return nil
	}
	_, err := c.Write(make([]byte, pad))
	return err
}

// readHeader reads the block-padded datastream header and returns the single
// package it announces. The reader is left at the first archive.
func readHeader(cr *countingReader) (headerEntry, error) {
	var header bytes.Buffer
	block := make([]byte, blockSize)

	for !strings.Contains(header.String(), headerEnd) {
		if _, err := io.ReadFull(cr, block); err != nil {
			if header.Len() == 0 {
				return headerEntry{}, models.NewFormatError("datastream", 0, fmt.Errorf("truncated header: %w", err))
			}
			return headerEntry{}, models.NewFormatError("datastream", cr.n, fmt.Errorf("header has no end marker"))
		}
		if header.Len() == 0 && !bytes.HasPrefix(block, []byte(datastreamMagic)) {
			return headerEntry{}, models.NewFormatError("datastream", 0, fmt.Errorf("not a package datastream"))
		}
		header.Write(block)
	}

	text, _, _ := strings.Cut(header.String(), headerEnd)
	lines := strings.Split(text, "\n")[1:]

	var entries []headerEntry
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return headerEntry{}, models.NewFormatError("datastream", 0, fmt.Errorf("bad header line %q", line))
		}
		parts, err := strconv.Atoi(fields[1])
		if err != nil {
			return headerEntry{}, models.NewFormatError("datastream", 0, fmt.Errorf("bad part count %q", fields[1]))
		}
		maxSize, _ := strconv.ParseInt(fields[2], 10, 64)
		entries = append(entries, headerEntry{Inst: fields[0], Parts: parts, MaxSize: maxSize})
	}

	switch {
	case len(entries) == 0:
		return headerEntry{}, models.NewFormatError("datastream", 0, fmt.Errorf("no package in datastream"))
	case len(entries) > 1:
		return headerEntry{}, models.NewUnsupportedError(fmt.Sprintf("datastream with %d packages", len(entries)))
	case entries[0].Parts != 1:
		return headerEntry{}, models.NewUnsupportedError("multi-part package")
	}
	return entries[0], nil
}

// writeHeader writes the datastream header for a single one-part package
func writeHeader(cw *countingWriter, h headerEntry) error {
	if _, err := fmt.Fprintf(cw, "%s\n%s %d %d\n%s\n", datastreamMagic, h.Inst, h.Parts, h.MaxSize, headerEnd); err != nil {
		return err
	}
	return cw.align()
}
