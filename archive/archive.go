/*
 * archive.go, part of matflow.
 *
 * Copyright 2021 Raul Mera <rmeraatusachdotcl>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

//Package archive reads and writes the files matflow keeps around (workflow dumps,
//exported documents), compressed according to their extension, and uploads them
//to S3-compatible object storage.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

//Compression is the compression applied to a file.
type Compression int

const (
	None Compression = iota
	Zstd
	Gzip
)

func (C Compression) String() string {
	switch C {
	case Zstd:
		return "zstd"
	case Gzip:
		return "gzip"
	}
	return "none"
}

//CompressionFor returns the compression that corresponds to the extension of name:
//Zstd for .zst or .zstd, Gzip for .gz, None otherwise.
func CompressionFor(name string) Compression {
	switch {
	case strings.HasSuffix(name, ".zst"), strings.HasSuffix(name, ".zstd"):
		return Zstd
	case strings.HasSuffix(name, ".gz"):
		return Gzip
	}
	return None
}

//NewWriter wraps w in a compressor. Closing the returned writer flushes the
//compressor but does not close w.
func NewWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	case Gzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	}
	return nopWriteCloser{w}, nil
}

//zdec gives a *zstd.Decoder the io.ReadCloser interface. Decoder.Close returns nothing.
type zdec struct {
	*zstd.Decoder
}

func (D zdec) Close() error {
	D.Decoder.Close()
	return nil
}

//NewReader wraps r in a decompressor. Closing the returned reader doesn't close r.
func NewReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case Zstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zdec{d}, nil
	case Gzip:
		return gzip.NewReader(r)
	}
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

//file closes the (de)compressor and then the file under it.
type file struct {
	inner io.Closer
	f     *os.File
}

func (F file) Close() error {
	err := F.inner.Close()
	if err2 := F.f.Close(); err == nil {
		err = err2
	}
	return err
}

type writeFile struct {
	io.WriteCloser
	file
}

func (W writeFile) Close() error { return W.file.Close() }

type readFile struct {
	io.ReadCloser
	file
}

func (R readFile) Close() error { return R.file.Close() }

//Create creates the file name, compressed according to its extension.
func Create(name string) (io.WriteCloser, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	w, err := NewWriter(f, CompressionFor(name))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: %s: %w", name, err)
	}
	return writeFile{w, file{w, f}}, nil
}

//Open opens the file name, decompressing it according to its extension.
func Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	r, err := NewReader(f, CompressionFor(name))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: %s: %w", name, err)
	}
	return readFile{r, file{r, f}}, nil
}

//DumpJSON writes v as indented JSON to the file name (compressed by extension).
func DumpJSON(name string, v any) error {
	w, err := Create(name)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		w.Close()
		return fmt.Errorf("archive: %s: %w", name, err)
	}
	return w.Close()
}

//LoadJSON decodes the JSON file name (compressed by extension) into v.
func LoadJSON(name string, v any) error {
	r, err := Open(name)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("archive: %s: %w", name, err)
	}
	return nil
}
