// Job file access with transparent compression
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package gcodefile opens and creates job files. Files ending in .gz or
// .zst are decompressed on read and compressed on write.
package gcodefile

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	perrors "toolpath-postproc/pkg/errors"
)

// Compression is the encoding of a job file.
type Compression int

const (
	None Compression = iota
	Gzip
	Zstd
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	}
	return "none"
}

// Detect picks the compression from the file extension.
func Detect(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	}
	return None
}

// Ext returns the extension of the uncompressed name of path, so that
// "part.gcode.gz" yields ".gcode".
func Ext(path string) string {
	if Detect(path) != None {
		path = strings.TrimSuffix(path, filepath.Ext(path))
	}
	return filepath.Ext(path)
}

type reader struct {
	io.Reader
	closers []func() error
}

func (r *reader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens path for reading.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perrors.FileError(perrors.ErrFileOpen, path, err)
	}
	switch Detect(path) {
	case Gzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, perrors.FileError(perrors.ErrFileOpen, path, err)
		}
		return &reader{Reader: zr, closers: []func() error{zr.Close, f.Close}}, nil
	case Zstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, perrors.FileError(perrors.ErrFileOpen, path, err)
		}
		return &reader{Reader: zr, closers: []func() error{
			func() error { zr.Close(); return nil },
			f.Close,
		}}, nil
	}
	return f, nil
}

type writer struct {
	io.Writer
	path    string
	closers []func() error
}

func (w *writer) Close() error {
	var first error
	for _, c := range w.closers {
		if err := c(); err != nil && first == nil {
			first = perrors.FileError(perrors.ErrFileWrite, w.path, err)
		}
	}
	return first
}

// Create creates or truncates path for writing. The compressed stream is
// finished by Close.
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, perrors.FileError(perrors.ErrFileWrite, path, err)
	}
	switch Detect(path) {
	case Gzip:
		zw := gzip.NewWriter(f)
		return &writer{Writer: zw, path: path, closers: []func() error{zw.Close, f.Close}}, nil
	case Zstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, perrors.FileError(perrors.ErrFileWrite, path, err)
		}
		return &writer{Writer: zw, path: path, closers: []func() error{zw.Close, f.Close}}, nil
	}
	return &writer{Writer: f, path: path, closers: []func() error{f.Close}}, nil
}

// OutputPath names the result of processing path: the same name with suffix
// inserted before the extension, placed in dir when it is not empty.
func OutputPath(path, dir, suffix string) string {
	base, comp := path, ""
	if Detect(path) != None {
		comp = filepath.Ext(path)
		base = strings.TrimSuffix(path, comp)
	}
	ext := filepath.Ext(base)
	out := strings.TrimSuffix(base, ext) + suffix + ext + comp
	if dir != "" {
		out = filepath.Join(dir, filepath.Base(out))
	}
	return out
}
