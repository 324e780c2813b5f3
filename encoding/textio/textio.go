// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package textio opens text inputs that may be gzip compressed.
package textio

import (
	"context"
	"io"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/klauspost/compress/gzip"
)

type reader struct {
	io.Reader
	ctx   context.Context
	f     file.File
	inner io.Closer
}

// Close closes both the decompressor and the file.
func (r *reader) Close() error {
	var err error
	if r.inner != nil {
		err = r.inner.Close()
	}
	if e := r.f.Close(r.ctx); e != nil && err == nil {
		err = e
	}
	return err
}

// Open opens path for reading. Files named *.gz are read through gzip;
// other files are sniffed for a known compression header and read as-is
// when none is found.
func Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	r := &reader{ctx: ctx, f: f}
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		gz, err := gzip.NewReader(f.Reader(ctx))
		if err != nil {
			_ = f.Close(ctx)
			return nil, errors.E(err, "gzip", path)
		}
		r.Reader, r.inner = gz, gz
	default:
		u, _ := compress.NewReader(f.Reader(ctx))
		r.Reader, r.inner = u, u
	}
	return r, nil
}
