// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package container opens Affymetrix CHP and CEL files, dispatching on the
// leading magic byte to the Calvin or XDA reader.
package container

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/microarray/encoding/affyio"
	"github.com/grailbio/microarray/encoding/calvin"
	"github.com/grailbio/microarray/encoding/xda"
)

// xdaCHPMagic marks the legacy XDA CHP format, which is not supported.
const xdaCHPMagic = 65

// Container is an open CHP or CEL file. Exactly one of Calvin and XDA is
// set. The file stays open until Close since Calvin rows are decoded on
// demand.
type Container struct {
	Path   string
	Calvin *calvin.File
	XDA    *xda.CEL
	f      file.File
}

// Opts controls Open.
type Opts struct {
	// HeaderOnly skips the cell arrays of XDA CEL files and the algorithm
	// parameters of Calvin files.
	HeaderOnly bool
}

// Open opens and decodes the structure of the file at path.
func Open(ctx context.Context, path string, opts Opts) (c *Container, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	defer func() {
		if err != nil {
			_ = f.Close(ctx)
		}
	}()
	s := affyio.NewStream(f.Reader(ctx))
	magic, err := s.Peek(1)
	if err != nil {
		return nil, errors.E(err, "read", path)
	}
	c = &Container{Path: path, f: f}
	switch magic[0] {
	case calvin.Magic:
		log.Printf("Reading AGCC file %s", path)
		c.Calvin, err = calvin.Read(s, path, calvin.Opts{DropAlgorithmParams: opts.HeaderOnly})
	case xda.Magic:
		log.Printf("Reading XDA CEL file %s", path)
		c.XDA, err = xda.Read(s, path, xda.Opts{HeaderOnly: opts.HeaderOnly})
	case xdaCHPMagic:
		err = fmt.Errorf("currently unable to read XDA CHP format for file %s", path)
	default:
		err = fmt.Errorf("expected magic numbers %d, %d or %d but found %d in file %s",
			calvin.Magic, xda.Magic, xdaCHPMagic, magic[0], path)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// OpenAll opens the files in parallel. More than one file implies
// HeaderOnly. On error, the files already opened are closed.
func OpenAll(ctx context.Context, paths []string) ([]*Container, error) {
	opts := Opts{HeaderOnly: len(paths) > 1}
	cs := make([]*Container, len(paths))
	err := traverse.Each(len(paths), func(i int) (err error) {
		cs[i], err = Open(ctx, paths[i], opts)
		return
	})
	if err != nil {
		_ = CloseAll(ctx, cs)
		return nil, err
	}
	return cs, nil
}

// CalvinFiles returns the Calvin files of cs. It fails if one of them is a
// CEL file in the XDA format.
func CalvinFiles(cs []*Container) ([]*calvin.File, error) {
	files := make([]*calvin.File, len(cs))
	for i, c := range cs {
		if c.Calvin == nil {
			return nil, fmt.Errorf("%s is not an AGCC file", c.Path)
		}
		files[i] = c.Calvin
	}
	return files, nil
}

// Close closes the underlying file.
func (c *Container) Close(ctx context.Context) error {
	return c.f.Close(ctx)
}

// CloseAll closes every non-nil container and returns the first error.
func CloseAll(ctx context.Context, cs []*Container) error {
	var err error
	for _, c := range cs {
		if c == nil {
			continue
		}
		if e := c.Close(ctx); e != nil && err == nil {
			err = e
		}
	}
	return err
}
