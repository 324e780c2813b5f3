package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/microarray/encoding/textio"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sys/unix"
)

// version is recorded in the VCF header.
const version = "2020-05-26"

// extraFiles is the number of files open besides the containers.
const extraFiles = 7

// raiseFileLimit makes sure the process may open n files at once.
func raiseFileLimit(n int) error {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return errors.E(err, "getrlimit")
	}
	need := uint64(n + extraFiles)
	if need > lim.Max {
		return errors.E(fmt.Sprintf("on this system you cannot open more than %d files at once while %d are required",
			lim.Max, need))
	}
	if need > lim.Cur {
		log.Debug.Printf("raising the open file limit from %d to %d", lim.Cur, need)
		lim.Cur = need
		if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
			return errors.E(err, "setrlimit")
		}
	}
	return nil
}

// listFiles returns the files in dir with the given extension, sorted. A
// path that itself has the extension is returned as is.
func listFiles(ctx context.Context, dir, ext string) ([]string, error) {
	if strings.EqualFold(fileExt(dir), ext) {
		return []string{dir}, nil
	}
	var paths []string
	lister := file.List(ctx, dir, false)
	for lister.Scan() {
		if !lister.IsDir() && strings.EqualFold(ext, fileExt(lister.Path())) {
			paths = append(paths, lister.Path())
		}
	}
	if err := lister.Err(); err != nil {
		return nil, errors.E(err, "list", dir)
	}
	if len(paths) == 0 {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("no %s files found in %s", ext, dir))
	}
	sort.Strings(paths)
	return paths, nil
}

func fileExt(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return ""
}

// output is a destination file, or the standard output for "-".
type output struct {
	io.Writer
	ctx context.Context
	f   file.File
	gz  *gzip.Writer
}

// createOutput opens path for writing. Paths ending in ".gz" are gzip
// compressed unless raw is set.
func createOutput(ctx context.Context, path string, raw bool) (*output, error) {
	o := &output{ctx: ctx, Writer: os.Stdout}
	if path != "" && path != "-" {
		f, err := file.Create(ctx, path)
		if err != nil {
			return nil, errors.E(err, "create", path)
		}
		o.f, o.Writer = f, f.Writer(ctx)
	}
	if !raw && strings.HasSuffix(path, ".gz") {
		o.gz = gzip.NewWriter(o.Writer)
		o.Writer = o.gz
	}
	return o, nil
}

// Close flushes and closes the destination.
func (o *output) Close() error {
	var err error
	if o.gz != nil {
		err = o.gz.Close()
	}
	if o.f != nil {
		file.CloseAndReport(o.ctx, o.f, &err)
	}
	return err
}

// openText opens an optional text input.
func openText(ctx context.Context, path string) (io.ReadCloser, error) {
	if path == "" {
		return nil, nil
	}
	return textio.Open(ctx, path)
}

// closeAll closes the non-nil inputs.
func closeAll(rcs ...io.ReadCloser) {
	for _, rc := range rcs {
		if rc != nil {
			_ = rc.Close()
		}
	}
}
