package container_test

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/microarray/container"
	"github.com/grailbio/microarray/encoding/affyio/affytest"
	"github.com/grailbio/microarray/encoding/xda"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// xdaCEL returns a 1x1 XDA CEL file.
func xdaCEL() []byte {
	return affytest.NewLittleEndian().
		I32(xda.Magic).I32(xda.Version).
		I32(1).I32(1).I32(1).
		Str8("Cols=1\nRows=1\n").Str8("Percentile").Str8("").
		I32(2).U32(0).U32(0).I32(0).
		F32(100).F32(1).I16(9).
		Bytes()
}

func writeFiles(t *testing.T, dir string, files map[string][]byte) {
	for name, data := range files {
		require.NoError(t, ioutil.WriteFile(filepath.Join(dir, name), data, 0600))
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	writeFiles(t, dir, map[string][]byte{
		"s1.AxiomGT1.chp": affytest.GenotypeCHP(true, affytest.GenotypeRow("AX-1", 6, 0.01, 1, 10)),
		"s2.CEL":          xdaCEL(),
	})
	chp := filepath.Join(dir, "s1.AxiomGT1.chp")
	cel := filepath.Join(dir, "s2.CEL")

	c, err := container.Open(ctx, cel, container.Opts{})
	require.NoError(t, err)
	require.NotNil(t, c.XDA)
	assert.Nil(t, c.Calvin)
	assert.Len(t, c.XDA.Cells, 1)
	require.NoError(t, c.Close(ctx))

	cs, err := container.OpenAll(ctx, []string{chp, cel})
	require.NoError(t, err)
	require.Len(t, cs, 2)
	require.NotNil(t, cs[0].Calvin)
	assert.Equal(t, "s1", cs[0].Calvin.DisplayName)
	// Several files are opened header only.
	assert.Nil(t, cs[1].XDA.Cells)

	_, err = container.CalvinFiles(cs)
	assert.Error(t, err)
	files, err := container.CalvinFiles(cs[:1])
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.NoError(t, container.CloseAll(ctx, cs))
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	writeFiles(t, dir, map[string][]byte{
		"xda.chp": {65, 0, 0, 0},
		"junk":    []byte("junk"),
		"empty":   nil,
	})
	_, err := container.Open(ctx, filepath.Join(dir, "xda.chp"), container.Opts{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unable to read XDA CHP"))
	_, err = container.Open(ctx, filepath.Join(dir, "junk"), container.Opts{})
	assert.Error(t, err)
	_, err = container.Open(ctx, filepath.Join(dir, "empty"), container.Opts{})
	assert.Error(t, err)
	_, err = container.Open(ctx, filepath.Join(dir, "missing"), container.Opts{})
	assert.Error(t, err)
	_, err = container.OpenAll(ctx, []string{filepath.Join(dir, "junk"), filepath.Join(dir, "xda.chp")})
	assert.Error(t, err)
}
