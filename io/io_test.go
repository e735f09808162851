package io

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))
	require.NoError(t, WriteFrame(&buf, nil))
	require.NoError(t, WriteFrame(&buf, []byte{1, 2, 3}))
	assert.Equal(t, []byte{0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o'}, buf.Bytes()[:9])

	f, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), f)
	f, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, f)
	f, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, f)

	_, err = ReadFrame(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestFrameErrors(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0}))
	assert.True(t, xerrors.Is(err, io.ErrUnexpectedEOF))

	_, err = ReadFrame(bytes.NewReader([]byte{0, 0, 0, 4, 1}))
	assert.True(t, xerrors.Is(err, io.ErrUnexpectedEOF))

	_, err = ReadFrame(bytes.NewReader([]byte{0xFF, 0, 0, 0}))
	assert.True(t, xerrors.Is(err, ErrFrameTooLarge))

	err = WriteFrame(io.Discard, make([]byte, MaxFrameSize+1))
	assert.True(t, xerrors.Is(err, ErrFrameTooLarge))
}

func TestReadFrom(t *testing.T) {
	r := bytes.NewReader([]byte{1, 2, 3, 4, 5})
	c, err := ReadFrom(r, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, c)
	c, err = ReadFrom(r, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5}, c)
	c, err = ReadFrom(r, 4)
	require.NoError(t, err)
	assert.Empty(t, c)
}

func TestFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	f, err := CreateFile(path)
	require.NoError(t, err)
	require.NoError(t, WriteTo(f, []byte("abc")))
	require.NoError(t, f.Close())

	size, err := FileSize(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	_, err = FileSize(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	f, err = OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	c, err := ReadFrom(NewReader(f), 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), c)
}

func TestWriteAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	f, err := CreateFile(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, WriteAt(f, []byte("cd"), 2))
	require.NoError(t, WriteAt(f, []byte("ab"), 0))

	size, err := FileSize(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)

	_, err = ReadFrame(bytes.NewReader(nil))
	assert.Equal(t, EOF, err)
}
