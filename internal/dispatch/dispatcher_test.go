package dispatch

import (
	"bytes"
	"os"
	"testing"

	"github.com/ostafen/weever/internal/detect"
	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/ext4fs"
	"github.com/ostafen/weever/internal/fatfs"
	"github.com/ostafen/weever/internal/metadata"
	"github.com/ostafen/weever/internal/technique"
	"github.com/ostafen/weever/internal/werrors"
	"github.com/stretchr/testify/require"
)

func TestDispatcherFATWriteRead(t *testing.T) {
	img := fatfs.BuildFAT16Image(fatfs.ImageFile{Name: "HELLO.TXT", Content: []byte("content")})
	dev := device.NewMemDevice(img, 0)
	env := metadata.New()

	d, err := New(dev, technique.ModuleFileSlack, env, Options{})
	require.NoError(t, err)
	require.Equal(t, detect.FAT16, d.Variant())

	name, err := d.Write(bytes.NewReader([]byte("hello\n")), "secret", nil)
	require.NoError(t, err)
	require.Equal(t, "secret", name)
	require.Equal(t, technique.ModuleFileSlack, env.Module())

	var out bytes.Buffer
	require.NoError(t, d.Read("secret", &out))
	require.Equal(t, []byte("hello\n"), out.Bytes())
}

func TestDispatcherGeneratedFilename(t *testing.T) {
	img := ext4fs.BuildExt4Image(ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	dev := device.NewMemDevice(img, 0)
	env := metadata.New()

	d, err := New(dev, technique.ModuleOSD2, env, Options{})
	require.NoError(t, err)

	name, err := d.Write(bytes.NewReader([]byte("data")), "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, name)

	var out bytes.Buffer
	require.NoError(t, d.Read(name, &out))
	require.Equal(t, []byte("data"), out.Bytes())
}

func TestDispatcherReadDefaultsToKeyZero(t *testing.T) {
	img := ext4fs.BuildExt4Image(ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	dev := device.NewMemDevice(img, 0)
	env := metadata.New()

	d, err := New(dev, technique.ModuleOSD2, env, Options{})
	require.NoError(t, err)

	_, err = d.Write(bytes.NewReader([]byte("zero")), "0", nil)
	require.NoError(t, err)

	// Empty filename resolves to the key "0".
	var out bytes.Buffer
	require.NoError(t, d.Read("", &out))
	require.Equal(t, []byte("zero"), out.Bytes())
}

func TestDispatcherVariantMismatch(t *testing.T) {
	img := fatfs.BuildFAT16Image()
	dev := device.NewMemDevice(img, 0)

	_, err := New(dev, technique.ModuleOSD2, metadata.New(), Options{})
	require.True(t, werrors.Is(err, werrors.UnsupportedFilesystem))

	_, err = New(dev, "no-such-technique", metadata.New(), Options{})
	require.True(t, werrors.Is(err, werrors.UnsupportedFilesystem))
}

func TestDispatcherUnsupportedImage(t *testing.T) {
	dev := device.NewMemDevice(make([]byte, 1<<20), 0)

	_, err := New(dev, technique.ModuleFileSlack, metadata.New(), Options{})
	require.True(t, werrors.Is(err, werrors.UnsupportedFilesystem))
}

func TestDispatcherClearAllFilesOfModule(t *testing.T) {
	img := ext4fs.BuildExt4Image(ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 256})
	dev := device.NewMemDevice(img, 0)
	env := metadata.New()

	snapshot := make([]byte, len(dev.Data))
	copy(snapshot, dev.Data)

	d, err := New(dev, technique.ModuleOSD2, env, Options{})
	require.NoError(t, err)

	_, err = d.Write(bytes.NewReader([]byte("first")), "a", nil)
	require.NoError(t, err)
	_, err = d.Write(bytes.NewReader([]byte("second")), "b", nil)
	require.NoError(t, err)

	require.NoError(t, d.Clear(""))
	require.Equal(t, snapshot, dev.Data)
}

func TestDispatcherInfo(t *testing.T) {
	img := ext4fs.BuildExt4Image(ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	dev := device.NewMemDevice(img, 0)
	env := metadata.New()

	d, err := New(dev, technique.ModuleOSD2, env, Options{})
	require.NoError(t, err)

	infos, err := d.Info("")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, uint64(128), infos[0].Capacity)
	require.Zero(t, infos[0].Used)

	_, err = d.Write(bytes.NewReader([]byte("hi")), "a", nil)
	require.NoError(t, err)

	infos, err = d.Info("a")
	require.NoError(t, err)
	require.Equal(t, uint64(2), infos[0].Used)
}

func TestDispatcherModuleMismatchOnRead(t *testing.T) {
	img := ext4fs.BuildExt4Image(ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64, ReservedGdtBlocks: 2})
	dev := device.NewMemDevice(img, 0)
	env := metadata.New()

	osd2, err := New(dev, technique.ModuleOSD2, env, Options{})
	require.NoError(t, err)
	_, err = osd2.Write(bytes.NewReader([]byte("data")), "f", nil)
	require.NoError(t, err)

	gdt, err := New(dev, technique.ModuleReservedGDT, env, Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	err = gdt.Read("f", &out)
	require.True(t, werrors.Is(err, werrors.UnsupportedFilesystem))
}

func TestDispatcherReadIntoFile(t *testing.T) {
	img := ext4fs.BuildExt4Image(ext4fs.Ext4ImageConfig{BlockSize: 4096, InodeCount: 64})
	dev := device.NewMemDevice(img, 0)
	env := metadata.New()

	d, err := New(dev, technique.ModuleOSD2, env, Options{})
	require.NoError(t, err)

	_, err = d.Write(bytes.NewReader([]byte("to disk")), "f", nil)
	require.NoError(t, err)

	outPath := t.TempDir() + "/recovered.bin"
	require.NoError(t, d.ReadIntoFile("f", outPath))

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, []byte("to disk"), got)
}
