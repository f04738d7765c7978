package fatfs

import (
	"bytes"
	"testing"

	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/werrors"
	"github.com/stretchr/testify/require"
)

func TestParserGeometryFAT16(t *testing.T) {
	img := BuildFAT16Image(ImageFile{Name: "HELLO.TXT", Content: []byte("content")})
	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	require.Equal(t, TypeFAT16, p.Type())
	require.Equal(t, uint32(4096), p.ClusterSize())
	require.Equal(t, uint32(4200), p.ClusterCount())
}

func TestParserGeometryFAT12(t *testing.T) {
	img := BuildFAT12Image()
	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	require.Equal(t, TypeFAT12, p.Type())
	require.Equal(t, uint32(512), p.ClusterSize())
}

func TestRootDirAndLookup(t *testing.T) {
	img := BuildFAT16Image(
		ImageFile{Name: "HELLO.TXT", Content: []byte("content")},
		ImageFile{Name: "BIG.BIN", Content: bytes.Repeat([]byte{0xAB}, 10000)},
	)
	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	entries, err := p.RootDir()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "HELLO.TXT", entries[0].Name)
	require.Equal(t, uint32(7), entries[0].Size)

	e, err := p.Lookup("hello.txt")
	require.NoError(t, err)
	require.Equal(t, uint32(2), e.StartCluster)

	_, err = p.Lookup("MISSING.TXT")
	require.True(t, werrors.Is(err, werrors.PreconditionViolated))
}

func TestClusterChain(t *testing.T) {
	img := BuildFAT16Image(
		ImageFile{Name: "A.BIN", Content: bytes.Repeat([]byte{1}, 4096)},
		ImageFile{Name: "B.BIN", Content: bytes.Repeat([]byte{2}, 9000)},
	)
	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	chain, err := p.ClusterChain(2)
	require.NoError(t, err)
	require.Equal(t, []uint32{2}, chain)

	chain, err = p.ClusterChain(3)
	require.NoError(t, err)
	require.Equal(t, []uint32{3, 4, 5}, chain)
}

func TestClusterChainCycle(t *testing.T) {
	img := BuildFAT16Image(ImageFile{Name: "A.BIN", Content: bytes.Repeat([]byte{1}, 9000)})
	dev := device.NewMemDevice(img, 0)
	p, err := NewParser(dev, 0)
	require.NoError(t, err)

	// Loop the chain back onto itself.
	require.NoError(t, p.WriteFATEntry(4, 2))

	_, err = p.ClusterChain(2)
	require.True(t, werrors.Is(err, werrors.CorruptStructure))
}

func TestSlackBytes(t *testing.T) {
	img := BuildFAT16Image(
		ImageFile{Name: "SMALL.TXT", Content: []byte("content")},
		ImageFile{Name: "EXACT.BIN", Content: bytes.Repeat([]byte{7}, 4096)},
	)
	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	small, err := p.Lookup("SMALL.TXT")
	require.NoError(t, err)
	require.Equal(t, uint32(4096-7), p.SlackBytes(small))

	exact, err := p.Lookup("EXACT.BIN")
	require.NoError(t, err)
	require.Equal(t, uint32(0), p.SlackBytes(exact))
}

func TestWriteFATEntryUpdatesAllCopies(t *testing.T) {
	img := BuildFAT16Image()
	dev := device.NewMemDevice(img, 0)
	p, err := NewParser(dev, 0)
	require.NoError(t, err)

	require.NoError(t, p.WriteFATEntry(10, FAT16Bad))

	v, err := p.ReadFATEntry(10)
	require.NoError(t, err)
	require.Equal(t, uint32(FAT16Bad), v)

	// Second copy must agree byte-for-byte with the first.
	fat1 := img[p.fatOffset : p.fatOffset+p.fatSize]
	fat2 := img[p.fatOffset+p.fatSize : p.fatOffset+2*p.fatSize]
	require.Equal(t, fat1, fat2)
}

func TestFAT12EntryPacking(t *testing.T) {
	img := BuildFAT12Image()
	dev := device.NewMemDevice(img, 0)
	p, err := NewParser(dev, 0)
	require.NoError(t, err)

	// Adjacent entries share bytes in the packed 12-bit layout, so
	// writing one must not disturb its neighbors.
	require.NoError(t, p.WriteFATEntry(4, 0xABC))
	require.NoError(t, p.WriteFATEntry(5, 0x123))

	v, err := p.ReadFATEntry(4)
	require.NoError(t, err)
	require.Equal(t, uint32(0xABC), v)

	v, err = p.ReadFATEntry(5)
	require.NoError(t, err)
	require.Equal(t, uint32(0x123), v)

	require.Equal(t, uint32(FAT12Bad), p.BadMarker())
}

func TestParserIsReadOnly(t *testing.T) {
	img := BuildFAT16Image(ImageFile{Name: "HELLO.TXT", Content: []byte("content")})
	snapshot := make([]byte, len(img))
	copy(snapshot, img)

	p, err := NewParser(device.NewMemDevice(img, 0), 0)
	require.NoError(t, err)

	_, err = p.Files()
	require.NoError(t, err)
	_, err = p.ReferencedClusters()
	require.NoError(t, err)

	require.Equal(t, snapshot, img)
}
