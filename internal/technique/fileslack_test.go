package technique

import (
	"bytes"
	"testing"

	"github.com/ostafen/weever/internal/device"
	"github.com/ostafen/weever/internal/fatfs"
	"github.com/ostafen/weever/internal/werrors"
	"github.com/stretchr/testify/require"
)

func newFAT16Fixture(t *testing.T, files ...fatfs.ImageFile) (*device.MemDevice, *fatfs.Parser) {
	t.Helper()
	img := fatfs.BuildFAT16Image(files...)
	dev := device.NewMemDevice(img, 0)
	p, err := fatfs.NewParser(dev, 0)
	require.NoError(t, err)
	return dev, p
}

func TestFileSlackRoundTrip(t *testing.T) {
	// A 7-byte file in a 4096-byte cluster carrying "hello\n": the
	// metadata must list one region at in-cluster offset 7 of length 6.
	dev, p := newFAT16Fixture(t, fatfs.ImageFile{Name: "HELLO.TXT", Content: []byte("content")})
	slack := NewFileSlack(dev, p, []string{"HELLO.TXT"})

	payload := []byte("hello\n")
	m, err := slack.Write(bytes.NewReader(payload), nil)
	require.NoError(t, err)

	md := m.(*FileSlackMetadata)
	require.Len(t, md.Regions, 1)
	require.Equal(t, uint32(2), md.Regions[0].Cluster)
	require.Equal(t, uint32(7), md.Regions[0].Offset)
	require.Equal(t, uint32(6), md.Regions[0].Length)

	var out bytes.Buffer
	require.NoError(t, slack.Read(m, &out))
	require.Equal(t, payload, out.Bytes())

	// The file's own bytes are untouched.
	e, err := p.Lookup("HELLO.TXT")
	require.NoError(t, err)
	off, err := p.ClusterOffset(e.StartCluster)
	require.NoError(t, err)
	require.Equal(t, []byte("content"), dev.Data[off:off+7])
}

func TestFileSlackClearRestoresImage(t *testing.T) {
	dev, p := newFAT16Fixture(t, fatfs.ImageFile{Name: "HELLO.TXT", Content: []byte("content")})
	slack := NewFileSlack(dev, p, nil)

	snapshot := make([]byte, len(dev.Data))
	copy(snapshot, dev.Data)

	m, err := slack.Write(bytes.NewReader([]byte("hidden bytes")), nil)
	require.NoError(t, err)
	require.NotEqual(t, snapshot, dev.Data)

	require.NoError(t, slack.Clear(m))
	require.Equal(t, snapshot, dev.Data)

	require.NoError(t, slack.Clear(m))
	require.Equal(t, snapshot, dev.Data)
}

func TestFileSlackSpansMultipleFiles(t *testing.T) {
	dev, p := newFAT16Fixture(t,
		fatfs.ImageFile{Name: "A.BIN", Content: bytes.Repeat([]byte{1}, 4090)}, // 6 bytes of slack
		fatfs.ImageFile{Name: "B.BIN", Content: bytes.Repeat([]byte{2}, 4000)}, // 96 bytes of slack
	)
	slack := NewFileSlack(dev, p, nil)

	payload := bytes.Repeat([]byte{0xEE}, 50)
	m, err := slack.Write(bytes.NewReader(payload), nil)
	require.NoError(t, err)

	md := m.(*FileSlackMetadata)
	require.Len(t, md.Regions, 2)
	require.Equal(t, uint32(6), md.Regions[0].Length)
	require.Equal(t, uint32(44), md.Regions[1].Length)

	var out bytes.Buffer
	require.NoError(t, slack.Read(m, &out))
	require.Equal(t, payload, out.Bytes())
}

func TestFileSlackInsufficientSpace(t *testing.T) {
	dev, p := newFAT16Fixture(t, fatfs.ImageFile{Name: "A.BIN", Content: bytes.Repeat([]byte{1}, 4090)})
	slack := NewFileSlack(dev, p, nil)

	_, err := slack.Write(bytes.NewReader(make([]byte, 7)), nil)
	require.True(t, werrors.Is(err, werrors.InsufficientSpace))

	// Exactly the available slack fits.
	m, err := slack.Write(bytes.NewReader(make([]byte, 6)), nil)
	require.NoError(t, err)
	require.NoError(t, slack.Clear(m))
}

func TestClusterChainPaddingUsesTrailingClusters(t *testing.T) {
	dev, p := newFAT16Fixture(t, fatfs.ImageFile{Name: "A.BIN", Content: bytes.Repeat([]byte{1}, 100)})

	// Extend the file's chain by one cluster without growing its size,
	// as a shrink-without-trim would leave it.
	require.NoError(t, p.WriteFATEntry(2, 3))
	require.NoError(t, p.WriteFATEntry(3, 0xFFF8))

	pad := NewClusterChainPadding(dev, p, []string{"A.BIN"})

	info, err := pad.Info(nil)
	require.NoError(t, err)
	// Tail slack of cluster 2 plus the whole of cluster 3.
	require.Equal(t, uint64(4096-100+4096), info.Capacity)

	payload := bytes.Repeat([]byte{0x77}, 5000)
	m, err := pad.Write(bytes.NewReader(payload), nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, pad.Read(m, &out))
	require.Equal(t, payload, out.Bytes())
}

func TestBadClusterRoundTrip(t *testing.T) {
	dev, p := newFAT16Fixture(t, fatfs.ImageFile{Name: "A.BIN", Content: []byte("data")})
	bad := NewBadCluster(dev, p)

	payload := bytes.Repeat([]byte{0xC3}, 5000)
	m, err := bad.Write(bytes.NewReader(payload), nil)
	require.NoError(t, err)

	md := m.(*BadClusterMetadata)
	require.Len(t, md.Clusters, 2)
	require.Equal(t, uint64(5000), md.Length)
	// Cluster 2 belongs to A.BIN; carriers start at the first free one.
	require.Equal(t, uint32(3), md.Clusters[0])

	// The carriers are flagged bad in the FAT.
	for _, c := range md.Clusters {
		v, err := p.ReadFATEntry(c)
		require.NoError(t, err)
		require.Equal(t, uint32(fatfs.FAT16Bad), v)
	}

	var out bytes.Buffer
	require.NoError(t, bad.Read(m, &out))
	require.Equal(t, payload, out.Bytes())
}

func TestBadClusterClearFreesClusters(t *testing.T) {
	dev, p := newFAT16Fixture(t, fatfs.ImageFile{Name: "A.BIN", Content: []byte("data")})
	bad := NewBadCluster(dev, p)

	snapshot := make([]byte, len(dev.Data))
	copy(snapshot, dev.Data)

	m, err := bad.Write(bytes.NewReader([]byte("secret")), nil)
	require.NoError(t, err)

	require.NoError(t, bad.Clear(m))
	require.Equal(t, snapshot, dev.Data)
}

func TestBadClusterSkipsReferencedClusters(t *testing.T) {
	content := bytes.Repeat([]byte{9}, 9000) // clusters 2, 3, 4
	dev, p := newFAT16Fixture(t, fatfs.ImageFile{Name: "A.BIN", Content: content})
	bad := NewBadCluster(dev, p)

	m, err := bad.Write(bytes.NewReader([]byte("x")), nil)
	require.NoError(t, err)
	require.Equal(t, []uint32{5}, m.(*BadClusterMetadata).Clusters)
}

func TestBadClusterFAT12Marker(t *testing.T) {
	img := fatfs.BuildFAT12Image(fatfs.ImageFile{Name: "A.BIN", Content: []byte("data")})
	dev := device.NewMemDevice(img, 0)
	p, err := fatfs.NewParser(dev, 0)
	require.NoError(t, err)

	bad := NewBadCluster(dev, p)
	m, err := bad.Write(bytes.NewReader([]byte("q")), nil)
	require.NoError(t, err)

	md := m.(*BadClusterMetadata)
	v, err := p.ReadFATEntry(md.Clusters[0])
	require.NoError(t, err)
	require.Equal(t, uint32(fatfs.FAT12Bad), v)

	var out bytes.Buffer
	require.NoError(t, bad.Read(m, &out))
	require.Equal(t, []byte("q"), out.Bytes())
}
