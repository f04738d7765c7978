package metadata_test

import (
	"bytes"
	"testing"

	"github.com/ostafen/weever/internal/metadata"
	"github.com/ostafen/weever/internal/technique"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeOrderingAndLookup(t *testing.T) {
	env := metadata.New()
	env.SetModule(technique.ModuleOSD2)

	env.AddFile("a", &technique.OSD2Metadata{InodeNumbers: []uint32{1, 2}, Length: 4})
	env.AddFile("b", &technique.OSD2Metadata{InodeNumbers: []uint32{3}, Length: 2})

	files := env.Files()
	require.Len(t, files, 2)
	require.Equal(t, "a", files[0].Filename)
	require.Equal(t, "b", files[1].Filename)

	entry, ok := env.GetFile("b")
	require.True(t, ok)
	require.Equal(t, technique.ModuleOSD2, entry.Module)

	_, ok = env.GetFile("missing")
	require.False(t, ok)
}

func TestEnvelopeGeneratedNames(t *testing.T) {
	env := metadata.New()

	name1 := env.AddFile("", &technique.OSD2Metadata{Length: 2})
	name2 := env.AddFile("", &technique.OSD2Metadata{Length: 2})

	require.NotEmpty(t, name1)
	require.NotEmpty(t, name2)
	require.NotEqual(t, name1, name2)

	_, ok := env.GetFile(name1)
	require.True(t, ok)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := metadata.New()
	env.SetModule(technique.ModuleReservedGDT)
	env.AddFile("secret.txt", &technique.ReservedGDTMetadata{
		Blocks: []technique.GDTBlock{{Group: 0, Block: 2, Length: 4096}, {Group: 0, Block: 3, Length: 96}},
	})
	env.AddFile("other.bin", &technique.OSD2Metadata{InodeNumbers: []uint32{1, 5, 9}, Length: 5})

	var buf bytes.Buffer
	require.NoError(t, metadata.WriteEnvelope(&buf, env))

	got, err := metadata.ReadEnvelope(&buf)
	require.NoError(t, err)

	require.Equal(t, env.Module(), got.Module())
	require.Equal(t, env.Files(), got.Files())

	// Serialization is deterministic: a second write of the decoded
	// envelope is byte-identical.
	var buf2 bytes.Buffer
	require.NoError(t, metadata.WriteEnvelope(&buf2, got))

	var buf1 bytes.Buffer
	require.NoError(t, metadata.WriteEnvelope(&buf1, env))
	require.Equal(t, buf1.Bytes(), buf2.Bytes())
}

func TestReadEnvelopeUnknownModule(t *testing.T) {
	raw := `{"module":"nope"}
{"filename":"f","module":"nope","metadata":{}}
`
	_, err := metadata.ReadEnvelope(bytes.NewReader([]byte(raw)))
	require.Error(t, err)
	require.Contains(t, err.Error(), "no codec registered")
}
