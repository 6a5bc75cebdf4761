package signals

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoreflow/internal/types"
)

func TestStaticRegistryFiltersByRequiredType(t *testing.T) {
	reg := NewStaticRegistry()
	reg.Add("C1", types.ResolvedSignal{SignalID: "S1", SignalType: "entity_density", Content: "0.7"})
	reg.Add("C1", types.ResolvedSignal{SignalID: "S2", SignalType: "citation_count", Content: "4"})
	reg.Add("C2", types.ResolvedSignal{SignalID: "S3", SignalType: "entity_density", Content: "0.2"})

	got := reg.GetSignalsForChunk("C1", []string{"entity_density"})
	require.Len(t, got, 1)
	assert.Equal(t, "S1", got[0].SignalID)
}

func TestStaticRegistryNeverReturnsNil(t *testing.T) {
	reg := NewStaticRegistry()
	got := reg.GetSignalsForChunk("unknown", []string{"anything"})
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestChunkIDsSorted(t *testing.T) {
	reg := NewStaticRegistry()
	reg.Add("C3", types.ResolvedSignal{SignalID: "S1", SignalType: "t", Content: "x"})
	reg.Add("C1", types.ResolvedSignal{SignalID: "S2", SignalType: "t", Content: "x"})
	assert.Equal(t, []string{"C1", "C3"}, reg.ChunkIDs())
}

func TestLoadPack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.yaml")
	content := `
signals:
  PA01-D1:
    - signal_id: S1
      signal_type: entity_density
      content: "0.71"
    - signal_id: S2
      signal_type: citation_count
      content: "12"
  PA02-D1:
    - signal_id: S3
      signal_type: entity_density
      content: "0.15"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	reg, err := LoadPack(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"PA01-D1", "PA02-D1"}, reg.ChunkIDs())

	got := reg.GetSignalsForChunk("PA01-D1", []string{"entity_density", "citation_count"})
	assert.Len(t, got, 2)
}

func TestLoadPackMissingFile(t *testing.T) {
	_, err := LoadPack(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
