// Package signals defines the signal registry boundary: the external source
// of cross-cutting enrichment facts attached to chunks.
package signals

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"scoreflow/internal/types"
)

// Registry supplies enrichment signals for a chunk. Implementations must
// return a non-nil slice (possibly empty) - a nil return is a contract
// violation the caller treats as an error. Implementations must be safe for
// concurrent use.
type Registry interface {
	GetSignalsForChunk(chunkID string, required []string) []types.ResolvedSignal
}

// StaticRegistry is an in-memory Registry keyed by chunk id.
type StaticRegistry struct {
	mu      sync.RWMutex
	byChunk map[string][]types.ResolvedSignal
}

// NewStaticRegistry returns an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{byChunk: make(map[string][]types.ResolvedSignal)}
}

// Add registers a signal for a chunk.
func (r *StaticRegistry) Add(chunkID string, sig types.ResolvedSignal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byChunk[chunkID] = append(r.byChunk[chunkID], sig)
}

// GetSignalsForChunk returns the signals registered for a chunk whose type is
// in the required set. Always returns a non-nil slice.
func (r *StaticRegistry) GetSignalsForChunk(chunkID string, required []string) []types.ResolvedSignal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[string]struct{}, len(required))
	for _, name := range required {
		want[name] = struct{}{}
	}

	out := make([]types.ResolvedSignal, 0)
	for _, sig := range r.byChunk[chunkID] {
		if _, ok := want[sig.SignalType]; ok {
			out = append(out, sig)
		}
	}
	return out
}

// ChunkIDs returns the sorted chunk ids with registered signals.
func (r *StaticRegistry) ChunkIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byChunk))
	for id := range r.byChunk {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// signalPackFile is the on-disk form of a signal pack.
type signalPackFile struct {
	Signals map[string][]types.ResolvedSignal `yaml:"signals"` // chunk_id -> signals
}

// LoadPack reads a YAML signal pack into a StaticRegistry.
func LoadPack(path string) (*StaticRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signal pack %s: %w", path, err)
	}
	var pack signalPackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse signal pack %s: %w", path, err)
	}
	reg := NewStaticRegistry()
	for chunkID, sigs := range pack.Signals {
		for _, sig := range sigs {
			reg.Add(chunkID, sig)
		}
	}
	return reg, nil
}
