package routing

import (
	"fmt"

	"scoreflow/internal/types"
)

// cellKey is the (policy_area_id, dimension_id) routing key.
type cellKey struct {
	policyAreaID string
	dimensionID  string
}

// Matrix indexes validated chunks by routing key for O(1) lookup.
// Exactly one chunk per cell: a duplicate cell is a construction error,
// because routing ambiguity is not tolerated.
type Matrix struct {
	cells map[cellKey]types.ValidatedChunk
}

// NewMatrix builds a matrix from validated chunks.
func NewMatrix(chunks []types.ValidatedChunk) (*Matrix, error) {
	cells := make(map[cellKey]types.ValidatedChunk, len(chunks))
	for _, c := range chunks {
		key := cellKey{c.PolicyAreaID, c.DimensionID}
		if prior, ok := cells[key]; ok {
			return nil, fmt.Errorf(
				"duplicate chunk for policy_area_id='%s', dimension_id='%s': %s and %s",
				c.PolicyAreaID, c.DimensionID, prior.ChunkID, c.ChunkID)
		}
		cells[key] = c
	}
	return &Matrix{cells: cells}, nil
}

// Get returns the unique chunk for a routing key.
func (m *Matrix) Get(policyAreaID, dimensionID string) (types.ValidatedChunk, bool) {
	c, ok := m.cells[cellKey{policyAreaID, dimensionID}]
	return c, ok
}

// Size returns the number of occupied cells.
func (m *Matrix) Size() int {
	return len(m.cells)
}
