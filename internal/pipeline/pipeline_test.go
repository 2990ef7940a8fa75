package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aro-via/routing-maps/internal/domain"
)

// buildTestBundle returns a 4x4 bundle (depot + 3 stops) where travel time
// in seconds between any two nodes i,j is |i-j|*600 (10 min per unit index
// distance), purely so re-indexing is easy to verify by hand.
func buildTestBundle() domain.MatrixBundle {
	n := 4
	bundle := domain.MatrixBundle{
		TimeMatrix:     make([][]int, n),
		DistanceMatrix: make([][]int, n),
	}
	for i := 0; i < n; i++ {
		bundle.TimeMatrix[i] = make([]int, n)
		bundle.DistanceMatrix[i] = make([]int, n)
		for j := 0; j < n; j++ {
			d := i - j
			if d < 0 {
				d = -d
			}
			bundle.TimeMatrix[i][j] = d * 600
			bundle.DistanceMatrix[i][j] = d * 1000
		}
	}
	return bundle
}

func TestReindexMatrices_PermutesRowsAndColumnsKeepingDepot(t *testing.T) {
	bundle := buildTestBundle()
	// Reverse the stop order: order[0]=2 (3rd stop), order[1]=1, order[2]=0
	order := []int{2, 1, 0}

	out, err := reindexMatrices(bundle, order)
	require.NoError(t, err)

	// New row 0 (depot) to new row 1 (old stop index 2 -> old matrix index 3)
	assert.Equal(t, bundle.TimeMatrix[0][3], out.TimeMatrix[0][1])
	// New row 1 (old idx 3) to new row 2 (old idx 2)
	assert.Equal(t, bundle.TimeMatrix[3][2], out.TimeMatrix[1][2])
	// Depot row/col is preserved at index 0.
	assert.Equal(t, bundle.TimeMatrix[0][0], out.TimeMatrix[0][0])
}

func TestReindexMatrices_IdentityOrderIsNoOp(t *testing.T) {
	bundle := buildTestBundle()
	order := []int{0, 1, 2}
	out, err := reindexMatrices(bundle, order)
	require.NoError(t, err)
	assert.Equal(t, bundle, out)
}

func TestNaiveDurationMinutes_SumsTravelAndService(t *testing.T) {
	bundle := buildTestBundle()
	stops := []domain.Stop{
		{ServiceTimeMinutes: 10},
		{ServiceTimeMinutes: 20},
		{ServiceTimeMinutes: 5},
	}
	// driver(0)->s0(1): 600s=10min +10 service = 20
	// s0(1)->s1(2): 600s=10min +20 service = 30 (cum 50)
	// s1(2)->s2(3): 600s=10min +5 service = 15 (cum 65)
	got := naiveDurationMinutes(bundle, stops)
	assert.Equal(t, float64(65), got)
}
