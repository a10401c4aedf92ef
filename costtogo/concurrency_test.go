package costtogo

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rwlmu/ml-adp/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func controlsOf(t trajectory.Trajectory) []float64 {
	res := make([]float64, len(t))
	for k := range t {
		res[k] = t[k].Control.AtVec(0)
	}
	return res
}

// Slices of one root are evaluated from many goroutines, each on its own
// trajectory. Run with -race.
func TestConcurrentSlicesShareRoot(t *testing.T) {
	c := historyEnergy(t)
	id, p := c.ID(), c.Problem()

	var slices []Slice
	for start := 0; start < c.Len(); start++ {
		for end := start + 1; end <= c.Len(); end++ {
			s, err := c.Slice(start, end)
			require.NoError(t, err)
			slices = append(slices, s)
		}
	}
	const workers = 8
	trajs := make([]trajectory.Trajectory, workers)
	want := make([][]float64, workers)
	for w := range trajs {
		base := float64(w + 1)
		trajs[w] = trajectory.Scalars(base, base+1, base+2, base+3, base+4)
		want[w] = make([]float64, len(slices))
		for i, s := range slices {
			cost, err := s.Evaluate(trajs[w])
			require.NoError(t, err)
			want[w][i] = cost
		}
	}
	before := make([][]float64, workers)
	for w := range trajs {
		before[w] = controlsOf(trajs[w])
	}

	got := make([][]float64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			got[w] = make([]float64, len(slices))
			for round := 0; round < 20; round++ {
				for i, s := range slices {
					// Re-slicing concurrently goes through the shared root.
					inner, err := s.Slice(0, s.Len())
					if err != nil {
						errs[w] = err
						return
					}
					cost, err := inner.Evaluate(trajs[w])
					if err != nil {
						errs[w] = err
						return
					}
					got[w][i] = cost
				}
			}
		}(w)
	}
	wg.Wait()

	for w := range trajs {
		require.NoError(t, errs[w])
		if diff := cmp.Diff(want[w], got[w]); diff != "" {
			t.Errorf("worker %d costs (-want +got):\n%s", w, diff)
		}
		if diff := cmp.Diff(before[w], controlsOf(trajs[w])); diff != "" {
			t.Errorf("worker %d trajectory modified (-want +got):\n%s", w, diff)
		}
	}
	assert.Equal(t, id, c.ID())
	assert.Equal(t, 5, c.Len())
	assert.False(t, c.Markovian())
	assert.Equal(t, p.HorizonLength(), c.Problem().HorizonLength())
	for _, s := range slices {
		root, ok := Root(s)
		require.True(t, ok)
		assert.Same(t, c, root)
	}
}
