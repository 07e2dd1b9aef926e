package tiling

import (
	"fmt"
	"sync"
)

// Result is the merged outcome of one tiling request.
type Result struct {
	Coordinates    []TileCoordinate `json:"coordinates"`
	TileLevel      int              `json:"tile_level"`
	ResizeFactor   float64          `json:"resize_factor"`
	TileSizeLevel0 int              `json:"tile_size_level0"`
}

// dispatch runs fn for every index in [0, n) on a fixed pool of workers and
// returns the results in index order.
func dispatch(n, workers int, fn func(i int) RegionResult) []RegionResult {
	if workers < 1 {
		workers = 1
	}
	workers = min(workers, max(n, 1))

	results := make([]RegionResult, n)
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = fn(i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// merge concatenates region results in order. Every non-empty result must
// share one tile level.
func merge(results []RegionResult) (*Result, error) {
	out := &Result{TileLevel: NoLevel}
	for i, r := range results {
		if r.Empty() {
			continue
		}
		if out.TileLevel != NoLevel && out.TileLevel != r.TileLevel {
			return nil, fmt.Errorf("%w: region %d resolved level %d, earlier regions level %d",
				ErrInconsistentTileLevel, i, r.TileLevel, out.TileLevel)
		}
		out.TileLevel = r.TileLevel
		out.ResizeFactor = r.ResizeFactor
		out.Coordinates = append(out.Coordinates, r.Coordinates...)
	}
	return out, nil
}
