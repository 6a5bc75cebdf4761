package batch

// Summary condenses a full run's batch results into run-level totals and the
// ordered concatenation of per-item values.
type Summary[R any] struct {
	TotalBatches int
	TotalItems   int
	Succeeded    int
	Failed       int
	SuccessRate  float64 // 0 when no items ran
	StatusCounts map[Status]int
	Values       []R     // successful item values, batch-index order
	Errors       []error // item errors, batch-index order
	TotalRetries int
}

// Aggregate folds batch results into a Summary. Results are assumed ordered
// by batch index, which all executor modes guarantee.
func Aggregate[R any](results []Result[R]) Summary[R] {
	s := Summary[R]{
		TotalBatches: len(results),
		StatusCounts: make(map[Status]int),
	}
	for _, br := range results {
		s.StatusCounts[br.Status]++
		s.Succeeded += br.Succeeded
		s.Failed += br.Failed
		s.TotalItems += len(br.Items)
		s.TotalRetries += br.Retries
		for _, ir := range br.Items {
			if ir.Err != nil {
				s.Errors = append(s.Errors, ir.Err)
			} else {
				s.Values = append(s.Values, ir.Value)
			}
		}
	}
	if s.TotalItems > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.TotalItems)
	}
	return s
}
