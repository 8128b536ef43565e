package domain

// Aggregate is the derived rating summary stored on a facility.
type Aggregate struct {
	Count int64
	Mean  float64
}

// ComputeAggregate derives the aggregate from a review count and the sum of
// their ratings. No rounding is applied; an empty set yields exactly 0.0.
func ComputeAggregate(count, sum int64) Aggregate {
	if count <= 0 {
		return Aggregate{}
	}
	return Aggregate{Count: count, Mean: float64(sum) / float64(count)}
}
