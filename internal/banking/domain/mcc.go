package domain

// MCCMapping maps one merchant-category-code onto a taxonomy pair. The
// mapping table is global and read-mostly.
type MCCMapping struct {
	Code       string
	Category   CategoryPair
	Confidence float64
}
