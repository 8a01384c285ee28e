package model

type Group struct {
	Name string
	Type string // "select" | "url-test" | "load-balance"

	Members []string // proxy names / group names / DIRECT

	// url-test and load-balance only
	TestURL     string
	IntervalSec int

	// url-test only
	ToleranceMS  int
	HasTolerance bool
}
