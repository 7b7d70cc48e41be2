package model

type Coverage string

const (
	CoverageCovered      Coverage = "covered"
	CoveragePartial      Coverage = "partially_covered"
	CoverageNotAddressed Coverage = "not_addressed"
)

// ControlMapping relates one extracted control to zero or one regulatory
// article. A control matching several articles yields several rows; a
// control matching nothing yields exactly one row with an empty ArticleID
// and coverage "not_addressed". Derived data, recomputable from the result
// and the regulation table.
type ControlMapping struct {
	JobID        string
	ControlID    string
	ArticleID    string
	Coverage     Coverage
	MatchedTerms []string // keywords that produced the match, for explainability
	TableVersion string
}
