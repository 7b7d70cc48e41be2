package model

// RegulationArticle is one entry of the static regulation table. Matching
// vocabulary is defined by the table itself, never learned at runtime.
type RegulationArticle struct {
	ID             string   `yaml:"id"`
	Title          string   `yaml:"title"`
	Topics         []string `yaml:"topics"`          // canonical control-topic ids
	Keywords       []string `yaml:"keywords"`        // any match -> partially covered
	StrongKeywords []string `yaml:"strong_keywords"` // any match -> covered
}

// RegulationTable is versioned, loaded at process start, and treated as
// read-only configuration by the Mapping Engine.
type RegulationTable struct {
	Version  string              `yaml:"version"`
	Articles []RegulationArticle `yaml:"articles"`
}
