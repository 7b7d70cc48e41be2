package usecase

import (
	"sort"
	"strings"

	"compliance-extraction-engine/internal/domain/model"
)

// MappingEngine deterministically matches extracted controls against the
// static regulation table. Matching uses the controlled vocabulary carried
// by the table itself, not another inference call, so every row is
// explainable from MatchedTerms alone.
type MappingEngine struct {
	table *model.RegulationTable
}

func NewMappingEngine(table *model.RegulationTable) *MappingEngine {
	return &MappingEngine{table: table}
}

func (e *MappingEngine) TableVersion() string { return e.table.Version }

// Map produces at least one ControlMapping row per extracted control.
// A control matching several articles yields one row per article; a control
// matching nothing yields a single "not_addressed" row. Running Map twice
// on the same input yields identical output.
func (e *MappingEngine) Map(jobID string, controls []model.ControlRecord) []model.ControlMapping {
	rows := make([]model.ControlMapping, 0, len(controls))
	for _, c := range controls {
		rows = append(rows, e.mapControl(jobID, c)...)
	}
	return rows
}

func (e *MappingEngine) mapControl(jobID string, c model.ControlRecord) []model.ControlMapping {
	text := normalize(c.Description)
	topic := normalize(c.Topic)

	var rows []model.ControlMapping
	for _, a := range e.table.Articles {
		coverage, terms := matchArticle(a, text, topic)
		if coverage == "" {
			continue
		}
		rows = append(rows, model.ControlMapping{
			JobID:        jobID,
			ControlID:    c.ControlID,
			ArticleID:    a.ID,
			Coverage:     coverage,
			MatchedTerms: terms,
			TableVersion: e.table.Version,
		})
	}

	if len(rows) == 0 {
		// Never silently drop a control.
		rows = append(rows, model.ControlMapping{
			JobID:        jobID,
			ControlID:    c.ControlID,
			Coverage:     model.CoverageNotAddressed,
			TableVersion: e.table.Version,
		})
	}
	return rows
}

// matchArticle returns the coverage classification for one article, or ""
// when nothing matches. Topic identity or any strong keyword means covered;
// ordinary keywords alone mean partially covered.
func matchArticle(a model.RegulationArticle, text, topic string) (model.Coverage, []string) {
	var terms []string

	if topic != "" {
		for _, t := range a.Topics {
			if normalize(t) == topic {
				terms = append(terms, t)
			}
		}
	}
	strong := len(terms) > 0

	for _, kw := range a.StrongKeywords {
		if n := normalize(kw); n != "" && strings.Contains(text, n) {
			terms = append(terms, kw)
			strong = true
		}
	}
	for _, kw := range a.Keywords {
		if n := normalize(kw); n != "" && strings.Contains(text, n) {
			terms = append(terms, kw)
		}
	}

	if len(terms) == 0 {
		return "", nil
	}
	sort.Strings(terms)
	if strong {
		return model.CoverageCovered, terms
	}
	return model.CoveragePartial, terms
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
