package schema

import (
	"errors"
	"testing"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
)

func mustValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestDecode_ValidPayload(t *testing.T) {
	t.Parallel()
	v := mustValidator(t)

	raw := []byte(`{
		"controls": [
			{"control_id": "CC1.1", "description": "Access reviews performed quarterly", "topic": "access-control", "evidence": {"page": 12, "anchor": "Section 4.2"}}
		],
		"exceptions": [
			{"control_id": "CC1.1", "summary": "One terminated user retained access", "evidence": {"page": 13}}
		],
		"cuecs": [
			{"summary": "Customers must configure MFA", "evidence": {"page": 14}}
		]
	}`)

	p, err := v.Decode(raw)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(p.Controls) != 1 || p.Controls[0].ControlID != "CC1.1" {
		t.Fatalf("unexpected controls: %+v", p.Controls)
	}
	if p.Controls[0].Evidence.Page != 12 {
		t.Fatalf("expected evidence page 12, got %d", p.Controls[0].Evidence.Page)
	}
	if len(p.Exceptions) != 1 || len(p.CUECs) != 1 {
		t.Fatalf("expected 1 exception and 1 cuec, got %d/%d", len(p.Exceptions), len(p.CUECs))
	}
}

func TestDecode_RejectsInvalid(t *testing.T) {
	t.Parallel()
	v := mustValidator(t)

	cases := map[string][]byte{
		"not json":          []byte(`{"controls": [`),
		"missing controls":  []byte(`{"exceptions": []}`),
		"missing required":  []byte(`{"controls": [{"description": "no id", "evidence": {"page": 1}}]}`),
		"empty control id":  []byte(`{"controls": [{"control_id": "", "description": "x", "evidence": {"page": 1}}]}`),
		"page out of range": []byte(`{"controls": [{"control_id": "C1", "description": "x", "evidence": {"page": 0}}]}`),
	}
	for name, raw := range cases {
		if _, err := v.Decode(raw); !errors.Is(err, domain.ErrSchemaInvalid) {
			t.Errorf("%s: expected ErrSchemaInvalid, got %v", name, err)
		}
	}
}

func TestValidateRange_EvidenceOutsideWindow(t *testing.T) {
	t.Parallel()
	v := mustValidator(t)

	p := &model.RangePayload{Controls: []model.ControlRecord{
		{ControlID: "C1", Description: "x", Evidence: model.EvidenceLocator{Page: 40}},
	}}
	r := model.SubRange{Index: 0, FirstPage: 1, LastPage: 25}
	if err := v.ValidateRange(p, r); !errors.Is(err, domain.ErrSchemaInvalid) {
		t.Fatalf("expected ErrSchemaInvalid for out-of-window evidence, got %v", err)
	}
	r = model.SubRange{Index: 1, FirstPage: 26, LastPage: 50}
	if err := v.ValidateRange(p, r); err != nil {
		t.Fatalf("expected in-window evidence to pass, got %v", err)
	}
}
