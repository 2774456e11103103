package canon

import (
	"bytes"
	"testing"
)

func TestCanonicalEquality_KeyOrderAndNulls(t *testing.T) {
	a := map[string]interface{}{
		"statement": "Median rent will fall",
		"source_url": nil,
		"claim_type": "predictive",
	}
	b := map[string]interface{}{
		"claim_type": "predictive",
		"statement":  "Median rent will fall",
	}

	ca, err := Canonicalize(a)
	if err != nil {
		t.Fatalf("canonicalize a: %v", err)
	}
	cb, err := Canonicalize(b)
	if err != nil {
		t.Fatalf("canonicalize b: %v", err)
	}
	if !bytes.Equal(ca, cb) {
		t.Errorf("canonical bytes differ: %s vs %s", ca, cb)
	}
}

func TestCanonicalizationIdempotence(t *testing.T) {
	p := map[string]interface{}{
		"b": "two",
		"a": "one",
		"nested": map[string]interface{}{
			"z": 1,
			"y": nil,
		},
	}

	first, err := Canonicalize(p)
	if err != nil {
		t.Fatalf("first canonicalize: %v", err)
	}

	second, err := CanonicalizeJSON(first)
	if err != nil {
		t.Fatalf("round-trip canonicalize: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("canonicalize(parse(canonicalize(p))) != canonicalize(p): %s vs %s", first, second)
	}
}

func TestCanonVersionTagPresent(t *testing.T) {
	out, err := Canonicalize(map[string]interface{}{"x": "y"})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if !bytes.Contains(out, []byte(`"__canon_v":1`)) {
		t.Errorf("expected __canon_v tag in output, got %s", out)
	}
}

func TestSequenceOrderPreserved(t *testing.T) {
	p := map[string]interface{}{
		"success_conditions": []interface{}{"a", "b", "c"},
	}
	out, err := Canonicalize(p)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `["a","b","c"]`
	if !bytes.Contains(out, []byte(want)) {
		t.Errorf("expected ordered sequence %s, got %s", want, out)
	}
}

func TestDecimalStringsPassThrough(t *testing.T) {
	p := map[string]interface{}{"confidence_score": "0.80"}
	out, err := Canonicalize(p)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if !bytes.Contains(out, []byte(`"confidence_score":"0.80"`)) {
		t.Errorf("expected decimal string preserved verbatim, got %s", out)
	}
}

func TestNoHTMLEscaping(t *testing.T) {
	p := map[string]interface{}{"statement": "rent <= 2125 & rising"}
	out, err := Canonicalize(p)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if !bytes.Contains(out, []byte(`<`)) {
		t.Errorf("expected literal '<', got HTML-escaped output: %s", out)
	}
}
