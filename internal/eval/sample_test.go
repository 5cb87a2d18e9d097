package eval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
)

func dataset(n int) []DatasetItem {
	items := make([]DatasetItem, n)
	for i := range items {
		items[i] = DatasetItem{
			Question:   fmt.Sprintf("question %d", i),
			DatabaseID: fmt.Sprintf("db_%d", i%7),
			Query:      fmt.Sprintf("SELECT %d", i),
		}
	}
	return items
}

func TestSampleIsDeterministic(t *testing.T) {
	items := dataset(1034)
	first, err := Sample(items, 0.1, 99)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if len(first) != 103 {
		t.Fatalf("sample size = %d, want 103", len(first))
	}
	second, _ := Sample(items, 0.1, 99)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sample differs at %d", i)
		}
	}
	other, _ := Sample(items, 0.1, 100)
	same := true
	for i := range first {
		if first[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced the same sample")
	}

	seen := map[string]bool{}
	for _, item := range first {
		if seen[item.Question] {
			t.Fatalf("duplicate item %q", item.Question)
		}
		seen[item.Question] = true
	}
}

func TestSampleRejectsBadFraction(t *testing.T) {
	for _, fraction := range []float64{0, -0.5, 1.5} {
		if _, err := Sample(dataset(10), fraction, 1); err == nil {
			t.Fatalf("Sample(%v) expected error", fraction)
		}
	}
}

func TestGoldLinesAndQuestions(t *testing.T) {
	items := []DatasetItem{{Question: "How many heads?", DatabaseID: "department_management", Query: "SELECT count(*)\nFROM head"}}
	lines := GoldLines(items)
	if lines[0] != "SELECT count(*) FROM head\tdepartment_management" {
		t.Fatalf("GoldLines() = %q", lines)
	}

	var buf bytes.Buffer
	if err := WriteRecords(&buf, Questions(items)); err != nil {
		t.Fatalf("WriteRecords() error = %v", err)
	}
	var decoded []map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := decoded[0]["query"]; ok {
		t.Fatal("questions file must not include gold query")
	}
	if decoded[0]["db_id"] != "department_management" {
		t.Fatalf("decoded = %v", decoded)
	}
}
