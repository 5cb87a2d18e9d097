package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
)

const (
	DefaultSampleRate = 0.1
	DefaultSampleSeed = 99
)

// Sample draws int(len(items)*fraction) items without replacement. The
// same items, fraction and seed always give the same sample in the same
// order.
func Sample(items []DatasetItem, fraction float64, seed uint64) ([]DatasetItem, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("sample fraction must be in (0, 1], got %v", fraction)
	}
	size := int(float64(len(items)) * fraction)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	order := rng.Perm(len(items))

	sampled := make([]DatasetItem, size)
	for i := 0; i < size; i++ {
		sampled[i] = items[order[i]]
	}
	return sampled, nil
}

// Questions strips gold queries from items.
func Questions(items []DatasetItem) []Record {
	records := make([]Record, len(items))
	for i, item := range items {
		records[i] = Record{Question: item.Question, DatabaseID: item.DatabaseID}
	}
	return records
}

// GoldLines renders items in the same <sql>\t<db_id> format as predictions.
func GoldLines(items []DatasetItem) []string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = FormatLine(item.Query, item.DatabaseID)
	}
	return lines
}

func WriteRecords(w io.Writer, records []Record) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return nil
}
