package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

const URLScheme = "s3://"

// BuildEvalArtifactPath places one artifact of an evaluation run under its
// start date: eval/date=YYYY-MM-DD/<run id>/<name>.
func BuildEvalArtifactPath(runID string, startedAt time.Time, name string) (string, error) {
	if err := validatePathComponent(runID, "run id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(name, "artifact name"); err != nil {
		return "", err
	}
	ts := startedAt.UTC()
	return path.Join(
		"eval",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		runID,
		name,
	), nil
}

// BuildEmbeddingsPath is where precomputed database embeddings for model
// are published.
func BuildEmbeddingsPath(model string) (string, error) {
	if err := validatePathComponent(model, "model"); err != nil {
		return "", err
	}
	return path.Join("embeddings", model, "database_embeddings.parquet"), nil
}

// ParseObjectURL splits s3://bucket/key. ok is false for anything that is
// not an object URL, such as a local file path.
func ParseObjectURL(raw string) (bucket, key string, ok bool, err error) {
	if !strings.HasPrefix(raw, URLScheme) {
		return "", "", false, nil
	}
	rest := strings.TrimPrefix(raw, URLScheme)
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || strings.Trim(key, "/") == "" {
		return "", "", true, fmt.Errorf("invalid object url %q: want s3://bucket/key", raw)
	}
	return bucket, key, true, nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
