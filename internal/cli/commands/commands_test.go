package commands

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/sqlrag/sqlrag/internal/app"
	"github.com/sqlrag/sqlrag/internal/config"
	"github.com/sqlrag/sqlrag/internal/llm"
)

func testSettings(t *testing.T, output string, opts app.Options) Settings {
	t.Helper()
	dir := t.TempDir()
	values := map[string]string{
		"SQLRAG_PROFILE":           "test",
		"SQLRAG_DATABASES_ROOT":    filepath.Join(dir, "database"),
		"SQLRAG_EMBEDDINGS_PATH":   filepath.Join(dir, "embeddings.parquet"),
		"SQLRAG_DESCRIPTIONS_PATH": filepath.Join(dir, "descriptions.json"),
	}
	cfg, err := config.Load("sqlrag-test", func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return Settings{Config: cfg, Options: opts, Output: output}
}

func execute(t *testing.T, cmd *cobra.Command, settings Settings, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(WithSettings(context.Background(), settings))
	return stdout.String(), err
}

func seedSingers(t *testing.T, root string) {
	t.Helper()
	path := filepath.Join(root, "concert_singer", "concert_singer.sqlite")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer func() { _ = db.Close() }()
	for _, statement := range []string{
		`CREATE TABLE singer (singer_id INTEGER PRIMARY KEY, name TEXT, age INTEGER)`,
		`INSERT INTO singer VALUES (1, 'Joe', 52), (2, 'Rose', 41), (3, 'John', 29)`,
	} {
		if _, err := db.Exec(statement); err != nil {
			t.Fatalf("seed %q: %v", statement, err)
		}
	}
}

// countingModel answers every prompt kind with a count over singer, except
// for questions mentioning "unanswerable", which fail synthesis.
func countingModel() llm.Completer {
	return llm.CompleterFunc(func(_ context.Context, prompt string) (llm.Completion, error) {
		switch {
		case strings.HasPrefix(prompt, "You are a JSON-only assistant."):
			return llm.Completion{Text: `{}`}, nil
		case strings.HasPrefix(prompt, "You are a SQL formatting corrector."):
			return llm.Completion{Text: "SELECT count(*) FROM singer"}, nil
		case strings.Contains(prompt, "unanswerable"):
			return llm.Completion{Text: "I cannot help with that."}, nil
		default:
			return llm.Completion{Text: "SELECT count(*) FROM singer"}, nil
		}
	})
}

func TestAskCommandJSON(t *testing.T) {
	settings := testSettings(t, OutputJSON, app.Options{Completer: countingModel()})
	seedSingers(t, settings.Config.Databases.Root)

	out, err := execute(t, NewAskCommand(), settings, "--db", "concert_singer", "How", "many", "singers?")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	var outcome struct {
		SQL    string `json:"sql"`
		Answer string `json:"answer"`
		DBID   string `json:"db_id"`
	}
	if err := json.Unmarshal([]byte(out), &outcome); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if outcome.SQL != "SELECT count(*) FROM singer" || outcome.Answer != "The result is: 3." || outcome.DBID != "concert_singer" {
		t.Fatalf("outcome = %#v", outcome)
	}
}

func TestAskCommandTable(t *testing.T) {
	settings := testSettings(t, OutputTable, app.Options{Completer: countingModel()})
	seedSingers(t, settings.Config.Databases.Root)

	out, err := execute(t, NewAskCommand(), settings, "--db", "concert_singer", "How many singers?")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	for _, want := range []string{"concert_singer", "SELECT count(*) FROM singer", "The result is: 3."} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEvalCommandWritesPredictionsInOrder(t *testing.T) {
	settings := testSettings(t, OutputJSON, app.Options{Completer: countingModel()})
	seedSingers(t, settings.Config.Databases.Root)

	dir := t.TempDir()
	input := filepath.Join(dir, "questions.json")
	predictions := filepath.Join(dir, "predicted_sql.txt")
	questions := `[
		{"question": "How many singers?", "db_id": "concert_singer"},
		{"question": "An unanswerable question", "db_id": "concert_singer"},
		{"question": "Count singers", "db_id": "concert_singer"}
	]`
	if err := os.WriteFile(input, []byte(questions), 0o644); err != nil {
		t.Fatalf("write questions: %v", err)
	}

	out, err := execute(t, NewEvalCommand(), settings, input, "--predictions", predictions, "--concurrency", "2")
	if err != nil {
		t.Fatalf("eval error = %v", err)
	}
	data, err := os.ReadFile(predictions)
	if err != nil {
		t.Fatalf("read predictions: %v", err)
	}
	want := strings.Join([]string{
		"SELECT count(*) FROM singer\tconcert_singer",
		"SELECT 1\tconcert_singer",
		"SELECT count(*) FROM singer\tconcert_singer",
	}, "\n")
	if string(data) != want {
		t.Fatalf("predictions = %q, want %q", data, want)
	}

	var summary map[string]any
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary %q: %v", out, err)
	}
	if summary["questions"] != float64(3) || summary["placeholders"] != float64(1) {
		t.Fatalf("summary = %#v", summary)
	}
}

func TestEvalCommandRejectsInvalidRecords(t *testing.T) {
	settings := testSettings(t, OutputJSON, app.Options{Completer: countingModel()})
	input := filepath.Join(t.TempDir(), "questions.json")
	if err := os.WriteFile(input, []byte(`[{"question": "q"}]`), 0o644); err != nil {
		t.Fatalf("write questions: %v", err)
	}
	if _, err := execute(t, NewEvalCommand(), settings, input); err == nil {
		t.Fatal("expected error for record without db_id")
	}
}

func TestSampleCommandWritesQuestionsAndGold(t *testing.T) {
	settings := testSettings(t, OutputJSON, app.Options{})
	dir := t.TempDir()

	items := make([]map[string]string, 20)
	for i := range items {
		items[i] = map[string]string{
			"question": fmt.Sprintf("question %d", i),
			"db_id":    "db",
			"query":    fmt.Sprintf("SELECT %d", i),
		}
	}
	data, err := json.Marshal(items)
	if err != nil {
		t.Fatalf("marshal dataset: %v", err)
	}
	dataset := filepath.Join(dir, "dev.json")
	if err := os.WriteFile(dataset, data, 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	questions := filepath.Join(dir, "sample.json")
	gold := filepath.Join(dir, "gold.sql")

	if _, err := execute(t, NewSampleCommand(), settings, dataset, "--rate", "0.25", "--seed", "7", "--questions", questions, "--gold", gold); err != nil {
		t.Fatalf("sample error = %v", err)
	}

	goldData, err := os.ReadFile(gold)
	if err != nil {
		t.Fatalf("read gold: %v", err)
	}
	goldLines := strings.Split(string(goldData), "\n")
	if len(goldLines) != 5 {
		t.Fatalf("gold lines = %d, want 5", len(goldLines))
	}

	var sampled []map[string]string
	questionData, err := os.ReadFile(questions)
	if err != nil {
		t.Fatalf("read questions: %v", err)
	}
	if err := json.Unmarshal(questionData, &sampled); err != nil {
		t.Fatalf("decode questions: %v", err)
	}
	if len(sampled) != 5 {
		t.Fatalf("sampled = %d, want 5", len(sampled))
	}
	for i, item := range sampled {
		if _, ok := item["query"]; ok {
			t.Fatalf("sampled question %d leaks its gold query", i)
		}
		index := strings.TrimPrefix(item["question"], "question ")
		if goldLines[i] != "SELECT "+index+"\tdb" {
			t.Fatalf("gold line %d = %q does not match %q", i, goldLines[i], item["question"])
		}
	}
}

func TestSampleCommandRejectsBadRate(t *testing.T) {
	settings := testSettings(t, OutputJSON, app.Options{})
	dataset := filepath.Join(t.TempDir(), "dev.json")
	if err := os.WriteFile(dataset, []byte(`[]`), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	if _, err := execute(t, NewSampleCommand(), settings, dataset, "--rate", "1.5"); err == nil {
		t.Fatal("expected error for rate above 1")
	}
}

func TestDatabasesCommand(t *testing.T) {
	settings := testSettings(t, OutputJSON, app.Options{})
	seedSingers(t, settings.Config.Databases.Root)

	out, err := execute(t, NewDatabasesCommand(), settings)
	if err != nil {
		t.Fatalf("databases error = %v", err)
	}
	var listed []map[string]string
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if len(listed) != 1 || listed[0]["db_id"] != "concert_singer" || listed[0]["dialect"] != "sqlite" {
		t.Fatalf("listed = %#v", listed)
	}
}

func TestEmbedCommandTable(t *testing.T) {
	settings := testSettings(t, OutputTable, app.Options{Completer: countingModel()})
	seedSingers(t, settings.Config.Databases.Root)

	out, err := execute(t, NewEmbedCommand(), settings)
	if err != nil {
		t.Fatalf("embed error = %v", err)
	}
	if !strings.Contains(out, "concert_singer") || !strings.Contains(out, "256") {
		t.Fatalf("output = %s", out)
	}
	if _, err := os.Stat(settings.Config.Retrieval.EmbeddingsPath); err != nil {
		t.Fatalf("embeddings file: %v", err)
	}
}

func TestCommandsRequireSettings(t *testing.T) {
	cmd := NewDatabasesCommand()
	cmd.SetArgs(nil)
	cmd.SetOut(&bytes.Buffer{})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected error without settings")
	}
}
