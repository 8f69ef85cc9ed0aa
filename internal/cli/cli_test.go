package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
	"github.com/bryanwahyu/survey-intake/internal/infra/store"
)

func seedStore(t *testing.T, dir string, ids ...string) {
	t.Helper()
	schema := domain.DefaultSchema()
	s, err := store.Open(schema, store.Options{DataDir: dir}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	for i, id := range ids {
		v := i%5 + 1
		answers := map[domain.QuestionID]domain.Answer{"Q1": {Value: &v, Text: schema.Scale().Labels[v]}}
		require.NoError(t, s.Append(context.Background(), &domain.Response{
			ID:          domain.ResponseID(id),
			SubmittedAt: time.Date(2026, 6, 1, 8, i, 0, 0, time.UTC),
			Participant: domain.Participant{ParticipantID: "p-" + id},
			Answers:     answers,
			Scores:      schema.Score(answers),
		}))
	}
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "missing.yaml"), "--data-dir", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestStatsCommand(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir, "SUB_1", "SUB_2", "SUB_3")

	out, err := run(t, dir, "stats")
	require.NoError(t, err)

	var st domain.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 3, st.TotalResponses)
	require.NotNil(t, st.AverageTotalScore)
	assert.Equal(t, 2.0, *st.AverageTotalScore)
}

func TestVerifyCommand(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir, "SUB_1", "SUB_2")

	out, err := run(t, dir, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "rows: 2")
	assert.Contains(t, out, "ok")

	require.NoError(t, os.Remove(filepath.Join(dir, "survey_responses", "SUB_2.json")))
	out, err = run(t, dir, "verify")
	require.Error(t, err)
	assert.Contains(t, out, "missing backup: SUB_2")
}

func TestReplayCommand(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir, "SUB_1", "SUB_2", "SUB_3")

	out, err := run(t, dir, "replay", "--dry-run", "--since", "2026-06-01T08:01:00Z")
	require.NoError(t, err)
	assert.NotContains(t, out, "SUB_1")
	assert.Contains(t, out, "would replay SUB_2")
	assert.Contains(t, out, "would replay SUB_3")
	assert.Contains(t, out, "responses: 2")

	_, err = run(t, dir, "replay")
	assert.ErrorContains(t, err, "no replay sinks configured")

	_, err = run(t, dir, "replay", "--since", "yesterday")
	assert.ErrorContains(t, err, "--since")
}
