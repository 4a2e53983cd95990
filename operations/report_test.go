package operations

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MemoryReporter(t *testing.T) {
	t.Parallel()

	def := Definition{ID: "insert-rows", Version: semver.MustParse("1.0.0"), Description: "insert"}
	reporter := NewMemoryReporter()

	report := NewReport(def, 1, 2, nil)
	require.NoError(t, reporter.AddReport(genericReport(report)))

	got, err := reporter.GetReport(report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, got.ID)
	assert.Equal(t, "insert-rows", got.Def.ID)

	_, err = reporter.GetReport("missing")
	require.ErrorIs(t, err, ErrReportNotFound)

	reports, err := reporter.GetReports()
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func Test_MemoryReporter_GetExecutionReports(t *testing.T) {
	t.Parallel()

	def := Definition{ID: "op", Version: semver.MustParse("1.0.0")}
	reporter := NewMemoryReporter()

	child1 := NewReport(def, 1, 1, nil)
	child2 := NewReport(def, 2, 2, errors.New("boom"))
	run := NewReport[any, any](Definition{ID: "run", Version: semver.MustParse("1.0.0")},
		nil, nil, nil, child1.ID, child2.ID)

	for _, r := range []Report[any, any]{genericReport(child1), genericReport(child2), genericReport(run)} {
		require.NoError(t, reporter.AddReport(r))
	}

	got, err := reporter.GetExecutionReports(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// children come before the run report
	assert.Equal(t, child1.ID, got[0].ID)
	assert.Equal(t, child2.ID, got[1].ID)
	assert.Equal(t, run.ID, got[2].ID)

	_, err = reporter.GetExecutionReports("missing")
	require.ErrorIs(t, err, ErrReportNotFound)
}

func Test_FileReporter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reports.jsonl")
	reporter, err := NewFileReporter(path)
	require.NoError(t, err)
	defer reporter.Close()

	def := Definition{ID: "create-schema", Version: semver.MustParse("1.0.0")}
	ok := NewReport[any, any](def, nil, "done", nil)
	failed := NewReport[any, any](def, nil, nil, errors.New("relation exists"))

	require.NoError(t, reporter.AddReport(ok.ToGenericReport()))
	require.NoError(t, reporter.AddReport(failed.ToGenericReport()))

	// both reports are retrievable from memory
	reports, err := reporter.GetReports()
	require.NoError(t, err)
	assert.Len(t, reports, 2)

	// and both were appended to the audit file as JSON lines
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	require.Len(t, lines, 2)

	var first Report[any, any]
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, ok.ID, first.ID)

	var second Report[any, any]
	require.NoError(t, json.Unmarshal(lines[1], &second))
	require.NotNil(t, second.Err)
	assert.Equal(t, "relation exists", second.Err.Message)
}
