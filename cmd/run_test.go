package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ahermangesh/Leads/internal/model"
)

func TestReadLeadsFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- name: Acme Plumbing
  website: acme.example
  phone: "+1 555 010 0000"
  rating: "4.6"
- name: Beta Dental
  social_links: [https://facebook.com/beta]
`), 0o644))

	raws, err := readLeadsFile(path)
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "Acme Plumbing", raws[0].Name)
	assert.Equal(t, "4.6", raws[0].Rating)
	assert.Equal(t, []string{"https://facebook.com/beta"}, raws[1].SocialLinks)
}

func TestReadLeadsFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"Acme","website":"https://acme.example","external_id":"p-1"}]`), 0o644))

	raws, err := readLeadsFile(path)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "p-1", raws[0].ExternalID)
}

func TestReadLeadsFile_Errors(t *testing.T) {
	_, err := readLeadsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: [unterminated"), 0o644))
	_, err = readLeadsFile(path)
	assert.Error(t, err)
}

func TestLimitRaws(t *testing.T) {
	raws := []model.RawLead{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	assert.Len(t, limitRaws(raws, 0), 3)
	assert.Len(t, limitRaws(raws, 2), 2)
	assert.Len(t, limitRaws(raws, 10), 3)
}

func sampleReport() *model.RunReport {
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	score := 72
	return &model.RunReport{
		RunID:      "run-12345678",
		Status:     model.RunStatusComplete,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Leads: []model.LeadOutcome{
			{LeadID: "aaaaaaaa-1111", Name: "Acme Plumbing", State: model.StateSent, Score: &score, Retries: 1},
			{LeadID: "bbbbbbbb-2222", Name: "Beta Dental", State: model.StateFailed, Reason: model.ReasonFetchFailed, Retryable: true},
		},
		Counts: map[model.State]int{model.StateSent: 1, model.StateFailed: 1},
	}
}

func TestFormatRunReport(t *testing.T) {
	var buf bytes.Buffer
	formatRunReport(&buf, sampleReport())

	out := buf.String()
	assert.Contains(t, out, "LEAD")
	assert.Contains(t, out, "aaaaaaaa")
	assert.NotContains(t, out, "aaaaaaaa-1111")
	assert.Contains(t, out, "Acme Plumbing")
	assert.Contains(t, out, "72")
	assert.Contains(t, out, "fetch_failed (retryable)")
	assert.Contains(t, out, "run run-12345678 complete in 1.5s")
	assert.Contains(t, out, "Sent      1")
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, writeReport(path, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got model.RunReport
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "run-12345678", got.RunID)
	require.Len(t, got.Leads, 2)
	assert.Equal(t, model.ReasonFetchFailed, got.Leads[1].Reason)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", shortID("abc"))
}
