package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Audit trail",
		Headers: []string{"created_at", "actor", "action"},
		Rows: []map[string]string{
			{"created_at": "2024-03-01T10:00:00Z", "actor": "user-1", "action": "approve"},
			{"created_at": "2024-03-01T09:00:00Z", "actor": "user-2", "action": "submit, with comma"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "created_at,actor,action", lines[0])
	assert.Equal(t, `2024-03-01T09:00:00Z,user-2,"submit, with comma"`, lines[2])

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestCSVExporterNeutralizesFormulas(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"actor", "comment"},
		Rows: []map[string]string{
			{"actor": "=HYPERLINK(\"http://x\")", "comment": "@SUM(A1)"},
			{"actor": "user-1", "comment": "-2+3"},
			{"actor": "qm"},
		},
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `"'=HYPERLINK(""http://x"")",'@SUM(A1)`, lines[1])
	assert.Equal(t, `user-1,'-2+3`, lines[2])
	assert.Equal(t, `qm,`, lines[3])
}

func TestPDFExporterRender(t *testing.T) {
	ds := sampleDataset()
	ds.Rows = append(ds.Rows, map[string]string{"actor": strings.Repeat("x", 200)})
	out, err := RendererFor(FormatPDF).Render(ds)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
}
