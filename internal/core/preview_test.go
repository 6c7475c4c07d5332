package core

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviewImport(t *testing.T) {
	content := "name,email\nAlice,a@x.com\nBob,bad\nAlicia,A@X.com\nCy,c@x.com\n"
	fh := writeFile(t, "p.csv", content)
	imp := Importer{Key: "contacts", Schema: contactSchema(), UniqueKey: []string{"email"}}

	resp, err := PreviewImport(context.Background(), fh, imp, ImportOptions{}, 0)
	require.NoError(t, err)

	assert.Equal(t, PreviewSummary{TotalRows: 4, ValidRows: 2, ErrorRows: 2, DuplicateInFile: 1}, resp.Summary)
	assert.Equal(t, []string{"name", "email"}, resp.Header)

	require.Len(t, resp.ValidSamples, 2)
	assert.Equal(t, "Alice", resp.ValidSamples[0].Values["name"])
	assert.Equal(t, 1, resp.ValidSamples[0].Row)

	require.Len(t, resp.ErrorSamples, 2)
	assert.Equal(t, KindValidationFailed, resp.ErrorSamples[0].Kind)
	assert.Equal(t, KindDuplicateValue, resp.ErrorSamples[1].Kind)

	require.Len(t, resp.DuplicateSamples, 1)
	assert.Equal(t, DuplicatePreview{RowKey: "a@x.com", Lines: []int{2, 4}}, resp.DuplicateSamples[0])
}

func TestPreviewImport_Limit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("name,email\n")
	for range 20 {
		sb.WriteString("n,n@x.com\n")
	}
	fh := writeFile(t, "p.csv", sb.String())
	imp := Importer{Key: "contacts", Schema: contactSchema()}

	resp, err := PreviewImport(context.Background(), fh, imp, ImportOptions{}, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Summary.TotalRows)
	assert.True(t, resp.Summary.Truncated)
	assert.Empty(t, resp.DuplicateSamples, "no unique key configured")
}

func TestPreviewImport_Preflight(t *testing.T) {
	fh := writeFile(t, "p.csv", "name\nAlice\n")
	_, err := PreviewImport(context.Background(), fh, Importer{Schema: contactSchema()}, ImportOptions{}, 0)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestService_Preview(t *testing.T) {
	svc := newTestService(t, &memSinks{}, nil)

	resp, err := svc.Preview(context.Background(), "contacts", "p.csv", strings.NewReader(serviceCSV), ImportOptions{}, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Summary.TotalRows)
	assert.Equal(t, 1, resp.Summary.DuplicateInFile)

	_, err = svc.Preview(context.Background(), "nope", "p.csv", strings.NewReader(serviceCSV), ImportOptions{}, 10)
	assert.ErrorIs(t, err, ErrUnknownImporter)
}
