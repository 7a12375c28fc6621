package csvio_test

import (
	"strings"
	"testing"

	"mirakl-orchestrator/internal/csvio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExport(t *testing.T) {
	header := []string{"a", "b", "c"}
	rows := [][]string{
		{"1", "2", "3"},
		{"x", "y", "z"},
	}

	out, err := csvio.Export(header, rows, ';')
	require.NoError(t, err)
	assert.Equal(t, "a;b;c\n1;2;3\nx;y;z\n", out)
}

func TestExport_EmptyRows(t *testing.T) {
	out, err := csvio.Export([]string{"a", "b"}, nil, ';')
	require.NoError(t, err)
	assert.Equal(t, "a;b\n", out)
}

func TestExport_QuotesSpecialFields(t *testing.T) {
	rows := [][]string{
		{`Test "Company" Ltd.`, "with;delimiter", "multi\nline"},
	}

	out, err := csvio.Export([]string{"name", "addr", "note"}, rows, ';')
	require.NoError(t, err)

	assert.Contains(t, out, `"Test ""Company"" Ltd."`)
	assert.Contains(t, out, `"with;delimiter"`)
	assert.Contains(t, out, "\"multi\nline\"")
}

func TestExportParse_RoundTrip(t *testing.T) {
	header := []string{"destinatario", "direccion", "referencia"}
	rows := [][]string{
		{`Test "Company" Ltd.`, "Calle Mayor 1; portal 2", "MIR-001"},
		{"Juan Pérez", "Avenida de la Paz 456", "MIR-002"},
	}

	out, err := csvio.Export(header, rows, ';')
	require.NoError(t, err)

	records, err := csvio.Parse(out, ';')
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, header, records[0])
	assert.Equal(t, rows[0], records[1])
	assert.Equal(t, rows[1], records[2])
}

func TestParse_MalformedInput(t *testing.T) {
	_, err := csvio.Parse("a;b\n\"unterminated\n", ';')
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to read csv"))
}
