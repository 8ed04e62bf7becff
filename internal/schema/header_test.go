package schema

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadHeader(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		want      []string
		wantErr   bool
		errSubstr string
	}{
		{
			name:    "reads first line only",
			content: "patid\teventdate\tmedcode\n1\t01/02/2003\t55\n",
			want:    []string{"patid", "eventdate", "medcode"},
		},
		{
			name:    "strips carriage return",
			content: "patid\tyob\r\n1\t1970\r\n",
			want:    []string{"patid", "yob"},
		},
		{
			name:    "header without trailing newline",
			content: "patid\tyob",
			want:    []string{"patid", "yob"},
		},
		{
			name:      "empty file",
			content:   "",
			wantErr:   true,
			errSubstr: "file has no header",
		},
		{
			name:      "duplicate column",
			content:   "patid\tpatid\n",
			wantErr:   true,
			errSubstr: "duplicate columns patid",
		},
		{
			name:      "empty column name",
			content:   "patid\t\tyob\n",
			wantErr:   true,
			errSubstr: "column 2 has an empty name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteFile(t, t.TempDir(), "s01_t.txt", tt.content)
			h, err := ReadHeader(path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Columns)
			assert.Equal(t, len(tt.want), h.ColumnCount())
		})
	}
}

func TestReadHeader_MissingFile(t *testing.T) {
	_, err := ReadHeader(filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestHeader_Resolve(t *testing.T) {
	h, err := NewHeader("s01_clinical.txt", []string{"patid", "eventdate", "medcode"})
	require.NoError(t, err)

	b, err := h.Resolve("clinical", []string{"medcode", "patid"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"medcode": 3, "patid": 1}, b.Positions)
	assert.Equal(t, 3, b.ColumnCount())

	pos, ok := b.Pos("medcode")
	assert.True(t, ok)
	assert.Equal(t, 3, pos)
	_, ok = b.Pos("eventdate")
	assert.False(t, ok, "only requested columns are bound")
}

func TestHeader_Resolve_MissingColumn(t *testing.T) {
	h, err := NewHeader("s01_clinical.txt", []string{"patid", "eventdate", "medcode"})
	require.NoError(t, err)

	_, err = h.Resolve("clinical", []string{"patid", "eventdate", "medcode", "ltc"})
	require.Error(t, err)

	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, []string{"ltc"}, mismatch.Missing)
	assert.Equal(t, []string{"patid", "eventdate", "medcode"}, mismatch.Observed)
	assert.Contains(t, err.Error(), "missing columns [ltc]")
	assert.Contains(t, err.Error(), "table clinical")
}

func TestCheckColumns(t *testing.T) {
	tests := []struct {
		name      string
		declared  []string
		observed  []string
		errSubstr string
	}{
		{
			name:     "exact match",
			declared: []string{"patid", "yob"},
			observed: []string{"patid", "yob"},
		},
		{
			name:      "count mismatch",
			declared:  []string{"patid", "yob", "dob"},
			observed:  []string{"patid", "yob"},
			errSubstr: "column count mismatch: declared 3, observed 2",
		},
		{
			name:      "order mismatch",
			declared:  []string{"patid", "yob"},
			observed:  []string{"yob", "patid"},
			errSubstr: `column 1 is "yob", declared "patid"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckColumns("patient", "s02_patient.txt", tt.declared, tt.observed)
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			var mismatch *SchemaMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestHeader_Signature(t *testing.T) {
	h, err := NewHeader("f", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "a\tb", h.Signature())
	assert.True(t, h.Has("b"))
	assert.False(t, h.Has("c"))
}
