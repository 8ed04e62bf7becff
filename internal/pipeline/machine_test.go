package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/codelist"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/schema"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/state"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patientTable() *config.TableConfig {
	return &config.TableConfig{
		Name: "patient",
		Columns: []config.Column{
			{Name: "patid", Type: "INTEGER"},
			{Name: "yob", Type: "INTEGER"},
			{Name: "crd", Type: "TEXT"},
		},
		DateColumns: []string{"crd"},
	}
}

func openStore(t *testing.T) *state.SQLiteStore {
	t.Helper()
	store, err := state.OpenStore(":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeStage(t *testing.T, processed, table string, step Step, status string, rows ...[]string) {
	t.Helper()
	testutil.WriteTSV(t, processed, table+"/"+step.StagePrefix()+"_"+table+".txt", rows...)
	if status != "" {
		testutil.WriteFile(t, processed, table+"/"+step.StagePrefix()+"_"+table+".status", status+"\n")
	}
}

func TestMachine_Check(t *testing.T) {
	processed := t.TempDir()
	writeStage(t, processed, "patient", Concatenate, "0",
		[]string{"patid", "yob", "crd"},
		[]string{"1", "1970", "01/02/2001"})

	m := NewMachine(processed, testutil.NewTestLogger(t))
	header, binding, err := m.Check(patientTable(), ConvertDates, []string{"crd"})
	require.NoError(t, err)

	assert.Equal(t, []string{"patid", "yob", "crd"}, header.Columns)
	pos, ok := binding.Pos("crd")
	assert.True(t, ok)
	assert.Equal(t, 3, pos)
}

func TestMachine_Check_Errors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, processed string)
		required []string
		check    func(t *testing.T, err error)
	}{
		{
			name:     "missing predecessor",
			setup:    func(t *testing.T, processed string) {},
			required: []string{"crd"},
			check: func(t *testing.T, err error) {
				var ma *MissingArtifactError
				require.True(t, errors.As(err, &ma))
				assert.Equal(t, Concatenate, ma.Requires)
				assert.Contains(t, err.Error(), "run s01_concatenate.sh first")
			},
		},
		{
			name: "failed predecessor",
			setup: func(t *testing.T, processed string) {
				writeStage(t, processed, "patient", Concatenate, "2", []string{"patid", "yob", "crd"})
			},
			required: []string{"crd"},
			check: func(t *testing.T, err error) {
				var fe *FailedStepError
				require.True(t, errors.As(err, &fe))
				assert.Equal(t, "2", fe.Status)
				assert.Equal(t, Concatenate, fe.Step)
			},
		},
		{
			name: "empty status marker",
			setup: func(t *testing.T, processed string) {
				writeStage(t, processed, "patient", Concatenate, "", []string{"patid", "yob", "crd"})
				testutil.WriteFile(t, processed, "patient/s01_patient.status", "")
			},
			required: []string{"crd"},
			check: func(t *testing.T, err error) {
				var fe *FailedStepError
				require.True(t, errors.As(err, &fe))
				assert.Equal(t, "empty", fe.Status)
			},
		},
		{
			name: "missing column",
			setup: func(t *testing.T, processed string) {
				writeStage(t, processed, "patient", Concatenate, "0", []string{"patid", "yob"})
			},
			required: []string{"crd"},
			check: func(t *testing.T, err error) {
				var sm *schema.SchemaMismatchError
				require.True(t, errors.As(err, &sm))
				assert.Equal(t, []string{"crd"}, sm.Missing)
				assert.Equal(t, "patient", sm.Table)
			},
		},
		{
			name: "empty stage file",
			setup: func(t *testing.T, processed string) {
				testutil.WriteFile(t, processed, "patient/s01_patient.txt", "")
			},
			required: []string{"crd"},
			check: func(t *testing.T, err error) {
				var sm *schema.SchemaMismatchError
				require.True(t, errors.As(err, &sm))
				assert.Equal(t, "patient", sm.Table)
				assert.Contains(t, err.Error(), "file has no header")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processed := t.TempDir()
			tt.setup(t, processed)

			m := NewMachine(processed, testutil.NewTestLogger(t))
			_, _, err := m.Check(patientTable(), ConvertDates, tt.required)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestMachine_Check_NoInputStage(t *testing.T) {
	m := NewMachine(t.TempDir(), nil)
	_, _, err := m.Check(patientTable(), Concatenate, nil)
	assert.Error(t, err)
}

func TestMachine_InFlight(t *testing.T) {
	processed := t.TempDir()
	writeStage(t, processed, "patient", Concatenate, "", []string{"patid", "yob", "crd"})

	store := openStore(t)
	_, err := store.RecordGeneration(string(Concatenate), "/out/s01_concatenate.sh", []string{"patient"})
	require.NoError(t, err)

	m := NewMachine(processed, testutil.NewTestLogger(t), WithStore(store))
	_, _, err = m.Check(patientTable(), ConvertDates, []string{"crd"})
	var inflight *InFlightError
	require.True(t, errors.As(err, &inflight), "got %v", err)
	assert.Contains(t, err.Error(), "--force")

	forced := NewMachine(processed, testutil.NewTestLogger(t), WithStore(store), WithForce(true))
	_, _, err = forced.Check(patientTable(), ConvertDates, []string{"crd"})
	assert.NoError(t, err)

	// A generation that did not cover the table does not block it.
	other := &config.TableConfig{Name: "staff", Columns: []config.Column{{Name: "staffid", Type: "INTEGER"}}, DateColumns: []string{"staffid"}}
	writeStage(t, processed, "staff", Concatenate, "", []string{"staffid"})
	_, _, err = m.Check(other, ConvertDates, []string{"staffid"})
	assert.NoError(t, err)
}

func TestMachine_RecordsArtifacts(t *testing.T) {
	processed := t.TempDir()
	writeStage(t, processed, "patient", Concatenate, "0",
		[]string{"patid", "yob", "crd"},
		[]string{"1", "1970", "01/02/2001"})

	store := openStore(t)
	logger, logs := testutil.NewCapturingLogger()
	m := NewMachine(processed, logger, WithStore(store))

	_, _, err := m.Check(patientTable(), ConvertDates, []string{"crd"})
	require.NoError(t, err)

	a, err := store.LatestArtifact("patient", string(Concatenate))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "patid\tyob\tcrd", a.ColumnSignature)
	assert.Equal(t, 3, a.ColumnCount)
	assert.Len(t, a.Checksum, 16)
	assert.NotContains(t, logs.String(), "changed since")

	// Rewrite with a different header and size.
	writeStage(t, processed, "patient", Concatenate, "0",
		[]string{"patid", "yob", "crd", "extra"},
		[]string{"1", "1970", "01/02/2001", "x"},
		[]string{"2", "1980", "03/04/2002", "y"})
	_, _, err = m.Check(patientTable(), ConvertDates, []string{"crd"})
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, "stage file changed since it was last validated")
	assert.Contains(t, out, "stage file columns changed since it was last validated")
}

func TestMachine_CheckFinal(t *testing.T) {
	processed := t.TempDir()
	writeStage(t, processed, "patient", ConvertDates, "0", []string{"patid", "yob", "crd"})

	m := NewMachine(processed, nil)
	header, err := m.CheckFinal(patientTable(), patientTable().ColumnNames())
	require.NoError(t, err)
	assert.Equal(t, 3, header.ColumnCount())

	writeStage(t, processed, "patient", ConvertDates, "0", []string{"patid", "crd", "yob"})
	_, err = m.CheckFinal(patientTable(), patientTable().ColumnNames())
	var sm *schema.SchemaMismatchError
	require.True(t, errors.As(err, &sm))
	assert.Contains(t, err.Error(), `column 2 is "crd", declared "yob"`)
}

func TestMachine_CheckCodelists(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		processed := t.TempDir()
		testutil.WriteTSV(t, processed, "codelists/asthma_terms.txt",
			[]string{"medcode", "asthma_desc", "asthma_count", "flag"},
			[]string{"1", "Asthma", "3", "1"})
		testutil.WriteTSV(t, processed, "codelists/copd_terms.txt",
			[]string{"medcode", "copd_desc"},
			[]string{"9", "COPD"})
		testutil.WriteFile(t, processed, "codelists/prepare_codelists.status", "0\n")

		layouts, err := NewMachine(processed, nil).CheckCodelists([]string{"asthma", "copd"})
		require.NoError(t, err)
		require.Len(t, layouts, 2)
		assert.True(t, layouts["asthma"].HasFlag)
		assert.Equal(t, 4, layouts["asthma"].FlagPosition())
		assert.False(t, layouts["copd"].HasFlag)
	})

	t.Run("missing term file", func(t *testing.T) {
		processed := t.TempDir()
		_, err := NewMachine(processed, nil).CheckCodelists([]string{"asthma"})
		var ma *MissingArtifactError
		require.True(t, errors.As(err, &ma))
		assert.True(t, strings.HasPrefix(err.Error(), "cannot generate annotate_tables for codelists"))
	})

	t.Run("failed preparation", func(t *testing.T) {
		processed := t.TempDir()
		testutil.WriteFile(t, processed, "codelists/prepare_codelists.status", "1\n")
		_, err := NewMachine(processed, nil).CheckCodelists([]string{"asthma"})
		var fe *FailedStepError
		require.True(t, errors.As(err, &fe))
	})

	t.Run("malformed term file", func(t *testing.T) {
		processed := t.TempDir()
		testutil.WriteTSV(t, processed, "codelists/asthma_terms.txt", []string{"medcode", "desc"})
		_, err := NewMachine(processed, nil).CheckCodelists([]string{"asthma"})
		var fe *codelist.FormatError
		require.True(t, errors.As(err, &fe))
	})

	t.Run("in flight", func(t *testing.T) {
		processed := t.TempDir()
		testutil.WriteTSV(t, processed, "codelists/asthma_terms.txt", []string{"medcode", "asthma_desc"})
		store := openStore(t)
		_, err := store.RecordGeneration(string(PrepareCodelists), "/out/s04_prepare_codelists.sh", nil)
		require.NoError(t, err)

		_, err = NewMachine(processed, nil, WithStore(store)).CheckCodelists([]string{"asthma"})
		var inflight *InFlightError
		require.True(t, errors.As(err, &inflight))
	})
}

func TestInspect(t *testing.T) {
	processed := t.TempDir()
	writeStage(t, processed, "patient", Concatenate, "0", []string{"patid", "yob", "crd"})
	writeStage(t, processed, "patient", ConvertDates, "", []string{"patid", "yob", "crd"})

	states, err := Inspect(processed, patientTable())
	require.NoError(t, err)
	require.Len(t, states, 2)

	assert.Equal(t, Concatenate, states[0].Step)
	assert.True(t, states[0].Complete())
	assert.Equal(t, ConvertDates, states[1].Step)
	assert.True(t, states[1].Exists)
	assert.False(t, states[1].Complete())
}
