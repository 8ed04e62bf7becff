package render

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func common(step pipeline.Step) Common {
	return Common{
		Step:       string(step),
		Number:     step.Number(),
		ConfigPath: "/cfg/pipeline.yaml",
		Processed:  "/data/processed",
		OutputDir:  "/scripts",
		Grid:       config.GridEngine{CPUs: 4, Memory: "8G", Runtime: "2:0:0"},
	}
}

func stage(table, in, out string) Stage {
	return Stage{
		Table:  table,
		Input:  in,
		Output: "/data/processed/" + table + "/" + out + "_" + table + ".txt",
		Status: "/data/processed/" + table + "/" + out + "_" + table + ".status",
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
		{"$HOME", "'$HOME'"},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := ShellQuote(tt.in); got != tt.want {
			t.Errorf("ShellQuote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRender_GridEngineHeader(t *testing.T) {
	for _, step := range pipeline.AllSteps() {
		t.Run(string(step), func(t *testing.T) {
			out, err := Render(step, sampleData(step))
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(out, "#!/bin/bash\n"))
			assert.Contains(t, out, "#$ -pe smp 4\n")
			assert.Contains(t, out, "#$ -l h_vmem=8G\n")
			assert.Contains(t, out, "#$ -l h_rt=2:0:0\n")
			assert.Contains(t, out, "# Generated by cprdgen from /cfg/pipeline.yaml")
			assert.Contains(t, out, `log "`+string(step)+`: completed"`)
			assert.NotContains(t, out, "<no value>")
		})
	}
}

func sampleData(step pipeline.Step) any {
	switch step {
	case pipeline.Concatenate:
		return concatData()
	case pipeline.ConvertDates:
		return datesData()
	case pipeline.ApplyLookups:
		return lookupsData()
	case pipeline.PrepareCodelists:
		return codelistsData()
	case pipeline.AnnotateTables:
		return annotateData()
	default:
		return databaseData()
	}
}

func concatData() ConcatenateData {
	return ConcatenateData{
		Common: common(pipeline.Concatenate),
		Tables: []ConcatTable{{
			Stage: stage("patient", "", "s01"),
			Files: []string{"/raw/Part1/patient_1.txt", "/raw/Part2/patient's_2.txt"},
		}},
	}
}

func datesData() DatesData {
	return DatesData{
		Common: common(pipeline.ConvertDates),
		Tables: []DateTable{{
			Stage:         stage("patient", "/data/processed/patient/s01_patient.txt", "s02"),
			DatePositions: []int{3, 4},
			DeriveDOB:     true,
			YOBPosition:   2,
			Header:        []string{"patid", "yob", "dob", "crd", "tod"},
		}},
	}
}

func lookupsData() LookupsData {
	return LookupsData{
		Common: common(pipeline.ApplyLookups),
		Tables: []LookupTable{{
			Stage: stage("patient", "/data/processed/patient/s02_patient.txt", "s03"),
			Lookups: []LookupColumn{
				{Column: "gender", Position: 2, File: "/lookups/SEX.txt"},
				{Column: "region", Position: 5, File: "/lookups/REG.txt"},
			},
		}},
	}
}

func codelistsData() CodelistsData {
	return CodelistsData{
		Common:     common(pipeline.PrepareCodelists),
		ListsDir:   "/scripts/lists",
		PublishDir: "/data/processed/codelists",
		StatusFile: "/data/processed/codelists/prepare_codelists.status",
		Codelists: []CodelistFile{{
			ID:     "asthma",
			Kind:   "combined",
			Source: "/scripts/lists/asthma_terms.txt",
			Target: "/data/processed/codelists/asthma_terms.txt",
			Width:  4,
			Rows:   12,
		}},
	}
}

func annotateData() AnnotateData {
	c := common(pipeline.AnnotateTables)
	c.Tasks = 1
	return AnnotateData{
		Common:   c,
		FileList: "/scripts/s05_annotation_filelist.txt",
		Tables: []AnnotateTable{{
			Stage:  stage("clinical", "/data/processed/clinical/s03_clinical.txt", "s04"),
			Header: []string{"patid", "medcode", "medcode_asthma_description", "medcode_asthma_flag", "medcode_copd_description"},
			Annotations: []Annotation{
				{Column: "medcode", Codelist: "asthma", Position: 2, TermFile: "/data/processed/codelists/asthma_terms.txt",
					FlagColumn: 4, Description: "medcode_asthma_description", Flag: "medcode_asthma_flag"},
				{Column: "medcode", Codelist: "copd", Position: 2, TermFile: "/data/processed/codelists/copd_terms.txt",
					Description: "medcode_copd_description"},
			},
		}},
	}
}

func databaseData() DatabaseData {
	return DatabaseData{
		Common:   common(pipeline.CreateDatabase),
		Database: "/data/cprd.db",
		Schema:   `CREATE TABLE IF NOT EXISTS "patient" ("patid" INTEGER, "yob" INTEGER);`,
		Indexes:  `CREATE INDEX IF NOT EXISTS "idx_patient_patid" ON "patient" ("patid");`,
		Tables:   []DatabaseTable{{Table: "patient", Input: "/data/processed/patient/s02_patient.txt"}},
	}
}

func TestRender_Concatenate(t *testing.T) {
	out, err := Render(pipeline.Concatenate, concatData())
	require.NoError(t, err)

	assert.Contains(t, out, "rm -f '/data/processed/patient/s01_patient.status'")
	assert.Contains(t, out, "stage_patient() {\n    local files=(\n        '/raw/Part1/patient_1.txt'\n        '/raw/Part2/patient'\\''s_2.txt'\n    )")
	assert.Contains(t, out, "awk 'FNR == 1 && NR != 1 { next }")
	assert.Contains(t, out, "run_stage 'patient' '/data/processed/patient/s01_patient.status' '/data/processed/patient/s01_patient.txt' stage_patient")
}

func TestRender_ConvertDates(t *testing.T) {
	out, err := Render(pipeline.ConvertDates, datesData())
	require.NoError(t, err)

	assert.Contains(t, out, "-v header='patid\tyob\tdob\tcrd\ttod' -v dob_pos=3 '")
	assert.Contains(t, out, "$3 = iso($3)")
	assert.Contains(t, out, "$4 = iso($4)")
	assert.Contains(t, out, `dob = ($2 != "") ? $2 "-01-01" : ""`)
	assert.Contains(t, out, "}' '/data/processed/patient/s01_patient.txt'")
}

func TestRender_ConvertDates_WithoutDOB(t *testing.T) {
	data := datesData()
	data.Tables[0].DeriveDOB = false
	data.Tables[0].Header = []string{"patid", "yob", "crd", "tod"}

	out, err := Render(pipeline.ConvertDates, data)
	require.NoError(t, err)
	assert.NotContains(t, out, "dob_pos")
	assert.Contains(t, out, "-v header='patid\tyob\tcrd\ttod' '")
}

func TestRender_ApplyLookups(t *testing.T) {
	out, err := Render(pipeline.ApplyLookups, lookupsData())
	require.NoError(t, err)

	assert.Contains(t, out, "-v lookups=2")
	assert.Contains(t, out, "if ((1, $2) in value) $2 = value[1, $2]")
	assert.Contains(t, out, "if ((2, $5) in value) $5 = value[2, $5]")
	assert.Contains(t, out, "}' '/lookups/SEX.txt' '/lookups/REG.txt' '/data/processed/patient/s02_patient.txt'")
}

func TestRender_PrepareCodelists(t *testing.T) {
	out, err := Render(pipeline.PrepareCodelists, codelistsData())
	require.NoError(t, err)

	assert.Contains(t, out, "STATUS='/data/processed/codelists/prepare_codelists.status'")
	assert.Contains(t, out, "# asthma: combined, 12 term(s), 4 columns")
	assert.Contains(t, out, "publish 'asthma' '/scripts/lists/asthma_terms.txt' '/data/processed/codelists/asthma_terms.txt' 4 || failures=$((failures + 1))")
}

func TestRender_AnnotateTables(t *testing.T) {
	out, err := Render(pipeline.AnnotateTables, annotateData())
	require.NoError(t, err)

	assert.Contains(t, out, "#$ -t 1-1\n")
	assert.Contains(t, out, "FILELIST='/scripts/s05_annotation_filelist.txt'")
	assert.Contains(t, out, `out = out OFS (((1, key) in desc) ? desc[1, key] : "")`)
	assert.Contains(t, out, `out = out OFS (((1, key) in flag) ? flag[1, key] : "")`)
	assert.NotContains(t, out, "(2, key) in flag")
	assert.Contains(t, out, "flagcol[1] = 4")
	assert.Contains(t, out, "flagcol[2] = 0")
	assert.Contains(t, out, "    clinical)\n        run_stage 'clinical'")
}

func TestRender_CreateDatabase(t *testing.T) {
	out, err := Render(pipeline.CreateDatabase, databaseData())
	require.NoError(t, err)

	assert.Contains(t, out, "sqlite3 -bail \"$DATABASE.tmp\" <<'SQL'")
	assert.Contains(t, out, `CREATE TABLE IF NOT EXISTS "patient"`)
	assert.Contains(t, out, ".mode tabs\n.import --skip 1 \"/data/processed/patient/s02_patient.txt\" patient\n")
	assert.Contains(t, out, `CREATE INDEX IF NOT EXISTS "idx_patient_patid"`)
}

func TestRender_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := Render(pipeline.Concatenate, map[string]any{})
		var re *RenderError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, pipeline.Concatenate, re.Step)
		assert.Contains(t, err.Error(), "failed to render s01_concatenate.sh")
	})

	t.Run("unbound position", func(t *testing.T) {
		data := datesData()
		data.Tables[0].Header = []string{"patid", "yob", "crd"}
		_, err := Render(pipeline.ConvertDates, data)
		var re *RenderError
		require.True(t, errors.As(err, &re))
		assert.Contains(t, err.Error(), `column "dob" not in [patid, yob, crd]`)
	})

	t.Run("unknown step", func(t *testing.T) {
		_, err := Render(pipeline.Step("nope"), nil)
		assert.Error(t, err)
	})
}

func TestWriteScript(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	path, err := WriteScript(dir, pipeline.ConvertDates, "#!/bin/bash\necho one\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "s02_convert_dates.sh"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	assert.False(t, Drifted(path, "#!/bin/bash\necho one\n"))
	assert.True(t, Drifted(path, "#!/bin/bash\necho two\n"))
	assert.False(t, Drifted(filepath.Join(dir, "absent.sh"), "x"))

	_, err = WriteScript(dir, pipeline.ConvertDates, "#!/bin/bash\necho two\n")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/bash\necho two\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not remain")
}
