package pipeline

import (
	"path/filepath"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
)

// CodelistDirName is the folder below the processed data folder that holds
// published term files.
const CodelistDirName = "codelists"

// codelistStatusName marks completion of the codelist preparation script.
const codelistStatusName = "prepare_codelists.status"

// StageFile returns <processed>/<table>/<prefix>_<table>.txt.
func StageFile(processed, table string, step Step) string {
	return filepath.Join(processed, table, step.StagePrefix()+"_"+table+".txt")
}

// StatusFile returns the marker a script writes its exit status to once the
// table's stage file is complete.
func StatusFile(processed, table string, step Step) string {
	return filepath.Join(processed, table, step.StagePrefix()+"_"+table+".status")
}

// CodelistDir returns the folder of published term files.
func CodelistDir(processed string) string {
	return filepath.Join(processed, CodelistDirName)
}

// CodelistStatusFile returns the status marker of the codelist preparation step.
func CodelistStatusFile(processed string) string {
	return filepath.Join(CodelistDir(processed), codelistStatusName)
}

// Participates reports whether a table is processed by a stage step.
// Concatenation covers every table; later stages only tables that
// configure the relevant columns.
func Participates(t *config.TableConfig, step Step) bool {
	switch step {
	case Concatenate, CreateDatabase:
		return true
	case ConvertDates:
		return len(t.DateColumns) > 0
	case ApplyLookups:
		return len(t.LookupColumns) > 0
	case AnnotateTables:
		return len(t.CodelistAnnotations) > 0
	default:
		return false
	}
}

// InputStage returns the stage step whose output a table feeds into step:
// the latest earlier stage the table participated in.
func InputStage(t *config.TableConfig, step Step) (Step, bool) {
	var input Step
	for _, s := range AllSteps() {
		if s.Number() >= step.Number() {
			break
		}
		if s.HasStage() && Participates(t, s) {
			input = s
		}
	}
	return input, input != ""
}

// OutputStage returns the final stage file step for a table: the stage the
// database step loads.
func OutputStage(t *config.TableConfig) Step {
	s, _ := InputStage(t, CreateDatabase)
	return s
}

// AnnotationColumns returns the columns the annotation step appends to a
// table: for every annotated column and codelist a description, followed by
// a flag when the codelist has a user source.
func AnnotationColumns(t *config.TableConfig, codelists map[string]*config.Codelist) []config.Column {
	var out []config.Column
	for _, col := range t.AnnotatedColumnNames() {
		for _, id := range t.CodelistAnnotations[col] {
			out = append(out, config.Column{Name: col + "_" + id + "_description", Type: "TEXT"})
			if cl, ok := codelists[id]; ok && cl.Kind() != config.KindOriginalOnly {
				out = append(out, config.Column{Name: col + "_" + id + "_flag", Type: "INTEGER"})
			}
		}
	}
	return out
}

// FinalColumns returns the columns of the stage file the database step
// loads for a table.
func FinalColumns(t *config.TableConfig, codelists map[string]*config.Codelist) []config.Column {
	cols := append([]config.Column(nil), t.Columns...)
	if Participates(t, AnnotateTables) {
		cols = append(cols, AnnotationColumns(t, codelists)...)
	}
	return cols
}

// ColumnNames returns the names of cols.
func ColumnNames(cols []config.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
