package render

import "github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"

// Common holds the values every step template uses.
type Common struct {
	Step       string
	Number     int
	ConfigPath string
	Processed  string
	OutputDir  string
	Grid       config.GridEngine
	// Tasks submits the script as an array job of that many tasks when set.
	Tasks int
}

// Stage is a table's input and output file for a step.
type Stage struct {
	Table  string
	Input  string
	Output string
	Status string
}

// ConcatenateData renders s01_concatenate.sh.
type ConcatenateData struct {
	Common
	Tables []ConcatTable
}

// ConcatTable lists the raw files of a table. The first file supplies the
// header.
type ConcatTable struct {
	Stage
	Files []string
}

// DatesData renders s02_convert_dates.sh.
type DatesData struct {
	Common
	Tables []DateTable
}

// DateTable binds the date columns of one table.
type DateTable struct {
	Stage
	DatePositions []int
	// DeriveDOB inserts a dob column computed from the yob column.
	DeriveDOB   bool
	YOBPosition int
	// Header is the output header; it places dob when DeriveDOB is set.
	Header []string
}

// LookupsData renders s03_apply_lookups.sh.
type LookupsData struct {
	Common
	Tables []LookupTable
}

// LookupTable binds lookup files to column positions of one table.
type LookupTable struct {
	Stage
	Lookups []LookupColumn
}

// LookupColumn replaces the values at Position using File.
type LookupColumn struct {
	Column   string
	Position int
	File     string
}

// CodelistsData renders s04_prepare_codelists.sh.
type CodelistsData struct {
	Common
	ListsDir   string
	PublishDir string
	StatusFile string
	Codelists  []CodelistFile
}

// CodelistFile is a merged term file awaiting publication.
type CodelistFile struct {
	ID     string
	Kind   string
	Source string
	Target string
	Width  int
	Rows   int
}

// AnnotateData renders s05_annotate_tables.sh.
type AnnotateData struct {
	Common
	FileList string
	Tables   []AnnotateTable
}

// AnnotateTable lists the annotations appended to one table.
type AnnotateTable struct {
	Stage
	Header      []string
	Annotations []Annotation
}

// Annotation appends the description, and the flag when present, of the
// codelist term matching the value at Position.
type Annotation struct {
	Column      string
	Codelist    string
	Position    int
	TermFile    string
	FlagColumn  int
	Description string
	Flag        string
}

// DatabaseData renders s06_create_database.sh.
type DatabaseData struct {
	Common
	Database string
	Schema   string
	Indexes  string
	Tables   []DatabaseTable
}

// DatabaseTable is a final stage file loaded into the database.
type DatabaseTable struct {
	Table string
	Input string
}
