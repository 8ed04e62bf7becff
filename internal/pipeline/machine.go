package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/codelist"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/schema"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/state"
)

// Machine validates that the artifacts a step consumes were produced
// completely by earlier steps.
type Machine struct {
	processed string
	store     state.Store
	force     bool
	logger    *slog.Logger
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithStore records validated artifacts and enables in-flight detection.
func WithStore(s state.Store) MachineOption {
	return func(m *Machine) {
		m.store = s
	}
}

// WithForce disables the in-flight check.
func WithForce(force bool) MachineOption {
	return func(m *Machine) {
		m.force = force
	}
}

// NewMachine creates a Machine for the given processed data folder.
func NewMachine(processed string, logger *slog.Logger, opts ...MachineOption) *Machine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Machine{processed: processed, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InputFor returns the stage step and file a table feeds into step.
func (m *Machine) InputFor(t *config.TableConfig, step Step) (Step, string, bool) {
	input, ok := InputStage(t, step)
	if !ok {
		return "", "", false
	}
	return input, StageFile(m.processed, t.Name, input), true
}

// Check validates the input stage of table for step and resolves the
// required columns against its header.
func (m *Machine) Check(t *config.TableConfig, step Step, required []string) (*schema.Header, *schema.Binding, error) {
	input, path, ok := m.InputFor(t, step)
	if !ok {
		return nil, nil, fmt.Errorf("table %s has no stage output before %s", t.Name, step)
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, &MissingArtifactError{Table: t.Name, Step: step, Requires: input, Path: path}
		}
		return nil, nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	statusPath := StatusFile(m.processed, t.Name, input)
	status, found, err := readStatus(statusPath)
	if err != nil {
		return nil, nil, err
	}
	if found && status != "0" {
		return nil, nil, &FailedStepError{Table: t.Name, Step: input, Path: statusPath, Status: status}
	}
	if !found {
		if err := m.checkInFlight(t.Name, input); err != nil {
			return nil, nil, err
		}
	}

	header, err := schema.ReadHeader(path)
	if err != nil {
		return nil, nil, withTable(err, t.Name)
	}
	binding, err := header.Resolve(t.Name, required)
	if err != nil {
		return nil, nil, err
	}

	if err := m.record(t.Name, input, header); err != nil {
		return nil, nil, err
	}
	m.logger.Debug("validated stage input",
		slog.String("table", t.Name),
		slog.String("step", string(step)),
		slog.String("input", path),
		slog.Int("columns", header.ColumnCount()))
	return header, binding, nil
}

// CheckCodelists validates the published term files of ids and returns
// their layouts keyed by codelist identifier.
func (m *Machine) CheckCodelists(ids []string) (map[string]*codelist.TermLayout, error) {
	statusPath := CodelistStatusFile(m.processed)
	status, found, err := readStatus(statusPath)
	if err != nil {
		return nil, err
	}
	if found && status != "0" {
		return nil, &FailedStepError{Step: PrepareCodelists, Path: statusPath, Status: status}
	}
	if !found {
		if err := m.checkInFlight("", PrepareCodelists); err != nil {
			return nil, err
		}
	}

	layouts := make(map[string]*codelist.TermLayout, len(ids))
	for _, id := range ids {
		path := filepath.Join(CodelistDir(m.processed), codelist.TermFileName(id))
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &MissingArtifactError{Step: AnnotateTables, Requires: PrepareCodelists, Path: path}
			}
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		layout, err := codelist.ReadTermLayout(id, path)
		if err != nil {
			return nil, fmt.Errorf("invalid term file for codelist %s: %w", id, err)
		}
		layouts[id] = layout
	}
	return layouts, nil
}

// CheckFinal validates the last stage of a table before it is loaded into
// the database. The header must match expected exactly.
func (m *Machine) CheckFinal(t *config.TableConfig, expected []string) (*schema.Header, error) {
	header, _, err := m.Check(t, CreateDatabase, nil)
	if err != nil {
		return nil, err
	}
	if err := schema.CheckColumns(t.Name, header.Path, expected, header.Columns); err != nil {
		return nil, err
	}
	return header, nil
}

// checkInFlight refuses a predecessor whose script was generated for table
// but has not written its status marker yet. An empty table checks the
// step-wide generation.
func (m *Machine) checkInFlight(table string, step Step) error {
	if m.store == nil || m.force {
		return nil
	}
	gen, err := m.store.LatestGeneration(string(step))
	if err != nil {
		return fmt.Errorf("failed to read generation history: %w", err)
	}
	if gen == nil {
		return nil
	}
	if table != "" && !gen.Includes(table) {
		return nil
	}
	return &InFlightError{Table: table, Step: step, GeneratedAt: gen.CreatedAt}
}

// record fingerprints a validated stage file and warns when it changed
// since it was last validated.
func (m *Machine) record(table string, step Step, header *schema.Header) error {
	if m.store == nil {
		return nil
	}
	prev, err := m.store.LatestArtifact(table, string(step))
	if err != nil {
		return fmt.Errorf("failed to read artifact history: %w", err)
	}
	fp, err := state.FingerprintFile(header.Path, prev)
	if err != nil {
		return err
	}

	if prev != nil {
		if prev.Checksum != fp.Checksum {
			m.logger.Warn("stage file changed since it was last validated",
				slog.String("table", table),
				slog.String("step", string(step)),
				slog.String("path", header.Path))
		}
		if prev.ColumnSignature != header.Signature() {
			m.logger.Warn("stage file columns changed since it was last validated",
				slog.String("table", table),
				slog.String("step", string(step)),
				slog.Int("previous", prev.ColumnCount),
				slog.Int("current", header.ColumnCount()))
		}
	}

	return m.store.RecordArtifact(&state.Artifact{
		Table:           table,
		Step:            string(step),
		Path:            header.Path,
		Checksum:        fp.Checksum,
		ColumnSignature: header.Signature(),
		ColumnCount:     header.ColumnCount(),
		Size:            fp.Size,
		ModTime:         fp.ModTime,
	})
}

// readStatus returns the trimmed content of a status marker.
func readStatus(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read status marker %s: %w", path, err)
	}
	status := strings.TrimSpace(string(data))
	if status == "" {
		status = "empty"
	}
	return status, true, nil
}

func withTable(err error, table string) error {
	var sm *schema.SchemaMismatchError
	if errors.As(err, &sm) && sm.Table == "" {
		sm.Table = table
	}
	return err
}
