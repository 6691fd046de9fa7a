package telemetry

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// ExportFormat selects the wire encoding for execution records
type ExportFormat string

const (
	FormatJSON    ExportFormat = "json"
	FormatMsgpack ExportFormat = "msgpack"
)

// Export writes a sealed execution record in the requested format. JSON is
// the human-readable default; msgpack is the compact form consumed by
// regression tooling that stores many runs.
func Export(w io.Writer, rec *ExecutionRecord, format ExportFormat) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("refusing to export invalid record: %w", err)
	}

	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record as JSON: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewEncoder(w).Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record as msgpack: %w", err)
		}
	default:
		return fmt.Errorf("unknown export format: %q", format)
	}
	return nil
}

// Import reads an execution record previously written by Export and checks
// that its version is compatible with this build.
func Import(r io.Reader, format ExportFormat) (*ExecutionRecord, error) {
	var rec ExecutionRecord

	switch format {
	case FormatJSON, "":
		if err := json.NewDecoder(r).Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode JSON record: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewDecoder(r).Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode msgpack record: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown export format: %q", format)
	}

	if !CompatibleVersion(rec.Version) {
		return nil, fmt.Errorf("record version %q is not compatible with %q", rec.Version, RecordVersion)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("imported record is invalid: %w", err)
	}
	return &rec, nil
}
