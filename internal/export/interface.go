package export

import (
	"fmt"
	"io"
)

// Exporter writes a run report in one format
type Exporter interface {
	Export(report *Report, w io.Writer) error
	Extension() string
}

// Formats lists the accepted --format values
var Formats = []string{"json", "yaml", "md", "jsonl"}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, md, jsonl)", format)
	}
}
