package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
	OutputTable OutputFormat = "table"
)

// Printer handles output formatting and printing
type Printer struct {
	Format OutputFormat
	out    io.Writer
}

// NewPrinter creates a printer for the configured output format
func NewPrinter(out io.Writer) *Printer {
	format := OutputFormat(viper.GetString("output"))
	if format == "" {
		format = OutputTable
	}
	return &Printer{Format: format, out: out}
}

// Print writes data in the selected format. table renders the table form;
// when it is nil, table output falls back to JSON.
func (p *Printer) Print(data interface{}, table func(w io.Writer)) error {
	switch p.Format {
	case OutputJSON:
		return p.printJSON(data)
	case OutputYAML:
		return p.printYAML(data)
	case OutputTable:
		if table == nil {
			return p.printJSON(data)
		}
		w := tabwriter.NewWriter(p.out, 0, 8, 2, ' ', 0)
		table(w)
		return w.Flush()
	default:
		return fmt.Errorf("unsupported output format: %s", p.Format)
	}
}

func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (p *Printer) printYAML(data interface{}) error {
	encoder := yaml.NewEncoder(p.out)
	defer encoder.Close()
	return encoder.Encode(data)
}
