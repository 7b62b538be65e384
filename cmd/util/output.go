package util

import (
	"fmt"
	"io"
	"os"

	"github.com/pgcompose/pgcompose/internal/plan"
	"github.com/spf13/cobra"
)

// OutputFlags select plan renderings and their destinations.
type OutputFlags struct {
	Human   string
	JSON    string
	SQL     string
	NoColor bool
}

// Register adds the --output-* flags to cmd.
func (o *OutputFlags) Register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Human, "output-human", "", "Output human-readable format to stdout or file path")
	cmd.Flags().StringVar(&o.JSON, "output-json", "", "Output JSON format to stdout or file path")
	cmd.Flags().StringVar(&o.SQL, "output-sql", "", "Output SQL format to stdout or file path")
	cmd.Flags().BoolVar(&o.NoColor, "no-color", false, "Disable colored output")
}

// outputSpec represents a single output specification
type outputSpec struct {
	format string // "human", "json", or "sql"
	target string // "stdout" or file path
}

// outputs parses the output flags. With none set the SQL goes to stdout.
func (o *OutputFlags) outputs() ([]outputSpec, error) {
	var outputs []outputSpec
	stdoutCount := 0
	for _, spec := range []outputSpec{{"human", o.Human}, {"json", o.JSON}, {"sql", o.SQL}} {
		if spec.target == "" {
			continue
		}
		if spec.target == "stdout" {
			stdoutCount++
		}
		outputs = append(outputs, spec)
	}
	if stdoutCount > 1 {
		return nil, fmt.Errorf("only one output format can use stdout")
	}
	if len(outputs) == 0 {
		outputs = append(outputs, outputSpec{format: "sql", target: "stdout"})
	}
	return outputs, nil
}

// WritePlan writes every requested rendering of p.
func (o *OutputFlags) WritePlan(stdout io.Writer, p *plan.Plan) error {
	outputs, err := o.outputs()
	if err != nil {
		return err
	}
	for _, output := range outputs {
		var content string
		switch output.format {
		case "human":
			content = p.Human(output.target == "stdout" && !o.NoColor)
		case "json":
			content, err = p.ToJSON()
			if err != nil {
				return err
			}
			content += "\n"
		case "sql":
			content = p.SQL()
		}
		if err := WriteTarget(stdout, output.target, content); err != nil {
			return fmt.Errorf("failed to write %s output: %w", output.format, err)
		}
	}
	return nil
}

// WriteTarget writes content to stdout when target is "stdout" or empty and
// to the named file otherwise.
func WriteTarget(stdout io.Writer, target, content string) error {
	if target == "" || target == "stdout" {
		_, err := io.WriteString(stdout, content)
		return err
	}
	return os.WriteFile(target, []byte(content), 0644)
}
