package publish

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Job describes one compilation: the workspace directory and the base name
// of the source file inside it.
type Job struct {
	Dir  string
	Base string
}

// Source is the source file name, relative to Dir.
func (j Job) Source() string { return j.Base + ".tex" }

// Compiler turns the source of a job into HTML pages, assets and a PDF
// written next to the source.
type Compiler interface {
	Compile(ctx context.Context, job Job) error
}

// Command is an external program and its arguments. The placeholders
// {source} and {base} in Args are replaced per job.
type Command struct {
	Name string
	Args []string
}

var (
	// DefaultConverter produces HTML pages with SVG math and figures.
	DefaultConverter = Command{Name: "make4ht", Args: []string{"{source}", "pic-m,svg"}}
	// DefaultPDFCompiler produces the downloadable PDF.
	DefaultPDFCompiler = Command{Name: "pdflatex", Args: []string{"-interaction=nonstopmode", "{source}"}}
)

const (
	defaultCompileTimeout = 2 * time.Minute
	maxOutputTail         = 4 << 10
	waitDelay             = 5 * time.Second
)

// ExecCompiler runs the converter and the PDF compiler as sub-processes in
// the job directory.
type ExecCompiler struct {
	Converter Command
	PDF       Command
	Timeout   time.Duration // per process
}

// NewExecCompiler returns an ExecCompiler with the default commands.
func NewExecCompiler(timeout time.Duration) *ExecCompiler {
	return &ExecCompiler{Converter: DefaultConverter, PDF: DefaultPDFCompiler, Timeout: timeout}
}

// Compile runs the converter then the PDF compiler and stops at the first
// failure.
func (c *ExecCompiler) Compile(ctx context.Context, job Job) error {
	if err := c.run(ctx, StageConverter, c.Converter, job); err != nil {
		return err
	}
	return c.run(ctx, StagePDF, c.PDF, job)
}

func (c *ExecCompiler) run(ctx context.Context, stage Stage, cmd Command, job Job) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultCompileTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := expandArgs(cmd.Args, job)
	proc := exec.CommandContext(ctx, cmd.Name, args...)
	proc.Dir = job.Dir
	var out bytes.Buffer
	proc.Stdout = &out
	proc.Stderr = &out
	// Keeps TeX from waiting on a terminal prompt after an error.
	proc.Stdin = strings.NewReader("")
	// make4ht forks helpers that may outlive a killed parent and hold the
	// output pipe open.
	proc.WaitDelay = waitDelay

	err := proc.Run()
	if err == nil {
		return nil
	}
	ce := &CompileError{
		Stage:   stage,
		Command: strings.TrimSpace(cmd.Name + " " + strings.Join(args, " ")),
		Output:  tail(out.String(), maxOutputTail),
		Err:     err,
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		ce.Err = ctxErr
		return ce
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		ce.ExitCode = exitErr.ExitCode()
	}
	return ce
}

func expandArgs(args []string, job Job) []string {
	r := strings.NewReplacer("{source}", job.Source(), "{base}", job.Base)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
