package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shCommand(script string) Command {
	return Command{Name: "sh", Args: []string{"-c", script, "sh", "{source}", "{base}"}}
}

func TestExecCompilerRunsInJobDir(t *testing.T) {
	dir := t.TempDir()
	c := &ExecCompiler{
		Converter: shCommand(`echo "<html>" > "$2.html"`),
		PDF:       shCommand(`test -f "$1" && echo pdf > "$2.pdf"`),
		Timeout:   10 * time.Second,
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "post.tex"), []byte("x"), 0o644))

	require.NoError(t, c.Compile(context.Background(), Job{Dir: dir, Base: "post"}))

	assert.FileExists(t, filepath.Join(dir, "post.html"))
	assert.FileExists(t, filepath.Join(dir, "post.pdf"))
}

func TestExecCompilerReportsConverterFailure(t *testing.T) {
	dir := t.TempDir()
	c := &ExecCompiler{
		Converter: shCommand(`echo "! Undefined control sequence." >&2; exit 3`),
		PDF:       shCommand(`echo pdf > "$2.pdf"`),
	}

	err := c.Compile(context.Background(), Job{Dir: dir, Base: "post"})

	var ce *CompileError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, StageConverter, ce.Stage)
	assert.Equal(t, 3, ce.ExitCode)
	assert.Contains(t, ce.Output, "Undefined control sequence")
	assert.NoFileExists(t, filepath.Join(dir, "post.pdf"), "pdf stage must not run")
}

func TestExecCompilerReportsPDFFailure(t *testing.T) {
	c := &ExecCompiler{
		Converter: shCommand(`true`),
		PDF:       shCommand(`exit 1`),
	}

	err := c.Compile(context.Background(), Job{Dir: t.TempDir(), Base: "post"})

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, StagePDF, ce.Stage)
	assert.Equal(t, 1, ce.ExitCode)
}

func TestExecCompilerTimeout(t *testing.T) {
	c := &ExecCompiler{
		Converter: shCommand(`exec sleep 5`),
		PDF:       shCommand(`true`),
		Timeout:   100 * time.Millisecond,
	}

	err := c.Compile(context.Background(), Job{Dir: t.TempDir(), Base: "post"})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsCompileFailure(err))
}

func TestExecCompilerMissingBinary(t *testing.T) {
	c := &ExecCompiler{
		Converter: Command{Name: "texpub-no-such-binary"},
		PDF:       shCommand(`true`),
	}

	err := c.Compile(context.Background(), Job{Dir: t.TempDir(), Base: "post"})

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, StageConverter, ce.Stage)
	assert.Zero(t, ce.ExitCode)
}

func TestExpandArgs(t *testing.T) {
	got := expandArgs(DefaultConverter.Args, Job{Base: "hello-world"})
	assert.Equal(t, []string{"hello-world.tex", "pic-m,svg"}, got)
}
