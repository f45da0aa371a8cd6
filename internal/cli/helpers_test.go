package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/histcache/internal/ir"
	"github.com/roach88/histcache/internal/store"
)

// testRootOptions returns text-format options pointing at a fresh database path.
func testRootOptions(t *testing.T) *RootOptions {
	t.Helper()
	return &RootOptions{
		Format:   "text",
		Database: filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "error",
	}
}

// seedLog appends entries for report to the database at path.
func seedLog(t *testing.T, path string, report ir.ReportID, entries ...ir.Entry) {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	for _, e := range entries {
		_, err := st.Append(context.Background(), report, e)
		require.NoError(t, err)
	}
}

func action(seq int64, name string) ir.Entry {
	return ir.Entry{Seq: seq, ActionName: name}
}

// execute runs cmd with args and returns stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
