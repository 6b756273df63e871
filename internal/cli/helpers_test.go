package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func testdata(parts ...string) string {
	return filepath.Join(append([]string{"testdata"}, parts...)...)
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeResponse decodes a JSON CLIResponse whose data is into.
func decodeResponse(t *testing.T, out string, into any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if into != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, into))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

func dbOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	return &RootOptions{Format: format, Database: filepath.Join(t.TempDir(), "runs.db")}
}
