package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emit writes v as JSON when --json is set, otherwise calls render.
func (c *commandContext) emit(cmd *cobra.Command, v any, render func(io.Writer) error) error {
	if c.jsonOutput() {
		return writeJSON(cmd, v)
	}
	return render(cmd.OutOrStdout())
}

// emitMessage writes a one-line confirmation, or {"message": ...} under --json.
func (c *commandContext) emitMessage(cmd *cobra.Command, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return c.emit(cmd, map[string]string{"message": msg}, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, msg)
		return err
	})
}
