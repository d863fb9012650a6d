// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

func checkFormat(flag, format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return configErrorf("unsupported --%s value %q (want %s)", flag, format, strings.Join(allowed, "|"))
}

func encode(v any, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml":
		return yaml.Marshal(v)
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// writeReport prints v to w, or writes it owner-only to outPath when set.
func writeReport(w io.Writer, v any, format, outPath string) error {
	data, err := encode(v, format)
	if err != nil {
		return err
	}
	if outPath == "" {
		_, err = w.Write(data)
		return err
	}
	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		return fmt.Errorf("write to %s: %w", outPath, err)
	}
	fmt.Fprintf(w, "[OK] Report written to %s\n", outPath)
	return nil
}
