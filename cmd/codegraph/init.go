package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dusk-indust/codegraph/internal/config"
)

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// codegraphMCPEntry is the MCP server configuration for the codegraph binary.
var codegraphMCPEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "codegraph",
  "args": ["serve-mcp", "-stdio", "-watch"]
}`)

// runInit writes a default codegraph.yml and registers the MCP server in
// .mcp.json of the target project directory.
func runInit(_ context.Context, args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("init", stderr, &common)
	force := fs.Bool("force", false, "overwrite existing files and entries")
	if err := fs.Parse(args); err != nil {
		return err
	}

	abs, err := filepath.Abs(common.Root)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}

	cfgPath := filepath.Join(abs, config.FileNames[0])
	if err := writeConfigTemplate(stdout, abs, cfgPath, *force); err != nil {
		return err
	}
	if err := mergeMCPConfig(stdout, filepath.Join(abs, ".mcp.json"), *force); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "\nSetup complete. The codegraph MCP server is ready.")
	return nil
}

func writeConfigTemplate(stdout io.Writer, root, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(stdout, "  skipped %s (exists, use -force to overwrite)\n", dotRelative(root, path))
			return nil
		}
	}
	if err := os.WriteFile(path, config.Template, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "  created %s\n", dotRelative(root, path))
	return nil
}

// mergeMCPConfig creates or merges the codegraph entry into .mcp.json.
func mergeMCPConfig(stdout io.Writer, mcpPath string, force bool) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers["codegraph"]; exists && !force {
		fmt.Fprintf(stdout, "  skipped .mcp.json codegraph entry (exists, use -force to overwrite)\n")
		return nil
	}

	cfg.MCPServers["codegraph"] = codegraphMCPEntry

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(stdout, "  %s .mcp.json with codegraph MCP server\n", action)
	return nil
}

// dotRelative returns a display path relative to the project root, prefixed
// with "./".
func dotRelative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return "./" + rel
}
