package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentd-ai/agentd/internal/config"
	"github.com/agentd-ai/agentd/internal/mcp"
)

var toolsServerAddr string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List tools exposed by the configured tool server",
	RunE:  runTools,
}

func init() {
	toolsCmd.Flags().StringVar(&toolsServerAddr, "tool-server", "", "Tool server address (host:port)")
}

func runTools(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir("")
	if err != nil {
		return err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	addr := cfg.ToolServer.Addr
	if toolsServerAddr != "" {
		addr = toolsServerAddr
	}
	if addr == "" {
		return fmt.Errorf("no tool server configured (set toolServer.addr or --tool-server)")
	}

	client := mcp.NewClient(mcp.ClientConfig{
		Addr:        addr,
		DialTimeout: cfg.ToolServer.DialTimeout.Std(),
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tools, err := client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}

	if len(tools) == 0 {
		fmt.Println("no tools available")
		return nil
	}
	for _, t := range tools {
		required, _ := client.RequiredFields(ctx, t.Name)
		line := t.Name
		if t.Description != "" {
			line += "  " + t.Description
		}
		if len(required) > 0 {
			line += fmt.Sprintf("  (required: %s)", strings.Join(required, ", "))
		}
		fmt.Println(line)
	}
	return nil
}
