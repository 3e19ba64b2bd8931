package cli

import (
	"context"
	"fmt"
)

// runPush управляет push endpoints пользователя
func (c *Cli) runPush(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing push subcommand. Usage: syncvault push <add|rm>")
	}

	if _, err := c.unlock(ctx); err != nil {
		return err
	}

	switch args[0] {
	case "add":
		if len(args) < 3 {
			return fmt.Errorf("missing arguments. Usage: syncvault push add <url> <token>")
		}
		resp, err := c.apiClient.RegisterPushEndpoint(ctx, args[1], args[2])
		if err != nil {
			return fmt.Errorf("failed to register push endpoint: %w", err)
		}
		c.io.Printf("✓ Push endpoint registered: %s\n", resp.EndpointID)
		return nil

	case "rm":
		if len(args) < 2 {
			return fmt.Errorf("missing endpoint id. Usage: syncvault push rm <id>")
		}
		if err := c.apiClient.DeletePushEndpoint(ctx, args[1]); err != nil {
			return fmt.Errorf("failed to delete push endpoint: %w", err)
		}
		c.io.Printf("✓ Push endpoint deleted: %s\n", args[1])
		return nil

	default:
		return fmt.Errorf("unknown push subcommand: %s", args[0])
	}
}
