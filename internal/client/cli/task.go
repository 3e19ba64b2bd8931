package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/iudanet/syncvault/internal/models"
)

func (c *Cli) runTask(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing task subcommand. Usage: syncvault task <add|list|done|undone|move|rm>")
	}

	session, err := c.unlock(ctx)
	if err != nil {
		return err
	}

	keys := c.newKeyring(session.keyPair)
	maintainer := c.newMaintainer(keys)
	sessionID := c.sessionID(session.authData)

	switch args[0] {
	case "add":
		title := strings.TrimSpace(strings.Join(args[1:], " "))
		if title == "" {
			return fmt.Errorf("missing task title. Usage: syncvault task add <title>")
		}

		// Первая задача сессии создает session key record
		if _, err := keys.EnsureKey(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to ensure session key: %w", err)
		}

		task, err := maintainer.Add(ctx, sessionID, title)
		if err != nil {
			return err
		}
		c.io.Printf("✓ Task added: %s\n", task.ID)
		return nil

	case "list":
		status := models.TaskStatusActive
		if len(args) > 1 {
			status = args[1]
		}
		if status != models.TaskStatusActive && status != models.TaskStatusArchived {
			return fmt.Errorf("unknown status %q, use active or archived", status)
		}

		tasks, err := maintainer.ListTasks(ctx, sessionID, status)
		if err != nil {
			return err
		}

		c.io.Printf("=== Tasks (%s) ===\n", status)
		c.io.Println()
		if len(tasks) == 0 {
			c.io.Println("No tasks found.")
			c.io.Println()
			c.io.Println("Use 'syncvault task add <title>' to add your first task.")
			return nil
		}

		for i, task := range tasks {
			mark := " "
			if task.Done {
				mark = "x"
			}
			c.io.Printf("%d. [%s] %s\n", i+1, mark, task.Title)
			c.io.Printf("   ID: %s\n", task.ID)
		}
		return nil

	case "done", "undone":
		if len(args) < 2 {
			return fmt.Errorf("missing task id. Usage: syncvault task %s <id>", args[0])
		}
		if err := maintainer.SetDone(ctx, sessionID, args[1], args[0] == "done"); err != nil {
			return err
		}
		c.io.Printf("✓ Task %s marked as %s\n", args[1], args[0])
		return nil

	case "move":
		if len(args) < 3 {
			return fmt.Errorf("missing arguments. Usage: syncvault task move <id> <active|archived>")
		}
		if err := maintainer.Move(ctx, sessionID, args[1], args[2]); err != nil {
			return err
		}
		c.io.Printf("✓ Task %s moved to %s\n", args[1], args[2])
		return nil

	case "rm":
		if len(args) < 2 {
			return fmt.Errorf("missing task id. Usage: syncvault task rm <id>")
		}
		if err := maintainer.Remove(ctx, sessionID, args[1]); err != nil {
			return err
		}
		c.io.Printf("✓ Task %s removed\n", args[1])
		return nil

	default:
		return fmt.Errorf("unknown task subcommand: %s", args[0])
	}
}

func (c *Cli) runRebuild(ctx context.Context) error {
	session, err := c.unlock(ctx)
	if err != nil {
		return err
	}

	keys := c.newKeyring(session.keyPair)
	maintainer := c.newMaintainer(keys)
	sessionID := c.sessionID(session.authData)

	c.io.Println("Rebuilding task index...")
	c.io.Println("⚠️  Manual task ordering will be lost (tasks sorted by creation time).")

	rebuilt, err := maintainer.Rebuild(ctx, sessionID)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Printf("✓ Index rebuilt: %d active, %d archived task(s)\n",
		len(rebuilt.OrderedActiveIDs), len(rebuilt.OrderedArchivedIDs))
	return nil
}
