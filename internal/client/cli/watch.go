package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iudanet/syncvault/internal/client/sync"
	"github.com/iudanet/syncvault/internal/models"
)

// runWatch входит в цикл синхронизации и печатает каждое изменение
// namespace до отмены контекста (Ctrl+C)
func (c *Cli) runWatch(ctx context.Context) error {
	session, err := c.unlock(ctx)
	if err != nil {
		return err
	}

	keys := c.newKeyring(session.keyPair)
	syncService := c.newSyncService(keys)
	sessionID := c.sessionID(session.authData)

	c.io.Printf("Watching session %s (Ctrl+C to stop)...\n", sessionID)
	c.io.Println()

	err = syncService.Run(ctx, sessionID, func(update sync.Update) {
		c.printUpdate(update)
	})
	if ctx.Err() != nil {
		c.io.Println()
		c.io.Println("Watch stopped.")
		return nil
	}
	return err
}

// printUpdate печатает одно изменение в человекочитаемом виде
func (c *Cli) printUpdate(update sync.Update) {
	switch {
	case update.Tombstone:
		c.io.Printf("[v%d] deleted  %s\n", update.Version, update.Key)

	case update.Unavailable:
		// Ключ сессии запечатан не для нас
		c.io.Printf("[v%d] updated  %s (content unavailable)\n", update.Version, update.Key)

	case models.IsTaskIndexKey(update.Key):
		var ix models.TaskIndex
		if err := json.Unmarshal(update.Value, &ix); err != nil {
			c.io.Printf("[v%d] updated  %s (unreadable index)\n", update.Version, update.Key)
			return
		}
		c.io.Printf("[v%d] index    %d active, %d archived\n",
			update.Version, len(ix.OrderedActiveIDs), len(ix.OrderedArchivedIDs))

	default:
		c.io.Printf("[v%d] updated  %s %s\n", update.Version, update.Key, describeTask(update.Value))
	}
}

// describeTask возвращает краткое описание задачи из plaintext
func describeTask(plaintext []byte) string {
	var task models.Task
	if err := json.Unmarshal(plaintext, &task); err != nil {
		return ""
	}
	mark := " "
	if task.Done {
		mark = "x"
	}
	return fmt.Sprintf("[%s] %s (%s)", mark, task.Title, task.Status)
}
