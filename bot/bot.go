/* bot.go
 * Contains logic used for creating the bot and parsing commands. Requires a discord bot token and APIPtr, both of
 * which are passed in from main.go
 * Authors: Zachary Bower
 */

package bot

import (
	"context"
	"fmt"
	"inhouse-bot/api/api"
	"slices"
	"strings"
	"time"

	"github.com/go-andiamo/splitter"
	"go.uber.org/zap"
)

// commandTimeout bounds the api calls made for a single chat command
const commandTimeout = 15 * time.Second

type Bot struct {
	BotToken string
	APIPtr   *api.API
	// AdminIDs are the Discord user ids allowed to run $start, $publish and $cancel
	AdminIDs []string

	logger  *zap.Logger
	baseCtx context.Context
}

func NewBot(botToken string, apiPtr *api.API, adminIDs []string, logger *zap.Logger) (*Bot, error) {
	if botToken == "" {
		return nil, fmt.Errorf("botToken is required but none was provided")
	}
	if apiPtr == nil {
		return nil, fmt.Errorf("api is required but none was provided")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Bot{
		BotToken: botToken,
		APIPtr:   apiPtr,
		AdminIDs: adminIDs,
		logger:   logger.Named("bot"),
	}, nil
}

// Helper that returns a context for one command. Commands are cancelled when the bot shuts down
func (b *Bot) requestContext() (context.Context, context.CancelFunc) {
	base := b.baseCtx
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, commandTimeout)
}

func (b *Bot) isAdmin(userID string) bool {
	return slices.Contains(b.AdminIDs, userID)
}

// Function that splits a chat message into the command and its arguments
// Preconditions: Receives the raw message content
// Postconditions: Returns the lower case command (e.g. "$ban") and its arguments with quotes removed. Names that
// contain spaces can be wrapped in double quotes
func parseCommand(content string) (string, []string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", nil
	}

	// we use splitter here instead of strings.Fields so quoted arguments like "de mirage" stay together
	var parts []string
	spaceSplitter, err := splitter.NewSplitter(' ', splitter.DoubleQuotes, splitter.LeftRightDoubleDoubleQuotes)
	if err == nil {
		parts, err = spaceSplitter.Split(content)
	}
	if err != nil {
		// Unbalanced quotes
		parts = strings.Fields(content)
	}

	args := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), "\"“”")
		if p != "" {
			args = append(args, p)
		}
	}
	if len(args) == 0 {
		return "", nil
	}
	return strings.ToLower(args[0]), args[1:]
}
