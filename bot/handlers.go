/* handlers.go
 * Contains testable handler methods that accept DiscordSession interface
 * Authors: Zachary Bower
 */

package bot

import (
	"context"
	"errors"
	"fmt"
	"inhouse-bot/api/api"
	"inhouse-bot/api/logic"
	"inhouse-bot/api/shared"
	"inhouse-bot/api/store"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// helpMessageHandler handles the $help command with a DiscordSession interface
func (b *Bot) helpMessageHandler(session DiscordSession, message *discordgo.MessageCreate) {
	var res strings.Builder
	res.WriteString("Inhouse Bot\n")
	res.WriteString("`$link <steamid64>`: Links your Discord account to your Steam id. Required before joining\n")
	res.WriteString("`$join`: Joins the queue. Once 10 players have joined two leaders are picked at random\n")
	res.WriteString("`$leave`: Leaves the queue while it is still filling\n")
	res.WriteString("`$status`: Shows the queue, the teams and the map veto\n")
	res.WriteString("`$pick <number|steamid>`: Leaders only. Picks an available player, use the number from `$status`\n")
	res.WriteString("`$ban <map>`: Leaders only. Bans a map. There is fuzzy matching on names, e.g. `$ban mirage`\n")
	res.WriteString("`$finalize`: Leaders only. Once both leaders confirm the match is over the queue is reset\n")
	res.WriteString("`$start`, `$publish`, `$cancel`: Admins only. Start the server, publish the match or cancel it\n")
	session.ChannelMessageSend(message.ChannelID, res.String())
}

// linkHandler handles the $link command with a DiscordSession interface
func (b *Bot) linkHandler(session DiscordSession, message *discordgo.MessageCreate, args []string) {
	if len(args) != 1 {
		session.ChannelMessageSend(message.ChannelID, "Usage: `$link <steamid64>`")
		return
	}
	ctx, cancel := b.requestContext()
	defer cancel()

	user := userOf(message)
	if err := b.APIPtr.LinkPlayer(ctx, user, args[0]); err != nil {
		b.reply(session, message, err)
		return
	}
	session.ChannelMessageSend(message.ChannelID, fmt.Sprintf("%s is now linked to %s", user.Username, args[0]))
}

// joinHandler handles the $join command with a DiscordSession interface
func (b *Bot) joinHandler(session DiscordSession, message *discordgo.MessageCreate) {
	ctx, cancel := b.requestContext()
	defer cancel()

	user := userOf(message)
	playerID, err := b.APIPtr.PlayerFor(ctx, user)
	if err != nil {
		b.reply(session, message, err)
		return
	}
	d, err := b.APIPtr.JoinQueue(ctx, playerID)
	if err != nil {
		b.reply(session, message, err)
		return
	}

	rules := b.APIPtr.Rules
	if d.State == store.StateSelectingLeaders {
		session.ChannelMessageSend(message.ChannelID, fmt.Sprintf("%s joined. The queue is full, leaders will be picked in %s",
			user.Username, rules.LeaderSelectionDelay))
		return
	}
	session.ChannelMessageSend(message.ChannelID, fmt.Sprintf("%s is in the queue (%d/%d)", user.Username, len(d.Queue), rules.QueueSize))
}

// leaveHandler handles the $leave command with a DiscordSession interface
func (b *Bot) leaveHandler(session DiscordSession, message *discordgo.MessageCreate) {
	ctx, cancel := b.requestContext()
	defer cancel()

	user := userOf(message)
	playerID, err := b.APIPtr.PlayerFor(ctx, user)
	if err != nil {
		b.reply(session, message, err)
		return
	}
	d, err := b.APIPtr.LeaveQueue(ctx, playerID)
	if err != nil {
		b.reply(session, message, err)
		return
	}
	session.ChannelMessageSend(message.ChannelID, fmt.Sprintf("%s left the queue (%d/%d)", user.Username, len(d.Queue), b.APIPtr.Rules.QueueSize))
}

// statusHandler handles the $status command with a DiscordSession interface
func (b *Bot) statusHandler(session DiscordSession, message *discordgo.MessageCreate) {
	ctx, cancel := b.requestContext()
	defer cancel()

	d, err := b.APIPtr.GetDraft(ctx)
	if err != nil {
		b.reply(session, message, err)
		return
	}
	session.ChannelMessageSend(message.ChannelID, b.formatDraft(ctx, d))
}

// pickHandler handles the $pick command with a DiscordSession interface
func (b *Bot) pickHandler(session DiscordSession, message *discordgo.MessageCreate, args []string) {
	if len(args) != 1 {
		session.ChannelMessageSend(message.ChannelID, "Usage: `$pick <number|steamid>`")
		return
	}
	ctx, cancel := b.requestContext()
	defer cancel()

	playerID, err := b.APIPtr.PlayerFor(ctx, userOf(message))
	if err != nil {
		b.reply(session, message, err)
		return
	}
	current, err := b.APIPtr.GetDraft(ctx)
	if err != nil {
		b.reply(session, message, err)
		return
	}
	picked, ok := logic.ResolvePlayer(args[0], current.Unassigned)
	if !ok {
		session.ChannelMessageSend(message.ChannelID, fmt.Sprintf("%s is not an available player, see `$status`", args[0]))
		return
	}

	d, err := b.APIPtr.PickPlayer(ctx, playerID, picked)
	if err != nil {
		b.reply(session, message, err)
		return
	}

	name := b.displayName(ctx, picked)
	switch d.State {
	case store.StateBanningMap:
		session.ChannelMessageSend(message.ChannelID, fmt.Sprintf("%s picked. Teams are set, %s bans first: %s",
			name, d.TeamFor(d.MapTurn).DisplayName, strings.Join(logic.RemainingMaps(d.MapPool, d.BannedMaps), ", ")))
	default:
		session.ChannelMessageSend(message.ChannelID, fmt.Sprintf("%s picked. %s picks next", name, d.TeamFor(d.Turn).DisplayName))
	}
}

// banHandler handles the $ban command with a DiscordSession interface
func (b *Bot) banHandler(session DiscordSession, message *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		session.ChannelMessageSend(message.ChannelID, "Usage: `$ban <map>`")
		return
	}
	ctx, cancel := b.requestContext()
	defer cancel()

	playerID, err := b.APIPtr.PlayerFor(ctx, userOf(message))
	if err != nil {
		b.reply(session, message, err)
		return
	}
	current, err := b.APIPtr.GetDraft(ctx)
	if err != nil {
		b.reply(session, message, err)
		return
	}
	remaining := logic.RemainingMaps(current.MapPool, current.BannedMaps)
	mapName, ok := logic.ResolveMapName(strings.Join(args, " "), remaining)
	if !ok {
		session.ChannelMessageSend(message.ChannelID, fmt.Sprintf("Unknown map %q. Maps left: %s", strings.Join(args, " "), strings.Join(remaining, ", ")))
		return
	}

	d, err := b.APIPtr.BanMap(ctx, playerID, mapName)
	if err != nil {
		b.reply(session, message, err)
		return
	}
	if d.Map != "" {
		session.ChannelMessageSend(message.ChannelID, fmt.Sprintf("%s banned. The map is **%s**, the match is being set up", mapName, d.Map))
		return
	}
	session.ChannelMessageSend(message.ChannelID, fmt.Sprintf("%s banned. %s bans next: %s",
		mapName, d.TeamFor(d.MapTurn).DisplayName, strings.Join(logic.RemainingMaps(d.MapPool, d.BannedMaps), ", ")))
}

// finalizeHandler handles the $finalize command with a DiscordSession interface
func (b *Bot) finalizeHandler(session DiscordSession, message *discordgo.MessageCreate) {
	ctx, cancel := b.requestContext()
	defer cancel()

	user := userOf(message)
	playerID, err := b.APIPtr.PlayerFor(ctx, user)
	if err != nil {
		b.reply(session, message, err)
		return
	}
	d, reset, err := b.APIPtr.RequestFinalize(ctx, playerID)
	if err != nil {
		b.reply(session, message, err)
		return
	}
	switch {
	case reset:
		session.ChannelMessageSend(message.ChannelID, "Both leaders confirmed. GG! The queue is open again")
	case d.State == store.StateLive:
		session.ChannelMessageSend(message.ChannelID, fmt.Sprintf("%s confirmed the match is over, waiting for the other leader", user.Username))
	default:
		session.ChannelMessageSend(message.ChannelID, "There is no live match to finalize")
	}
}

// startHandler handles the $start command with a DiscordSession interface
func (b *Bot) startHandler(session DiscordSession, message *discordgo.MessageCreate) {
	if !b.isAdmin(message.Author.ID) {
		session.ChannelMessageSend(message.ChannelID, "Only admins can start the server")
		return
	}
	ctx, cancel := b.requestContext()
	defer cancel()

	res := b.APIPtr.StartMatchIfReady(ctx)
	switch res.Status {
	case api.StartStarted:
		session.ChannelMessageSend(message.ChannelID, "Server started, the match config is loading")
	case api.StartNotFound:
		session.ChannelMessageSend(message.ChannelID, "Nothing has been published yet")
	case api.StartLocked:
		session.ChannelMessageSend(message.ChannelID, "The server is already starting or the match is live")
	case api.StartNotReady:
		session.ChannelMessageSend(message.ChannelID, "The match is not ready to start")
	case api.StartUnauthenticated:
		b.logger.Error("server start rejected", zap.Error(res.Err))
		session.ChannelMessageSend(message.ChannelID, "The game server host rejected our credentials")
	default:
		b.logger.Error("server start failed", zap.Error(res.Err))
		session.ChannelMessageSend(message.ChannelID, "An error occurred starting the server")
	}
}

// publishHandler handles the $publish command with a DiscordSession interface
func (b *Bot) publishHandler(session DiscordSession, message *discordgo.MessageCreate) {
	if !b.isAdmin(message.Author.ID) {
		session.ChannelMessageSend(message.ChannelID, "Only admins can publish the match")
		return
	}
	ctx, cancel := b.requestContext()
	defer cancel()

	res := b.APIPtr.Publish(ctx)
	switch res.Status {
	case api.PublishPublished:
		session.ChannelMessageSend(message.ChannelID, "Match published")
	case api.PublishNotReady:
		session.ChannelMessageSend(message.ChannelID, "The draft is not finished or is already published")
	case api.PublishLocked:
		session.ChannelMessageSend(message.ChannelID, "A publication is already running")
	default:
		b.logger.Error("publish failed", zap.Error(res.Err))
		session.ChannelMessageSend(message.ChannelID, "An error occurred publishing the match")
	}
}

// cancelHandler handles the $cancel command with a DiscordSession interface
func (b *Bot) cancelHandler(session DiscordSession, message *discordgo.MessageCreate) {
	if !b.isAdmin(message.Author.ID) {
		session.ChannelMessageSend(message.ChannelID, "Only admins can cancel the match")
		return
	}
	ctx, cancel := b.requestContext()
	defer cancel()

	if err := b.APIPtr.Cancel(ctx); err != nil {
		if !errors.Is(err, api.ErrRestartFailed) {
			b.reply(session, message, err)
			return
		}
		b.logger.Warn("cancel command failed", zap.Error(err))
		session.ChannelMessageSend(message.ChannelID, "The queue was reset but the server could not be restarted")
		return
	}
	session.ChannelMessageSend(message.ChannelID, "Match cancelled, the queue is open again")
}

// newMessageHandler routes messages to appropriate handlers with a DiscordSession interface
// botUserID is the bot's user ID to prevent self-responses
func (b *Bot) newMessageHandler(session DiscordSession, message *discordgo.MessageCreate, botUserID string) {
	// Prevent bot from responding to its own messages
	if message.Author == nil || message.Author.ID == botUserID {
		return
	}
	if !strings.HasPrefix(strings.TrimSpace(message.Content), "$") {
		return
	}

	command, args := parseCommand(message.Content)

	// Route to appropriate handler
	switch command {
	case "$help":
		b.helpMessageHandler(session, message)
	case "$link":
		b.linkHandler(session, message, args)
	case "$join":
		b.joinHandler(session, message)
	case "$leave":
		b.leaveHandler(session, message)
	case "$status":
		b.statusHandler(session, message)
	case "$pick":
		b.pickHandler(session, message, args)
	case "$ban":
		b.banHandler(session, message, args)
	case "$finalize":
		b.finalizeHandler(session, message)
	case "$start":
		b.startHandler(session, message)
	case "$publish":
		b.publishHandler(session, message)
	case "$cancel":
		b.cancelHandler(session, message)
	}
}

// Helper that turns an api error into a chat reply
func (b *Bot) reply(session DiscordSession, message *discordgo.MessageCreate, err error) {
	var res string
	switch {
	case errors.Is(err, api.ErrNotLinked):
		res = "Link your Steam id first with `$link <steamid64>`"
	case errors.Is(err, api.ErrInvalidPlayerID):
		res = "That does not look like a Steam id"
	case errors.Is(err, store.ErrConflict):
		res = "The draft is busy, try again"
	case logic.IsValidation(err), errors.Is(err, logic.ErrTooEarly):
		res = fmt.Sprintf("Can't do that: %s", err)
	default:
		b.logger.Error("command failed", zap.String("command", message.Content), zap.Error(err))
		res = "An unexpected error occurred"
	}
	session.ChannelMessageSend(message.ChannelID, res)
}

// Function that renders the draft for $status
// Preconditions: Receives context and the draft
// Postconditions: Returns the message with the state, the queue or the teams, and the map veto
func (b *Bot) formatDraft(ctx context.Context, d store.Draft) string {
	rules := b.APIPtr.Rules
	var res strings.Builder
	res.WriteString(fmt.Sprintf("**State**: %s\n", d.State))

	switch d.State {
	case store.StateAwaitingPlayers, store.StateSelectingLeaders:
		res.WriteString(fmt.Sprintf("**Queue** (%d/%d): %s\n", len(d.Queue), rules.QueueSize, b.joinNames(ctx, d.Queue)))
		if d.LeaderSelectionAt != nil {
			res.WriteString(fmt.Sprintf("Leaders are picked at %s\n", d.LeaderSelectionAt.Format("15:04:05 MST")))
		}
		return res.String()
	}

	res.WriteString(fmt.Sprintf("**%s**: %s\n", d.Team1.DisplayName, b.joinNames(ctx, d.Team1.Players)))
	res.WriteString(fmt.Sprintf("**%s**: %s\n", d.Team2.DisplayName, b.joinNames(ctx, d.Team2.Players)))

	if d.State == store.StateDraftingTeams {
		res.WriteString(fmt.Sprintf("**Available** (%s picks):\n", d.TeamFor(d.Turn).DisplayName))
		for i, p := range b.APIPtr.Players(ctx, d.Unassigned) {
			res.WriteString(fmt.Sprintf("%d. %s\n", i+1, p.DisplayName))
		}
		return res.String()
	}

	if len(d.BannedMaps) > 0 {
		res.WriteString(fmt.Sprintf("**Banned**: %s\n", strings.Join(d.BannedMaps, ", ")))
	}
	if d.Map != "" {
		res.WriteString(fmt.Sprintf("**Map**: %s\n", d.Map))
	} else {
		res.WriteString(fmt.Sprintf("**Maps left** (%s bans): %s\n", d.TeamFor(d.MapTurn).DisplayName,
			strings.Join(logic.RemainingMaps(d.MapPool, d.BannedMaps), ", ")))
	}
	if d.StartInProgress {
		res.WriteString("The server is starting\n")
	}
	if d.StartError != "" {
		res.WriteString(fmt.Sprintf("Last server start failed: %s\n", d.StartError))
	}
	if d.PublishError != "" {
		res.WriteString(fmt.Sprintf("Last publication failed: %s\n", d.PublishError))
	}
	return res.String()
}

func (b *Bot) joinNames(ctx context.Context, ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	names := make([]string, 0, len(ids))
	for _, p := range b.APIPtr.Players(ctx, ids) {
		names = append(names, p.DisplayName)
	}
	return strings.Join(names, ", ")
}

func (b *Bot) displayName(ctx context.Context, id string) string {
	return b.APIPtr.Players(ctx, []string{id})[0].DisplayName
}

func userOf(message *discordgo.MessageCreate) shared.User {
	return shared.User{UserID: message.Author.ID, Username: message.Author.Username}
}
