package bot

import (
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/evwatch/evwatch/render"
	"github.com/evwatch/evwatch/storage"
	"github.com/evwatch/evwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Alert notifications & watcher control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   🔔 +EV alert pushes the moment a line crosses the threshold
//   📋 Card listing with max EV per event (/events)
//   🙈 Remote dismissal (/dismiss <id>)
//   📜 Recent alert history (/alerts)
//
// ═══════════════════════════════════════════════════════════════════════════════

// CardProvider is the slice of the reconciliation loop the bot reads from.
type CardProvider interface {
	Cards() []render.Card
	Status() types.ConnStatus
	Stats() (passes, skipped int64, active int)
	Dismiss(eventID string)
}

// AlertHistory serves the fired-alert log.
type AlertHistory interface {
	RecentAlerts(n int) ([]storage.AlertRecord, error)
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.Mutex
	api     *tgbotapi.BotAPI
	chatID  int64
	running bool
	stopCh  chan struct{}

	provider CardProvider
	history  AlertHistory
}

// NewTelegramBot creates a new Telegram bot
func NewTelegramBot(token string, chatID int64, provider CardProvider, history AlertHistory) (*TelegramBot, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID not set")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := &TelegramBot{
		api:      api,
		chatID:   chatID,
		stopCh:   make(chan struct{}),
		provider: provider,
		history:  history,
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")

	return bot, nil
}

// Start begins listening for commands
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyAlert pushes a first-fire +EV alert. Refresh frames for an already
// open surface are skipped; the websocket popup carries those.
func (b *TelegramBot) NotifyAlert(p types.AlertPayload) error {
	if p.Refresh {
		return nil
	}

	msg := fmt.Sprintf(`🔔 *+EV ALERT*

📊 *%s* — %s
━━━━━━━━━━━━━━━━
🎯 %s %s %s
📐 Pinnacle NVP: *%s*
💵 BetBCK: *%s*
📈 EV: *%s*
━━━━━━━━━━━━━━━━
Use /dismiss %s to hide`,
		p.Title, p.League,
		p.Key.Market, p.Key.Selection, p.Key.Line,
		p.Reference, p.Offered, p.EVPercent,
		p.EventID,
	)

	return b.sendMarkdown(msg)
}

// NotifyStartup sends startup notification
func (b *TelegramBot) NotifyStartup() {
	msg := `🚀 *EVWATCH STARTED*
━━━━━━━━━━━━━━━━━━━━

📡 Watching the Pinnacle vs BetBCK feed
🔔 Alerts fire on positive EV lines

Use /help for commands`

	if err := b.sendMarkdown(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send startup message")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(update.Message)
		}
	}
}

func (b *TelegramBot) handleCommand(msg *tgbotapi.Message) {
	cmd := strings.ToLower(msg.Command())

	switch cmd {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "events":
		b.cmdEvents()
	case "dismiss":
		b.cmdDismiss(strings.TrimSpace(msg.CommandArguments()))
	case "alerts":
		b.cmdAlerts()
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	msg := `🤖 *EVWATCH COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Watcher status
📋 /events — Active cards
🙈 /dismiss <id> — Hide an event
📜 /alerts — Last 10 alerts
🏓 /ping — Test connection`

	if err := b.sendMarkdown(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send help")
	}
}

func (b *TelegramBot) cmdStatus() {
	passes, skipped, active := b.provider.Stats()

	var icon string
	switch b.provider.Status() {
	case types.StatusLive, types.StatusIdle:
		icon = "🟢"
	case types.StatusDegraded:
		icon = "🟡"
	default:
		icon = "🔴"
	}

	msg := fmt.Sprintf(`📊 *WATCHER STATUS*
━━━━━━━━━━━━━━━━━━━━

%s Feed: *%s*
📋 Active cards: *%d*
🔁 Passes: *%d* (skipped %d)`,
		icon, strings.ToUpper(string(b.provider.Status())),
		active,
		passes, skipped,
	)

	if err := b.sendMarkdown(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send status")
	}
}

func (b *TelegramBot) cmdEvents() {
	cards := b.provider.Cards()
	if len(cards) == 0 {
		b.send("📭 No active events")
		return
	}

	var sb strings.Builder
	sb.WriteString("📋 *ACTIVE EVENTS*\n━━━━━━━━━━━━━━━━━━━━\n\n")
	for i, card := range cards {
		if i == 10 {
			sb.WriteString(fmt.Sprintf("… and %d more\n", len(cards)-10))
			break
		}
		icon := "▫️"
		if card.Qualifying {
			icon = "✅"
		}
		sb.WriteString(fmt.Sprintf("%s *%s* (%s)\n   Max EV: %s — `%s`\n\n",
			icon, card.Title, card.League, card.MaxEV, card.EventID))
	}

	if err := b.sendMarkdown(sb.String()); err != nil {
		log.Error().Err(err).Msg("Failed to send events")
	}
}

func (b *TelegramBot) cmdDismiss(eventID string) {
	if eventID == "" {
		b.send("❓ Usage: /dismiss <event id>")
		return
	}

	b.provider.Dismiss(eventID)
	b.send(fmt.Sprintf("🙈 Dismissed %s", eventID))
}

func (b *TelegramBot) cmdAlerts() {
	records, err := b.history.RecentAlerts(10)
	if err != nil {
		b.send("❌ Failed to fetch alerts")
		return
	}
	if len(records) == 0 {
		b.send("📭 No alerts fired yet")
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 *RECENT ALERTS*\n━━━━━━━━━━━━━━━━━━━━\n\n")
	for _, rec := range records {
		sb.WriteString(fmt.Sprintf("🔔 %s %s %s — EV %s\n   %s\n\n",
			rec.Market, rec.Selection, rec.Line, rec.EVPercent,
			rec.FiredAt.Format("Jan 2 15:04:05"),
		))
	}

	if err := b.sendMarkdown(sb.String()); err != nil {
		log.Error().Err(err).Msg("Failed to send alerts")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) error {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
		return err
	}
	return nil
}
