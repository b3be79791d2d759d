// Package bot lets shoppers work the request pool from Telegram.
//
// A Telegram account acts as a shopper once a coordinator has linked it to
// the shopper's email with /approve. Every command goes through the same
// lifecycle operations as the HTTP API.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/centromex/shopping-buddy/internal/apperr"
	"github.com/centromex/shopping-buddy/internal/models"
)

// API is the part of *tgbotapi.BotAPI the bot needs.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type service interface {
	ShopperByTelegram(ctx context.Context, telegramID int64) (models.Actor, error)
	LinkShopperChat(ctx context.Context, email string, telegramID int64) error

	ListPending(ctx context.Context, a models.Actor) ([]models.RequestDetails, error)
	ListForShopper(ctx context.Context, a models.Actor) ([]models.RequestDetails, error)
	Accept(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error)
	StartShopping(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error)
	Complete(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error)
	Abandon(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error)
	Cancel(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error)
	ShopperBalance(ctx context.Context, a models.Actor) (decimal.Decimal, error)
}

type Config struct {
	CoordinatorIDs []int64
	// CommandTimeout bounds the handling of one command.
	CommandTimeout time.Duration
}

type Bot struct {
	api            API
	svc            service
	coordinatorIDs []int64
	timeout        time.Duration
	log            *slog.Logger
}

func New(api API, svc service, cfg Config, logger *slog.Logger) *Bot {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:            api,
		svc:            svc,
		coordinatorIDs: cfg.CoordinatorIDs,
		timeout:        cfg.CommandTimeout,
		log:            logger.With("component", "bot"),
	}
}

// Run long-polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.log.Info("bot is polling for updates")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.sendMessage(msg.Chat.ID, "Use /help to see available commands.")
}

const helpText = "Commands:\n" +
	"/list - See open requests\n" +
	"/accept <id> - Take a request\n" +
	"/begin <id> - Start shopping for a request\n" +
	"/done <id> - Mark a request as delivered\n" +
	"/abandon <id> - Give a request back to the pool\n" +
	"/cancel <id> - Cancel a request\n" +
	"/mine - See your requests\n" +
	"/balance - See your earnings\n" +
	"/whoami - Show your Telegram user id\n\n" +
	"Coordinators:\n" +
	"/approve <telegram_user_id> <email> - Link a shopper"

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.sendMessage(chatID, "Welcome to Shopping Buddy!\n\n"+helpText)

	case "help":
		b.sendMessage(chatID, helpText)

	case "whoami":
		b.sendMessage(chatID, fmt.Sprintf("Your Telegram user id is %d.", msg.From.ID))

	case "list":
		b.withShopper(ctx, msg, b.handleList)

	case "mine":
		b.withShopper(ctx, msg, b.handleMine)

	case "balance":
		b.withShopper(ctx, msg, b.handleBalance)

	case "accept":
		b.withShopper(ctx, msg, b.handleAccept)

	case "begin":
		b.withShopper(ctx, msg, b.step(stepCommand{
			name: "begin", verb: "start shopping for", run: b.svc.StartShopping,
			confirm: func(id int64) string {
				return fmt.Sprintf("🛒 Shopping started for request #%d. When delivered: /done %d", id, id)
			},
		}))

	case "done":
		b.withShopper(ctx, msg, b.handleDone)

	case "abandon":
		b.withShopper(ctx, msg, b.step(stepCommand{
			name: "abandon", verb: "abandon", run: b.svc.Abandon, tellCoordinators: true,
			confirm: func(id int64) string {
				return fmt.Sprintf("↩️ Request #%d is back in the pool. /accept %d to take it again", id, id)
			},
		}))

	case "cancel":
		b.withShopper(ctx, msg, b.step(stepCommand{
			name: "cancel", verb: "cancel", run: b.svc.Cancel, tellCoordinators: true,
			confirm: func(id int64) string {
				return fmt.Sprintf("🚫 Request #%d cancelled. The customer's card hold is released.", id)
			},
		}))

	case "approve":
		b.handleApprove(ctx, msg)

	default:
		b.sendMessage(chatID, "Unknown command. Use /help to see available commands.")
	}
}

type shopperHandler func(ctx context.Context, msg *tgbotapi.Message, a models.Actor)

// withShopper resolves the sender to a linked shopper before running h.
func (b *Bot) withShopper(ctx context.Context, msg *tgbotapi.Message, h shopperHandler) {
	a, err := b.svc.ShopperByTelegram(ctx, msg.From.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		b.sendMessage(msg.Chat.ID, fmt.Sprintf(
			"You're not yet linked as a shopper. Send a coordinator your user id: %d", msg.From.ID))
		return
	}
	if err != nil {
		b.log.Error("shopper lookup failed", "telegram_id", msg.From.ID, "error", err)
		b.sendMessage(msg.Chat.ID, "Error looking you up. Please try again.")
		return
	}
	h(ctx, msg, a)
}

func (b *Bot) handleList(ctx context.Context, msg *tgbotapi.Message, a models.Actor) {
	requests, err := b.svc.ListPending(ctx, a)
	if err != nil {
		b.log.Error("list pending requests failed", "error", err)
		b.sendMessage(msg.Chat.ID, "Error fetching requests. Please try again.")
		return
	}

	if len(requests) == 0 {
		b.sendMessage(msg.Chat.ID, "No open requests at the moment. Check back later!")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 OPEN REQUESTS (%d)\n\n", len(requests)))

	for _, req := range requests {
		sb.WriteString(fmt.Sprintf("━━━ #%d ", req.ID))
		if req.StoreName != "" {
			sb.WriteString(fmt.Sprintf("• %s ", req.StoreName))
		}
		sb.WriteString(fmt.Sprintf("• %s + %s delivery\n",
			models.FormatMoney(req.EstimatedPrice), models.FormatMoney(req.DeliveryFee)))

		// Show truncated list
		for i, it := range req.Items {
			if i == 3 {
				sb.WriteString(fmt.Sprintf("   ...and %d more items\n", len(req.Items)-i))
				break
			}
			sb.WriteString(fmt.Sprintf("• %d × %s\n", it.Quantity, it.Name))
		}
		sb.WriteString(fmt.Sprintf("→ /accept %d\n\n", req.ID))
	}

	b.sendMessage(msg.Chat.ID, sb.String())
}

func (b *Bot) handleMine(ctx context.Context, msg *tgbotapi.Message, a models.Actor) {
	requests, err := b.svc.ListForShopper(ctx, a)
	if err != nil {
		b.log.Error("list shopper requests failed", "shopper", a, "error", err)
		b.sendMessage(msg.Chat.ID, "Error fetching your requests.")
		return
	}

	var sb strings.Builder
	for _, req := range requests {
		if req.Status.Terminal() {
			continue
		}
		sb.WriteString(fmt.Sprintf("━━━ #%d • %s\n", req.ID, req.Status))
		sb.WriteString(fmt.Sprintf("Total: %s\n", models.FormatMoney(req.Total())))
		switch req.Status {
		case models.StatusAccepted:
			sb.WriteString(fmt.Sprintf("→ /begin %d when you reach the store\n\n", req.ID))
		case models.StatusInProgress:
			sb.WriteString(fmt.Sprintf("→ /done %d when delivered\n\n", req.ID))
		}
	}

	if sb.Len() == 0 {
		b.sendMessage(msg.Chat.ID, "You don't have any active requests. Use /list to see open requests.")
		return
	}
	b.sendMessage(msg.Chat.ID, "📋 YOUR REQUESTS\n\n"+sb.String())
}

func (b *Bot) handleBalance(ctx context.Context, msg *tgbotapi.Message, a models.Actor) {
	balance, err := b.svc.ShopperBalance(ctx, a)
	if err != nil {
		b.log.Error("shopper balance failed", "shopper", a, "error", err)
		b.sendMessage(msg.Chat.ID, "Error fetching your balance.")
		return
	}
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("💰 Your balance: %s", models.FormatMoney(balance)))
}

func (b *Bot) handleAccept(ctx context.Context, msg *tgbotapi.Message, a models.Actor) {
	requestID, err := parseID(msg.CommandArguments())
	if err != nil {
		b.sendMessage(msg.Chat.ID, "Usage: /accept <request_id>\nExample: /accept 42")
		return
	}

	req, err := b.svc.Accept(ctx, a, requestID)
	if err != nil {
		b.reportFailure(msg.Chat.ID, "accept", requestID, err)
		return
	}

	// Full details, including the delivery address, only go to the shopper who took it.
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ ACCEPTED! Request #%d is yours.\n\n", requestID))
	sb.WriteString(fmt.Sprintf("📍 DELIVER TO:\n%s\n\n", req.DeliveryAddress))
	if req.StoreName != "" {
		sb.WriteString(fmt.Sprintf("🏪 STORE: %s", req.StoreName))
		if req.StoreAddress != "" {
			sb.WriteString(", " + req.StoreAddress)
		}
		sb.WriteString("\n\n")
	}
	sb.WriteString(fmt.Sprintf("💵 ITEMS: %s • DELIVERY: %s\n\n",
		models.FormatMoney(req.EstimatedPrice), models.FormatMoney(req.DeliveryFee)))
	sb.WriteString("SHOPPING LIST:\n")
	for _, it := range req.Items {
		sb.WriteString(fmt.Sprintf("• %d × %s", it.Quantity, it.Name))
		if it.Description != "" {
			sb.WriteString(" (" + it.Description + ")")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("\n━━━━━━━━━━━━━━━━━━━━━━━━\nAt the store: /begin %d", requestID))

	b.sendMessage(msg.Chat.ID, sb.String())
	b.notifyCoordinators(fmt.Sprintf("✋ Request #%d accepted by %s", requestID, displayName(msg.From)))
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message, a models.Actor) {
	requestID, err := parseID(msg.CommandArguments())
	if err != nil {
		b.sendMessage(msg.Chat.ID, "Usage: /done <request_id>\nExample: /done 42")
		return
	}

	req, err := b.svc.Complete(ctx, a, requestID)
	if err != nil {
		b.reportFailure(msg.Chat.ID, "complete", requestID, err)
		return
	}

	b.sendMessage(msg.Chat.ID, fmt.Sprintf(
		"✅ Request #%d marked as delivered. %s has been credited to your balance. Thank you for helping!",
		requestID, models.FormatMoney(req.Total())))
	b.notifyCoordinators(fmt.Sprintf("✅ Request #%d delivered by %s", requestID, displayName(msg.From)))
}

// stepCommand is a command that moves one request and replies with a
// fixed confirmation.
type stepCommand struct {
	name             string
	verb             string
	run              func(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error)
	confirm          func(id int64) string
	tellCoordinators bool
}

func (b *Bot) step(c stepCommand) shopperHandler {
	return func(ctx context.Context, msg *tgbotapi.Message, a models.Actor) {
		requestID, err := parseID(msg.CommandArguments())
		if err != nil {
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("Usage: /%s <request_id>\nExample: /%s 42", c.name, c.name))
			return
		}

		if _, err := c.run(ctx, a, requestID); err != nil {
			b.reportFailure(msg.Chat.ID, c.verb, requestID, err)
			return
		}

		b.sendMessage(msg.Chat.ID, c.confirm(requestID))
		if c.tellCoordinators {
			b.notifyCoordinators(fmt.Sprintf("⚠️ %s used /%s on request #%d", displayName(msg.From), c.name, requestID))
		}
	}
}

func (b *Bot) handleApprove(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isCoordinator(msg.From.ID) {
		b.sendMessage(msg.Chat.ID, "Only coordinators can approve shoppers.")
		return
	}

	fields := strings.Fields(msg.CommandArguments())
	if len(fields) != 2 {
		b.sendMessage(msg.Chat.ID, "Usage: /approve <telegram_user_id> <email>")
		return
	}

	telegramID, err := parseID(fields[0])
	if err != nil {
		b.sendMessage(msg.Chat.ID, "Invalid user ID. Must be a number.")
		return
	}
	email := fields[1]

	if err := b.svc.LinkShopperChat(ctx, email, telegramID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("No shopper is registered with %s.", email))
			return
		}
		b.log.Error("link shopper chat failed", "telegram_id", telegramID, "error", err)
		b.sendMessage(msg.Chat.ID, "Error approving shopper.")
		return
	}

	b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ Shopper %s approved as Telegram user %d.", email, telegramID))
	b.sendMessage(telegramID, "✅ You're approved! Use /list to see open requests.")
}

// reportFailure tells the shopper why an operation was refused. Internal
// errors are logged and shown generically.
func (b *Bot) reportFailure(chatID int64, verb string, requestID int64, err error) {
	if apperr.Kind(err) == "internal" {
		b.log.Error("command failed", "op", verb, "request_id", requestID, "error", err)
	}
	b.sendMessage(chatID, fmt.Sprintf("Could not %s request #%d: %s", verb, requestID, apperr.Reason(err)))
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) notifyCoordinators(text string) {
	for _, coordID := range b.coordinatorIDs {
		b.sendMessage(coordID, text)
	}
}

func (b *Bot) isCoordinator(userID int64) bool {
	for _, id := range b.coordinatorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func parseID(args string) (int64, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return 0, fmt.Errorf("no ID provided")
	}
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid ID %d", id)
	}
	return id, nil
}

func displayName(u *tgbotapi.User) string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if name == "" {
		name = u.UserName
	}
	return name
}
