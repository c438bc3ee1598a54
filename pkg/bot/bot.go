package bot

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	"github.com/aim-pay/accountant/pkg/yookassa"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/valyala/bytebufferpool"
	"strconv"
	"strings"
)

type Users interface {
	Register(ctx context.Context, externalID, displayName, referrerHint string) (*pkg.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*pkg.User, error)
	CountReferralsFor(ctx context.Context, userID int64) (int, error)
}

type Payments interface {
	Create(ctx context.Context, externalID, description string) (*yookassa.Payment, error)
}

type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api      API
	username string
	users    Users
	payments Payments
	pricing  pkg.Pricing
	logger   *logrus.Logger
}

func New(logger *logrus.Logger, api API, username string, users Users, payments Payments, pricing pkg.Pricing) *Bot {
	return &Bot{api: api, username: username, users: users, payments: payments, pricing: pricing, logger: logger}
}

func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case upd, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, upd)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.From == nil || !msg.IsCommand() {
		return
	}

	externalID := strconv.FormatInt(msg.From.ID, 10)

	var reply string
	switch msg.Command() {
	case "start":
		reply = b.start(ctx, externalID, displayName(msg.From), msg.CommandArguments())
	case "pay":
		reply = b.pay(ctx, externalID)
	case "referral":
		reply = b.referral(ctx, externalID)
	case "report":
		reply = b.report(ctx, externalID)
	default:
		reply = "Commands: /start, /pay, /referral, /report"
	}

	if _, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		b.logger.WithField("external_id", externalID).WithError(err).Error("failed to send reply")
	}
}

func (b *Bot) start(ctx context.Context, externalID, name, hint string) string {
	user, err := b.users.Register(ctx, externalID, name, strings.TrimSpace(hint))
	if errors.Is(err, pkg.ErrAlreadyExists) {
		user, err = b.users.FindByExternalID(ctx, externalID)
		if err == nil {
			return "Hi, " + user.DisplayName + "! You are already registered."
		}
	}
	if err != nil {
		b.logger.WithField("external_id", externalID).WithError(err).Error("failed to register user")
		return "Registration failed, please try again later."
	}

	b.logger.WithFields(logrus.Fields{
		"external_id": externalID,
		"hint":        user.ReferrerHint,
	}).Info("registered user")

	return "Welcome, " + user.DisplayName + "! You are registered."
}

func (b *Bot) pay(ctx context.Context, externalID string) string {
	payment, err := b.payments.Create(ctx, externalID, "")
	switch {
	case errors.Is(err, pkg.ErrNotFound):
		return "Send /start to register first."
	case errors.Is(err, pkg.ErrAlreadyPaid):
		return "You have already paid for the course."
	case err != nil:
		b.logger.WithField("external_id", externalID).WithError(err).Error("failed to create payment")
		return "Payment could not be created, please try again later."
	}

	return "To pay for the course follow the link: " + payment.ConfirmationURL
}

func (b *Bot) referral(ctx context.Context, externalID string) string {
	if _, err := b.users.FindByExternalID(ctx, externalID); err != nil {
		return "Send /start to register first."
	}

	return "Your referral link: https://t.me/" + b.username + "?start=" + externalID
}

func (b *Bot) report(ctx context.Context, externalID string) string {
	user, err := b.users.FindByExternalID(ctx, externalID)
	if err != nil {
		return "Send /start to register first."
	}

	count, err := b.users.CountReferralsFor(ctx, user.ID)
	if err != nil {
		b.logger.WithField("external_id", externalID).WithError(err).Error("failed to count referrals")
		return "Report is not available right now."
	}

	earned := b.pricing.ReferralAmount().Mul(decimal.NewFromInt(int64(count)))

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.WriteString("Report for ")
	buf.WriteString(user.DisplayName)
	buf.WriteString(":\nPaid referrals: ")
	buf.WriteString(strconv.Itoa(count))
	buf.WriteString("\nEarned: ")
	buf.WriteString(earned.StringFixed(2))
	buf.WriteString(" RUB")

	return buf.String()
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}

	return u.FirstName
}
