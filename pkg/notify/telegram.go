package notify

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
	"strconv"
)

const paymentConfirmedText = "Congratulations! Your payment went through and the course is now yours."

type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot BotAPI
}

func NewTelegram(bot BotAPI) *Telegram {
	return &Telegram{bot: bot}
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) SendPayout(_ context.Context, recipient *pkg.User, payout pkg.Payout) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.WriteString("A user you invited has paid for the course. You earned ")
	buf.WriteString(payout.Amount.StringFixed(2))
	buf.WriteString(" RUB, payout #")
	buf.WriteString(strconv.FormatInt(payout.ID, 10))
	buf.WriteString(".")

	return t.send(recipient.ExternalID, buf.String())
}

func (t *Telegram) Save(_ context.Context, settlements []pkg.Settlement) error {
	for _, s := range settlements {
		if !s.Qualified {
			continue
		}

		if err := t.send(s.User.ExternalID, paymentConfirmedText); err != nil {
			return err
		}
	}

	return nil
}

func (t *Telegram) send(externalID, text string) error {
	chatID, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return errors.Wrap(err, "chat id "+externalID)
	}

	_, err = t.bot.Send(tgbotapi.NewMessage(chatID, text))
	return errors.Wrap(err, "telegram send")
}
