package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/julianbeese/bds_crawler/internal/domain"
)

// maxListedListings caps how many new listings are spelled out in one summary
const maxListedListings = 10

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends messages via Telegram
type Notifier struct {
	bot     sender
	chatID  int64
	enabled bool
	// siteURL prefixes relative listing links
	siteURL string
}

// NewNotifier creates a new Telegram notifier
func NewNotifier(botToken string, chatID int64, enabled bool, siteURL string) (*Notifier, error) {
	if !enabled || botToken == "" {
		return &Notifier{enabled: false}, nil
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return &Notifier{
		bot:     bot,
		chatID:  chatID,
		enabled: true,
		siteURL: strings.TrimSuffix(siteURL, "/"),
	}, nil
}

// NotifyCrawlComplete sends a summary of a finished crawl run
func (n *Notifier) NotifyCrawlComplete(ctx context.Context, run *domain.CrawlRun, newListings []domain.Listing) error {
	if !n.enabled {
		return nil
	}
	return n.send(n.formatRunSummary(run, newListings))
}

// NotifyError sends an error notification
func (n *Notifier) NotifyError(ctx context.Context, errMsg string) error {
	if !n.enabled {
		return nil
	}
	return n.send(fmt.Sprintf("⚠️ <b>Crawl failed</b>\n\n%s", escapeHTML(errMsg)))
}

// IsEnabled returns whether the notifier is enabled
func (n *Notifier) IsEnabled() bool {
	return n.enabled
}

func (n *Notifier) send(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	_, err := n.bot.Send(msg)
	return err
}

func (n *Notifier) formatRunSummary(run *domain.CrawlRun, fresh []domain.Listing) string {
	var sb strings.Builder

	sb.WriteString("🏠 <b>Crawl finished</b>\n\n")
	sb.WriteString(fmt.Sprintf("Mode: %s\n", escapeHTML(string(run.ProductType))))
	sb.WriteString(fmt.Sprintf("Results: %d (new: %d)\n", run.ResultCount, len(fresh)))
	if !run.FinishedAt.IsZero() && !run.StartedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Took: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second)))
	}

	if len(fresh) == 0 {
		return sb.String()
	}

	sb.WriteString("\n")
	for i, l := range fresh {
		if i == maxListedListings {
			sb.WriteString(fmt.Sprintf("… and %d more\n", len(fresh)-maxListedListings))
			break
		}
		link := l.URL
		if strings.HasPrefix(link, "/") {
			link = n.siteURL + link
		}
		sb.WriteString(fmt.Sprintf("• <a href=\"%s\">%s</a>\n", escapeHTML(link), escapeHTML(l.Title)))

		var facts []string
		if l.Price != "" {
			facts = append(facts, escapeHTML(l.Price))
		}
		if l.AreaM2 > 0 {
			facts = append(facts, fmt.Sprintf("%g m²", l.AreaM2))
		}
		if l.District != "" {
			facts = append(facts, escapeHTML(l.District+", "+l.City))
		}
		if len(facts) > 0 {
			sb.WriteString("  " + strings.Join(facts, " | ") + "\n")
		}
	}

	return sb.String()
}

// escapeHTML escapes HTML special characters for Telegram
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
