package catalog

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"bookzone/pkg/domain"
)

// Excerpt returns at most n runes of the visible text of s, which may
// carry HTML markup. Truncated text ends with an ellipsis.
func Excerpt(s string, n int) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
loop:
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return strings.TrimSpace(s)
			}
			break loop
		case html.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
	text := strings.Join(strings.Fields(b.String()), " ")
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	cut := strings.TrimSpace(string(runes[:n]))
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

func purchaseMessage(b domain.Book) string {
	return fmt.Sprintf("Bonjour, je souhaite acheter le livre \"%s\" pour %sFCFA.", b.Title, formatAmount(b.Price))
}

// TelegramLink opens a Telegram chat with the seller, prefilled with the
// purchase request. ok is false when the book has no Telegram handle.
func TelegramLink(b domain.Book) (link string, ok bool) {
	handle := strings.TrimPrefix(strings.TrimSpace(b.TelegramContact), "@")
	if handle == "" {
		return "", false
	}
	return "https://t.me/" + url.PathEscape(handle) + "?text=" + escapeText(purchaseMessage(b)), true
}

// WhatsAppLink is TelegramLink for WhatsApp numbers.
func WhatsAppLink(b domain.Book) (link string, ok bool) {
	number := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, b.WhatsappContact)
	if number == "" {
		return "", false
	}
	return "https://wa.me/" + number + "?text=" + escapeText(purchaseMessage(b)), true
}

// escapeText encodes a query value with spaces as %20.
func escapeText(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// formatAmount renders a price without decimals when it has none.
func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
