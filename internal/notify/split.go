package notify

import "strings"

// TelegramMaxMessageLength is the segment size Telegram splitting
// targets; Telegram's own hard limit is 4096 chars but the spec's
// 4000-char budget leaves headroom for markdown escaping (§4.7).
const TelegramMaxMessageLength = 4000

// telegramEllipsis caps an unbreakable run that still exceeds the
// segment budget on its own.
const telegramEllipsis = "…"

// SplitTelegramMessage segments body into chunks no longer than
// TelegramMaxMessageLength, preferring to break on line boundaries,
// then falling back to word boundaries, then hard-truncating an
// unbreakable run with an ellipsis (§4.7).
func SplitTelegramMessage(body string) []string {
	if len(body) <= TelegramMaxMessageLength {
		if body == "" {
			return nil
		}
		return []string{body}
	}

	var segments []string
	lines := strings.SplitAfter(body, "\n")

	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		segments = append(segments, current.String())
		current.Reset()
	}

	for _, line := range lines {
		if len(line) > TelegramMaxMessageLength {
			flush()
			segments = append(segments, splitLongLine(line)...)
			continue
		}
		if current.Len()+len(line) > TelegramMaxMessageLength {
			flush()
		}
		current.WriteString(line)
	}
	flush()

	return segments
}

// splitLongLine breaks a single line too long to fit in one segment
// at word boundaries, hard-truncating any word that alone exceeds the
// budget.
func splitLongLine(line string) []string {
	var segments []string
	words := strings.SplitAfter(line, " ")

	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		segments = append(segments, current.String())
		current.Reset()
	}

	for _, word := range words {
		if len(word) > TelegramMaxMessageLength {
			flush()
			segments = append(segments, hardTruncate(word, TelegramMaxMessageLength)...)
			continue
		}
		if current.Len()+len(word) > TelegramMaxMessageLength {
			flush()
		}
		current.WriteString(word)
	}
	flush()

	return segments
}

// hardTruncate chops an unbreakable run into budget-sized pieces,
// appending an ellipsis to every piece but the last.
func hardTruncate(s string, limit int) []string {
	var out []string
	budget := limit - len(telegramEllipsis)
	runes := []rune(s)

	for len(runes) > limit {
		out = append(out, string(runes[:budget])+telegramEllipsis)
		runes = runes[budget:]
	}
	out = append(out, string(runes))
	return out
}
