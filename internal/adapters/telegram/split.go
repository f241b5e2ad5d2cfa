package telegram

import "strings"

// messageLimit — предел длины сообщения Bot API в символах.
const messageLimit = 4096

// SplitMessage режет текст на части не длиннее limit рун. Граница ищется сначала по пустой строке,
// затем по переводу строки, затем по пробелу. Markdown-экранирование не разрывается.
func SplitMessage(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 {
		limit = messageLimit
	}

	runes := []rune(trimmed)
	var parts []string
	for len(runes) > limit {
		cut := splitPoint(runes, limit)
		if chunk := strings.TrimSpace(string(runes[:cut])); chunk != "" {
			parts = append(parts, chunk)
		}
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " \n"))
	}
	if chunk := strings.TrimSpace(string(runes)); chunk != "" {
		parts = append(parts, chunk)
	}
	return parts
}

func splitPoint(runes []rune, limit int) int {
	window := runes[:limit]
	// не дальше половины окна, иначе части получаются слишком мелкими
	floor := limit / 2
	if i := lastIndex(window, []rune("\n\n"), floor); i > 0 {
		return i
	}
	if i := lastIndex(window, []rune("\n"), floor); i > 0 {
		return i
	}
	if i := lastIndex(window, []rune(" "), floor); i > 0 {
		return i
	}
	cut := limit
	// висящий обратный слэш экранирует символ следующей части
	for cut > 1 && runes[cut-1] == '\\' {
		cut--
	}
	return cut
}

func lastIndex(window, sep []rune, floor int) int {
	for i := len(window) - len(sep); i >= floor; i-- {
		if string(window[i:i+len(sep)]) == string(sep) {
			return i
		}
	}
	return -1
}
