package extractor

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const minBetTextRunes = 10

var greetings = map[string]struct{}{
	"oi": {}, "ola": {}, "oie": {}, "opa": {}, "salve": {}, "eai": {}, "e ai": {},
	"bom dia": {}, "boa tarde": {}, "boa noite": {}, "tudo bem": {}, "tudo bom": {},
	"obrigado": {}, "obrigada": {}, "valeu": {}, "vlw": {}, "ok": {}, "blz": {}, "beleza": {},
	"hello": {}, "hi": {}, "hey": {}, "thanks": {},
}

// ищутся как подстрока
var betKeywords = []string{
	"odd", "apost", "bet", "stake", "r$", "reais", "over", "under", "gol", "pont", "pts",
	"handicap", "escanteio", "cartao", "vence", "vitoria", "empate", "ambas", "multipla",
	"simples", "bilhete", "cotacao", "unidade",
}

// ищутся как отдельное слово
var betWordKeywords = map[string]struct{}{
	"x": {}, "vs": {}, "ml": {}, "btts": {}, "ah": {},
}

// foldText приводит текст к нижнему регистру без диакритики: "Olá" -> "ola".
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// skipReason возвращает причину, по которой текст точно не ставка, или пустую строку.
func skipReason(text string) string {
	folded := foldText(text)
	if folded == "" {
		return "empty"
	}
	greeting := strings.TrimRightFunc(folded, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
	})
	if _, ok := greetings[greeting]; ok {
		return "greeting"
	}
	if len([]rune(folded)) < minBetTextRunes && !containsDigit(folded) && !containsKeyword(folded) {
		return "too_short"
	}
	return ""
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func containsKeyword(folded string) bool {
	for _, kw := range betKeywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, ok := betWordKeywords[w]; ok {
			return true
		}
	}
	return false
}
