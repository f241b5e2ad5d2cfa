// Package phone приводит номера телефонов к единому виду для привязки аккаунтов.
//
// Бразильские мобильные номера приходят от провайдеров то с девяткой после кода
// региона (55 DD 9XXXX-XXXX), то без неё. Каноничной считается форма без девятки.
package phone

import "strings"

const (
	countryCode = "55"
	// длины номеров с кодом страны
	withNine    = 13
	withoutNine = 12
)

// Digits оставляет в строке только цифры.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize возвращает каноничную форму номера.
// Номер с "+" и чужим кодом страны возвращается только цифрами, без изменений;
// код 55 дописывается лишь к локальным номерам без "+".
func Normalize(raw string) string {
	digits := Digits(raw)
	if isInternational(raw, digits) {
		return digits
	}
	if len(digits) == 10 || len(digits) == 11 {
		digits = countryCode + digits
	}
	if isBrazilianMobileWithNine(digits) {
		return digits[:4] + digits[5:]
	}
	return digits
}

// Candidates возвращает каноничную форму и её вероятные варианты, каноничная — первой.
func Candidates(raw string) []string {
	canonical := Normalize(raw)
	if canonical == "" {
		return nil
	}
	out := []string{canonical}
	seen := map[string]struct{}{canonical: {}}
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(canonical) == withoutNine && strings.HasPrefix(canonical, countryCode) {
		add(canonical[:4] + "9" + canonical[4:])
	}
	add(Digits(raw))
	return out
}

// Mask скрывает номер для логов: код страны и последние 4 цифры.
func Mask(raw string) string {
	digits := Digits(raw)
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	prefix := ""
	if len(digits) >= withoutNine && strings.HasPrefix(digits, countryCode) {
		prefix = "+" + countryCode + " "
		digits = digits[len(countryCode):]
	}
	return prefix + strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

func isInternational(raw, digits string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "+") && !strings.HasPrefix(digits, countryCode)
}

func isBrazilianMobileWithNine(digits string) bool {
	return len(digits) == withNine && strings.HasPrefix(digits, countryCode) && digits[4] == '9'
}
