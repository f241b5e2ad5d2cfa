package log

import "regexp"

// токен бота в путях Bot API: /bot<id>:<secret>/...
var botTokenPath = regexp.MustCompile(`/bot\d+:[A-Za-z0-9_-]+`)

// Redact вырезает токены ботов из строки перед логированием, аналитикой или записью в БД.
func Redact(s string) string {
	return botTokenPath.ReplaceAllString(s, "/bot<redacted>")
}

// RedactedError прячет токены в тексте ошибки, сохраняя цепочку для errors.Is/As.
type RedactedError struct {
	Err error
}

func (e *RedactedError) Error() string { return Redact(e.Err.Error()) }

func (e *RedactedError) Unwrap() error { return e.Err }

// RedactError оборачивает err в RedactedError. nil остаётся nil.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	return &RedactedError{Err: err}
}
