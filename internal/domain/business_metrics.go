package domain

// Имена аналитических событий. Каждое терминальное состояние обработки сообщения
// отправляет ровно одно из событий исхода.
const (
	// EventBetCreated ставка сохранена.
	EventBetCreated = "bet_created"
	// EventExtractionSkipped текст отсеян префильтром и не ушёл в LLM.
	EventExtractionSkipped = "bet_extraction_skipped"
	// EventExtractionFailed LLM не смог извлечь ставку.
	EventExtractionFailed = "bet_extraction_failed"
	// EventBetExtracted LLM вернул валидного кандидата.
	EventBetExtracted = "bet_extracted"
	// EventDailyLimitReached бесплатный лимит исчерпан, показан пейволл.
	EventDailyLimitReached = "daily_limit_reached"
	// EventOddsClamped коэффициент ноги был обрезан до потолка.
	EventOddsClamped = "bet_odds_clamped"
	// EventContactLinked аккаунт привязан по номеру телефона.
	EventContactLinked = "contact_linked"
	// EventContactNotFound по номеру из контакта аккаунт не найден.
	EventContactNotFound = "contact_not_found"
	// EventAccountNotLinked сообщение пришло из непривязанного чата.
	EventAccountNotLinked = "account_not_linked"
	// EventProcessingError необработанная ошибка в пайплайне.
	EventProcessingError = "message_processing_error"
	// EventDuplicateUpdate повторная доставка апдейта.
	EventDuplicateUpdate = "duplicate_update"
	// EventMediaTranscribed голосовое распознано.
	EventMediaTranscribed = "media_transcribed"
	// EventMediaDescribed скриншот купона описан.
	EventMediaDescribed = "media_described"
	// EventMediaFailed ошибка адаптера медиа.
	EventMediaFailed = "media_adapter_failed"
	// EventLLMGeneration служебное событие стоимости генерации.
	EventLLMGeneration = "$ai_generation"
)
