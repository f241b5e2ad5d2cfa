// Package ingest превращает входящее сообщение любого канала в ноль или одну сохранённую ставку
// и всегда отвечает пользователю ровно одним сообщением.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bet-tracker-bot/internal/domain"
	applog "bet-tracker-bot/internal/infra/log"
	"bet-tracker-bot/internal/infra/metrics"
	"bet-tracker-bot/internal/usecase/betcalc"
	"bet-tracker-bot/internal/usecase/phone"
)

// ChannelAdapter скрывает различия мессенджеров.
type ChannelAdapter interface {
	Channel() domain.Channel
	Send(ctx context.Context, chatID string, reply Reply) error
	// ResolveMediaURL превращает ссылку провайдера на файл в URL, который можно скачать.
	ResolveMediaURL(ctx context.Context, media domain.Media) (string, error)
	// IsEcho сообщает, что сообщение отправил сам бот или оператор.
	IsEcho(msg domain.InboundMessage) bool
}

// Outcome — терминальный исход обработки сообщения.
type Outcome string

const (
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeEcho            Outcome = "echo"
	OutcomeIgnored         Outcome = "ignored"
	OutcomeCommand         Outcome = "command"
	OutcomeContactLinked   Outcome = "contact_linked"
	OutcomeContactNotFound Outcome = "contact_not_found"
	OutcomeNotLinked       Outcome = "account_not_linked"
	OutcomeNotABet         Outcome = "not_a_bet"
	OutcomeLimitReached    Outcome = "daily_limit_reached"
	OutcomeBetCreated      Outcome = "bet_created"
	OutcomeError           Outcome = "error"
)

const notABetReason = "mensagem não reconhecida como aposta"

type quotaGate interface {
	HasReachedLimit(ctx context.Context, userID string) (bool, error)
	Window(user domain.User) domain.QuotaWindow
}

// Deps — зависимости оркестратора. Dedup и Publisher необязательны.
type Deps struct {
	Users     domain.UserRepo
	Bets      domain.BetRepo
	Queue     domain.MessageQueueRepo
	Dedup     domain.Deduplicator
	Extractor domain.BetExtractor
	Media     domain.MediaAdapter
	Gate      quotaGate
	Telemetry domain.Telemetry
	Publisher domain.BetEventPublisher
}

// Service — единый для всех каналов конвейер обработки.
type Service struct {
	Deps
	locks *userLocks
	log   zerolog.Logger
	now   func() time.Time
}

// NewService создаёт оркестратор.
func NewService(deps Deps, logger zerolog.Logger) *Service {
	return &Service{Deps: deps, locks: newUserLocks(), log: logger, now: time.Now}
}

// Handle обрабатывает одно входящее сообщение. Ошибки не возвращаются: каждая ветка
// заканчивается ответом пользователю и исходом для вебхука.
func (s *Service) Handle(ctx context.Context, adapter ChannelAdapter, msg domain.InboundMessage) Outcome {
	start := time.Now()
	channel := adapter.Channel()
	msg.Channel = channel
	outcome := s.handle(ctx, adapter, msg)
	metrics.IncOutcome(string(channel), string(outcome))
	metrics.ObserveIngest(string(channel), start)
	s.log.Info().
		Str("channel", string(channel)).
		Str("update_id", msg.UpdateID).
		Str("outcome", string(outcome)).
		Dur("took", time.Since(start)).
		Msg("ingest: сообщение обработано")
	return outcome
}

func (s *Service) handle(ctx context.Context, adapter ChannelAdapter, msg domain.InboundMessage) Outcome {
	if adapter.IsEcho(msg) {
		return OutcomeEcho
	}
	if s.Dedup != nil && msg.UpdateID != "" {
		first, err := s.Dedup.FirstSeen(ctx, msg.Channel, msg.UpdateID)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("update_id", msg.UpdateID).Msg("ingest: дедупликация недоступна, обрабатываем")
		case !first:
			s.Telemetry.Track(ctx, domain.EventDuplicateUpdate, map[string]any{"channel": string(msg.Channel)}, msg.ExternalUserID, "")
			return OutcomeDuplicate
		}
	}

	traceID := uuid.NewString()
	if msg.Contact != nil {
		return s.linkContact(ctx, adapter, msg, traceID)
	}

	user, outcome, ok := s.resolveUser(ctx, adapter, msg, traceID)
	if !ok {
		return outcome
	}

	switch msg.Command {
	case "start", "help", "ajuda":
		s.reply(ctx, adapter, msg.ChatID, helpReply())
		return OutcomeCommand
	}
	if strings.TrimSpace(msg.Text) == "" && msg.Media == nil {
		s.reply(ctx, adapter, msg.ChatID, helpReply())
		return OutcomeIgnored
	}

	unlock, err := s.locks.Lock(ctx, user.ID)
	if err != nil {
		return s.fail(ctx, adapter, msg, user.ID, "", traceID, fmt.Errorf("wait user lock: %w", err))
	}
	defer unlock()
	return s.process(ctx, adapter, msg, user, traceID)
}

func (s *Service) linkContact(ctx context.Context, adapter ChannelAdapter, msg domain.InboundMessage, traceID string) Outcome {
	shared := msg.Contact
	// чужой контакт не даёт права привязать аккаунт
	if shared.ExternalUserID != "" && msg.ExternalUserID != "" && shared.ExternalUserID != msg.ExternalUserID {
		s.reply(ctx, adapter, msg.ChatID, contactRequestReply(msg.Channel))
		return OutcomeNotLinked
	}
	masked := phone.Mask(shared.Phone)
	user, err := s.Users.FindByPhones(ctx, phone.Candidates(shared.Phone))
	if errors.Is(err, domain.ErrUserNotFound) {
		s.log.Info().Str("phone", masked).Msg("ingest: аккаунт по контакту не найден")
		s.Telemetry.Track(ctx, domain.EventContactNotFound, map[string]any{"channel": string(msg.Channel)}, msg.ExternalUserID, traceID)
		s.reply(ctx, adapter, msg.ChatID, notFoundReply())
		return OutcomeContactNotFound
	}
	if err != nil {
		return s.fail(ctx, adapter, msg, "", "", traceID, fmt.Errorf("find user by phone: %w", err))
	}
	if err := s.link(ctx, user, msg, shared.Phone, "contact_share"); err != nil {
		return s.fail(ctx, adapter, msg, user.ID, "", traceID, err)
	}
	s.log.Info().Str("user_id", user.ID).Str("phone", masked).Msg("ingest: аккаунт привязан")
	s.reply(ctx, adapter, msg.ChatID, welcomeReply(user.Name))
	return OutcomeContactLinked
}

// resolveUser находит владельца чата. ok=false означает, что ответ уже отправлен.
func (s *Service) resolveUser(ctx context.Context, adapter ChannelAdapter, msg domain.InboundMessage, traceID string) (domain.User, Outcome, bool) {
	user, err := s.Users.FindByLink(ctx, msg.Channel, msg.ExternalUserID, msg.ChatID)
	if err == nil {
		return user, "", true
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, s.fail(ctx, adapter, msg, "", "", traceID, fmt.Errorf("find user by link: %w", err)), false
	}

	if msg.VerifiedPhone != "" {
		user, err = s.Users.FindByPhones(ctx, phone.Candidates(msg.VerifiedPhone))
		switch {
		case err == nil:
			if err := s.link(ctx, user, msg, msg.VerifiedPhone, "verified_phone"); err != nil {
				return domain.User{}, s.fail(ctx, adapter, msg, user.ID, "", traceID, err), false
			}
			return user, "", true
		case !errors.Is(err, domain.ErrUserNotFound):
			return domain.User{}, s.fail(ctx, adapter, msg, "", "", traceID, fmt.Errorf("find user by phone: %w", err)), false
		}
	}

	s.Telemetry.Track(ctx, domain.EventAccountNotLinked, map[string]any{"channel": string(msg.Channel)}, msg.ExternalUserID, traceID)
	s.reply(ctx, adapter, msg.ChatID, contactRequestReply(msg.Channel))
	return domain.User{}, OutcomeNotLinked, false
}

func (s *Service) link(ctx context.Context, user domain.User, msg domain.InboundMessage, rawPhone, source string) error {
	link := domain.ChannelLink{
		UserID:           user.ID,
		Channel:          msg.Channel,
		ExternalUserID:   msg.ExternalUserID,
		ExternalChatID:   msg.ChatID,
		ExternalUsername: msg.ExternalUsername,
		Phone:            phone.Normalize(rawPhone),
		Synced:           true,
		SyncedAt:         s.now().UTC(),
		SyncSource:       source,
	}
	if err := s.Users.UpsertLink(ctx, link); err != nil {
		return fmt.Errorf("upsert channel link: %w", err)
	}
	s.Telemetry.Track(ctx, domain.EventContactLinked, map[string]any{
		"channel": string(msg.Channel),
		"source":  source,
	}, user.ID, "")
	s.Telemetry.Identify(ctx, user.ID, map[string]any{string(msg.Channel) + "_linked": true})
	return nil
}

func (s *Service) process(ctx context.Context, adapter ChannelAdapter, msg domain.InboundMessage, user domain.User, traceID string) (outcome Outcome) {
	var queueID string
	defer func() {
		if r := recover(); r != nil {
			outcome = s.fail(ctx, adapter, msg, user.ID, queueID, traceID, fmt.Errorf("panic: %v", r))
		}
	}()

	meta := domain.ExtractMeta{UserID: user.ID, TraceID: traceID, Channel: msg.Channel, Source: domain.MessageText}
	content, mediaURL, err := s.effectiveContent(ctx, adapter, msg, &meta)
	if err != nil {
		return s.fail(ctx, adapter, msg, user.ID, "", traceID, err)
	}

	queued, err := s.Queue.EnqueueMessage(ctx, domain.QueuedMessage{
		UserID:   user.ID,
		Kind:     meta.Source,
		Content:  content,
		MediaURL: mediaURL,
		Status:   domain.QueuePending,
		Channel:  msg.Channel,
	})
	if err != nil {
		return s.fail(ctx, adapter, msg, user.ID, "", traceID, fmt.Errorf("enqueue message: %w", err))
	}
	queueID = queued.ID
	if err := s.Queue.UpdateMessageStatus(ctx, queueID, domain.QueueProcessing, ""); err != nil {
		return s.fail(ctx, adapter, msg, user.ID, queueID, traceID, fmt.Errorf("mark processing: %w", err))
	}

	candidate, err := s.Extractor.Extract(ctx, content, meta)
	if err != nil {
		return s.fail(ctx, adapter, msg, user.ID, queueID, traceID, fmt.Errorf("extract bet: %w", err))
	}
	if candidate == nil {
		s.setStatus(ctx, queueID, domain.QueueFailed, notABetReason)
		s.reply(ctx, adapter, msg.ChatID, helpReply())
		return OutcomeNotABet
	}

	res, warnings := betcalc.Normalize(*candidate)
	for _, w := range warnings {
		if w.Kind != betcalc.WarningOddsClamped {
			continue
		}
		s.Telemetry.Track(ctx, domain.EventOddsClamped, map[string]any{
			"leg":           w.LegIndex + 1,
			"original_odd":  w.Original,
			"clamped_odd":   w.Adjusted,
			"channel":       string(msg.Channel),
			"queue_message": queueID,
		}, user.ID, traceID)
	}

	reached, err := s.Gate.HasReachedLimit(ctx, user.ID)
	if err != nil {
		return s.fail(ctx, adapter, msg, user.ID, queueID, traceID, fmt.Errorf("check daily limit: %w", err))
	}
	if reached {
		return s.limitReached(ctx, adapter, msg, user.ID, queueID, traceID)
	}

	bet, err := s.Bets.CreateBet(ctx, domain.NewBet{
		Bet:  s.buildBet(user.ID, msg.Channel, content, res, warnings),
		Legs: res.Legs,
	}, s.Gate.Window(user))
	if errors.Is(err, domain.ErrDailyLimitReached) {
		return s.limitReached(ctx, adapter, msg, user.ID, queueID, traceID)
	}
	if err != nil {
		return s.fail(ctx, adapter, msg, user.ID, queueID, traceID, fmt.Errorf("create bet: %w", err))
	}

	s.setStatus(ctx, queueID, domain.QueueCompleted, "")
	s.Telemetry.Track(ctx, domain.EventBetCreated, map[string]any{
		"bet_id":           bet.ID,
		"bet_type":         string(bet.BetType),
		"sport":            bet.Sport,
		"legs":             len(res.Candidate.Matches),
		"odds":             bet.Odds,
		"stake_amount":     bet.StakeAmount,
		"potential_return": bet.PotentialReturn,
		"channel":          string(msg.Channel),
		"source":           string(meta.Source),
	}, user.ID, traceID)
	s.publish(ctx, bet, len(res.Candidate.Matches))
	s.reply(ctx, adapter, msg.ChatID, confirmationReply(res))
	return OutcomeBetCreated
}

// effectiveContent прогоняет вложение через медиа-адаптер и дописывает подпись после результата.
// Вторым значением возвращается ссылка на вложение для очереди, без секретов провайдера.
func (s *Service) effectiveContent(ctx context.Context, adapter ChannelAdapter, msg domain.InboundMessage, meta *domain.ExtractMeta) (string, string, error) {
	caption := strings.TrimSpace(msg.Text)
	if msg.Media == nil {
		return caption, "", nil
	}
	url, err := adapter.ResolveMediaURL(ctx, *msg.Media)
	if err != nil {
		return "", "", fmt.Errorf("resolve media url: %w", err)
	}
	ref := mediaRef(msg.Channel, *msg.Media, url)

	var derived string
	switch mediaKind(*msg.Media) {
	case domain.MessageAudio:
		meta.Source = domain.MessageAudio
		derived, err = s.Media.Transcribe(ctx, url, *meta)
	case domain.MessageImage:
		meta.Source = domain.MessageImage
		derived, err = s.Media.DescribeBetSlip(ctx, url, *meta)
	default:
		// неподдерживаемый документ: работаем только с подписью
		return caption, ref, nil
	}
	if err != nil {
		return "", ref, err
	}
	derived = strings.TrimSpace(derived)
	switch {
	case derived == "":
		return caption, ref, nil
	case caption == "":
		return derived, ref, nil
	default:
		return derived + "\n\n" + caption, ref, nil
	}
}

// mediaRef возвращает ссылку на вложение для хранения. Прямой URL файла Telegram содержит
// токен бота, поэтому хранится идентификатор файла: tg-file:<file_id>.
func mediaRef(channel domain.Channel, media domain.Media, resolved string) string {
	if media.FileRef == "" {
		return applog.Redact(resolved)
	}
	if channel == domain.ChannelTelegram {
		return "tg-file:" + media.FileRef
	}
	return string(channel) + "-file:" + media.FileRef
}

func mediaKind(m domain.Media) domain.MessageKind {
	switch m.Kind {
	case domain.MediaAudio:
		return domain.MessageAudio
	case domain.MediaImage:
		return domain.MessageImage
	}
	mime := strings.ToLower(m.MimeType)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return domain.MessageImage
	case strings.HasPrefix(mime, "audio/"):
		return domain.MessageAudio
	}
	return domain.MessageText
}

type processedSnapshot struct {
	Candidate       domain.CandidateBet `json:"candidate"`
	CombinedOdds    string              `json:"combined_odds"`
	PotentialReturn string              `json:"potential_return"`
	Warnings        []string            `json:"warnings,omitempty"`
}

func (s *Service) buildBet(userID string, channel domain.Channel, raw string, res betcalc.Result, warnings []betcalc.Warning) domain.Bet {
	snapshot := processedSnapshot{
		Candidate:       res.Candidate,
		CombinedOdds:    res.CombinedOdds.String(),
		PotentialReturn: res.PotentialReturn.String(),
	}
	for _, w := range warnings {
		snapshot.Warnings = append(snapshot.Warnings, w.String())
	}
	processed, err := json.Marshal(snapshot)
	if err != nil {
		processed = nil
	}
	return domain.Bet{
		UserID:           userID,
		BetType:          res.BetType,
		Sport:            res.Candidate.Sport,
		League:           res.Candidate.League,
		MatchDescription: res.MatchDescription,
		BetDescription:   res.BetDescription,
		Odds:             res.CombinedOdds.InexactFloat64(),
		StakeAmount:      res.StakeAmount.InexactFloat64(),
		PotentialReturn:  res.PotentialReturn.InexactFloat64(),
		BetDate:          s.now().UTC(),
		MatchDate:        firstMatchDate(res.Candidate.Matches),
		RawInput:         raw,
		ProcessedData:    processed,
		Channel:          channel,
		Status:           domain.BetPending,
	}
}

func firstMatchDate(legs []domain.MatchLeg) *time.Time {
	for _, leg := range legs {
		if leg.MatchDate == nil {
			continue
		}
		value := strings.TrimSpace(*leg.MatchDate)
		for _, layout := range []string{"2006-01-02", time.RFC3339, "02/01/2006"} {
			if t, err := time.ParseInLocation(layout, value, domain.QuotaZone); err == nil {
				return &t
			}
		}
	}
	return nil
}

func (s *Service) limitReached(ctx context.Context, adapter ChannelAdapter, msg domain.InboundMessage, userID, queueID, traceID string) Outcome {
	s.setStatus(ctx, queueID, domain.QueueCompleted, "daily limit reached")
	s.Telemetry.Track(ctx, domain.EventDailyLimitReached, map[string]any{
		"channel": string(msg.Channel),
		"limit":   domain.DailyBetLimit,
	}, userID, traceID)
	s.reply(ctx, adapter, msg.ChatID, paywallReply(domain.DailyBetLimit))
	return OutcomeLimitReached
}

func (s *Service) publish(ctx context.Context, bet domain.Bet, legs int) {
	if s.Publisher == nil {
		return
	}
	evt := domain.BetCreatedEvent{
		EventID:         uuid.NewString(),
		BetID:           bet.ID,
		UserID:          bet.UserID,
		Channel:         bet.Channel,
		BetType:         bet.BetType,
		Sport:           bet.Sport,
		Odds:            bet.Odds,
		StakeAmount:     bet.StakeAmount,
		PotentialReturn: bet.PotentialReturn,
		Legs:            legs,
		CreatedAt:       bet.CreatedAt,
	}
	if err := s.Publisher.PublishBetCreated(ctx, evt); err != nil {
		s.log.Warn().Err(err).Str("bet_id", bet.ID).Msg("ingest: не удалось опубликовать bet_created")
	}
}

func (s *Service) fail(ctx context.Context, adapter ChannelAdapter, msg domain.InboundMessage, userID, queueID, traceID string, err error) Outcome {
	// текст ошибки уходит в лог, аналитику и БД
	errText := applog.Redact(err.Error())
	s.log.Error().Str("error", errText).
		Str("channel", string(msg.Channel)).
		Str("update_id", msg.UpdateID).
		Str("user_id", userID).
		Msg("ingest: ошибка обработки сообщения")
	if queueID != "" {
		s.setStatus(ctx, queueID, domain.QueueFailed, errText)
	}
	distinct := userID
	if distinct == "" {
		distinct = msg.ExternalUserID
	}
	s.Telemetry.Track(ctx, domain.EventProcessingError, map[string]any{
		"channel": string(msg.Channel),
		"error":   errText,
	}, distinct, traceID)
	s.reply(ctx, adapter, msg.ChatID, errorReply())
	return OutcomeError
}

func (s *Service) setStatus(ctx context.Context, queueID string, status domain.QueueStatus, note string) {
	if queueID == "" {
		return
	}
	if err := s.Queue.UpdateMessageStatus(ctx, queueID, status, note); err != nil {
		s.log.Error().Err(err).Str("queue_id", queueID).Str("status", string(status)).Msg("ingest: не удалось обновить статус очереди")
	}
}

func (s *Service) reply(ctx context.Context, adapter ChannelAdapter, chatID string, reply Reply) {
	if err := adapter.Send(ctx, chatID, reply); err != nil {
		metrics.IncSendError(string(adapter.Channel()))
		s.log.Error().Err(err).Str("chat_id", chatID).Msg("ingest: не удалось отправить ответ")
	}
}
