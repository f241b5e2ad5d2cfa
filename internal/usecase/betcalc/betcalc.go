// Package betcalc проверяет коэффициенты кандидата в ставку и считает производные поля.
package betcalc

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"bet-tracker-bot/internal/domain"
)

const (
	// OddsCeiling — выше этого коэффициент ноги считается ошибкой распознавания.
	OddsCeiling = 20.0
	// OddsFloor — минимальный допустимый коэффициент.
	OddsFloor = 1.01
	// DescriptionSeparator соединяет описания ног в сводной строке.
	DescriptionSeparator = " • "
)

var (
	ceiling = decimal.NewFromFloat(OddsCeiling)
	floor   = decimal.NewFromFloat(OddsFloor)
)

// WarningKind тип исправления, внесённого при нормализации.
type WarningKind string

const (
	WarningOddsClamped    WarningKind = "odds_clamped"
	WarningOddsRaised     WarningKind = "odds_raised"
	WarningTypeOverridden WarningKind = "type_overridden"
)

// Warning описывает одно исправление кандидата.
type Warning struct {
	Kind     WarningKind
	LegIndex int
	Original float64
	Adjusted float64
}

func (w Warning) String() string {
	switch w.Kind {
	case WarningTypeOverridden:
		return "bet type overridden to multiple"
	default:
		return fmt.Sprintf("leg %d: odds %v -> %v", w.LegIndex+1, w.Original, w.Adjusted)
	}
}

// Result — нормализованная ставка, готовая к сохранению.
type Result struct {
	Candidate        domain.CandidateBet
	BetType          domain.BetType
	CombinedOdds     decimal.Decimal
	StakeAmount      decimal.Decimal
	PotentialReturn  decimal.Decimal
	MatchDescription string
	BetDescription   string
	Legs             []domain.BetLeg
}

// Normalize исправляет коэффициенты, уточняет тип и считает итоговый коэффициент и выплату.
// Входной кандидат не изменяется.
func Normalize(c domain.CandidateBet) (Result, []Warning) {
	var warnings []Warning

	legs := make([]domain.MatchLeg, len(c.Matches))
	multi := len(c.Matches) > 1
	for i, leg := range c.Matches {
		if multi {
			leg.Description = sanitize(leg.Description)
			leg.BetDescription = sanitize(leg.BetDescription)
		}
		odd := decimal.NewFromFloat(leg.Odds)
		switch {
		case odd.GreaterThan(ceiling):
			original := leg.Odds
			leg.OriginalOdd = &original
			leg.Odds = OddsCeiling
			warnings = append(warnings, Warning{Kind: WarningOddsClamped, LegIndex: i, Original: original, Adjusted: OddsCeiling})
		case odd.LessThan(floor):
			warnings = append(warnings, Warning{Kind: WarningOddsRaised, LegIndex: i, Original: leg.Odds, Adjusted: OddsFloor})
			leg.Odds = OddsFloor
		}
		legs[i] = leg
	}

	normalized := c
	normalized.Matches = legs
	if len(legs) > 1 && normalized.BetType == domain.BetSingle {
		normalized.BetType = domain.BetMultiple
		warnings = append(warnings, Warning{Kind: WarningTypeOverridden, LegIndex: -1})
	}
	if normalized.BetType == "" {
		normalized.BetType = domain.BetSingle
	}

	combined := CombinedOdds(legs)
	stake := decimal.NewFromFloat(c.StakeAmount)
	if stake.IsNegative() {
		stake = decimal.Zero
	}
	normalized.StakeAmount = stake.InexactFloat64()

	res := Result{
		Candidate:       normalized,
		BetType:         normalized.BetType,
		CombinedOdds:    combined,
		StakeAmount:     stake,
		PotentialReturn: stake.Mul(combined),
	}
	res.MatchDescription, res.BetDescription = aggregate(legs)
	if normalized.BetType == domain.BetMultiple && len(legs) > 1 {
		res.Legs = make([]domain.BetLeg, len(legs))
		for i, leg := range legs {
			res.Legs[i] = domain.BetLeg{
				LegNumber:        i + 1,
				Sport:            normalized.Sport,
				MatchDescription: leg.Description,
				BetDescription:   leg.BetDescription,
				Odds:             leg.Odds,
				Status:           domain.BetPending,
			}
		}
	}
	return res, warnings
}

// CombinedOdds перемножает коэффициенты ног без округления. Для пустого списка возвращает 1.
func CombinedOdds(legs []domain.MatchLeg) decimal.Decimal {
	product := decimal.NewFromInt(1)
	for _, leg := range legs {
		product = product.Mul(decimal.NewFromFloat(leg.Odds))
	}
	return product
}

// SplitBetDescription разбирает сводное описание обратно на описания ног.
func SplitBetDescription(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, DescriptionSeparator)
}

func aggregate(legs []domain.MatchLeg) (string, string) {
	switch len(legs) {
	case 0:
		return "", ""
	case 1:
		return legs[0].Description, legs[0].BetDescription
	}
	matches := make([]string, len(legs))
	bets := make([]string, len(legs))
	for i, leg := range legs {
		matches[i] = leg.Description
		bets[i] = leg.BetDescription
	}
	match := fmt.Sprintf("Múltipla com %d seleções: %s", len(legs), strings.Join(matches, DescriptionSeparator))
	return match, strings.Join(bets, DescriptionSeparator)
}

// sanitize убирает разделитель из текста ноги, чтобы сводка экспресса однозначно разбиралась обратно.
// Одиночная ставка не склеивается, её текст остаётся как есть.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, strings.TrimSpace(DescriptionSeparator), "-")
}
