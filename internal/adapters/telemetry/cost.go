package telemetry

import "strings"

type modelRate struct {
	match       string
	matchPrefix bool
	inputRate   float64 // USD за токен
	outputRate  float64
}

// Порядок важен: более специфичные модели раньше общих.
var modelRates = []modelRate{
	{match: "gpt-4o-mini", matchPrefix: true, inputRate: 0.00000015, outputRate: 0.0000006},
	{match: "gpt-4o", matchPrefix: true, inputRate: 0.0000025, outputRate: 0.00001},
	{match: "gpt-4.1-nano", matchPrefix: true, inputRate: 0.0000001, outputRate: 0.0000004},
	{match: "gpt-4.1-mini", matchPrefix: true, inputRate: 0.0000004, outputRate: 0.0000016},
	{match: "gpt-4.1", matchPrefix: true, inputRate: 0.000002, outputRate: 0.000008},
	{match: "gpt-3.5", matchPrefix: true, inputRate: 0.0000005, outputRate: 0.0000015},
	{match: "whisper", matchPrefix: false, inputRate: 0, outputRate: 0},
}

func rateForModel(model string) (float64, float64, bool) {
	lower := strings.ToLower(model)
	for _, r := range modelRates {
		if r.matchPrefix {
			if strings.HasPrefix(lower, r.match) {
				return r.inputRate, r.outputRate, true
			}
		} else if strings.Contains(lower, r.match) {
			return r.inputRate, r.outputRate, true
		}
	}
	return 0, 0, false
}

// EstimateCostUSD оценивает стоимость вызова по таблице цен. Неизвестные модели считаются по дефолтной ставке.
func EstimateCostUSD(model string, promptTokens, completionTokens int) float64 {
	in, out, ok := rateForModel(model)
	if !ok {
		in, out = 0.000005, 0.000015
	}
	return float64(promptTokens)*in + float64(completionTokens)*out
}
