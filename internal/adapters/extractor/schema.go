package extractor

import "encoding/json"

const schemaName = "bet_extraction"

var betSchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["bet_type", "sport", "league", "matches", "stake_amount", "bet_date", "odds_are_individual"],
  "properties": {
    "bet_type": {"type": "string", "enum": ["single", "multiple", "system"]},
    "sport": {"type": "string"},
    "league": {"type": ["string", "null"]},
    "matches": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["description", "bet_description", "odds", "match_date", "is_combined_odd"],
        "properties": {
          "description": {"type": "string"},
          "bet_description": {"type": "string"},
          "odds": {"type": "number", "minimum": 1.01},
          "match_date": {"type": ["string", "null"]},
          "is_combined_odd": {"type": "boolean"}
        }
      }
    },
    "stake_amount": {"type": "number", "minimum": 0},
    "bet_date": {"type": "string"},
    "odds_are_individual": {"type": "boolean"}
  }
}`)

const multiplyOddsTool = "multiply_odds"

var multiplyOddsParams = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["odds"],
  "properties": {
    "odds": {"type": "array", "items": {"type": "number"}, "description": "Odds individuais de cada seleção"}
  }
}`)

const systemPrompt = `Você é um assistente que extrai apostas esportivas de mensagens de usuários brasileiros.
Responda apenas com o JSON do esquema fornecido.

Regras:
- Se houver exatamente um resultado apostado, use bet_type "single" com uma única entrada em matches.
- Se um grupo listar várias seleções individuais com UMA odd combinada, crie uma entrada por seleção com is_combined_odd=false e as odds individuais quando informadas.
- Se houver vários grupos independentes e cada um já tiver sua própria odd combinada, trate cada grupo como uma entrada com is_combined_odd=true.
- odds_are_individual=true quando as odds das entradas precisam ser multiplicadas para obter a odd total.
- Se estiver em dúvida se as odds já estão combinadas, use a ferramenta multiply_odds para calcular o produto.
- stake_amount é o valor apostado em reais (0 se não informado). Odds usam ponto decimal.
- bet_date é a data da aposta no formato YYYY-MM-DD; use a data de hoje se não houver outra.
- match_date no formato YYYY-MM-DD ou null.
- sport em português (ex.: "Futebol", "Basquete", "Tênis"); league é null quando não informada.`
