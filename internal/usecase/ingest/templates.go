package ingest

import (
	"fmt"
	"strings"

	"bet-tracker-bot/internal/domain"
	"bet-tracker-bot/internal/usecase/betcalc"
)

// Reply — ответ пользователю в Markdown.
type Reply struct {
	Text string
	// RequestContact просит канал показать кнопку «поделиться контактом», если он её поддерживает.
	RequestContact bool
}

// Заголовки шаблонов бота. По ним WhatsApp-адаптер узнаёт собственные сообщения.
const (
	HeaderWelcome      = "Conta vinculada com sucesso"
	HeaderContact      = "Vincule sua conta"
	HeaderNotFound     = "Conta não encontrada"
	HeaderHelp         = "Como registrar sua aposta"
	HeaderPaywall      = "Limite diário atingido"
	HeaderConfirmation = "Aposta registrada"
	HeaderError        = "Não consegui processar sua mensagem"
)

// BotHeaders перечисляет все заголовки шаблонов.
var BotHeaders = []string{
	HeaderWelcome, HeaderContact, HeaderNotFound, HeaderHelp, HeaderPaywall, HeaderConfirmation, HeaderError,
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escape(s string) string {
	return markdownEscaper.Replace(s)
}

func welcomeReply(name string) Reply {
	greeting := "Olá!"
	if strings.TrimSpace(name) != "" {
		greeting = fmt.Sprintf("Olá, %s!", escape(strings.TrimSpace(name)))
	}
	return Reply{Text: fmt.Sprintf(`✅ *%s*

%s Agora é só me enviar suas apostas por aqui: texto, print do bilhete ou áudio.
Eu registro tudo automaticamente no seu painel.`, HeaderWelcome, greeting)}
}

func contactRequestReply(channel domain.Channel) Reply {
	if channel == domain.ChannelTelegram {
		return Reply{
			Text: fmt.Sprintf(`👋 *%s*

Para registrar apostas, toque no botão abaixo e compartilhe seu número de telefone.
Use o mesmo número cadastrado no painel.`, HeaderContact),
			RequestContact: true,
		}
	}
	return Reply{Text: fmt.Sprintf(`👋 *%s*

Não encontrei uma conta para este número.
Cadastre este número de WhatsApp no seu perfil do painel e envie a aposta novamente.`, HeaderContact)}
}

func notFoundReply() Reply {
	return Reply{Text: fmt.Sprintf(`❌ *%s*

Não existe conta cadastrada com este telefone.
Crie sua conta no painel com o mesmo número e compartilhe o contato de novo.`, HeaderNotFound)}
}

func helpReply() Reply {
	return Reply{Text: fmt.Sprintf(`🤔 *%s*

Não identifiquei uma aposta na sua mensagem. Envie, por exemplo:
• _Lakers vs Warriors - LeBron 25+ pontos - Odd 1.85 - R$ 50_
• um print do bilhete
• um áudio descrevendo a aposta

Informe jogo, mercado, odd e valor apostado.`, HeaderHelp)}
}

func paywallReply(limit int) Reply {
	return Reply{Text: fmt.Sprintf(`🚫 *%s*

Você já registrou %d apostas hoje, o limite do plano gratuito.
Assine o Premium para registrar apostas ilimitadas. O limite reinicia à meia-noite (horário de Brasília).`, HeaderPaywall, limit)}
}

func errorReply() Reply {
	return Reply{Text: fmt.Sprintf(`⚠️ *%s*

Tive um problema ao registrar sua aposta. Tente enviar novamente em alguns instantes.
Se preferir, descreva a aposta em texto: jogo, mercado, odd e valor.`, HeaderError)}
}

var betTypeLabels = map[domain.BetType]string{
	domain.BetSingle:   "Simples",
	domain.BetMultiple: "Múltipla",
	domain.BetSystem:   "Sistema",
}

func confirmationReply(res betcalc.Result) Reply {
	c := res.Candidate
	var b strings.Builder
	fmt.Fprintf(&b, "✅ *%s!*\n\n", HeaderConfirmation)

	label := betTypeLabels[res.BetType]
	if len(c.Matches) > 1 {
		label = fmt.Sprintf("%s (%d seleções)", label, len(c.Matches))
	}
	fmt.Fprintf(&b, "🎯 *Tipo:* %s\n", label)
	fmt.Fprintf(&b, "🏅 *Esporte:* %s\n", escape(c.Sport))
	if c.League != nil && strings.TrimSpace(*c.League) != "" {
		fmt.Fprintf(&b, "🏆 *Liga:* %s\n", escape(*c.League))
	}
	if len(c.Matches) == 1 {
		fmt.Fprintf(&b, "📋 *Jogo:* %s\n", escape(res.MatchDescription))
		fmt.Fprintf(&b, "🎲 *Seleção:* %s\n", escape(res.BetDescription))
	} else {
		b.WriteString("📋 *Seleções:*\n")
		for i, leg := range c.Matches {
			fmt.Fprintf(&b, "%d. %s - %s (%.2f)\n", i+1, escape(leg.Description), escape(leg.BetDescription), leg.Odds)
		}
	}
	fmt.Fprintf(&b, "📈 *Odd:* %s\n", res.CombinedOdds.StringFixed(2))
	fmt.Fprintf(&b, "💰 *Valor:* R$ %s\n", res.StakeAmount.StringFixed(2))
	fmt.Fprintf(&b, "💵 *Retorno potencial:* R$ %s", res.PotentialReturn.StringFixed(2))
	return Reply{Text: b.String()}
}
