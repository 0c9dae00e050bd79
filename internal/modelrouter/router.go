// Package modelrouter picks the upstream model for a chat request from the
// caller's plan and the last user message. It performs no I/O.
package modelrouter

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/connectai-gateway/internal/domain"
)

// Model tiers served through the gateway.
const (
	ModelFast        = "google/gemini-2.5-flash"
	ModelBalanced    = "openai/gpt-5-mini"
	ModelBalancedPro = "google/gemini-2.5-pro"
	ModelFlagship    = "openai/gpt-5"
)

// LongFormThreshold is the message length (in characters) above which a
// request is treated as long-form regardless of wording.
const LongFormThreshold = 500

// ErrUpgradeRequired is returned when the plan cannot use the model the
// request calls for. VIP callers are not silently downgraded.
var ErrUpgradeRequired = errors.New("plan upgrade required for this request")

// Route is the routing decision for one request.
type Route struct {
	Model    string
	TaskType domain.TaskType
}

// allowed lists the models each plan may use, in substitution order.
var allowed = map[domain.PlanType][]string{
	domain.PlanFree:    {ModelFast, ModelBalanced, ModelBalancedPro, ModelFlagship},
	domain.PlanVIP:     {ModelFast},
	domain.PlanPremium: {ModelFast, ModelBalanced, ModelBalancedPro, ModelFlagship},
}

// premiumOnly are the models whose absence from a VIP allow-list is a
// monetization boundary rather than a technical substitution.
var premiumOnly = map[string]bool{
	ModelFlagship:    true,
	ModelBalancedPro: true,
}

// longFormMarkers are matched against the folded (lowercase, accent-free)
// message. Portuguese first, English second.
var longFormMarkers = []string{
	"escreva", "escrever", "redija", "redigir", "relatorio", "artigo", "ensaio",
	"estrategia", "plano detalhado", "planejamento completo", "persuasiv",
	"argumente", "analise profunda", "analise detalhada", "aprofund",
	"texto longo", "crie um roteiro", "explique detalhadamente",
	"write", "report", "essay", "article", "strategy", "persuasive",
	"in-depth", "in depth", "detailed analysis", "deep dive",
}

// Select classifies the message and returns the model the plan may use.
func Select(lastUserMessage string, plan domain.PlanType) (Route, error) {
	task, preferred := classify(lastUserMessage)

	list, ok := allowed[plan]
	if !ok {
		list = allowed[domain.PlanFree]
	}
	for _, m := range list {
		if m == preferred {
			return Route{Model: preferred, TaskType: task}, nil
		}
	}
	if plan == domain.PlanVIP && premiumOnly[preferred] {
		return Route{TaskType: task}, ErrUpgradeRequired
	}
	return Route{Model: list[0], TaskType: task}, nil
}

// Fallback returns the model retried once after the primary fails. The fast
// tier falls back to itself: vip is only allowed fast, so its one retry stays
// on the same model rather than crossing the plan boundary.
func Fallback(model string) string {
	if model == ModelFlagship {
		return ModelBalancedPro
	}
	return ModelFast
}

// LastUserMessage returns the content of the last user-role message, or "".
// System and assistant turns never influence routing.
func LastUserMessage(msgs []domain.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

func classify(msg string) (domain.TaskType, string) {
	if utf8.RuneCountInString(msg) > LongFormThreshold {
		return domain.TaskCreativeLongForm, ModelFlagship
	}
	folded := fold(msg)
	for _, k := range longFormMarkers {
		if strings.Contains(folded, k) {
			return domain.TaskCreativeLongForm, ModelFlagship
		}
	}
	return domain.TaskQuickResponse, ModelBalanced
}

// fold lowercases s and strips combining marks ("Análise" -> "analise").
// Casers and transformers are stateful, so both are built per call.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Lower(language.Und).String(out)
}
