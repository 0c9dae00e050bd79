// Package handlers exposes the gateway's HTTP endpoints:
//   - POST /chat                           (streamed chat relay)
//   - POST /generate-goal-recommendations  (premium goal generator)
//   - GET  /realtime-voice                 (WebSocket voice relay)
//
// Handlers are transport-thin: they bind input, call the services and
// translate results into HTTP responses. Authentication and entitlement are
// resolved by middleware.AccessGuard before any handler runs.
package handlers

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/tbourn/connectai-gateway/internal/domain"
	"github.com/tbourn/connectai-gateway/internal/services"
	"github.com/tbourn/connectai-gateway/internal/voice"
)

//
// Service contracts (context-aware)
//

// ChatRelay opens an upstream chat stream for an entitled user.
type ChatRelay interface {
	Open(ctx context.Context, userID string, sub *domain.Subscription, msgs []domain.ChatMessage) (*services.ChatStream, error)
}

// GoalRecommender produces goal recommendations from questionnaire answers.
type GoalRecommender interface {
	Generate(ctx context.Context, userID string, answers domain.QuestionnaireAnswers) ([]domain.GoalRecommendation, error)
}

//
// Handler wiring
//

// Handlers groups the gateway endpoints.
type Handlers struct {
	chat     ChatRelay
	goals    GoalRecommender
	voice    voice.Config
	upgrader *websocket.Upgrader
}

// New constructs and returns a Handlers instance bound to the given services.
func New(chat ChatRelay, goals GoalRecommender, vc voice.Config) *Handlers {
	return &Handlers{chat: chat, goals: goals, voice: vc, upgrader: voice.NewUpgrader()}
}
