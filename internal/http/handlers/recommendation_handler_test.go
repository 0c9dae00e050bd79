package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/connectai-gateway/internal/domain"
	"github.com/tbourn/connectai-gateway/internal/http/middleware"
	"github.com/tbourn/connectai-gateway/internal/services"
)

type stubRecommender struct {
	calls   int
	userID  string
	answers domain.QuestionnaireAnswers
	recs    []domain.GoalRecommendation
	err     error
}

func (s *stubRecommender) Generate(_ context.Context, userID string, a domain.QuestionnaireAnswers) ([]domain.GoalRecommendation, error) {
	s.calls++
	s.userID, s.answers = userID, a
	return s.recs, s.err
}

func goalsRouter(rec GoalRecommender) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(nil, rec, voiceConfigForTests())
	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/generate-goal-recommendations", func(c *gin.Context) {
		c.Set(middleware.CtxUserID, "premium-user")
		c.Next()
	}, h.GenerateGoalRecommendations)
	return r
}

// answersJSON returns a complete questionnaire, minus the named fields.
func answersJSON(t *testing.T, drop ...string) string {
	t.Helper()
	a := map[string]string{
		"objective":       "Perder 5kg",
		"currentActivity": "Caminho 2x por semana",
		"sleepHours":      "6 horas",
		"waterIntake":     "1 litro",
		"dietQuality":     "Regular",
		"stressLevel":     "Alto",
		"healthConcerns":  "Nenhuma",
		"availableTime":   "30 minutos por dia",
	}
	for _, k := range drop {
		delete(a, k)
	}
	b, err := json.Marshal(map[string]any{"answers": a})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestGenerateGoalRecommendations_Success(t *testing.T) {
	rec := &stubRecommender{recs: []domain.GoalRecommendation{{
		Title:             "Beber 2 litros de água",
		Category:          domain.CategoryHydration,
		TargetValue:       2,
		Unit:              "litros",
		DurationDays:      30,
		ReminderFrequency: "daily",
	}}}
	w := postJSON(goalsRouter(rec), "/generate-goal-recommendations", answersJSON(t))

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp RecommendationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Recommendations) != 1 || resp.Recommendations[0].Category != domain.CategoryHydration {
		t.Fatalf("unexpected response %+v", resp)
	}
	if rec.userID != "premium-user" || rec.answers.SleepHours != "6 horas" {
		t.Fatalf("service got user=%q answers=%+v", rec.userID, rec.answers)
	}
}

func TestGenerateGoalRecommendations_ValidationNamesField(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		details string
	}{
		{"missing field", answersJSON(t, "sleepHours"), "sleepHours: campo obrigatório"},
		{"first missing wins", answersJSON(t, "objective", "availableTime"), "objective: campo obrigatório"},
		{"no answers", `{}`, "objective: campo obrigatório"},
		{"too long", strings.Replace(answersJSON(t), "Regular", strings.Repeat("x", 501), 1), "dietQuality: máximo de 500 caracteres"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &stubRecommender{}
			w := postJSON(goalsRouter(rec), "/generate-goal-recommendations", tc.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
			}
			er := errorBody(t, w)
			if er.Error != MsgInvalidAnswers || er.Details != tc.details {
				t.Fatalf("unexpected body %+v; want details %q", er, tc.details)
			}
			if rec.calls != 0 {
				t.Fatalf("service called for invalid questionnaire")
			}
		})
	}
}

func TestGenerateGoalRecommendations_MalformedJSON(t *testing.T) {
	rec := &stubRecommender{}
	w := postJSON(goalsRouter(rec), "/generate-goal-recommendations", `{"answers":`)
	if w.Code != http.StatusBadRequest || errorBody(t, w).Error != MsgInvalidBody {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestGenerateGoalRecommendations_ServiceErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter string
	}{
		{"quota", &services.RateLimitError{Purpose: domain.PurposeRecommendation, RetryAfter: 42 * time.Minute}, http.StatusTooManyRequests, ErrCodeRateLimited, "2520"},
		{"format", services.ErrUpstreamFormat, http.StatusInternalServerError, ErrCodeInvalidAIResponse, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(goalsRouter(&stubRecommender{err: tc.err}), "/generate-goal-recommendations", answersJSON(t))
			if w.Code != tc.status {
				t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
			}
			if er := errorBody(t, w); er.Code != tc.code {
				t.Fatalf("code=%q; want %q", er.Code, tc.code)
			}
			if got := w.Header().Get("Retry-After"); got != tc.retryAfter {
				t.Fatalf("Retry-After=%q; want %q", got, tc.retryAfter)
			}
		})
	}
}

func TestJSONNameRegistered(t *testing.T) {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		t.Skip("gin validator engine replaced")
	}
	err := v.Struct(RecommendationRequest{})
	ve, ok := err.(validator.ValidationErrors)
	if !ok || len(ve) == 0 || ve[0].Field() != "objective" {
		t.Fatalf("validation errors = %v", err)
	}
}
