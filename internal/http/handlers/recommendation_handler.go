package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/connectai-gateway/internal/domain"
	"github.com/tbourn/connectai-gateway/internal/http/middleware"
)

func init() {
	// Report json names ("sleepHours") in validation errors.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonName)
	}
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// RecommendationRequest is the JSON payload for goal generation.
type RecommendationRequest struct {
	Answers domain.QuestionnaireAnswers `json:"answers"`
}

// RecommendationResponse carries up to five goals.
type RecommendationResponse struct {
	Recommendations []domain.GoalRecommendation `json:"recommendations"`
}

// GenerateGoalRecommendations godoc
// @ID          generateGoalRecommendations
// @Summary     Generate personalized goals
// @Description Premium only. Turns the health questionnaire into up to five SMART goals. Limited to 5 generations per hour.
// @Tags        Recommendations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false  "Replays the stored 200 response for a repeated key"
// @Param       body  body  handlers.RecommendationRequest  true  "Questionnaire answers"
//
// @Success     200  {object}  handlers.RecommendationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid questionnaire, details names the field"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid credential"
// @Failure     403  {object}  handlers.ErrorResponse  "Premium subscription required"
// @Failure     422  {object}  handlers.ErrorResponse  "IDEMPOTENCY_KEY_REUSED"
// @Failure     429  {object}  handlers.ErrorResponse  "RATE_LIMIT_EXCEEDED, see Retry-After"
// @Failure     500  {object}  handlers.ErrorResponse  "Upstream failure or INVALID_AI_RESPONSE"
// @Router      /generate-goal-recommendations [post]
func (h *Handlers) GenerateGoalRecommendations(c *gin.Context) {
	var req RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			abort(c, http.StatusBadRequest, ErrorResponse{Error: MsgInvalidAnswers, Details: describeField(ve[0])})
			return
		}
		abort(c, http.StatusBadRequest, ErrorResponse{Error: MsgInvalidBody})
		return
	}

	recs, err := h.goals.Generate(c.Request.Context(), middleware.UserID(c), req.Answers)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, RecommendationResponse{Recommendations: recs})
}

// describeField renders one validation failure as "<field>: <reason>".
func describeField(fe validator.FieldError) string {
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "campo obrigatório"
	case "max":
		reason = fmt.Sprintf("máximo de %s caracteres", fe.Param())
	default:
		reason = "valor inválido"
	}
	return fe.Field() + ": " + reason
}
