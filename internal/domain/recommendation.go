package domain

import (
	"errors"
	"fmt"
	"strings"
)

// QuestionnaireAnswers is the health questionnaire submitted for goal
// recommendations. Every field is required and length-bounded.
type QuestionnaireAnswers struct {
	Objective       string `json:"objective"       binding:"required,max=500"  example:"Perder 5kg"`
	CurrentActivity string `json:"currentActivity" binding:"required,max=500"  example:"Caminho 2x por semana"`
	SleepHours      string `json:"sleepHours"      binding:"required,max=100"  example:"6 horas"`
	WaterIntake     string `json:"waterIntake"     binding:"required,max=100"  example:"1 litro"`
	DietQuality     string `json:"dietQuality"     binding:"required,max=500"  example:"Regular"`
	StressLevel     string `json:"stressLevel"     binding:"required,max=200"  example:"Alto"`
	HealthConcerns  string `json:"healthConcerns"  binding:"required,max=1000" example:"Nenhuma"`
	AvailableTime   string `json:"availableTime"   binding:"required,max=200"  example:"30 minutos por dia"`
}

// Lines renders the answers as "key: value" lines, in questionnaire order.
func (a QuestionnaireAnswers) Lines() string {
	var b strings.Builder
	for _, kv := range [][2]string{
		{"objective", a.Objective},
		{"currentActivity", a.CurrentActivity},
		{"sleepHours", a.SleepHours},
		{"waterIntake", a.WaterIntake},
		{"dietQuality", a.DietQuality},
		{"stressLevel", a.StressLevel},
		{"healthConcerns", a.HealthConcerns},
		{"availableTime", a.AvailableTime},
	} {
		b.WriteString(kv[0])
		b.WriteString(": ")
		b.WriteString(kv[1])
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// GoalCategory is the area a recommended goal belongs to.
type GoalCategory string

const (
	CategoryWeight    GoalCategory = "peso"
	CategoryExercise  GoalCategory = "exercicio"
	CategoryNutrition GoalCategory = "alimentacao"
	CategorySleep     GoalCategory = "sono"
	CategoryHydration GoalCategory = "hidratacao"
	CategoryOther     GoalCategory = "outros"
)

// Valid reports whether c is a known category.
func (c GoalCategory) Valid() bool {
	switch c {
	case CategoryWeight, CategoryExercise, CategoryNutrition, CategorySleep, CategoryHydration, CategoryOther:
		return true
	}
	return false
}

// ReminderFrequency is how often the user is reminded of a goal.
type ReminderFrequency string

const (
	ReminderDaily   ReminderFrequency = "daily"
	ReminderWeekly  ReminderFrequency = "weekly"
	ReminderMonthly ReminderFrequency = "monthly"
)

// Valid reports whether f is a known frequency.
func (f ReminderFrequency) Valid() bool {
	switch f {
	case ReminderDaily, ReminderWeekly, ReminderMonthly:
		return true
	}
	return false
}

// GoalRecommendation is a SMART goal produced by the model. It is validated
// before being returned and never persisted by the gateway.
type GoalRecommendation struct {
	Title             string            `json:"title"              example:"Beber 2 litros de água"`
	Description       string            `json:"description"        example:"Aumente gradualmente a ingestão diária"`
	Category          GoalCategory      `json:"category"           example:"hidratacao"`
	TargetValue       float64           `json:"target_value"       example:"2"`
	Unit              string            `json:"unit"               example:"litros"`
	DurationDays      int               `json:"duration_days"      example:"30"`
	ReminderFrequency ReminderFrequency `json:"reminder_frequency" example:"daily"`
}

// ErrInvalidRecommendation marks a model-produced goal that fails validation.
var ErrInvalidRecommendation = errors.New("invalid goal recommendation")

// Validate rejects entries with unknown enum values or missing fields.
func (g GoalRecommendation) Validate() error {
	switch {
	case strings.TrimSpace(g.Title) == "":
		return fmt.Errorf("%w: missing title", ErrInvalidRecommendation)
	case !g.Category.Valid():
		return fmt.Errorf("%w: category %q", ErrInvalidRecommendation, g.Category)
	case !g.ReminderFrequency.Valid():
		return fmt.Errorf("%w: reminder_frequency %q", ErrInvalidRecommendation, g.ReminderFrequency)
	case g.DurationDays <= 0:
		return fmt.Errorf("%w: duration_days %d", ErrInvalidRecommendation, g.DurationDays)
	}
	return nil
}
