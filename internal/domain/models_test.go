package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	if (Subscription{}).TableName() != "user_subscriptions" {
		t.Fatalf("Subscription.TableName() = %q", (Subscription{}).TableName())
	}
	if (RateLimitWindow{}).TableName() != "rate_limit_windows" {
		t.Fatalf("RateLimitWindow.TableName() = %q", (RateLimitWindow{}).TableName())
	}
	if (UsageLog{}).TableName() != "ai_usage_logs" {
		t.Fatalf("UsageLog.TableName() = %q", (UsageLog{}).TableName())
	}
}

func TestMigrations_Indexes_AndUniqueWindow(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Subscription{}, &RateLimitWindow{}, &UsageLog{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&Subscription{}, &RateLimitWindow{}, &UsageLog{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&Subscription{}, "idx_user_subs") {
		t.Fatalf("expected index idx_user_subs on user_subscriptions")
	}
	if !m.HasIndex(&RateLimitWindow{}, "ux_ratelimit_user_purpose") {
		t.Fatalf("expected unique index ux_ratelimit_user_purpose")
	}

	now := time.Now().UTC()
	w1 := &RateLimitWindow{ID: "w1", UserID: "u1", Purpose: PurposeChat, WindowStart: now, RequestCount: 1}
	w2 := &RateLimitWindow{ID: "w2", UserID: "u1", Purpose: PurposeRecommendation, WindowStart: now, RequestCount: 1}
	if err := db.Create(w1).Error; err != nil {
		t.Fatalf("insert w1: %v", err)
	}
	if err := db.Create(w2).Error; err != nil {
		t.Fatalf("purposes must not share a row: %v", err)
	}
	dup := &RateLimitWindow{ID: "w3", UserID: "u1", Purpose: PurposeChat, WindowStart: now, RequestCount: 1}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation for duplicate (user, purpose)")
	}
}

func TestSubscription_IsEntitled(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name string
		sub  *Subscription
		want bool
	}{
		{"nil", nil, false},
		{"active no expiry", &Subscription{Status: StatusActive}, true},
		{"active future expiry", &Subscription{Status: StatusActive, ExpiresAt: &future}, true},
		{"active past expiry", &Subscription{Status: StatusActive, ExpiresAt: &past}, false},
		{"active expiring now", &Subscription{Status: StatusActive, ExpiresAt: &now}, false},
		{"cancelled", &Subscription{Status: StatusCancelled}, false},
		{"expired", &Subscription{Status: StatusExpired, PlanType: PlanPremium}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.sub.IsEntitled(now); got != tc.want {
				t.Fatalf("IsEntitled = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestPlanType_Valid(t *testing.T) {
	for _, p := range []PlanType{PlanFree, PlanVIP, PlanPremium} {
		if !p.Valid() {
			t.Fatalf("%q should be valid", p)
		}
	}
	if PlanType("gold").Valid() {
		t.Fatalf("unknown plan should be invalid")
	}
}

func TestValidateConversation(t *testing.T) {
	ok := []ChatMessage{{Role: RoleSystem, Content: "x"}, {Role: RoleUser, Content: "oi"}}
	if err := ValidateConversation(ok); err != nil {
		t.Fatalf("valid conversation rejected: %v", err)
	}

	tooMany := make([]ChatMessage, MaxMessages+1)
	for i := range tooMany {
		tooMany[i] = ChatMessage{Role: RoleUser, Content: "a"}
	}
	exactly := tooMany[:MaxMessages]

	cases := []struct {
		name string
		msgs []ChatMessage
		want error
	}{
		{"empty", nil, ErrNoMessages},
		{"too many", tooMany, ErrTooManyMessages},
		{"bad role", []ChatMessage{{Role: "tool", Content: "x"}}, ErrInvalidRole},
		{"empty content", []ChatMessage{{Role: RoleUser, Content: ""}}, ErrEmptyContent},
		{"content too long", []ChatMessage{{Role: RoleUser, Content: strings.Repeat("a", MaxMessageContent+1)}}, ErrContentTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateConversation(tc.msgs); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v; want %v", err, tc.want)
			}
		})
	}

	if err := ValidateConversation(exactly); err != nil {
		t.Fatalf("50 messages must be accepted: %v", err)
	}
	// 5000 multi-byte characters are still within the limit.
	long := []ChatMessage{{Role: RoleUser, Content: strings.Repeat("é", MaxMessageContent)}}
	if err := ValidateConversation(long); err != nil {
		t.Fatalf("limit counts characters, not bytes: %v", err)
	}
}

func TestGoalRecommendation_Validate(t *testing.T) {
	good := GoalRecommendation{
		Title: "Beber água", Category: CategoryHydration, TargetValue: 2,
		Unit: "litros", DurationDays: 30, ReminderFrequency: ReminderDaily,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid goal rejected: %v", err)
	}

	bad := []GoalRecommendation{
		func() GoalRecommendation { g := good; g.Title = " "; return g }(),
		func() GoalRecommendation { g := good; g.Category = "fitness"; return g }(),
		func() GoalRecommendation { g := good; g.ReminderFrequency = "hourly"; return g }(),
		func() GoalRecommendation { g := good; g.DurationDays = 0; return g }(),
	}
	for i, g := range bad {
		if err := g.Validate(); !errors.Is(err, ErrInvalidRecommendation) {
			t.Fatalf("case %d: expected ErrInvalidRecommendation, got %v", i, err)
		}
	}
}

func TestGoalRecommendation_JSONPreservesEnums(t *testing.T) {
	in := GoalRecommendation{
		Title: "Dormir 8h", Category: CategorySleep, TargetValue: 8,
		Unit: "horas", DurationDays: 21, ReminderFrequency: ReminderWeekly,
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out GoalRecommendation
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Category.Valid() || !out.ReminderFrequency.Valid() || out != in {
		t.Fatalf("round trip changed value: %+v", out)
	}
	if !strings.Contains(string(b), `"reminder_frequency":"weekly"`) {
		t.Fatalf("unexpected wire form: %s", b)
	}
}

func TestQuestionnaireAnswers_Lines(t *testing.T) {
	a := QuestionnaireAnswers{
		Objective: "o", CurrentActivity: "c", SleepHours: "s", WaterIntake: "w",
		DietQuality: "d", StressLevel: "st", HealthConcerns: "h", AvailableTime: "t",
	}
	got := a.Lines()
	want := "objective: o\ncurrentActivity: c\nsleepHours: s\nwaterIntake: w\n" +
		"dietQuality: d\nstressLevel: st\nhealthConcerns: h\navailableTime: t"
	if got != want {
		t.Fatalf("Lines() =\n%s\nwant\n%s", got, want)
	}
}
