package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/connectai-gateway/internal/domain"
	"github.com/tbourn/connectai-gateway/internal/modelrouter"
	"github.com/tbourn/connectai-gateway/internal/ratelimit"
	"github.com/tbourn/connectai-gateway/internal/upstream"
)

// ----- Fakes -----

type fakeUpstream struct {
	mu       sync.Mutex
	noKey    bool
	calls    []string
	payloads [][]domain.ChatMessage
	// errs is consumed per call; nil entries succeed.
	errs []error
	body string
}

func (f *fakeUpstream) Configured() bool { return !f.noKey }

func (f *fakeUpstream) StreamChat(ctx context.Context, model string, msgs []domain.ChatMessage) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.calls = append(f.calls, model)
	f.payloads = append(f.payloads, msgs)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

type fakeLimiter struct {
	calls    int
	quota    ratelimit.Quota
	decision ratelimit.Decision
	err      error
	onAllow  func()
}

func (l *fakeLimiter) Allow(_ context.Context, _ string, q ratelimit.Quota) (ratelimit.Decision, error) {
	l.calls++
	l.quota = q
	if l.onAllow != nil {
		l.onAllow()
	}
	return l.decision, l.err
}

type fakeUsage struct {
	mu      sync.Mutex
	entries []domain.UsageLog
}

func (u *fakeUsage) Record(_ context.Context, e domain.UsageLog) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.entries = append(u.entries, e)
}

func testQuotas() ratelimit.Quotas {
	return ratelimit.Quotas{
		ChatWindow:           10 * time.Minute,
		ChatLimits:           map[domain.PlanType]int{domain.PlanFree: 10, domain.PlanVIP: 50, domain.PlanPremium: 100},
		RecommendationWindow: time.Hour,
		RecommendationLimit:  5,
	}
}

func newChatSvc(up *fakeUpstream, lim *fakeLimiter, usage *fakeUsage) *ChatService {
	return NewChatService(up, lim, testQuotas(), usage, time.Minute)
}

func sub(plan domain.PlanType) *domain.Subscription {
	return &domain.Subscription{UserID: "u1", PlanType: plan, Status: domain.StatusActive}
}

func userMsg(s string) []domain.ChatMessage {
	return []domain.ChatMessage{{Role: domain.RoleUser, Content: s}}
}

// ----- Tests -----

func TestOpen_PrimarySuccess(t *testing.T) {
	up := &fakeUpstream{body: "data: [DONE]\n\n"}
	lim := &fakeLimiter{decision: ratelimit.Decision{Allowed: true, Count: 1}}
	usage := &fakeUsage{}
	svc := newChatSvc(up, lim, usage)

	st, err := svc.Open(context.Background(), "u1", sub(domain.PlanPremium), userMsg("Quantas horas devo dormir?"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st.Model != modelrouter.ModelBalanced || st.Fallback {
		t.Fatalf("unexpected stream: model=%s fallback=%v", st.Model, st.Fallback)
	}
	if lim.quota.Limit != 100 || lim.quota.Purpose != domain.PurposeChat {
		t.Fatalf("wrong quota charged: %+v", lim.quota)
	}

	p := up.payloads[0]
	if len(p) != 2 || p[0].Role != domain.RoleSystem || !strings.Contains(p[0].Content, "NÃO substitui médicos") {
		t.Fatalf("system prompt not prepended: %+v", p)
	}

	b, _ := io.ReadAll(st.Body)
	if string(b) != "data: [DONE]\n\n" {
		t.Fatalf("body = %q", b)
	}
	if len(usage.entries) != 0 {
		t.Fatal("usage must be recorded on Close, not Open")
	}
	st.Close(nil)
	st.Close(nil)
	if len(usage.entries) != 1 || !usage.entries[0].Success || usage.entries[0].ModelUsed != modelrouter.ModelBalanced {
		t.Fatalf("usage = %+v", usage.entries)
	}
}

func TestOpen_LatencyCountsFromRequestStart(t *testing.T) {
	clock := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	lim := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	// The quota store round-trip is part of what the caller waits for.
	lim.onAllow = func() { clock = clock.Add(300 * time.Millisecond) }
	usage := &fakeUsage{}
	svc := newChatSvc(&fakeUpstream{body: "data: [DONE]\n\n"}, lim, usage)
	svc.Now = func() time.Time { return clock }

	st, err := svc.Open(context.Background(), "u1", sub(domain.PlanFree), userMsg("Oi"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	st.Close(nil)
	if len(usage.entries) != 1 || usage.entries[0].ResponseTimeMS != 300 {
		t.Fatalf("usage = %+v; want 300ms from request start", usage.entries)
	}
}

func TestOpen_FallbackSucceeds(t *testing.T) {
	up := &fakeUpstream{errs: []error{&upstream.StatusError{Status: 500}}}
	lim := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	usage := &fakeUsage{}
	svc := newChatSvc(up, lim, usage)

	st, err := svc.Open(context.Background(), "u1", sub(domain.PlanPremium), userMsg("Escreva um relatório sobre sono"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if want := []string{modelrouter.ModelFlagship, modelrouter.ModelBalancedPro}; len(up.calls) != 2 || up.calls[0] != want[0] || up.calls[1] != want[1] {
		t.Fatalf("calls = %v; want %v", up.calls, want)
	}
	if !st.Fallback || st.Model != modelrouter.ModelBalancedPro {
		t.Fatalf("stream = %+v", st)
	}
	if up.payloads[0][0] != up.payloads[1][0] {
		t.Fatal("fallback must reuse the same payload")
	}
	st.Close(io.ErrUnexpectedEOF)
	if e := usage.entries[0]; !e.Success || e.ModelUsed != modelrouter.ModelBalancedPro || e.TaskType != domain.TaskCreativeLongForm {
		t.Fatalf("usage = %+v", e)
	}
}

func TestOpen_BothFail_MapsLastStatus(t *testing.T) {
	cases := []struct {
		name string
		last error
		is   error
	}{
		{"provider rate limit", &upstream.StatusError{Status: 429}, upstream.ErrRateLimited},
		{"payment required", &upstream.StatusError{Status: 402}, upstream.ErrPaymentRequired},
		{"server error", &upstream.StatusError{Status: 503, Message: "overloaded"}, ErrUpstreamUnavailable},
		{"network", errors.New("dial tcp: refused"), ErrUpstreamUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up := &fakeUpstream{errs: []error{&upstream.StatusError{Status: 500}, tc.last}}
			usage := &fakeUsage{}
			svc := newChatSvc(up, &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}, usage)

			_, err := svc.Open(context.Background(), "u1", sub(domain.PlanFree), userMsg("oi"))
			if !errors.Is(err, tc.is) {
				t.Fatalf("err = %v; want %v", err, tc.is)
			}
			if len(up.calls) != 2 {
				t.Fatalf("expected exactly one fallback, got calls %v", up.calls)
			}
			if len(usage.entries) != 1 || usage.entries[0].Success || usage.entries[0].ErrorMessage == nil {
				t.Fatalf("failure must be recorded: %+v", usage.entries)
			}
			if usage.entries[0].ModelUsed != modelrouter.ModelFast {
				t.Fatalf("failure should name the fallback model, got %s", usage.entries[0].ModelUsed)
			}
		})
	}
}

func TestOpen_UpstreamErrorDetails(t *testing.T) {
	up := &fakeUpstream{errs: []error{errors.New("x"), &upstream.StatusError{Status: 500, Message: "model overloaded"}}}
	svc := newChatSvc(up, &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}, &fakeUsage{})

	_, err := svc.Open(context.Background(), "u1", sub(domain.PlanFree), userMsg("oi"))
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Details != "model overloaded" {
		t.Fatalf("err = %#v", err)
	}
}

func TestOpen_InvalidConversation_NoQuotaNoUpstream(t *testing.T) {
	long := strings.Repeat("a", domain.MaxMessageContent+1)
	many := make([]domain.ChatMessage, domain.MaxMessages+1)
	for i := range many {
		many[i] = domain.ChatMessage{Role: domain.RoleUser, Content: "x"}
	}
	for name, msgs := range map[string][]domain.ChatMessage{
		"empty":    nil,
		"too many": many,
		"too long": userMsg(long),
		"blank":    userMsg(""),
		"bad role": {{Role: "tool", Content: "x"}},
	} {
		t.Run(name, func(t *testing.T) {
			up := &fakeUpstream{}
			lim := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
			_, err := newChatSvc(up, lim, &fakeUsage{}).Open(context.Background(), "u1", sub(domain.PlanPremium), msgs)
			if !errors.Is(err, ErrInvalidConversation) {
				t.Fatalf("err = %v", err)
			}
			if lim.calls != 0 || len(up.calls) != 0 {
				t.Fatalf("limiter=%d upstream=%d; want none", lim.calls, len(up.calls))
			}
		})
	}
}

func TestOpen_VIPUpgradeRequired_NoQuota(t *testing.T) {
	up := &fakeUpstream{}
	lim := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	_, err := newChatSvc(up, lim, &fakeUsage{}).Open(context.Background(), "u1", sub(domain.PlanVIP), userMsg("Escreva um artigo sobre dieta"))
	if !errors.Is(err, modelrouter.ErrUpgradeRequired) {
		t.Fatalf("err = %v", err)
	}
	if lim.calls != 0 || len(up.calls) != 0 {
		t.Fatal("plan-gated requests must be free")
	}
}

func TestOpen_QuotaExceeded(t *testing.T) {
	up := &fakeUpstream{}
	lim := &fakeLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 42 * time.Second}}
	_, err := newChatSvc(up, lim, &fakeUsage{}).Open(context.Background(), "u1", sub(domain.PlanFree), userMsg("oi"))

	var rl *RateLimitError
	if !errors.As(err, &rl) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v", err)
	}
	if rl.RetryAfter != 42*time.Second || rl.Purpose != domain.PurposeChat {
		t.Fatalf("rate limit error = %+v", rl)
	}
	if len(up.calls) != 0 {
		t.Fatal("upstream must not be called")
	}
}

func TestOpen_LimiterFailureFailsOpen(t *testing.T) {
	up := &fakeUpstream{}
	lim := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}, err: errors.New("db down")}
	st, err := newChatSvc(up, lim, &fakeUsage{}).Open(context.Background(), "u1", sub(domain.PlanFree), userMsg("oi"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	st.Close(nil)
}

func TestOpen_MissingGatewayKey(t *testing.T) {
	usage := &fakeUsage{}
	lim := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	_, err := newChatSvc(&fakeUpstream{noKey: true}, lim, usage).Open(context.Background(), "u1", sub(domain.PlanFree), userMsg("oi"))
	if !errors.Is(err, ErrMissingGatewayKey) {
		t.Fatalf("err = %v", err)
	}
	if len(usage.entries) != 0 || lim.calls != 0 {
		t.Fatal("misconfiguration must not log usage or charge quota")
	}
}

func TestOpen_CancelledContextSkipsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	up := &fakeUpstream{errs: []error{context.Canceled}}
	_, err := newChatSvc(up, &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}, &fakeUsage{}).Open(ctx, "u1", sub(domain.PlanFree), userMsg("oi"))
	if err == nil || len(up.calls) != 1 {
		t.Fatalf("err=%v calls=%v", err, up.calls)
	}
}

func TestSystemPrompt_Variants(t *testing.T) {
	premiumFlag := SystemPrompt(domain.PlanPremium, modelrouter.ModelFlagship)
	freeFast := SystemPrompt(domain.PlanFree, modelrouter.ModelFast)

	if !strings.Contains(premiumFlag, planPromptPremium) || !strings.Contains(premiumFlag, modelPromptDepth) {
		t.Fatal("premium flagship prompt missing variants")
	}
	if !strings.Contains(freeFast, planPromptConcise) || !strings.Contains(freeFast, modelPromptSpeed) {
		t.Fatal("free fast prompt missing variants")
	}
	for _, p := range []string{premiumFlag, freeFast} {
		if !strings.HasSuffix(p, disclaimerPrompt) {
			t.Fatal("disclaimer must close every prompt")
		}
	}
}
