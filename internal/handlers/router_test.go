package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
	"guildmembers/internal/repository"
	"guildmembers/internal/security"
	"guildmembers/internal/service"
	"guildmembers/migrations"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []service.Message
}

func (m *recordingMailer) Send(_ context.Context, msg service.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testServer struct {
	handler http.Handler
	mailer  *recordingMailer
	startup *StartupStatus
	staff   *models.User
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, nil)
}

// newTestServerWith lets configure adjust the handlers before the router is built
func newTestServerWith(t *testing.T, configure func(*Handlers)) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "members.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(ctx, migrations.FS))

	memberTypes := []string{"special", "standard", "concession", "junior"}
	paymentMethods := []string{"cash", "card", "bank_transfer", "online"}
	mailer := &recordingMailer{}

	tokens := security.NewTokenIssuer("test-secret", time.Hour)
	accounts := service.NewAccountService(repository.NewUserRepository(db), tokens)
	members := service.NewMemberService(db, accounts, mailer, 1)
	memberships := service.NewMembershipService(db, memberTypes)
	payments := service.NewPaymentService(db, paymentMethods, paymentMethods[0])
	signups := service.NewSignupService(db, members, memberships, payments, mailer, service.SignupConfig{
		StaffEmails:    []string{"door@guild.test"},
		MemberTypes:    memberTypes,
		PaymentMethods: paymentMethods,
	})

	staff, err := accounts.CreateStaff(ctx, service.StaffParams{
		Username:  "door",
		Password:  "correct horse",
		FirstName: "Door",
		LastName:  "Keeper",
	})
	require.NoError(t, err)
	token, _, err := tokens.Issue(staff.ID, staff.Username)
	require.NoError(t, err)

	startup := NewStartupStatus()
	startup.MarkReady()

	h := Handlers{
		Auth:          NewAuthHandler(accounts),
		Members:       NewMemberHandler(members, memberships, payments),
		Memberships:   NewMembershipHandler(memberships),
		Signups:       NewSignupHandler(signups),
		Middleware:    NewMiddleware(tokens, accounts),
		Startup:       startup,
		DB:            db,
		SignupLimiter: security.NewRateLimiter(60, 2),
	}
	if configure != nil {
		configure(&h)
	}

	return &testServer{handler: NewRouter(h), mailer: mailer, startup: startup, staff: staff, token: token}
}

// do sends body as JSON; a non-empty token is sent as a bearer token
func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, req)
	return recorder
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &v), recorder.Body.String())
	return v
}

func janeSignup() map[string]any {
	return map[string]any{
		"member_type":    "standard",
		"ref_name":       "Jane",
		"sort_name":      "Doe",
		"email":          "jane@guild.test",
		"phone":          "0400 000 000",
		"suburb":         "Fitzroy",
		"postcode":       "3065",
		"state":          "VIC",
		"dob":            "1990-05-01",
		"payment_method": "cash",
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[healthResponse](t, rec).Status)

	t.Run("starting", func(t *testing.T) {
		starting := NewStartupStatus()
		starting.CompleteStep(StepDatabase)
		rec := httptest.NewRecorder()
		starting.Health(nil)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decode[healthResponse](t, rec)
		assert.Equal(t, "starting", body.Status)
		assert.Equal(t, 25, body.Progress)
	})
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Username: "door", Password: "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[LoginResponse](t, rec)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, "door", login.User.Username)

	rec = s.do(t, http.MethodGet, "/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, s.staff.ID, decode[UserResponse](t, rec).ID)

	rec = s.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Username: "door", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login", "", map[string]any{"username": "door", "extra": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaffRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/members", "/temporary-members", "/members/1", "/memberships/1/tags", "/payments"} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, path, "", nil).Code)
			assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, path, "not-a-token", nil).Code)
		})
	}

	t.Run("member accounts are not staff", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/members", s.token, map[string]any{"name": "Jane Doe"})
		require.Equal(t, http.StatusCreated, rec.Code)
		member := decode[MemberResponse](t, rec)

		memberToken, _, err := security.NewTokenIssuer("test-secret", time.Hour).Issue(*member.UserID, "1")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/members", memberToken, nil).Code)
	})
}

func TestMemberRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/members", s.token, map[string]any{
		"ref_name":  "Jane",
		"sort_name": "Doe",
		"dob":       "1990-05-01",
		"emails":    []string{"jane@guild.test"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[MemberResponse](t, rec)
	assert.Equal(t, int64(1), created.Number)
	assert.Equal(t, "Jane Doe", created.Name)
	assert.Equal(t, "#1 Jane Doe", created.Label)
	assert.Equal(t, "1990-05-01", created.DOB)
	assert.Equal(t, "jane@guild.test", created.Emails)
	assert.Len(t, created.Key, 16)

	rec = s.do(t, http.MethodPut, "/members/1", s.token, map[string]any{"ref_name": "Jane", "sort_name": "Smith"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Jane Smith", decode[MemberResponse](t, rec).Name)

	today := models.FormatDate(time.Now().UTC())
	rec = s.do(t, http.MethodPost, "/members/1/memberships", s.token, map[string]any{
		"member_type": "standard",
		"valid_from":  today,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ms := decode[MembershipResponse](t, rec)
	assert.True(t, ms.IsCurrent)
	assert.Equal(t, today, ms.ValidFrom)

	rec = s.do(t, http.MethodGet, "/members/1", s.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[MemberResponse](t, rec)
	assert.True(t, got.IsCurrent)
	assert.Equal(t, "#1 Jane Smith (active)", got.Label)
	assert.Equal(t, today, got.Memberships)

	rec = s.do(t, http.MethodGet, "/members?active=true&search=smith", s.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]MemberResponse](t, rec), 1)

	rec = s.do(t, http.MethodPost, "/members/1/payments", s.token, map[string]any{
		"payment_method": "card",
		"amount_paid":    "12.5",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "12.50", decode[PaymentResponse](t, rec).AmountPaid)

	rec = s.do(t, http.MethodGet, "/members/1/payments", s.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PaymentResponse](t, rec), 1)

	rec = s.do(t, http.MethodPost, "/members/1/payments", s.token, map[string]any{"amount_paid": "3"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "cash", decode[PaymentResponse](t, rec).PaymentMethod)

	rec = s.do(t, http.MethodPost, "/members/1/payments", s.token, map[string]any{"amount_paid": "0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/payments", s.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]PaymentResponse](t, rec)
	require.Len(t, all, 2)
	assert.Equal(t, "12.50", all[0].AmountPaid)
	assert.Equal(t, "3.00", all[1].AmountPaid)

	rec = s.do(t, http.MethodPost, "/memberships/"+strconv.FormatInt(ms.ID, 10)+"/tags", s.token, map[string]any{"given_tag": true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Door Keeper", decode[TagResponse](t, rec).GivenByName)

	rec = s.do(t, http.MethodGet, "/memberships/"+strconv.FormatInt(ms.ID, 10)+"/tags", s.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]TagResponse](t, rec), 1)

	rec = s.do(t, http.MethodPost, "/members/1/welcome-email", s.token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, s.mailer.count())

	t.Run("errors", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/members/99", s.token, nil).Code)
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/members/abc", s.token, nil).Code)
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/members?active=maybe", s.token, nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/memberships/99/tags", s.token, nil).Code)

		rec := s.do(t, http.MethodPost, "/members/1/memberships", s.token, map[string]any{
			"member_type": "standard",
			"valid_from":  "19/10/2026",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = s.do(t, http.MethodPost, "/members/1/memberships", s.token, map[string]any{
			"member_type": "standard",
			"valid_from":  today,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = s.do(t, http.MethodPost, "/members/1/payments", s.token, map[string]any{
			"payment_method": "card",
			"amount_paid":    "-3",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSignupWorkflow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/signup", "", janeSignup())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	signupID := decode[SignupResponse](t, rec).ID
	assert.Equal(t, 1, s.mailer.count(), "staff are notified")

	path := "/temporary-members/" + strconv.FormatInt(signupID, 10)

	rec = s.do(t, http.MethodGet, "/temporary-members?pending=true", s.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]TemporaryMemberResponse](t, rec), 1)

	rec = s.do(t, http.MethodPost, path+"/convert", s.token, map[string]any{"amount_paid": "50.00"})
	assert.Equal(t, http.StatusConflict, rec.Code, "not yet approved")

	rec = s.do(t, http.MethodPost, path+"/review", s.token, map[string]any{
		"is_approved_paid":        true,
		"approved_payment_method": "cash",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reviewed := decode[TemporaryMemberResponse](t, rec)
	assert.True(t, reviewed.IsChecked)
	require.NotNil(t, reviewed.ApprovedBy)
	assert.Equal(t, s.staff.ID, *reviewed.ApprovedBy)

	rec = s.do(t, http.MethodPost, path+"/convert", s.token, map[string]any{"amount_paid": "50.00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	member := decode[MemberResponse](t, rec)
	assert.Equal(t, "Jane Doe", member.Name)
	assert.True(t, member.IsCurrent)

	rec = s.do(t, http.MethodGet, path, s.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	converted := decode[TemporaryMemberResponse](t, rec)
	require.NotNil(t, converted.MemberID)
	assert.Equal(t, member.ID, *converted.MemberID)

	rec = s.do(t, http.MethodPost, path+"/convert", s.token, map[string]any{"amount_paid": "50.00"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, member.ID, decode[MemberResponse](t, rec).ID, "conversion is idempotent")

	rec = s.do(t, http.MethodGet, "/members/"+strconv.FormatInt(member.Number, 10)+"/payments", s.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payments := decode[[]PaymentResponse](t, rec)
	require.Len(t, payments, 1)
	assert.Equal(t, "50.00", payments[0].AmountPaid)
}

func TestApproveAndConvertRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/signup", "", janeSignup())
	require.Equal(t, http.StatusCreated, rec.Code)
	path := "/temporary-members/" + strconv.FormatInt(decode[SignupResponse](t, rec).ID, 10)

	rec = s.do(t, http.MethodPost, path+"/convert", s.token, map[string]any{
		"approve":        true,
		"payment_method": "card",
		"amount_paid":    25,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, path, s.token, nil)
	signup := decode[TemporaryMemberResponse](t, rec)
	assert.True(t, signup.IsApprovedPaid)
	assert.Equal(t, "card", signup.ApprovedPaymentMethod)
	assert.NotNil(t, signup.ApprovedAt)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/temporary-members/99/convert", s.token, map[string]any{"approve": true, "payment_method": "card"}).Code)
}

func TestSignupValidationAndRateLimit(t *testing.T) {
	s := newTestServer(t)

	form := janeSignup()
	delete(form, "email")
	form["member_type"] = "special"
	rec := s.do(t, http.MethodPost, "/signup", "", form)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorResponse](t, rec)
	var fields []string
	for _, f := range body.Fields {
		fields = append(fields, f.Field)
	}
	assert.Contains(t, fields, "email")

	// the limiter allows a burst of two per client
	rec = s.do(t, http.MethodPost, "/signup", "", janeSignup())
	assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)
	rec = s.do(t, http.MethodPost, "/signup", "", janeSignup())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestSignupRateLimitKeysOnClientAddress(t *testing.T) {
	signup := func(t *testing.T, s *testServer, forwardedFor string) int {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(janeSignup()))
		req := httptest.NewRequest(http.MethodPost, "/signup", &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("forwarding headers are ignored by default", func(t *testing.T) {
		s := newTestServer(t)
		assert.NotEqual(t, http.StatusTooManyRequests, signup(t, s, "203.0.113.1"))
		assert.NotEqual(t, http.StatusTooManyRequests, signup(t, s, "203.0.113.2"))
		assert.Equal(t, http.StatusTooManyRequests, signup(t, s, "203.0.113.3"))
	})

	t.Run("trusted proxy", func(t *testing.T) {
		s := newTestServerWith(t, func(h *Handlers) { h.TrustProxy = true })
		assert.NotEqual(t, http.StatusTooManyRequests, signup(t, s, "203.0.113.1"))
		assert.NotEqual(t, http.StatusTooManyRequests, signup(t, s, "203.0.113.1"))
		assert.Equal(t, http.StatusTooManyRequests, signup(t, s, "203.0.113.1"))
		assert.NotEqual(t, http.StatusTooManyRequests, signup(t, s, "203.0.113.2"))
	})
}

func TestDecodeJSONRejectsLargeBodies(t *testing.T) {
	s := newTestServer(t)

	big := `{"username":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(big))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
