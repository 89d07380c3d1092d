package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/paragon-edu/gatehouse/internal/access"
	"github.com/paragon-edu/gatehouse/internal/auth"
	"github.com/paragon-edu/gatehouse/internal/domain"
	"github.com/paragon-edu/gatehouse/internal/service"
)

// =============================================================================
// In-memory repositories
// =============================================================================

type memLinkRepo struct {
	mu       sync.Mutex
	links    map[string]*domain.AccessLink
	visitors map[string]map[string]bool
	nextID   int64
}

func newMemLinkRepo() *memLinkRepo {
	return &memLinkRepo{
		links:    make(map[string]*domain.AccessLink),
		visitors: make(map[string]map[string]bool),
	}
}

func (r *memLinkRepo) Create(_ context.Context, link *domain.AccessLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.links[link.Token]; ok {
		return domain.ErrLinkAlreadyExists
	}
	r.nextID++
	link.ID = r.nextID
	r.links[link.Token] = link
	return nil
}

func (r *memLinkRepo) GetByToken(_ context.Context, token string) (*domain.AccessLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[token]
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (r *memLinkRepo) AddAllowedUser(_ context.Context, token, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[token]
	if !ok {
		return domain.ErrLinkNotFound
	}
	for _, id := range link.AllowedUsers {
		if id == userID {
			return nil
		}
	}
	link.AllowedUsers = append(link.AllowedUsers, userID)
	return nil
}

func (r *memLinkRepo) RemoveAllowedUser(_ context.Context, token, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[token]
	if !ok {
		return domain.ErrLinkNotFound
	}
	for i, id := range link.AllowedUsers {
		if id == userID {
			link.AllowedUsers = append(link.AllowedUsers[:i], link.AllowedUsers[i+1:]...)
			break
		}
	}
	return nil
}

func (r *memLinkRepo) AddGroupKey(_ context.Context, token string, key *domain.GroupKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[token]
	if !ok {
		return domain.ErrLinkNotFound
	}
	key.ID = int64(len(link.GroupKeys) + 1)
	key.Position = len(link.GroupKeys)
	link.GroupKeys = append(link.GroupKeys, *key)
	return nil
}

func (r *memLinkRepo) RecordVisit(_ context.Context, token, visitorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[token]
	if !ok {
		return domain.ErrLinkNotFound
	}
	link.Visits++
	if r.visitors[token] == nil {
		r.visitors[token] = make(map[string]bool)
	}
	r.visitors[token][visitorID] = true
	return nil
}

func (r *memLinkRepo) GetStats(_ context.Context, token string) (*domain.LinkStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[token]
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	return &domain.LinkStats{
		Token:          token,
		Visits:         link.Visits,
		UniqueVisitors: int64(len(r.visitors[token])),
	}, nil
}

func (r *memLinkRepo) PruneVisitors(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type memPrepRepo struct {
	mu      sync.Mutex
	records map[string]*domain.PrepAccess
}

func newMemPrepRepo() *memPrepRepo {
	return &memPrepRepo{records: make(map[string]*domain.PrepAccess)}
}

func prepKey(email, examID string) string { return email + "|" + examID }

func (r *memPrepRepo) Create(_ context.Context, access *domain.PrepAccess) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := prepKey(access.UserEmail, access.ExamID)
	if _, ok := r.records[k]; ok {
		return domain.ErrPrepAccessExists
	}
	r.records[k] = access
	return nil
}

func (r *memPrepRepo) Get(_ context.Context, email, examID string) (*domain.PrepAccess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[prepKey(email, examID)]
	if !ok {
		return nil, domain.ErrPrepAccessNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memPrepRepo) UpdateStatus(_ context.Context, email, examID string, status domain.PrepAccessStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[prepKey(email, examID)]
	if !ok {
		return domain.ErrPrepAccessNotFound
	}
	rec.Status = status
	return nil
}

func (r *memPrepRepo) ArchiveExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type memUserRepo struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	nextID int64
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Username]; ok {
		return domain.ErrUserAlreadyExists
	}
	r.nextID++
	user.ID = r.nextID
	r.users[user.Username] = user
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) ExistsByUsername(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[username]
	return ok, nil
}

// =============================================================================
// Test server
// =============================================================================

const (
	testOwnerKey      = "owner-secret"
	testSessionSecret = "session-secret-for-tests"
)

type testServer struct {
	handler http.Handler
	links   *memLinkRepo
	codec   *auth.SessionCodec
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()

	linkRepo := newMemLinkRepo()
	prepRepo := newMemPrepRepo()
	userRepo := newMemUserRepo()

	evaluator := access.NewEvaluator(linkRepo, nil, 0, nil, logger)
	linkSvc := service.NewLinkService(linkRepo, evaluator, bcrypt.MinCost, service.NoExpiry, logger)
	prepSvc := service.NewPrepAccessService(prepRepo, logger)
	userSvc := service.NewUserService(userRepo, bcrypt.MinCost, logger)

	codec := auth.NewSessionCodec(testSessionSecret, time.Hour)

	router := NewRouter(RouterConfig{
		AuthHandler:       NewAuthHandler(userSvc, codec, time.Hour, nil, logger),
		LinkHandler:       NewLinkHandler(linkSvc, evaluator, logger),
		PrepAccessHandler: NewPrepAccessHandler(prepSvc, logger),
		UserHandler:       NewUserHandler(userSvc, logger),
		SessionCodec:      codec,
		OwnerGate:         auth.NewOwnerGate(testOwnerKey),
		Logger:            logger,
	})

	return &testServer{handler: router, links: linkRepo, codec: codec}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func ownerHeaders() map[string]string {
	return map[string]string{auth.OwnerKeyHeader: testOwnerKey}
}

func sessionHeaders(t *testing.T, s *testServer, username string) map[string]string {
	t.Helper()
	token, err := s.codec.Issue(1, username, false)
	if err != nil {
		t.Fatalf("issue session token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestCreateLinkRequiresOwnerKey(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]interface{}{"target_id": "lecture-1", "mode": "free"}

	rec := srv.do(t, http.MethodPost, "/api/links", body, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 without owner key, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/links", body, map[string]string{auth.OwnerKeyHeader: "wrong"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 with wrong owner key, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/links", body, ownerHeaders())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with owner key, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
		Mode  string `json:"mode"`
	}
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Error("expected a token in the create response")
	}
	if resp.Mode != "free" {
		t.Errorf("expected mode free, got %q", resp.Mode)
	}
}

func TestCheckFreeLinkAsGuest(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/links",
		map[string]interface{}{"target_id": "lecture-1", "mode": "free"}, ownerHeaders())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create link: %d", rec.Code)
	}
	var created struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &created)

	rec = srv.do(t, http.MethodGet, "/api/links/check?token="+created.Token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var verdict access.Verdict
	decodeBody(t, rec, &verdict)
	if !verdict.Allowed {
		t.Errorf("expected guest access to a free link, got reason %q", verdict.Reason)
	}
	if verdict.Mode != "free" {
		t.Errorf("expected mode free, got %q", verdict.Mode)
	}
}

func TestCheckPaidLinkFlow(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/links",
		map[string]interface{}{"target_id": "lecture-2", "mode": "paid"}, ownerHeaders())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create link: %d", rec.Code)
	}
	var created struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &created)
	checkPath := "/api/links/check?token=" + created.Token

	// Guest is denied, not rejected.
	rec = srv.do(t, http.MethodGet, checkPath, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("guest check: expected 200, got %d", rec.Code)
	}
	var verdict access.Verdict
	decodeBody(t, rec, &verdict)
	if verdict.Allowed || verdict.Reason != access.ReasonNoUser {
		t.Errorf("guest: expected deny %q, got %+v", access.ReasonNoUser, verdict)
	}

	// Authenticated but unlisted.
	alice := sessionHeaders(t, srv, "alice")
	rec = srv.do(t, http.MethodGet, checkPath, nil, alice)
	decodeBody(t, rec, &verdict)
	if verdict.Allowed || verdict.Reason != access.ReasonNotInList {
		t.Errorf("unlisted: expected deny %q, got %+v", access.ReasonNotInList, verdict)
	}

	// Allow-list alice, check again.
	rec = srv.do(t, http.MethodPost, "/api/links/"+created.Token+"/users",
		map[string]string{"user_id": "alice"}, ownerHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("add user: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = srv.do(t, http.MethodGet, checkPath, nil, alice)
	decodeBody(t, rec, &verdict)
	if !verdict.Allowed {
		t.Fatalf("listed: expected allow, got %+v", verdict)
	}
	if verdict.Mode != "paid" {
		t.Errorf("expected mode paid, got %q", verdict.Mode)
	}

	// Revoke and check once more.
	rec = srv.do(t, http.MethodPost, "/api/links/revoke",
		map[string]string{"token": created.Token, "user_id": "alice"}, ownerHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: expected 200, got %d", rec.Code)
	}
	rec = srv.do(t, http.MethodGet, checkPath, nil, alice)
	decodeBody(t, rec, &verdict)
	if verdict.Allowed {
		t.Errorf("revoked: expected deny, got %+v", verdict)
	}
}

func TestCheckWithGroupKey(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/links",
		map[string]interface{}{"target_id": "lecture-3", "mode": "paid"}, ownerHeaders())
	var created struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &created)

	rec = srv.do(t, http.MethodPost, "/api/links/"+created.Token+"/group-keys",
		map[string]string{"label": "spring cohort", "key": "open sesame"}, ownerHeaders())
	if rec.Code != http.StatusCreated {
		t.Fatalf("add group key: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	bob := sessionHeaders(t, srv, "bob")
	var verdict access.Verdict

	rec = srv.do(t, http.MethodGet, "/api/links/check?token="+created.Token+"&key=open+sesame", nil, bob)
	decodeBody(t, rec, &verdict)
	if !verdict.Allowed {
		t.Errorf("valid key: expected allow, got %+v", verdict)
	}

	rec = srv.do(t, http.MethodGet, "/api/links/check?token="+created.Token+"&key=wrong", nil, bob)
	decodeBody(t, rec, &verdict)
	if verdict.Allowed {
		t.Errorf("wrong key: expected deny, got %+v", verdict)
	}
}

func TestCheckUnknownToken(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/links/check?token=does-not-exist", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var verdict access.Verdict
	decodeBody(t, rec, &verdict)
	if verdict.Allowed || verdict.Reason != access.ReasonNoLink {
		t.Errorf("expected deny %q, got %+v", access.ReasonNoLink, verdict)
	}
}

func TestCheckMissingTokenParam(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/links/check", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without token, got %d", rec.Code)
	}
}

func TestCheckWithStaleSessionActsAsGuest(t *testing.T) {
	srv := newTestServer(t)
	stale := map[string]string{"Authorization": "Bearer not-a-token"}

	rec := srv.do(t, http.MethodPost, "/api/links",
		map[string]interface{}{"target_id": "lecture-7", "mode": "free"}, ownerHeaders())
	var created struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &created)

	rec = srv.do(t, http.MethodGet, "/api/links/check?token="+created.Token, nil, stale)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for free link with stale session, got %d", rec.Code)
	}
	var verdict access.Verdict
	decodeBody(t, rec, &verdict)
	if !verdict.Allowed || verdict.Mode != "free" {
		t.Errorf("expected free allow for downgraded guest, got %+v", verdict)
	}

	rec = srv.do(t, http.MethodPost, "/api/links",
		map[string]interface{}{"target_id": "lecture-8", "mode": "paid"}, ownerHeaders())
	decodeBody(t, rec, &created)

	rec = srv.do(t, http.MethodGet, "/api/links/check?token="+created.Token, nil, stale)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for paid link with stale session, got %d", rec.Code)
	}
	decodeBody(t, rec, &verdict)
	if verdict.Allowed || verdict.Reason != access.ReasonNoUser {
		t.Errorf("expected deny %q for downgraded guest, got %+v", access.ReasonNoUser, verdict)
	}
}

func TestLinkStats(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/links",
		map[string]interface{}{"target_id": "lecture-4", "mode": "free"}, ownerHeaders())
	var created struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &created)

	for i := 0; i < 3; i++ {
		srv.do(t, http.MethodGet, "/api/links/check?token="+created.Token, nil, nil)
	}

	rec = srv.do(t, http.MethodGet, "/api/links/"+created.Token+"/stats", nil, ownerHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", rec.Code)
	}
	var stats domain.LinkStats
	decodeBody(t, rec, &stats)
	if stats.Visits != 3 {
		t.Errorf("expected 3 visits, got %d", stats.Visits)
	}
	// Same client address on every request.
	if stats.UniqueVisitors != 1 {
		t.Errorf("expected 1 unique visitor, got %d", stats.UniqueVisitors)
	}
}

func TestLoginAndPrepAccessFlow(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/users",
		map[string]interface{}{"username": "carol", "password": "long-enough-pass"}, ownerHeaders())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "carol", "password": "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password: expected 401, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "carol", "password": "long-enough-pass"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &login)
	if login.Token == "" {
		t.Fatal("expected a session token")
	}
	session := map[string]string{"Authorization": "Bearer " + login.Token}

	// Entitlement check requires a session.
	checkPath := "/api/prep-access/check?email=carol@example.com&exam_id=exam-1"
	rec = srv.do(t, http.MethodGet, checkPath, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("guest entitlement check: expected 401, got %d", rec.Code)
	}

	// No entitlement yet: inactive, not an error.
	rec = srv.do(t, http.MethodGet, checkPath, nil, session)
	if rec.Code != http.StatusOK {
		t.Fatalf("check: expected 200, got %d", rec.Code)
	}
	var check struct {
		Active bool   `json:"active"`
		Status string `json:"status"`
	}
	decodeBody(t, rec, &check)
	if check.Active {
		t.Error("expected inactive before any grant")
	}

	rec = srv.do(t, http.MethodPost, "/api/prep-access",
		map[string]interface{}{"user_email": "carol@example.com", "exam_id": "exam-1", "plan_days": 30}, ownerHeaders())
	if rec.Code != http.StatusCreated {
		t.Fatalf("grant: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodGet, checkPath, nil, session)
	decodeBody(t, rec, &check)
	if !check.Active || check.Status != string(domain.PrepAccessStatusActive) {
		t.Errorf("expected active entitlement, got %+v", check)
	}

	rec = srv.do(t, http.MethodPost, "/api/prep-access/archive",
		map[string]string{"user_email": "carol@example.com", "exam_id": "exam-1"}, ownerHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("archive: expected 200, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, checkPath, nil, session)
	decodeBody(t, rec, &check)
	if check.Active {
		t.Errorf("expected inactive after archive, got %+v", check)
	}
	if check.Status != string(domain.PrepAccessStatusArchived) {
		t.Errorf("expected archived status, got %q", check.Status)
	}
}

func TestDuplicateGrantConflicts(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]interface{}{"user_email": "dave@example.com", "exam_id": "exam-2", "plan_days": 7}

	rec := srv.do(t, http.MethodPost, "/api/prep-access", body, ownerHeaders())
	if rec.Code != http.StatusCreated {
		t.Fatalf("grant: expected 201, got %d", rec.Code)
	}
	rec = srv.do(t, http.MethodPost, "/api/prep-access", body, ownerHeaders())
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate grant: expected 409, got %d", rec.Code)
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/links", bytes.NewBufferString("{not json"))
	req.Header.Set(auth.OwnerKeyHeader, testOwnerKey)
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/links",
		map[string]interface{}{"target_id": "x", "mode": "free", "bogus": true}, ownerHeaders())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy status, got %q", resp["status"])
	}
}

func TestHealthEndpointDegraded(t *testing.T) {
	logger := zerolog.Nop()
	router := NewRouter(RouterConfig{
		SessionCodec: auth.NewSessionCodec(testSessionSecret, time.Hour),
		OwnerGate:    auth.NewOwnerGate(testOwnerKey),
		Database:     failingHealth{},
		Logger:       logger,
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when the store is down, got %d", rec.Code)
	}
}

type failingHealth struct{}

func (failingHealth) Health(context.Context) error { return fmt.Errorf("connection refused") }
