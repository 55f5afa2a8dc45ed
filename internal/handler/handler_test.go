package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nattapongd/ecoschool-system/internal/middleware"
	"github.com/nattapongd/ecoschool-system/internal/model"
	"github.com/nattapongd/ecoschool-system/internal/service"
)

type stubService struct {
	registerUser *model.User
	registerErr  error

	authUser *model.User
	authErr  error

	currentUser *model.User
	currentErr  error

	morningEntry *model.GoodDeedEntry
	customEntry  *model.GoodDeedEntry
	deedErr      error

	deedsResp []model.GoodDeedEntry
	deedsErr  error

	reviewEntry *model.GoodDeedEntry
	reviewErr   error

	dropoffUser *model.User
	dropoffTx   *model.GarbageTransaction
	dropoffErr  error

	txsResp []model.GarbageTransaction
	txsErr  error

	redeemResp *service.QRRedemption
	redeemErr  error

	deedCode    string
	deedCodeErr error

	issueResp  *model.Issue
	issueErr   error
	issuesResp []model.Issue
	issuesErr  error

	annResp  *model.Announcement
	annErr   error
	annsResp []model.Announcement
	annsErr  error
}

func (s *stubService) RegisterUser(ctx context.Context, studentID, fullName, password, committeeCode string) (*model.User, error) {
	return s.registerUser, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, studentID, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	return s.currentUser, s.currentErr
}

func (s *stubService) SubmitMorningCheck(ctx context.Context, userID int64) (*model.GoodDeedEntry, error) {
	return s.morningEntry, s.deedErr
}

func (s *stubService) SubmitCustomDeed(ctx context.Context, userID int64, details, imageURL string) (*model.GoodDeedEntry, error) {
	return s.customEntry, s.deedErr
}

func (s *stubService) GetGoodDeedsByUser(ctx context.Context, userID int64) ([]model.GoodDeedEntry, error) {
	return s.deedsResp, s.deedsErr
}

func (s *stubService) ReviewGoodDeed(ctx context.Context, reviewerID, entryID int64, status model.DeedStatus) (*model.GoodDeedEntry, error) {
	return s.reviewEntry, s.reviewErr
}

func (s *stubService) RecordGarbageDropoff(ctx context.Context, recordedBy, userID int64, stamps int, description string) (*model.User, *model.GarbageTransaction, error) {
	return s.dropoffUser, s.dropoffTx, s.dropoffErr
}

func (s *stubService) GetGarbageTransactionsByUser(ctx context.Context, userID int64) ([]model.GarbageTransaction, error) {
	return s.txsResp, s.txsErr
}

func (s *stubService) RedeemQRCode(ctx context.Context, userID int64, code string) (*service.QRRedemption, error) {
	return s.redeemResp, s.redeemErr
}

func (s *stubService) GenerateDeedCode(ctx context.Context, requesterID int64) (string, error) {
	return s.deedCode, s.deedCodeErr
}

func (s *stubService) CreateIssue(ctx context.Context, userID int64, category, details, imageURL string) (*model.Issue, error) {
	return s.issueResp, s.issueErr
}

func (s *stubService) GetIssuesByUser(ctx context.Context, userID int64) ([]model.Issue, error) {
	return s.issuesResp, s.issuesErr
}

func (s *stubService) CreateAnnouncement(ctx context.Context, authorID int64, title, content string) (*model.Announcement, error) {
	return s.annResp, s.annErr
}

func (s *stubService) GetAnnouncements(ctx context.Context) ([]model.Announcement, error) {
	return s.annsResp, s.annsErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")
	limiter := middleware.NewRateLimiter(1000)

	return NewHandler(svc, logger, auth, limiter)
}

func authedRequest(t *testing.T, h *Handler, method, target string, body []byte) *http.Request {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, 1)
	req.AddCookie(rec.Result().Cookies()[0])

	return req
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerUser: &model.User{ID: 42, StudentID: "6401001", FullName: "Student A", Role: model.RoleStudent},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(registerRequest{
		StudentID: "6401001",
		FullName:  "Student A",
		Password:  "secret",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("no session cookie set on register")
	}

	var u userResponse
	if err := json.NewDecoder(res.Body).Decode(&u); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if u.ID != 42 || u.StudentID != "6401001" {
		t.Fatalf("unexpected user response: %+v", u)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &stubService{
		authErr: service.ErrInvalidCredentials,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(loginRequest{
		StudentID: "6401001",
		Password:  "wrong",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestCreateGoodDeed_UnknownType(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(createDeedRequest{Type: "heroic"})
	req := authedRequest(t, h, http.MethodPost, "/api/good-deeds", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.CreateGoodDeed))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestCreateGoodDeed_MorningCheck(t *testing.T) {
	svc := &stubService{
		morningEntry: &model.GoodDeedEntry{
			ID:        7,
			UserID:    1,
			Type:      model.DeedTypeMorningCheck,
			Status:    model.DeedStatusPending,
			CreatedAt: time.Now(),
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(createDeedRequest{Type: "morning_check"})
	req := authedRequest(t, h, http.MethodPost, "/api/good-deeds", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.CreateGoodDeed))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var d deedResponse
	if err := json.NewDecoder(res.Body).Decode(&d); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if d.Status != "pending" || d.Type != "morning_check" {
		t.Fatalf("unexpected deed response: %+v", d)
	}
}

func TestGetGoodDeeds_EmptyArray(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := authedRequest(t, h, http.MethodGet, "/api/good-deeds", nil)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.GetGoodDeeds))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var deeds []deedResponse
	if err := json.NewDecoder(res.Body).Decode(&deeds); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(deeds) != 0 {
		t.Fatalf("deeds = %d, want empty array", len(deeds))
	}
}

func TestClaimQR_Success(t *testing.T) {
	svc := &stubService{
		redeemResp: &service.QRRedemption{
			User:    &model.User{ID: 1, GoodDeedPoints: 1},
			Entry:   &model.GoodDeedEntry{ID: 2, Type: model.DeedTypeQRClaim},
			Points:  1,
			Message: "QR code accepted, 1 good deed point added",
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(claimQRRequest{Code: "GOOD_DEED_ABC"})
	req := authedRequest(t, h, http.MethodPost, "/api/claim-qr", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.ClaimQR))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp claimQRResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Points != 1 || resp.Message == "" {
		t.Fatalf("unexpected claim response: %+v", resp)
	}
}

func TestClaimQR_InvalidCode(t *testing.T) {
	svc := &stubService{
		redeemErr: service.ErrInvalidCode,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(claimQRRequest{Code: "ABC"})
	req := authedRequest(t, h, http.MethodPost, "/api/claim-qr", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.ClaimQR))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestClaimQR_Unauthorized(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(claimQRRequest{Code: "GOOD_DEED_ABC"})
	req := httptest.NewRequest(http.MethodPost, "/api/claim-qr", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.ClaimQR))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestRecordGarbageDropoff_Forbidden(t *testing.T) {
	svc := &stubService{
		dropoffErr: service.ErrNotCommittee,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(dropoffRequest{UserID: 2, StampsAdded: 3, Description: "bottles"})
	req := authedRequest(t, h, http.MethodPost, "/api/garbage-transactions", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.RecordGarbageDropoff))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}
}

func TestRecordGarbageDropoff_Success(t *testing.T) {
	now := time.Now().UTC()
	svc := &stubService{
		dropoffUser: &model.User{ID: 2, StudentID: "6401002", GarbageStamps: 3},
		dropoffTx:   &model.GarbageTransaction{ID: 9, UserID: 2, StampsAdded: 3, Description: "bottles", CreatedAt: now},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(dropoffRequest{UserID: 2, StampsAdded: 3, Description: "bottles"})
	req := authedRequest(t, h, http.MethodPost, "/api/garbage-transactions", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.RecordGarbageDropoff))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp dropoffResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User.GarbageStamps != 3 || resp.Transaction.StampsAdded != 3 {
		t.Fatalf("unexpected dropoff response: %+v", resp)
	}
}

func TestReviewGoodDeed_InvalidID(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	router := h.SetupRouter()

	body, _ := json.Marshal(reviewDeedRequest{Status: "approved"})
	req := authedRequest(t, h, http.MethodPatch, "/api/good-deeds/abc", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestGetAnnouncements_JSONResponse(t *testing.T) {
	now := time.Now().UTC()
	svc := &stubService{
		annsResp: []model.Announcement{
			{ID: 1, Title: "Recycling day", Content: "Friday", AuthorRole: model.RoleCommittee, CreatedAt: now},
		},
	}
	h := newTestHandler(t, svc)

	req := authedRequest(t, h, http.MethodGet, "/api/announcements", nil)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.GetAnnouncements))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q, want application/json", ct)
	}

	var anns []announcementResponse
	if err := json.NewDecoder(res.Body).Decode(&anns); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(anns) != 1 || anns[0].Title != "Recycling day" {
		t.Fatalf("unexpected announcements: %+v", anns)
	}
}
