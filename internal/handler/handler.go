// Package handler содержит HTTP-обработчики API сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nattapongd/ecoschool-system/internal/middleware"
	"github.com/nattapongd/ecoschool-system/internal/model"
	"github.com/nattapongd/ecoschool-system/internal/repository"
	"github.com/nattapongd/ecoschool-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, studentID, fullName, password, committeeCode string) (*model.User, error)
	AuthenticateUser(ctx context.Context, studentID, password string) (*model.User, error)
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	SubmitMorningCheck(ctx context.Context, userID int64) (*model.GoodDeedEntry, error)
	SubmitCustomDeed(ctx context.Context, userID int64, details, imageURL string) (*model.GoodDeedEntry, error)
	GetGoodDeedsByUser(ctx context.Context, userID int64) ([]model.GoodDeedEntry, error)
	ReviewGoodDeed(ctx context.Context, reviewerID, entryID int64, status model.DeedStatus) (*model.GoodDeedEntry, error)
	RecordGarbageDropoff(ctx context.Context, recordedBy, userID int64, stamps int, description string) (*model.User, *model.GarbageTransaction, error)
	GetGarbageTransactionsByUser(ctx context.Context, userID int64) ([]model.GarbageTransaction, error)
	RedeemQRCode(ctx context.Context, userID int64, code string) (*service.QRRedemption, error)
	GenerateDeedCode(ctx context.Context, requesterID int64) (string, error)
	CreateIssue(ctx context.Context, userID int64, category, details, imageURL string) (*model.Issue, error)
	GetIssuesByUser(ctx context.Context, userID int64) ([]model.Issue, error)
	CreateAnnouncement(ctx context.Context, authorID int64, title, content string) (*model.Announcement, error)
	GetAnnouncements(ctx context.Context) ([]model.Announcement, error)
}

// Handler реализует HTTP-обработчики API сервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	authLimiter    *middleware.RateLimiter
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, authLimiter *middleware.RateLimiter) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		authLimiter:    authLimiter,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, messageResponse{Message: message})
}

// serviceError переводит ошибку бизнес-логики в HTTP-ответ.
// Неопознанные ошибки считаются отказом хранилища и дают 500.
func (h *Handler) serviceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument), errors.Is(err, service.ErrInvalidCode):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, service.ErrNotCommittee):
		h.writeError(w, http.StatusForbidden, "committee role required")
	case errors.Is(err, repository.ErrUserExists):
		h.writeError(w, http.StatusConflict, "student id already registered")
	case errors.Is(err, repository.ErrUserNotFound), errors.Is(err, repository.ErrDeedNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrDeedAlreadyReviewed):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(op, zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type userResponse struct {
	ID             int64  `json:"id"`
	StudentID      string `json:"studentId"`
	FullName       string `json:"fullName"`
	Role           string `json:"role"`
	GoodDeedPoints int    `json:"goodDeedPoints"`
	GarbageStamps  int    `json:"garbageStamps"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:             u.ID,
		StudentID:      u.StudentID,
		FullName:       u.FullName,
		Role:           string(u.Role),
		GoodDeedPoints: u.GoodDeedPoints,
		GarbageStamps:  u.GarbageStamps,
	}
}

type registerRequest struct {
	StudentID     string `json:"studentId"`
	FullName      string `json:"fullName"`
	Password      string `json:"password"`
	CommitteeCode string `json:"committeeCode"`
}

// Register обрабатывает регистрацию нового пользователя и открывает сессию.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.service.RegisterUser(r.Context(), req.StudentID, req.FullName, req.Password, req.CommitteeCode)
	if err != nil {
		h.serviceError(w, err, "register user error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, u.ID)
	h.writeJSON(w, http.StatusCreated, toUserResponse(u))
}

type loginRequest struct {
	StudentID string `json:"studentId"`
	Password  string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.StudentID == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "student id and password are required")
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.StudentID, req.Password)
	if err != nil {
		h.serviceError(w, err, "login user error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, u.ID)
	h.writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Logout завершает сессию текущего пользователя.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// Me возвращает профиль текущего пользователя с актуальными балансами.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	u, err := h.service.GetUserByID(r.Context(), userID)
	if err != nil {
		h.serviceError(w, err, "get current user error")
		return
	}

	h.writeJSON(w, http.StatusOK, toUserResponse(u))
}

type deedResponse struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"userId"`
	Type      string `json:"type"`
	Details   string `json:"details"`
	ImageURL  string `json:"imageUrl"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func toDeedResponse(e *model.GoodDeedEntry) deedResponse {
	return deedResponse{
		ID:        e.ID,
		UserID:    e.UserID,
		Type:      string(e.Type),
		Details:   e.Details,
		ImageURL:  e.ImageURL,
		Status:    string(e.Status),
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

type createDeedRequest struct {
	Type     string `json:"type"`
	Details  string `json:"details"`
	ImageURL string `json:"imageUrl"`
}

// CreateGoodDeed принимает заявку на доброе дело от текущего пользователя.
// Тип morning_check игнорирует присланные details и imageUrl.
func (h *Handler) CreateGoodDeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createDeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var entry *model.GoodDeedEntry
	var err error

	switch model.DeedType(req.Type) {
	case model.DeedTypeMorningCheck:
		entry, err = h.service.SubmitMorningCheck(r.Context(), userID)
	case model.DeedTypeCustom:
		entry, err = h.service.SubmitCustomDeed(r.Context(), userID, req.Details, req.ImageURL)
	default:
		h.writeError(w, http.StatusBadRequest, "unknown deed type")
		return
	}

	if err != nil {
		h.serviceError(w, err, "create good deed error")
		return
	}

	h.writeJSON(w, http.StatusCreated, toDeedResponse(entry))
}

// GetGoodDeeds возвращает записи о добрых делах текущего пользователя.
func (h *Handler) GetGoodDeeds(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	deeds, err := h.service.GetGoodDeedsByUser(r.Context(), userID)
	if err != nil {
		h.serviceError(w, err, "get good deeds error")
		return
	}

	resp := make([]deedResponse, 0, len(deeds))
	for i := range deeds {
		resp = append(resp, toDeedResponse(&deeds[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type reviewDeedRequest struct {
	Status string `json:"status"`
}

// ReviewGoodDeed переводит заявку в статус approved или rejected. Только для комитета.
func (h *Handler) ReviewGoodDeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	var req reviewDeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.service.ReviewGoodDeed(r.Context(), userID, entryID, model.DeedStatus(req.Status))
	if err != nil {
		h.serviceError(w, err, "review good deed error")
		return
	}

	h.writeJSON(w, http.StatusOK, toDeedResponse(entry))
}

type transactionResponse struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"userId"`
	StampsAdded int    `json:"stampsAdded"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
}

func toTransactionResponse(t *model.GarbageTransaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		StampsAdded: t.StampsAdded,
		Description: t.Description,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
}

// GetGarbageTransactions возвращает журнал начислений марок текущего пользователя.
func (h *Handler) GetGarbageTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	transactions, err := h.service.GetGarbageTransactionsByUser(r.Context(), userID)
	if err != nil {
		h.serviceError(w, err, "get garbage transactions error")
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for i := range transactions {
		resp = append(resp, toTransactionResponse(&transactions[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type dropoffRequest struct {
	UserID      int64  `json:"userId"`
	StampsAdded int    `json:"stampsAdded"`
	Description string `json:"description"`
}

type dropoffResponse struct {
	User        userResponse        `json:"user"`
	Transaction transactionResponse `json:"transaction"`
}

// RecordGarbageDropoff фиксирует сдачу вторсырья учеником. Только для комитета.
func (h *Handler) RecordGarbageDropoff(w http.ResponseWriter, r *http.Request) {
	recordedBy, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req dropoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, tx, err := h.service.RecordGarbageDropoff(r.Context(), recordedBy, req.UserID, req.StampsAdded, req.Description)
	if err != nil {
		h.serviceError(w, err, "record garbage dropoff error")
		return
	}

	h.writeJSON(w, http.StatusCreated, dropoffResponse{
		User:        toUserResponse(u),
		Transaction: toTransactionResponse(tx),
	})
}

type claimQRRequest struct {
	Code string `json:"code"`
}

type claimQRResponse struct {
	Message string `json:"message"`
	Points  int    `json:"points"`
}

// ClaimQR погашает отсканированный QR-код и начисляет баллы текущему пользователю.
func (h *Handler) ClaimQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req claimQRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.service.RedeemQRCode(r.Context(), userID, req.Code)
	if err != nil {
		h.serviceError(w, err, "redeem qr code error")
		return
	}

	h.writeJSON(w, http.StatusOK, claimQRResponse{
		Message: res.Message,
		Points:  res.Points,
	})
}

type deedCodeResponse struct {
	Code string `json:"code"`
}

// GenerateDeedCode выпускает новый код для QR-плаката. Только для комитета.
func (h *Handler) GenerateDeedCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	code, err := h.service.GenerateDeedCode(r.Context(), userID)
	if err != nil {
		h.serviceError(w, err, "generate deed code error")
		return
	}

	h.writeJSON(w, http.StatusCreated, deedCodeResponse{Code: code})
}

type issueResponse struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"userId"`
	Category  string `json:"category"`
	Details   string `json:"details"`
	ImageURL  string `json:"imageUrl"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func toIssueResponse(is *model.Issue) issueResponse {
	return issueResponse{
		ID:        is.ID,
		UserID:    is.UserID,
		Category:  is.Category,
		Details:   is.Details,
		ImageURL:  is.ImageURL,
		Status:    string(is.Status),
		CreatedAt: is.CreatedAt.Format(time.RFC3339),
	}
}

type createIssueRequest struct {
	Category string `json:"category"`
	Details  string `json:"details"`
	ImageURL string `json:"imageUrl"`
}

// CreateIssue принимает обращение от текущего пользователя.
func (h *Handler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	is, err := h.service.CreateIssue(r.Context(), userID, req.Category, req.Details, req.ImageURL)
	if err != nil {
		h.serviceError(w, err, "create issue error")
		return
	}

	h.writeJSON(w, http.StatusCreated, toIssueResponse(is))
}

// GetIssues возвращает обращения текущего пользователя.
func (h *Handler) GetIssues(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	issues, err := h.service.GetIssuesByUser(r.Context(), userID)
	if err != nil {
		h.serviceError(w, err, "get issues error")
		return
	}

	resp := make([]issueResponse, 0, len(issues))
	for i := range issues {
		resp = append(resp, toIssueResponse(&issues[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type announcementResponse struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	AuthorRole string `json:"authorRole"`
	CreatedAt  string `json:"createdAt"`
}

func toAnnouncementResponse(a *model.Announcement) announcementResponse {
	return announcementResponse{
		ID:         a.ID,
		Title:      a.Title,
		Content:    a.Content,
		AuthorRole: string(a.AuthorRole),
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
}

type createAnnouncementRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CreateAnnouncement публикует объявление. Только для комитета.
func (h *Handler) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createAnnouncementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.service.CreateAnnouncement(r.Context(), userID, req.Title, req.Content)
	if err != nil {
		h.serviceError(w, err, "create announcement error")
		return
	}

	h.writeJSON(w, http.StatusCreated, toAnnouncementResponse(a))
}

// GetAnnouncements возвращает все объявления.
func (h *Handler) GetAnnouncements(w http.ResponseWriter, r *http.Request) {
	announcements, err := h.service.GetAnnouncements(r.Context())
	if err != nil {
		h.serviceError(w, err, "get announcements error")
		return
	}

	resp := make([]announcementResponse, 0, len(announcements))
	for i := range announcements {
		resp = append(resp, toAnnouncementResponse(&announcements[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}
