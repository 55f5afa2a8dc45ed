// Package service реализует бизнес-логику школьного сервиса баллов.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nattapongd/ecoschool-system/internal/model"
	"github.com/nattapongd/ecoschool-system/internal/repository"
	"github.com/nattapongd/ecoschool-system/internal/validation"
)

// ErrInvalidArgument возвращается, когда переданное значение нарушает предусловие операции.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidCode возвращается при неверном формате QR-кода. Побочных эффектов нет.
	ErrInvalidCode = errors.New("invalid qr code")
	// ErrInvalidCredentials возвращается при неверной паре номер ученика/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotCommittee возвращается, когда операция требует роли комитета.
	ErrNotCommittee = errors.New("committee role required")
)

// Текст записи утренней переклички. Клиент отправляет ровно эту строку,
// поэтому сервер фиксирует её как константу.
const morningCheckDetails = "เช็คชื่อกิจกรรมยามเช้า"

// qrClaimPoints — сколько баллов даёт одно погашение QR-кода.
const qrClaimPoints = 1

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, studentID, fullName string, passwordHash []byte, role model.Role) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByStudentID(ctx context.Context, studentID string) (*model.User, error)
	CreateGoodDeed(ctx context.Context, userID int64, deedType model.DeedType, details, imageURL string) (*model.GoodDeedEntry, error)
	GetGoodDeedsByUser(ctx context.Context, userID int64) ([]model.GoodDeedEntry, error)
	UpdateGoodDeedStatus(ctx context.Context, entryID int64, status model.DeedStatus) (*model.GoodDeedEntry, error)
	AddGarbageStamps(ctx context.Context, userID int64, stamps int, description string) (*model.User, *model.GarbageTransaction, error)
	GetGarbageTransactionsByUser(ctx context.Context, userID int64) ([]model.GarbageTransaction, error)
	AddGoodDeedPoints(ctx context.Context, userID int64, points int) (*model.User, error)
	CreateIssue(ctx context.Context, userID int64, category, details, imageURL string) (*model.Issue, error)
	GetIssuesByUser(ctx context.Context, userID int64) ([]model.Issue, error)
	CreateAnnouncement(ctx context.Context, title, content string, authorRole model.Role) (*model.Announcement, error)
	GetAnnouncements(ctx context.Context) ([]model.Announcement, error)
}

// Service содержит бизнес-логику сервиса баллов.
type Service struct {
	repo          Repository
	committeeCode string
}

// NewService создаёт новый сервис с указанным репозиторием.
// committeeCode — регистрационный код, дающий роль комитета.
func NewService(repo Repository, committeeCode string) *Service {
	return &Service{
		repo:          repo,
		committeeCode: committeeCode,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя. Совпадение committeeCode
// с настроенным кодом даёт роль комитета, иначе регистрируется ученик.
func (s *Service) RegisterUser(ctx context.Context, studentID, fullName, password, committeeCode string) (*model.User, error) {
	if studentID == "" || fullName == "" || password == "" {
		return nil, fmt.Errorf("%w: student id, full name and password are required", ErrInvalidArgument)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := model.RoleStudent
	if s.committeeCode != "" && committeeCode == s.committeeCode {
		role = model.RoleCommittee
	}

	return s.repo.CreateUser(ctx, studentID, fullName, hash, role)
}

// AuthenticateUser проверяет номер ученика и пароль и возвращает пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, studentID, password string) (*model.User, error) {
	u, err := s.repo.GetUserByStudentID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (s *Service) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// SubmitMorningCheck записывает отметку об утренней перекличке.
// Запись создаётся в статусе pending, баллы при подаче не начисляются.
func (s *Service) SubmitMorningCheck(ctx context.Context, userID int64) (*model.GoodDeedEntry, error) {
	return s.repo.CreateGoodDeed(ctx, userID, model.DeedTypeMorningCheck, morningCheckDetails, "")
}

// SubmitCustomDeed записывает заявку на произвольное доброе дело.
// Описание обязательно; запись создаётся в статусе pending, баллы при подаче не начисляются.
func (s *Service) SubmitCustomDeed(ctx context.Context, userID int64, details, imageURL string) (*model.GoodDeedEntry, error) {
	if strings.TrimSpace(details) == "" {
		return nil, fmt.Errorf("%w: details must not be empty", ErrInvalidArgument)
	}
	return s.repo.CreateGoodDeed(ctx, userID, model.DeedTypeCustom, details, imageURL)
}

// GetGoodDeedsByUser возвращает записи о добрых делах пользователя.
func (s *Service) GetGoodDeedsByUser(ctx context.Context, userID int64) ([]model.GoodDeedEntry, error) {
	return s.repo.GetGoodDeedsByUser(ctx, userID)
}

// ReviewGoodDeed переводит запись в статус approved или rejected.
// Доступно только роли комитета. Баллы при одобрении не начисляются:
// начисление остаётся отдельной операцией AwardGoodDeedPoints.
func (s *Service) ReviewGoodDeed(ctx context.Context, reviewerID, entryID int64, status model.DeedStatus) (*model.GoodDeedEntry, error) {
	if status != model.DeedStatusApproved && status != model.DeedStatusRejected {
		return nil, fmt.Errorf("%w: status must be approved or rejected", ErrInvalidArgument)
	}

	if err := s.requireCommittee(ctx, reviewerID); err != nil {
		return nil, err
	}

	return s.repo.UpdateGoodDeedStatus(ctx, entryID, status)
}

// RecordGarbageDropoff фиксирует сдачу вторсырья: добавляет строку журнала и
// увеличивает баланс марок пользователя. Запись выполняет член комитета.
func (s *Service) RecordGarbageDropoff(ctx context.Context, recordedBy, userID int64, stamps int, description string) (*model.User, *model.GarbageTransaction, error) {
	if stamps <= 0 {
		return nil, nil, fmt.Errorf("%w: stamps must be positive", ErrInvalidArgument)
	}

	if err := s.requireCommittee(ctx, recordedBy); err != nil {
		return nil, nil, err
	}

	return s.repo.AddGarbageStamps(ctx, userID, stamps, description)
}

// GetGarbageTransactionsByUser возвращает журнал начислений марок пользователя.
func (s *Service) GetGarbageTransactionsByUser(ctx context.Context, userID int64) ([]model.GarbageTransaction, error) {
	return s.repo.GetGarbageTransactionsByUser(ctx, userID)
}

// AwardGoodDeedPoints увеличивает баланс баллов пользователя.
// Единственный путь изменения goodDeedPoints.
func (s *Service) AwardGoodDeedPoints(ctx context.Context, userID int64, points int) (*model.User, error) {
	if points <= 0 {
		return nil, fmt.Errorf("%w: points must be positive", ErrInvalidArgument)
	}
	return s.repo.AddGoodDeedPoints(ctx, userID, points)
}

// QRRedemption описывает результат погашения QR-кода.
type QRRedemption struct {
	User    *model.User
	Entry   *model.GoodDeedEntry
	Points  int
	Message string
}

// RedeemQRCode превращает отсканированный код в начисление баллов.
// Неверный код отклоняется без побочных эффектов. Реестр погашенных кодов
// не ведётся: повторное сканирование того же кода начисляет баллы снова.
func (s *Service) RedeemQRCode(ctx context.Context, userID int64, code string) (*QRRedemption, error) {
	if !validation.IsValidDeedCode(code) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}

	u, err := s.AwardGoodDeedPoints(ctx, userID, qrClaimPoints)
	if err != nil {
		return nil, err
	}

	// Запись в журнал идёт вторым шагом; при её отказе начисление не откатывается.
	entry, err := s.repo.CreateGoodDeed(ctx, userID, model.DeedTypeQRClaim, "scanned code: "+code, "")
	if err != nil {
		return nil, err
	}

	return &QRRedemption{
		User:    u,
		Entry:   entry,
		Points:  qrClaimPoints,
		Message: fmt.Sprintf("QR code accepted, %d good deed point added", qrClaimPoints),
	}, nil
}

// GenerateDeedCode выпускает новый код для печати на QR-плакате.
// Доступно только роли комитета. Выпущенные коды нигде не сохраняются.
func (s *Service) GenerateDeedCode(ctx context.Context, requesterID int64) (string, error) {
	if err := s.requireCommittee(ctx, requesterID); err != nil {
		return "", err
	}
	return validation.DeedCodePrefix + strings.ToUpper(uuid.NewString()), nil
}

// CreateIssue записывает обращение пользователя.
func (s *Service) CreateIssue(ctx context.Context, userID int64, category, details, imageURL string) (*model.Issue, error) {
	if strings.TrimSpace(category) == "" || strings.TrimSpace(details) == "" {
		return nil, fmt.Errorf("%w: category and details are required", ErrInvalidArgument)
	}
	return s.repo.CreateIssue(ctx, userID, category, details, imageURL)
}

// GetIssuesByUser возвращает обращения пользователя.
func (s *Service) GetIssuesByUser(ctx context.Context, userID int64) ([]model.Issue, error) {
	return s.repo.GetIssuesByUser(ctx, userID)
}

// CreateAnnouncement публикует объявление. Доступно только роли комитета.
func (s *Service) CreateAnnouncement(ctx context.Context, authorID int64, title, content string) (*model.Announcement, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: title and content are required", ErrInvalidArgument)
	}

	if err := s.requireCommittee(ctx, authorID); err != nil {
		return nil, err
	}

	return s.repo.CreateAnnouncement(ctx, title, content, model.RoleCommittee)
}

// GetAnnouncements возвращает все объявления.
func (s *Service) GetAnnouncements(ctx context.Context) ([]model.Announcement, error) {
	return s.repo.GetAnnouncements(ctx)
}

func (s *Service) requireCommittee(ctx context.Context, userID int64) error {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role != model.RoleCommittee {
		return ErrNotCommittee
	}
	return nil
}
