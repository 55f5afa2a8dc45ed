// Package model содержит доменные сущности школьного сервиса баллов.
package model

import "time"

// Role описывает роль пользователя в системе.
type Role string

const (
	RoleStudent   Role = "student"
	RoleCommittee Role = "committee"
)

// User представляет зарегистрированного ученика или члена комитета.
type User struct {
	ID             int64
	StudentID      string
	FullName       string
	PasswordHash   []byte
	Role           Role
	GoodDeedPoints int
	GarbageStamps  int
	CreatedAt      time.Time
}

// DeedType описывает вид записи о добром деле.
type DeedType string

const (
	DeedTypeMorningCheck DeedType = "morning_check"
	DeedTypeCustom       DeedType = "custom"
	DeedTypeQRClaim      DeedType = "qr_claim"
)

// DeedStatus описывает статус проверки записи о добром деле.
type DeedStatus string

const (
	DeedStatusPending  DeedStatus = "pending"
	DeedStatusApproved DeedStatus = "approved"
	DeedStatusRejected DeedStatus = "rejected"
)

// GoodDeedEntry описывает заявку ученика на доброе дело.
// Запись неизменяема после создания, кроме перехода статуса pending -> approved/rejected.
type GoodDeedEntry struct {
	ID        int64
	UserID    int64
	Type      DeedType
	Details   string
	ImageURL  string
	Status    DeedStatus
	CreatedAt time.Time
}

// GarbageTransaction описывает факт начисления марок за сдачу вторсырья.
// Таблица append-only: поле User.GarbageStamps равно сумме StampsAdded по пользователю.
type GarbageTransaction struct {
	ID          int64
	UserID      int64
	StampsAdded int
	Description string
	CreatedAt   time.Time
}

// IssueStatus описывает статус обращения.
type IssueStatus string

const (
	IssueStatusPending  IssueStatus = "pending"
	IssueStatusResolved IssueStatus = "resolved"
)

// Issue описывает жалобу или обращение ученика.
type Issue struct {
	ID        int64
	UserID    int64
	Category  string
	Details   string
	ImageURL  string
	Status    IssueStatus
	CreatedAt time.Time
}

// Announcement описывает объявление комитета.
type Announcement struct {
	ID         int64
	Title      string
	Content    string
	AuthorRole Role
	CreatedAt  time.Time
}
