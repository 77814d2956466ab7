// Package model содержит доменные сущности сервиса голд-леджер.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Account представляет счёт участника. Баланс хранится в сотых долях Gold.
type Account struct {
	Code         string
	ActorID      int64
	DisplayName  string
	Role         string
	BalanceCents int64
	CreatedAt    time.Time
}

// WithdrawalStatus описывает статус заявки на вывод средств.
type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "PENDING"
	WithdrawalStatusApproved WithdrawalStatus = "APPROVED"
	WithdrawalStatusRejected WithdrawalStatus = "REJECTED"
)

// WithdrawalRequest описывает заявку на вывод средств, ожидающую решения администратора.
// Терминальные статусы неизменяемы: заявка разрешается ровно один раз.
type WithdrawalRequest struct {
	ID          uuid.UUID
	AccountCode string
	AmountCents int64
	Status      WithdrawalStatus
	CreatedAt   time.Time
	ResolvedAt  *time.Time
	ResolvedBy  *int64
}

// HistoryEntry описывает запись журнала выплат и корректировок баланса.
type HistoryEntry struct {
	OccurredAt  time.Time
	AccountName string
	AdminName   string
	AmountCents int64
}

// Stats содержит сводную статистику леджера для администраторов.
type Stats struct {
	Accounts           int64
	TotalCents         int64
	PendingWithdrawals int64
}
