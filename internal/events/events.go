// Package events публикует события леджера в NATS.
//
// События информационные: подписчики (аналитика, внешний аудит) получают их
// по принципу best-effort, сбой публикации не откатывает операцию.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Темы событий леджера.
const (
	SubjectRegistered	= "ledger.accounts.registered"
	SubjectTransferred	= "ledger.transfers.completed"
	SubjectWithdrawRequested	= "ledger.withdrawals.requested"
	SubjectWithdrawApproved	= "ledger.withdrawals.approved"
	SubjectWithdrawRejected	= "ledger.withdrawals.rejected"
	SubjectBalanceAdjusted	= "ledger.balances.adjusted"
)

// AccountEvent описывает событие жизненного цикла счёта.
type AccountEvent struct {
	AccountCode string    `json:"account_code"`
	ActorID     int64     `json:"actor_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// TransferEvent описывает завершённый перевод между счетами.
type TransferEvent struct {
	SenderCode   string    `json:"sender_code"`
	ReceiverCode string    `json:"receiver_code"`
	AmountCents  int64     `json:"amount_cents"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// WithdrawalEvent описывает переход заявки на вывод средств.
type WithdrawalEvent struct {
	RequestID   string    `json:"request_id"`
	AccountCode string    `json:"account_code"`
	AmountCents int64     `json:"amount_cents"`
	ResolvedBy  int64     `json:"resolved_by,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// AdjustmentEvent описывает административную корректировку баланса.
type AdjustmentEvent struct {
	AccountCode string    `json:"account_code"`
	DeltaCents  int64     `json:"delta_cents"`
	AdminID     int64     `json:"admin_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher публикует события леджера в NATS. Нулевое подключение допустимо:
// публикация тогда молча пропускается.
type Publisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewPublisher создаёт издатель событий поверх подключения к NATS.
func NewPublisher(nc *nats.Conn, logger *zap.Logger) *Publisher {
	return &Publisher{nc: nc, logger: logger}
}

// Connect открывает подключение к NATS.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url)
}

// Publish сериализует событие и отправляет его в указанную тему.
// Ошибка публикации логируется и не возвращается.
func (p *Publisher) Publish(subject string, event any) {
	if p == nil || p.nc == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshal event failed", zap.String("subject", subject), zap.Error(err))
		return
	}

	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn("publish event failed", zap.String("subject", subject), zap.Error(err))
	}
}
