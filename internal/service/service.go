// Package service реализует бизнес-логику сервиса голд-леджер.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swedenfix/goldledger/internal/events"
	"github.com/swedenfix/goldledger/internal/model"
	"github.com/swedenfix/goldledger/internal/money"
	"github.com/swedenfix/goldledger/internal/notify"
	"github.com/swedenfix/goldledger/internal/repository"
)

// ErrNotAdmin возвращается, когда административное намерение подаёт актор
// вне списка администраторов.
var (
	ErrNotAdmin = errors.New("actor is not an administrator")
	// ErrNotRegistered возвращается, когда операцию запрашивает актор без счёта.
	ErrNotRegistered = errors.New("actor is not registered")
	// ErrSelfTransfer возвращается при попытке перевода самому себе.
	ErrSelfTransfer = errors.New("transfer to own account")
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	codeLength   = 12

	// Количество попыток генерации кода при коллизии. Вероятность коллизии
	// 12-символьного кода практически нулевая, но контракт требует повтора.
	codeAttempts = 5

	searchLimit  = 8
	historyLimit = 100
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateAccount(ctx context.Context, acc model.Account) error
	GetByActorID(ctx context.Context, actorID int64) (*model.Account, error)
	GetByCode(ctx context.Context, code string) (*model.Account, error)
	ApplyDelta(ctx context.Context, code string, delta int64) (int64, error)
	Transfer(ctx context.Context, fromCode, toCode string, amount int64) (int64, int64, error)
	ListAll(ctx context.Context) ([]model.Account, error)
	SearchByName(ctx context.Context, substring string, excludeActorID int64, limit int) ([]model.Account, error)
	CreateWithdrawal(ctx context.Context, req model.WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, id uuid.UUID) (*model.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, id uuid.UUID, adminID int64, adminName string) (*model.WithdrawalRequest, *model.Account, error)
	RejectWithdrawal(ctx context.Context, id uuid.UUID, adminID int64) (*model.WithdrawalRequest, *model.Account, error)
	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
	ListHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

// Service содержит бизнес-логику леджера: реестр счетов, транзакции,
// процесс согласования выводов и поиск получателей.
type Service struct {
	repo      Repository
	notifier  notify.Notifier
	publisher *events.Publisher
	admins    map[int64]struct{}
	logger    *zap.Logger
}

// NewService создаёт сервис с указанным репозиторием, доставкой уведомлений
// и списком администраторов.
func NewService(repo Repository, notifier notify.Notifier, publisher *events.Publisher, adminIDs []int64, logger *zap.Logger) *Service {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}

	return &Service{
		repo:      repo,
		notifier:  notifier,
		publisher: publisher,
		admins:    admins,
		logger:    logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// AdminIDs возвращает идентификаторы администраторов.
func (s *Service) AdminIDs() []int64 {
	ids := make([]int64, 0, len(s.admins))
	for id := range s.admins {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) requireAdmin(actorID int64) error {
	if _, ok := s.admins[actorID]; !ok {
		return ErrNotAdmin
	}
	return nil
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// Register создаёт счёт для актора и возвращает его код.
// Код генерируется заново при коллизии с уже существующим.
func (s *Service) Register(ctx context.Context, actorID int64, displayName, role string) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}

		err = s.repo.CreateAccount(ctx, model.Account{
			Code:        code,
			ActorID:     actorID,
			DisplayName: displayName,
			Role:        role,
		})
		if err == nil {
			s.publisher.Publish(events.SubjectRegistered, events.AccountEvent{
				AccountCode: code,
				ActorID:     actorID,
				OccurredAt:  time.Now(),
			})
			return code, nil
		}
		if errors.Is(err, repository.ErrCodeTaken) {
			continue
		}
		return "", err
	}

	return "", fmt.Errorf("generate unique account code: attempts exhausted")
}

// GetBalance возвращает счёт по коду, а при его отсутствии — по актору.
// Поиск по коду позволяет проверить баланс, зная только выданный при
// регистрации идентификатор.
func (s *Service) GetBalance(ctx context.Context, actorID int64, code string) (*model.Account, error) {
	if code != "" {
		return s.repo.GetByCode(ctx, code)
	}
	return s.repo.GetByActorID(ctx, actorID)
}

// RequestWithdrawal создаёт заявку на вывод средств и рассылает её
// администраторам. При нехватке средств заявка не создаётся и
// администраторы не уведомляются.
func (s *Service) RequestWithdrawal(ctx context.Context, actorID int64, amountText string) (uuid.UUID, error) {
	amount, err := money.ParseAmount(amountText)
	if err != nil {
		return uuid.Nil, err
	}

	acc, err := s.repo.GetByActorID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return uuid.Nil, ErrNotRegistered
		}
		return uuid.Nil, err
	}

	// Предварительная проверка; окончательная выполняется при одобрении,
	// когда баланс мог уже измениться.
	if amount > acc.BalanceCents {
		return uuid.Nil, repository.ErrInsufficientFunds
	}

	req := model.WithdrawalRequest{
		ID:          uuid.New(),
		AccountCode: acc.Code,
		AmountCents: amount,
	}
	if err := s.repo.CreateWithdrawal(ctx, req); err != nil {
		return uuid.Nil, err
	}

	for adminID := range s.admins {
		s.notifier.Notify(ctx, adminID,
			fmt.Sprintf("🚨 Заявка %s: %s — %s Gold", req.ID, acc.DisplayName, money.FormatCents(amount)))
	}
	s.notifier.Notify(ctx, actorID, "⌛ Заявка отправлена администраторам.")

	s.publisher.Publish(events.SubjectWithdrawRequested, events.WithdrawalEvent{
		RequestID:   req.ID.String(),
		AccountCode: acc.Code,
		AmountCents: amount,
		OccurredAt:  time.Now(),
	})

	return req.ID, nil
}

// adminName возвращает отображаемое имя администратора для журнала.
// У администратора может не быть счёта, тогда используется его идентификатор.
func (s *Service) adminName(ctx context.Context, adminID int64) string {
	acc, err := s.repo.GetByActorID(ctx, adminID)
	if err != nil {
		return strconv.FormatInt(adminID, 10)
	}
	return acc.DisplayName
}

// Approve одобряет заявку на вывод: списывает сумму, пишет журнал и
// уведомляет заявителя. Повторное решение по заявке возвращает
// ErrAlreadyResolved без изменения баланса.
func (s *Service) Approve(ctx context.Context, adminID int64, requestID uuid.UUID) error {
	if err := s.requireAdmin(adminID); err != nil {
		return err
	}

	req, acc, err := s.repo.ApproveWithdrawal(ctx, requestID, adminID, s.adminName(ctx, adminID))
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, acc.ActorID,
		fmt.Sprintf("✅ Ваша выплата %s Gold подтверждена!", money.FormatCents(req.AmountCents)))

	s.publisher.Publish(events.SubjectWithdrawApproved, events.WithdrawalEvent{
		RequestID:   req.ID.String(),
		AccountCode: req.AccountCode,
		AmountCents: req.AmountCents,
		ResolvedBy:  adminID,
		OccurredAt:  time.Now(),
	})

	return nil
}

// Reject отклоняет заявку на вывод без изменения баланса.
func (s *Service) Reject(ctx context.Context, adminID int64, requestID uuid.UUID) error {
	if err := s.requireAdmin(adminID); err != nil {
		return err
	}

	req, acc, err := s.repo.RejectWithdrawal(ctx, requestID, adminID)
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, acc.ActorID,
		fmt.Sprintf("❌ Заявка на вывод %s Gold отклонена.", money.FormatCents(req.AmountCents)))

	s.publisher.Publish(events.SubjectWithdrawRejected, events.WithdrawalEvent{
		RequestID:   req.ID.String(),
		AccountCode: req.AccountCode,
		AmountCents: req.AmountCents,
		ResolvedBy:  adminID,
		OccurredAt:  time.Now(),
	})

	return nil
}

// Transfer переводит сумму со счёта актора на счёт получателя и возвращает
// новый баланс отправителя. Обе стороны меняются атомарно.
func (s *Service) Transfer(ctx context.Context, actorID int64, recipientCode, amountText string) (int64, error) {
	amount, err := money.ParseAmount(amountText)
	if err != nil {
		return 0, err
	}

	sender, err := s.repo.GetByActorID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return 0, ErrNotRegistered
		}
		return 0, err
	}

	if sender.Code == recipientCode {
		return 0, ErrSelfTransfer
	}

	receiver, err := s.repo.GetByCode(ctx, recipientCode)
	if err != nil {
		return 0, err
	}

	senderBalance, _, err := s.repo.Transfer(ctx, sender.Code, receiver.Code, amount)
	if err != nil {
		return 0, err
	}

	s.notifier.Notify(ctx, receiver.ActorID,
		fmt.Sprintf("📥 Вам перевели %s Gold от %s", money.FormatCents(amount), sender.DisplayName))

	s.publisher.Publish(events.SubjectTransferred, events.TransferEvent{
		SenderCode:   sender.Code,
		ReceiverCode: receiver.Code,
		AmountCents:  amount,
		OccurredAt:   time.Now(),
	})

	return senderBalance, nil
}

// SearchRecipients возвращает счета, подходящие под подстроку имени,
// исключая счёт самого ищущего. Пустой результат не является ошибкой.
func (s *Service) SearchRecipients(ctx context.Context, actorID int64, query string) ([]model.Account, error) {
	return s.repo.SearchByName(ctx, query, actorID, searchLimit)
}

// AdjustBalance изменяет баланс счёта на подписанную сумму от имени
// администратора и пишет запись в журнал.
func (s *Service) AdjustBalance(ctx context.Context, adminID int64, code, amountText string) (int64, error) {
	if err := s.requireAdmin(adminID); err != nil {
		return 0, err
	}

	delta, err := money.ParseSignedAmount(amountText)
	if err != nil {
		return 0, err
	}

	acc, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return 0, err
	}

	newBalance, err := s.repo.ApplyDelta(ctx, code, delta)
	if err != nil {
		return 0, err
	}

	if err := s.repo.AppendHistory(ctx, model.HistoryEntry{
		AccountName: acc.DisplayName,
		AdminName:   s.adminName(ctx, adminID),
		AmountCents: delta,
	}); err != nil {
		// Корректировка уже применена; журнал не должен её откатывать.
		s.logger.Error("append adjustment history failed", zap.Error(err))
	}

	if delta > 0 {
		s.notifier.Notify(ctx, acc.ActorID,
			fmt.Sprintf("✅ Ваш счёт пополнен на %s Gold", money.FormatCents(delta)))
	} else {
		s.notifier.Notify(ctx, acc.ActorID,
			fmt.Sprintf("📉 С вашего счёта списано %s Gold", money.FormatCents(-delta)))
	}

	s.publisher.Publish(events.SubjectBalanceAdjusted, events.AdjustmentEvent{
		AccountCode: code,
		DeltaCents:  delta,
		AdminID:     adminID,
		OccurredAt:  time.Now(),
	})

	return newBalance, nil
}

// Broadcast отправляет сообщение владельцам всех счетов и возвращает
// количество адресатов. Доставка best-effort.
func (s *Service) Broadcast(ctx context.Context, adminID int64, text string) (int, error) {
	if err := s.requireAdmin(adminID); err != nil {
		return 0, err
	}

	accounts, err := s.repo.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	for _, acc := range accounts {
		s.notifier.Notify(ctx, acc.ActorID, text)
	}

	return len(accounts), nil
}

// Stats возвращает сводную статистику леджера.
func (s *Service) Stats(ctx context.Context, adminID int64) (*model.Stats, error) {
	if err := s.requireAdmin(adminID); err != nil {
		return nil, err
	}
	return s.repo.Stats(ctx)
}

// History возвращает последние записи журнала выплат и корректировок.
func (s *Service) History(ctx context.Context, adminID int64) ([]model.HistoryEntry, error) {
	if err := s.requireAdmin(adminID); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, historyLimit)
}
