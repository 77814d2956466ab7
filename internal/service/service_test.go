package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swedenfix/goldledger/internal/events"
	"github.com/swedenfix/goldledger/internal/model"
	"github.com/swedenfix/goldledger/internal/money"
	"github.com/swedenfix/goldledger/internal/repository"
)

type sentMessage struct {
	actorID int64
	text    string
}

type stubNotifier struct {
	sent []sentMessage
}

func (n *stubNotifier) Notify(_ context.Context, actorID int64, text string) {
	n.sent = append(n.sent, sentMessage{actorID: actorID, text: text})
}

type stubRepo struct {
	createAccountErrs []error
	createdAccounts   []model.Account

	accountByActor map[int64]*model.Account
	accountByCode  map[string]*model.Account

	createdWithdrawals []model.WithdrawalRequest

	approveReq *model.WithdrawalRequest
	approveAcc *model.Account
	approveErr error

	rejectReq *model.WithdrawalRequest
	rejectAcc *model.Account
	rejectErr error

	transferSenderBalance   int64
	transferReceiverBalance int64
	transferErr             error

	searchResult []model.Account

	listAll []model.Account

	appliedDelta   int64
	applyDeltaResp int64
	applyDeltaErr  error

	history []model.HistoryEntry

	stats *model.Stats
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateAccount(_ context.Context, acc model.Account) error {
	s.createdAccounts = append(s.createdAccounts, acc)
	if len(s.createAccountErrs) > 0 {
		err := s.createAccountErrs[0]
		s.createAccountErrs = s.createAccountErrs[1:]
		return err
	}
	return nil
}

func (s *stubRepo) GetByActorID(_ context.Context, actorID int64) (*model.Account, error) {
	if acc, ok := s.accountByActor[actorID]; ok {
		return acc, nil
	}
	return nil, repository.ErrAccountNotFound
}

func (s *stubRepo) GetByCode(_ context.Context, code string) (*model.Account, error) {
	if acc, ok := s.accountByCode[code]; ok {
		return acc, nil
	}
	return nil, repository.ErrAccountNotFound
}

func (s *stubRepo) ApplyDelta(_ context.Context, code string, delta int64) (int64, error) {
	s.appliedDelta = delta
	return s.applyDeltaResp, s.applyDeltaErr
}

func (s *stubRepo) Transfer(_ context.Context, fromCode, toCode string, amount int64) (int64, int64, error) {
	return s.transferSenderBalance, s.transferReceiverBalance, s.transferErr
}

func (s *stubRepo) ListAll(_ context.Context) ([]model.Account, error) {
	return s.listAll, nil
}

func (s *stubRepo) SearchByName(_ context.Context, substring string, excludeActorID int64, limit int) ([]model.Account, error) {
	return s.searchResult, nil
}

func (s *stubRepo) CreateWithdrawal(_ context.Context, req model.WithdrawalRequest) error {
	s.createdWithdrawals = append(s.createdWithdrawals, req)
	return nil
}

func (s *stubRepo) GetWithdrawal(_ context.Context, id uuid.UUID) (*model.WithdrawalRequest, error) {
	return nil, repository.ErrWithdrawalNotFound
}

func (s *stubRepo) ApproveWithdrawal(_ context.Context, id uuid.UUID, adminID int64, adminName string) (*model.WithdrawalRequest, *model.Account, error) {
	return s.approveReq, s.approveAcc, s.approveErr
}

func (s *stubRepo) RejectWithdrawal(_ context.Context, id uuid.UUID, adminID int64) (*model.WithdrawalRequest, *model.Account, error) {
	return s.rejectReq, s.rejectAcc, s.rejectErr
}

func (s *stubRepo) AppendHistory(_ context.Context, entry model.HistoryEntry) error {
	s.history = append(s.history, entry)
	return nil
}

func (s *stubRepo) ListHistory(_ context.Context, limit int) ([]model.HistoryEntry, error) {
	return s.history, nil
}

func (s *stubRepo) Stats(_ context.Context) (*model.Stats, error) {
	return s.stats, nil
}

func newTestService(repo *stubRepo, notifier *stubNotifier, adminIDs []int64) *Service {
	return NewService(repo, notifier, events.NewPublisher(nil, zap.NewNop()), adminIDs, zap.NewNop())
}

func TestGenerateCode(t *testing.T) {
	a, err := generateCode()
	if err != nil {
		t.Fatalf("generateCode error: %v", err)
	}
	if len(a) != codeLength {
		t.Fatalf("code length = %d, want %d", len(a), codeLength)
	}
	for _, r := range a {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Fatalf("code %q contains unexpected rune %q", a, r)
		}
	}

	b, err := generateCode()
	if err != nil {
		t.Fatalf("generateCode error: %v", err)
	}
	if a == b {
		t.Fatalf("two generated codes are identical: %q", a)
	}
}

func TestRegister_RetriesOnCodeCollision(t *testing.T) {
	repo := &stubRepo{
		createAccountErrs: []error{repository.ErrCodeTaken},
	}
	svc := newTestService(repo, &stubNotifier{}, nil)

	code, err := svc.Register(context.Background(), 1, "Anna", "курьер")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if len(code) != codeLength {
		t.Fatalf("code length = %d, want %d", len(code), codeLength)
	}
	if len(repo.createdAccounts) != 2 {
		t.Fatalf("CreateAccount calls = %d, want 2", len(repo.createdAccounts))
	}
	if repo.createdAccounts[0].Code == repo.createdAccounts[1].Code {
		t.Fatalf("code was not regenerated after collision")
	}
}

func TestRegister_PropagatesDuplicateActor(t *testing.T) {
	repo := &stubRepo{
		createAccountErrs: []error{repository.ErrActorExists},
	}
	svc := newTestService(repo, &stubNotifier{}, nil)

	_, err := svc.Register(context.Background(), 1, "Anna", "")
	if !errors.Is(err, repository.ErrActorExists) {
		t.Fatalf("expected ErrActorExists, got %v", err)
	}
}

func TestRequestWithdrawal_InsufficientFunds(t *testing.T) {
	repo := &stubRepo{
		accountByActor: map[int64]*model.Account{
			1: {Code: "c1", ActorID: 1, DisplayName: "Anna", BalanceCents: 10000},
		},
	}
	notifier := &stubNotifier{}
	svc := newTestService(repo, notifier, []int64{100, 200})

	_, err := svc.RequestWithdrawal(context.Background(), 1, "150")
	if !errors.Is(err, repository.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Администраторы не должны видеть заведомо невыполнимую заявку.
	if len(notifier.sent) != 0 {
		t.Fatalf("no notifications expected, got %d", len(notifier.sent))
	}
	if len(repo.createdWithdrawals) != 0 {
		t.Fatalf("withdrawal must not be created, got %d", len(repo.createdWithdrawals))
	}
}

func TestRequestWithdrawal_NotifiesAdminsAndRequester(t *testing.T) {
	repo := &stubRepo{
		accountByActor: map[int64]*model.Account{
			1: {Code: "c1", ActorID: 1, DisplayName: "Anna", BalanceCents: 10000},
		},
	}
	notifier := &stubNotifier{}
	svc := newTestService(repo, notifier, []int64{100, 200})

	id, err := svc.RequestWithdrawal(context.Background(), 1, "40")
	if err != nil {
		t.Fatalf("RequestWithdrawal error: %v", err)
	}
	if id == uuid.Nil {
		t.Fatalf("request id must not be nil")
	}

	if len(repo.createdWithdrawals) != 1 {
		t.Fatalf("withdrawals created = %d, want 1", len(repo.createdWithdrawals))
	}
	if repo.createdWithdrawals[0].AmountCents != 4000 {
		t.Fatalf("amount = %d, want 4000", repo.createdWithdrawals[0].AmountCents)
	}

	// Два администратора и сам заявитель.
	if len(notifier.sent) != 3 {
		t.Fatalf("notifications = %d, want 3", len(notifier.sent))
	}

	admins := map[int64]bool{}
	for _, m := range notifier.sent {
		if m.actorID == 100 || m.actorID == 200 {
			admins[m.actorID] = true
			if !strings.Contains(m.text, id.String()) {
				t.Fatalf("admin notification must reference request id, got %q", m.text)
			}
		}
	}
	if len(admins) != 2 {
		t.Fatalf("both admins must be notified, got %v", admins)
	}
}

func TestRequestWithdrawal_InvalidAmount(t *testing.T) {
	repo := &stubRepo{
		accountByActor: map[int64]*model.Account{
			1: {Code: "c1", ActorID: 1, BalanceCents: 10000},
		},
	}
	svc := newTestService(repo, &stubNotifier{}, nil)

	for _, text := range []string{"", "abc", "0", "-5"} {
		if _, err := svc.RequestWithdrawal(context.Background(), 1, text); !errors.Is(err, money.ErrInvalidAmount) {
			t.Fatalf("amount %q: expected ErrInvalidAmount, got %v", text, err)
		}
	}
}

func TestRequestWithdrawal_NotRegistered(t *testing.T) {
	svc := newTestService(&stubRepo{}, &stubNotifier{}, nil)

	_, err := svc.RequestWithdrawal(context.Background(), 1, "10")
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestApprove_RequiresAdmin(t *testing.T) {
	svc := newTestService(&stubRepo{}, &stubNotifier{}, []int64{100})

	err := svc.Approve(context.Background(), 1, uuid.New())
	if !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
}

func TestApprove_PropagatesAlreadyResolved(t *testing.T) {
	repo := &stubRepo{approveErr: repository.ErrAlreadyResolved}
	notifier := &stubNotifier{}
	svc := newTestService(repo, notifier, []int64{100})

	err := svc.Approve(context.Background(), 100, uuid.New())
	if !errors.Is(err, repository.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("no notifications expected for resolved request, got %d", len(notifier.sent))
	}
}

func TestApprove_NotifiesRequester(t *testing.T) {
	reqID := uuid.New()
	repo := &stubRepo{
		approveReq: &model.WithdrawalRequest{
			ID:          reqID,
			AccountCode: "c1",
			AmountCents: 4000,
			Status:      model.WithdrawalStatusApproved,
		},
		approveAcc: &model.Account{Code: "c1", ActorID: 7, DisplayName: "Anna", BalanceCents: 6000},
	}
	notifier := &stubNotifier{}
	svc := newTestService(repo, notifier, []int64{100})

	if err := svc.Approve(context.Background(), 100, reqID); err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].actorID != 7 {
		t.Fatalf("requester must be notified, got %+v", notifier.sent)
	}
	if !strings.Contains(notifier.sent[0].text, "40") {
		t.Fatalf("notification must contain the amount, got %q", notifier.sent[0].text)
	}
}

func TestTransfer_SelfTransfer(t *testing.T) {
	repo := &stubRepo{
		accountByActor: map[int64]*model.Account{
			1: {Code: "c1", ActorID: 1, BalanceCents: 5000},
		},
	}
	svc := newTestService(repo, &stubNotifier{}, nil)

	_, err := svc.Transfer(context.Background(), 1, "c1", "20")
	if !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("expected ErrSelfTransfer, got %v", err)
	}
}

func TestTransfer_NotifiesReceiver(t *testing.T) {
	repo := &stubRepo{
		accountByActor: map[int64]*model.Account{
			1: {Code: "c1", ActorID: 1, DisplayName: "Anna", BalanceCents: 5000},
		},
		accountByCode: map[string]*model.Account{
			"c2": {Code: "c2", ActorID: 2, DisplayName: "Boris", BalanceCents: 500},
		},
		transferSenderBalance:   3000,
		transferReceiverBalance: 2500,
	}
	notifier := &stubNotifier{}
	svc := newTestService(repo, notifier, nil)

	balance, err := svc.Transfer(context.Background(), 1, "c2", "20")
	if err != nil {
		t.Fatalf("Transfer error: %v", err)
	}
	if balance != 3000 {
		t.Fatalf("sender balance = %d, want 3000", balance)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].actorID != 2 {
		t.Fatalf("receiver must be notified, got %+v", notifier.sent)
	}
}

func TestTransfer_UnknownRecipient(t *testing.T) {
	repo := &stubRepo{
		accountByActor: map[int64]*model.Account{
			1: {Code: "c1", ActorID: 1, BalanceCents: 5000},
		},
	}
	svc := newTestService(repo, &stubNotifier{}, nil)

	_, err := svc.Transfer(context.Background(), 1, "missing", "20")
	if !errors.Is(err, repository.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAdjustBalance_WritesHistory(t *testing.T) {
	repo := &stubRepo{
		accountByCode: map[string]*model.Account{
			"c1": {Code: "c1", ActorID: 7, DisplayName: "Anna", BalanceCents: 1000},
		},
		applyDeltaResp: 6000,
	}
	notifier := &stubNotifier{}
	svc := newTestService(repo, notifier, []int64{100})

	balance, err := svc.AdjustBalance(context.Background(), 100, "c1", "50")
	if err != nil {
		t.Fatalf("AdjustBalance error: %v", err)
	}
	if balance != 6000 {
		t.Fatalf("balance = %d, want 6000", balance)
	}
	if repo.appliedDelta != 5000 {
		t.Fatalf("delta = %d, want 5000", repo.appliedDelta)
	}
	if len(repo.history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(repo.history))
	}
	if len(notifier.sent) != 1 || notifier.sent[0].actorID != 7 {
		t.Fatalf("owner must be notified, got %+v", notifier.sent)
	}
}

func TestBroadcast(t *testing.T) {
	repo := &stubRepo{
		listAll: []model.Account{
			{ActorID: 1}, {ActorID: 2}, {ActorID: 3},
		},
	}
	notifier := &stubNotifier{}
	svc := newTestService(repo, notifier, []int64{100})

	n, err := svc.Broadcast(context.Background(), 100, "🇸🇪 Система активна.")
	if err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}
	if n != 3 {
		t.Fatalf("recipients = %d, want 3", n)
	}
	if len(notifier.sent) != 3 {
		t.Fatalf("notifications = %d, want 3", len(notifier.sent))
	}
}

func TestStats_RequiresAdmin(t *testing.T) {
	svc := newTestService(&stubRepo{}, &stubNotifier{}, []int64{100})

	if _, err := svc.Stats(context.Background(), 1); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
}
