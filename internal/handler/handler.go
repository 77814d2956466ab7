// Package handler содержит HTTP-границу намерений сервиса голд-леджер.
//
// Бот-шлюз присылает каждое действие актора одним запросом
// POST /api/intents; вид намерения разбирается один раз и диспетчеризуется
// по таблице обработчиков.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swedenfix/goldledger/internal/intent"
	"github.com/swedenfix/goldledger/internal/middleware"
	"github.com/swedenfix/goldledger/internal/model"
	"github.com/swedenfix/goldledger/internal/money"
	"github.com/swedenfix/goldledger/internal/repository"
	"github.com/swedenfix/goldledger/internal/service"
	"github.com/swedenfix/goldledger/internal/session"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Register(ctx context.Context, actorID int64, displayName, role string) (string, error)
	GetBalance(ctx context.Context, actorID int64, code string) (*model.Account, error)
	RequestWithdrawal(ctx context.Context, actorID int64, amountText string) (uuid.UUID, error)
	Approve(ctx context.Context, adminID int64, requestID uuid.UUID) error
	Reject(ctx context.Context, adminID int64, requestID uuid.UUID) error
	Transfer(ctx context.Context, actorID int64, recipientCode, amountText string) (int64, error)
	SearchRecipients(ctx context.Context, actorID int64, query string) ([]model.Account, error)
	AdjustBalance(ctx context.Context, adminID int64, code, amountText string) (int64, error)
	Broadcast(ctx context.Context, adminID int64, text string) (int, error)
	Stats(ctx context.Context, adminID int64) (*model.Stats, error)
	History(ctx context.Context, adminID int64) ([]model.HistoryEntry, error)
}

var errMissingParameter = errors.New("missing required parameter")

type intentPayload struct {
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	AccountCode string `json:"account_code,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Query       string `json:"query,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Text        string `json:"text,omitempty"`
}

type intentRequest struct {
	Kind    string        `json:"kind"`
	Payload intentPayload `json:"payload"`
}

type intentFunc func(ctx context.Context, actorID int64, p intentPayload) (any, error)

// Handler реализует HTTP-границу сервиса голд-леджер.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	sessions       session.Store
	dispatch       map[intent.Kind]intentFunc
}

// NewHandler создаёт обработчик намерений с таблицей диспетчеризации.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, sessions session.Store) *Handler {
	h := &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		sessions:       sessions,
	}

	h.dispatch = map[intent.Kind]intentFunc{
		intent.KindRegister:           h.register,
		intent.KindCheckBalance:       h.checkBalance,
		intent.KindRequestWithdrawal:  h.requestWithdrawal,
		intent.KindTransfer:           h.transfer,
		intent.KindSearchRecipient:    h.searchRecipient,
		intent.KindAdminApprove:       h.adminApprove,
		intent.KindAdminReject:        h.adminReject,
		intent.KindAdminAdjustBalance: h.adminAdjustBalance,
		intent.KindAdminBroadcast:     h.adminBroadcast,
		intent.KindAdminStats:         h.adminStats,
		intent.KindAdminHistory:       h.adminHistory,
	}

	return h
}

// SubmitIntent принимает намерение актора и выполняет его через таблицу
// диспетчеризации.
func (h *Handler) SubmitIntent(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetActorIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	kind, ok := intent.ParseKind(req.Kind)
	if !ok {
		observeIntent("unknown", "rejected", 0)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	start := time.Now()

	res, err := h.dispatch[kind](r.Context(), actorID, req.Payload)
	if err != nil {
		observeIntent(string(kind), "error", time.Since(start))
		h.writeError(w, kind, actorID, err)
		return
	}

	observeIntent(string(kind), "ok", time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// writeError отображает доменные ошибки на коды HTTP. Неизвестные ошибки
// логируются и превращаются в общий ответ 500 без деталей.
func (h *Handler) writeError(w http.ResponseWriter, kind intent.Kind, actorID int64, err error) {
	var status int

	switch {
	case errors.Is(err, money.ErrInvalidAmount), errors.Is(err, errMissingParameter):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrActorExists), errors.Is(err, repository.ErrAlreadyResolved):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, repository.ErrWithdrawalNotFound),
		errors.Is(err, service.ErrNotRegistered):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, service.ErrNotAdmin):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrSelfTransfer):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	default:
		h.logger.Error("intent failed",
			zap.String("kind", string(kind)),
			zap.Int64("actorID", actorID),
			zap.Error(err),
		)
		status = http.StatusInternalServerError
	}

	http.Error(w, http.StatusText(status), status)
}

type statusResponse struct {
	Status string `json:"status"`
}

type registerResponse struct {
	AccountCode string `json:"account_code"`
}

func (h *Handler) register(ctx context.Context, actorID int64, p intentPayload) (any, error) {
	if p.DisplayName == "" {
		return nil, errMissingParameter
	}

	code, err := h.service.Register(ctx, actorID, p.DisplayName, p.Role)
	if err != nil {
		return nil, err
	}
	return registerResponse{AccountCode: code}, nil
}

type balanceResponse struct {
	AccountCode string  `json:"account_code"`
	DisplayName string  `json:"display_name"`
	Role        string  `json:"role,omitempty"`
	Balance     float64 `json:"balance"`
}

func toBalanceResponse(acc *model.Account) balanceResponse {
	return balanceResponse{
		AccountCode: acc.Code,
		DisplayName: acc.DisplayName,
		Role:        acc.Role,
		Balance:     float64(acc.BalanceCents) / 100,
	}
}

func (h *Handler) checkBalance(ctx context.Context, actorID int64, p intentPayload) (any, error) {
	acc, err := h.service.GetBalance(ctx, actorID, p.AccountCode)
	if err != nil {
		return nil, err
	}
	return toBalanceResponse(acc), nil
}

type withdrawalResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

func (h *Handler) requestWithdrawal(ctx context.Context, actorID int64, p intentPayload) (any, error) {
	if p.Amount == "" {
		h.saveDraft(ctx, actorID, session.Draft{
			Intent:    string(intent.KindRequestWithdrawal),
			CreatedAt: time.Now(),
		})
		return statusResponse{Status: "need_amount"}, nil
	}

	id, err := h.service.RequestWithdrawal(ctx, actorID, p.Amount)
	if err != nil {
		return nil, err
	}

	h.clearDraft(ctx, actorID)

	return withdrawalResponse{
		RequestID: id.String(),
		Status:    string(model.WithdrawalStatusPending),
	}, nil
}

type transferResponse struct {
	Balance float64 `json:"balance"`
}

func (h *Handler) transfer(ctx context.Context, actorID int64, p intentPayload) (any, error) {
	recipient := p.AccountCode
	if recipient == "" {
		// Получатель был выбран на предыдущем шаге диалога.
		draft, err := h.sessions.Get(ctx, actorID)
		if err != nil {
			h.logger.Warn("session lookup failed", zap.Int64("actorID", actorID), zap.Error(err))
		}
		if draft == nil || draft.RecipientCode == "" {
			return nil, errMissingParameter
		}
		recipient = draft.RecipientCode
	}

	if p.Amount == "" {
		h.saveDraft(ctx, actorID, session.Draft{
			Intent:        string(intent.KindTransfer),
			RecipientCode: recipient,
			CreatedAt:     time.Now(),
		})
		return statusResponse{Status: "need_amount"}, nil
	}

	balance, err := h.service.Transfer(ctx, actorID, recipient, p.Amount)
	if err != nil {
		return nil, err
	}

	h.clearDraft(ctx, actorID)

	return transferResponse{Balance: float64(balance) / 100}, nil
}

type recipientResponse struct {
	AccountCode string `json:"account_code"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role,omitempty"`
}

func (h *Handler) searchRecipient(ctx context.Context, actorID int64, p intentPayload) (any, error) {
	accounts, err := h.service.SearchRecipients(ctx, actorID, p.Query)
	if err != nil {
		return nil, err
	}

	res := make([]recipientResponse, 0, len(accounts))
	for _, acc := range accounts {
		res = append(res, recipientResponse{
			AccountCode: acc.Code,
			DisplayName: acc.DisplayName,
			Role:        acc.Role,
		})
	}
	return res, nil
}

func parseRequestID(p intentPayload) (uuid.UUID, error) {
	id, err := uuid.Parse(p.RequestID)
	if err != nil {
		return uuid.Nil, repository.ErrWithdrawalNotFound
	}
	return id, nil
}

func (h *Handler) adminApprove(ctx context.Context, actorID int64, p intentPayload) (any, error) {
	id, err := parseRequestID(p)
	if err != nil {
		return nil, err
	}
	if err := h.service.Approve(ctx, actorID, id); err != nil {
		return nil, err
	}
	return statusResponse{Status: string(model.WithdrawalStatusApproved)}, nil
}

func (h *Handler) adminReject(ctx context.Context, actorID int64, p intentPayload) (any, error) {
	id, err := parseRequestID(p)
	if err != nil {
		return nil, err
	}
	if err := h.service.Reject(ctx, actorID, id); err != nil {
		return nil, err
	}
	return statusResponse{Status: string(model.WithdrawalStatusRejected)}, nil
}

func (h *Handler) adminAdjustBalance(ctx context.Context, actorID int64, p intentPayload) (any, error) {
	balance, err := h.service.AdjustBalance(ctx, actorID, p.AccountCode, p.Amount)
	if err != nil {
		return nil, err
	}
	return transferResponse{Balance: float64(balance) / 100}, nil
}

type broadcastResponse struct {
	Recipients int `json:"recipients"`
}

func (h *Handler) adminBroadcast(ctx context.Context, actorID int64, p intentPayload) (any, error) {
	n, err := h.service.Broadcast(ctx, actorID, p.Text)
	if err != nil {
		return nil, err
	}
	return broadcastResponse{Recipients: n}, nil
}

type statsResponse struct {
	Accounts           int64   `json:"accounts"`
	TotalGold          float64 `json:"total_gold"`
	PendingWithdrawals int64   `json:"pending_withdrawals"`
}

func (h *Handler) adminStats(ctx context.Context, actorID int64, p intentPayload) (any, error) {
	stats, err := h.service.Stats(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return statsResponse{
		Accounts:           stats.Accounts,
		TotalGold:          float64(stats.TotalCents) / 100,
		PendingWithdrawals: stats.PendingWithdrawals,
	}, nil
}

type historyEntryResponse struct {
	OccurredAt  string  `json:"occurred_at"`
	AccountName string  `json:"account_name"`
	AdminName   string  `json:"admin_name"`
	Amount      float64 `json:"amount"`
}

func (h *Handler) adminHistory(ctx context.Context, actorID int64, p intentPayload) (any, error) {
	entries, err := h.service.History(ctx, actorID)
	if err != nil {
		return nil, err
	}

	res := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, historyEntryResponse{
			OccurredAt:  e.OccurredAt.Format(time.RFC3339),
			AccountName: e.AccountName,
			AdminName:   e.AdminName,
			Amount:      float64(e.AmountCents) / 100,
		})
	}
	return res, nil
}

// saveDraft сохраняет черновик диалога; сбой хранилища сессий не прерывает
// обработку, клиент просто повторит полный запрос.
func (h *Handler) saveDraft(ctx context.Context, actorID int64, draft session.Draft) {
	if err := h.sessions.Put(ctx, actorID, draft); err != nil {
		h.logger.Warn("save draft failed", zap.Int64("actorID", actorID), zap.Error(err))
	}
}

func (h *Handler) clearDraft(ctx context.Context, actorID int64) {
	if err := h.sessions.Clear(ctx, actorID); err != nil {
		h.logger.Warn("clear draft failed", zap.Int64("actorID", actorID), zap.Error(err))
	}
}
