// Package notify доставляет сообщения акторам через HTTP-шлюз бота.
//
// Доставка выполняется по принципу at-least-once и никогда не влияет на
// исход операции с леджером: сбой доставки логируется и игнорируется.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Notifier отправляет актору текстовое сообщение без гарантии доставки.
type Notifier interface {
	Notify(ctx context.Context, actorID int64, text string)
}

// GatewayClient отправляет сообщения через HTTP API бот-шлюза.
type GatewayClient struct {
	baseURL string
	client  *retryablehttp.Client
	logger  *zap.Logger
}

// NewGatewayClient создаёт клиент бот-шлюза с повторами на сетевых сбоях.
func NewGatewayClient(baseURL string, logger *zap.Logger) *GatewayClient {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 5 * time.Second
	c.Logger = nil

	return &GatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  c,
		logger:  logger,
	}
}

type sendMessageRequest struct {
	ActorID int64  `json:"actor_id"`
	Text    string `json:"text"`
}

// Notify отправляет сообщение актору. Ошибка доставки (например, актор
// заблокировал бота) логируется на уровне warn и не возвращается.
func (c *GatewayClient) Notify(ctx context.Context, actorID int64, text string) {
	if err := c.send(ctx, actorID, text); err != nil {
		c.logger.Warn("notification delivery failed",
			zap.Int64("actorID", actorID),
			zap.Error(err),
		)
	}
}

func (c *GatewayClient) send(ctx context.Context, actorID int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{ActorID: actorID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}

// NopNotifier используется, когда шлюз не сконфигурирован: сообщения
// пишутся только в лог.
type NopNotifier struct {
	logger *zap.Logger
}

// NewNopNotifier создаёт заглушку доставки сообщений.
func NewNopNotifier(logger *zap.Logger) *NopNotifier {
	return &NopNotifier{logger: logger}
}

// Notify пишет сообщение в лог вместо доставки.
func (n *NopNotifier) Notify(_ context.Context, actorID int64, text string) {
	n.logger.Debug("notification skipped, gateway not configured",
		zap.Int64("actorID", actorID),
		zap.String("text", text),
	)
}
