// Package payment предоставляет киоску платёжный фасад поверх
// протокольного пакета tl3600: одна операция ProcessPayment вместо
// последовательности режим ожидания / событие карты / одобрение.
// Реализация выбирается конфигурацией: реальный терминал или
// симулятор с тем же контрактом событий.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"tlterm/internal/infrastructure/config"
	"tlterm/internal/infrastructure/logger"
	"tlterm/pkg/tl3600"
)

var (
	ErrPaymentTimeout    = errors.New("payment: no card presented before timeout")
	ErrPaymentInProgress = errors.New("payment: another payment is in progress")
)

// Service — платёжный фасад киоска.
type Service interface {
	Connect() error
	Disconnect() error

	// ProcessPayment проводит полный цикл оплаты: вход в режим
	// ожидания карты, одобрение по предъявлению, выход из режима.
	// Отказ возвращается как *tl3600.RejectError, истечение времени
	// ожидания карты — как ErrPaymentTimeout.
	ProcessPayment(ctx context.Context, amount int64) (*Result, error)

	// CancelTransaction отменяет ранее одобренную транзакцию по реквизитам.
	CancelTransaction(details CancelDetails) (*Result, error)

	Status() Status
	// Events транслирует уведомления хода оплаты для интерфейса киоска.
	Events() <-chan Event
}

// Result — исход успешной оплаты или отмены.
type Result struct {
	SessionID      string `json:"sessionId"`
	Amount         int64  `json:"amount"`
	CardType       string `json:"cardType"`
	CardNumber     string `json:"cardNumber"`
	ApprovalNumber string `json:"approvalNumber"`
	SalesDate      string `json:"salesDate"`
	SalesTime      string `json:"salesTime"`
	TransactionID  string `json:"transactionId"`
}

// CancelDetails — реквизиты отменяемой транзакции.
type CancelDetails struct {
	ApprovalNumber string `json:"approvalNumber"`
	SalesDate      string `json:"salesDate"` // YYYYMMDD
	SalesTime      string `json:"salesTime"` // hhmmss
	Amount         int64  `json:"amount"`
}

// Status — состояние фасада.
type Status struct {
	Connected  bool   `json:"connected"`
	Busy       bool   `json:"busy"` // идёт оплата
	TerminalID string `json:"terminalId"`
	Simulated  bool   `json:"simulated"`
}

// EventKind — вид события фасада.
type EventKind string

const (
	EventCardDetected      EventKind = "cardDetected"
	EventCardRemoved       EventKind = "cardRemoved"
	EventProcessingPayment EventKind = "processingPayment"
	EventPaymentApproved   EventKind = "paymentApproved"
	EventPaymentRejected   EventKind = "paymentRejected"
	EventError             EventKind = "error"
	EventDisconnected      EventKind = "disconnected"
)

// Event — событие хода оплаты для интерфейса киоска.
type Event struct {
	Kind     EventKind `json:"kind"`
	CardType string    `json:"cardType,omitempty"`
	Result   *Result   `json:"result,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// New собирает фасад по конфигурации: симулятор либо реальный терминал
// на последовательном порту.
func New(cfg *config.Config, log *logrus.Logger) Service {
	if cfg.Payment.UseSimulator {
		return NewSimulator(SimulatorConfig{
			TerminalID:    cfg.Terminal.ID,
			CardDelay:     time.Duration(cfg.Payment.SimulatorCardDelayMs) * time.Millisecond,
			ApprovalDelay: time.Duration(cfg.Payment.SimulatorApprovalDelayMs) * time.Millisecond,
		}, log)
	}

	tr := tl3600.NewSerialTransport(tl3600.SerialConfig{
		PortName:        cfg.Serial.Port,
		BaudRate:        cfg.Serial.BaudRate,
		AckTimeout:      time.Duration(cfg.Serial.AckTimeoutSeconds) * time.Second,
		ResponseTimeout: time.Duration(cfg.Serial.ResponseTimeoutSeconds) * time.Second,
		MaxAttempts:     cfg.Serial.MaxAttempts,
		Logger:          logger.Protocol(log),
	})
	ctrl := tl3600.NewController(tl3600.Config{
		TerminalID: cfg.Terminal.ID,
		Logger:     logger.Protocol(log),
	}, tr)

	return newTerminalService(ctrl, time.Duration(cfg.Payment.TimeoutSeconds)*time.Second, log)
}
