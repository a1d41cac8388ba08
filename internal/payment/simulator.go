package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tlterm/pkg/tl3600"
)

// SimulatorConfig — параметры симулятора терминала.
type SimulatorConfig struct {
	TerminalID    string
	CardDelay     time.Duration // от начала оплаты до "предъявления" карты
	ApprovalDelay time.Duration // от карты до исхода
	CardType      string        // тип носителя в событиях, по умолчанию "ic"
}

// Simulator реализует Service без оборудования: киоск разрабатывается
// и демонстрируется без терминала, с тем же контрактом операций и
// событий, что у реального. Исходы детерминированы и управляются
// через SetDeclineCode.
type Simulator struct {
	cfg SimulatorConfig
	log *logrus.Logger

	events chan Event

	mu          sync.Mutex
	connected   bool
	busy        bool
	seq         int
	declineCode string
	approvals   map[string]*Result
	cancelled   map[string]bool
}

// NewSimulator создаёт симулятор. Нулевые задержки допустимы:
// оплата завершается немедленно, что удобно в тестах.
func NewSimulator(cfg SimulatorConfig, log *logrus.Logger) *Simulator {
	if cfg.CardType == "" {
		cfg.CardType = "ic"
	}
	return &Simulator{
		cfg:       cfg,
		log:       log,
		events:    make(chan Event, 16),
		approvals: make(map[string]*Result),
		cancelled: make(map[string]bool),
	}
}

// SetDeclineCode заставляет последующие оплаты завершаться отказом с
// указанным кодом. Пустая строка возвращает одобрение.
func (s *Simulator) SetDeclineCode(code string) {
	s.mu.Lock()
	s.declineCode = code
	s.mu.Unlock()
}

func (s *Simulator) Connect() error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.log.WithField("terminal", s.cfg.TerminalID).Info("simulated terminal connected")
	return nil
}

func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *Simulator) Events() <-chan Event {
	return s.events
}

func (s *Simulator) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Connected:  s.connected,
		Busy:       s.busy,
		TerminalID: s.cfg.TerminalID,
		Simulated:  true,
	}
}

func (s *Simulator) ProcessPayment(ctx context.Context, amount int64) (*Result, error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil, tl3600.ErrNotConnected
	}
	if s.busy {
		s.mu.Unlock()
		return nil, ErrPaymentInProgress
	}
	s.busy = true
	s.seq++
	seq := s.seq
	decline := s.declineCode
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if err := s.sleep(ctx, s.cfg.CardDelay); err != nil {
		return nil, err
	}
	s.emit(Event{Kind: EventCardDetected, CardType: s.cfg.CardType})
	s.emit(Event{Kind: EventProcessingPayment, CardType: s.cfg.CardType})

	if err := s.sleep(ctx, s.cfg.ApprovalDelay); err != nil {
		return nil, err
	}

	if decline != "" {
		err := &tl3600.RejectError{Code: decline, Message: tl3600.RejectMessage(decline)}
		s.emit(Event{Kind: EventPaymentRejected, CardType: s.cfg.CardType, Message: err.Message})
		return nil, err
	}

	now := time.Now()
	result := &Result{
		SessionID:      uuid.NewString(),
		Amount:         amount,
		CardType:       s.cfg.CardType,
		CardNumber:     "541234******3456",
		ApprovalNumber: fmt.Sprintf("%08d", 30000000+seq),
		SalesDate:      now.Format("20060102"),
		SalesTime:      now.Format("150405"),
		TransactionID:  fmt.Sprintf("%012d", seq),
	}

	s.mu.Lock()
	s.approvals[result.ApprovalNumber] = result
	s.mu.Unlock()

	s.emit(Event{Kind: EventPaymentApproved, CardType: s.cfg.CardType, Result: result})
	return result, nil
}

// CancelTransaction повторяет семантику терминала: неизвестная транзакция
// и повторная отмена различаются так же, как в ответах реального
// устройства.
func (s *Simulator) CancelTransaction(details CancelDetails) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, tl3600.ErrNotConnected
	}
	original, ok := s.approvals[details.ApprovalNumber]
	if !ok {
		return nil, &tl3600.CancelInquiryError{Status: tl3600.InquiryNoHistory}
	}
	if s.cancelled[details.ApprovalNumber] {
		return nil, &tl3600.CancelInquiryError{Status: tl3600.InquiryAlreadyCancelled}
	}
	s.cancelled[details.ApprovalNumber] = true

	cancel := *original
	cancel.SessionID = uuid.NewString()
	return &cancel, nil
}

func (s *Simulator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.log.Warnf("simulator event %s dropped: no consumer", e.Kind)
	}
}
