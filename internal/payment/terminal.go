package payment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tlterm/pkg/tl3600"
)

// terminalService реализует Service поверх реального терминала.
type terminalService struct {
	ctrl    *tl3600.Controller
	timeout time.Duration
	log     *logrus.Logger

	events chan Event

	mu      sync.Mutex
	busy    bool
	session string
	waiter  chan outcome

	forwardOnce sync.Once
}

type outcome struct {
	result *Result
	err    error
}

func newTerminalService(ctrl *tl3600.Controller, timeout time.Duration, log *logrus.Logger) *terminalService {
	return &terminalService{
		ctrl:    ctrl,
		timeout: timeout,
		log:     log,
		events:  make(chan Event, 16),
	}
}

func (s *terminalService) Connect() error {
	if err := s.ctrl.Connect(); err != nil {
		return err
	}
	s.forwardOnce.Do(func() { go s.forward() })
	return nil
}

func (s *terminalService) Disconnect() error {
	return s.ctrl.Disconnect()
}

func (s *terminalService) Events() <-chan Event {
	return s.events
}

func (s *terminalService) Status() Status {
	st := s.ctrl.Status()
	s.mu.Lock()
	busy := s.busy
	s.mu.Unlock()
	return Status{
		Connected:  st.Connected,
		Busy:       busy,
		TerminalID: st.TerminalID,
	}
}

// ProcessPayment проводит одну оплату. Одновременно допускается только
// одна: терминал физически один.
func (s *terminalService) ProcessPayment(ctx context.Context, amount int64) (*Result, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrPaymentInProgress
	}
	s.busy = true
	s.session = uuid.NewString()
	s.waiter = make(chan outcome, 1)
	waiter := s.waiter
	session := s.session
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.session = ""
		s.waiter = nil
		s.mu.Unlock()
	}()

	s.log.WithFields(logrus.Fields{"session": session, "amount": amount}).Info("payment started")

	if err := s.ctrl.EnterPaymentMode(tl3600.DefaultApprovalRequest(amount)); err != nil {
		return nil, err
	}

	select {
	case out := <-waiter:
		if out.err != nil {
			s.log.WithField("session", session).Warnf("payment failed: %v", out.err)
			return nil, out.err
		}
		s.log.WithFields(logrus.Fields{
			"session":  session,
			"approval": out.result.ApprovalNumber,
		}).Info("payment approved")
		return out.result, nil
	case <-ctx.Done():
		s.abortStandby(session)
		return nil, ctx.Err()
	case <-time.After(s.timeout):
		s.abortStandby(session)
		return nil, ErrPaymentTimeout
	}
}

func (s *terminalService) abortStandby(session string) {
	if err := s.ctrl.ExitPaymentMode(); err != nil {
		s.log.WithField("session", session).Warnf("exit payment mode: %v", err)
	}
}

// CancelTransaction отменяет транзакцию по реквизитам чека.
func (s *terminalService) CancelTransaction(details CancelDetails) (*Result, error) {
	resp, err := s.ctrl.RequestCancel(&tl3600.CancelRequest{
		ApprovalNumber: details.ApprovalNumber,
		OriginalDate:   details.SalesDate,
		OriginalTime:   details.SalesTime,
		Amount:         details.Amount,
	})
	if err != nil {
		return nil, err
	}
	return resultFrom(uuid.NewString(), resp), nil
}

// forward транслирует уведомления контроллера в события фасада и
// доставляет исход оплаты ожидающему ProcessPayment.
func (s *terminalService) forward() {
	for n := range s.ctrl.Events() {
		switch n.Kind {
		case tl3600.NoteCardDetected:
			s.emit(Event{Kind: EventCardDetected, CardType: n.Card})
		case tl3600.NoteCardRemoved:
			s.emit(Event{Kind: EventCardRemoved})
		case tl3600.NoteProcessingPayment:
			s.emit(Event{Kind: EventProcessingPayment, CardType: n.Card})
		case tl3600.NotePaymentApproved:
			result := resultFrom(s.currentSession(), n.Result)
			s.emit(Event{Kind: EventPaymentApproved, CardType: n.Card, Result: result})
			s.deliver(outcome{result: result})
		case tl3600.NotePaymentRejected:
			s.emit(Event{Kind: EventPaymentRejected, CardType: n.Card, Message: errText(n.Err)})
			s.deliver(outcome{err: n.Err})
		case tl3600.NoteError:
			s.emit(Event{Kind: EventError, Message: errText(n.Err)})
			s.deliver(outcome{err: n.Err})
		case tl3600.NoteDisconnected:
			s.emit(Event{Kind: EventDisconnected})
			s.deliver(outcome{err: tl3600.ErrDisconnected})
		}
	}
}

func (s *terminalService) currentSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *terminalService) deliver(out outcome) {
	s.mu.Lock()
	waiter := s.waiter
	s.waiter = nil
	s.mu.Unlock()
	if waiter != nil {
		waiter <- out
	}
}

func (s *terminalService) emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.log.Warnf("payment event %s dropped: no consumer", e.Kind)
	}
}

func resultFrom(session string, resp *tl3600.ApprovalResponse) *Result {
	return &Result{
		SessionID:      session,
		Amount:         resp.Amount,
		CardType:       resp.CardType,
		CardNumber:     resp.CardNumber,
		ApprovalNumber: resp.ApprovalNumber,
		SalesDate:      resp.SalesDate,
		SalesTime:      resp.SalesTime,
		TransactionID:  resp.TransactionID,
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
