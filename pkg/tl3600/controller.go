package tl3600

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// State — состояние контроллера.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StatePaymentStandby
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StatePaymentStandby:
		return "paymentStandby"
	}
	return "unknown"
}

// Config определяет параметры контроллера.
type Config struct {
	// TerminalID подставляется в каждый исходящий кадр, до 16 символов
	TerminalID string `json:"terminalId"`

	Logger func(msg string) `json:"-"`
}

// Controller ведёт диалог с терминалом поверх Transport: проверка
// устройства при подключении, режим ожидания карты, автоматический
// запрос одобрения по предъявлению карты, отмены и справки.
//
// Методы Controller можно звать из разных горутин; очередность обменов
// обеспечивает транспорт. Автоматическое одобрение выполняется в
// горутине диспетчера, поэтому предъявление карты не требует участия
// вызывающего кода: достаточно читать Events.
type Controller struct {
	cfg Config
	tr  Transport

	mu      sync.Mutex
	state   State
	pending *ApprovalRequest

	events chan Notification
	stopCh chan struct{} // сеансовый: пересоздаётся на каждый Connect
}

// NewController создаёт контроллер поверх готового транспорта.
// Диалог начинается после Connect.
func NewController(cfg Config, tr Transport) *Controller {
	return &Controller{
		cfg:    cfg,
		tr:     tr,
		state:  StateDisconnected,
		events: make(chan Notification, 16),
	}
}

func (c *Controller) logf(format string, args ...interface{}) {
	if c.cfg.Logger != nil {
		c.cfg.Logger(fmt.Sprintf(format, args...))
	}
}

// Connect открывает транспорт и проверяет готовность терминала
// (job 'A'). Неисправный модуль (карт, RF, VAN-сервер) — предупреждение
// в логе, не отказ: статус модуля бывает преходящим, а терминал остаётся
// пригоден для остальных носителей. Отказом считается только ошибка
// порта или самой проверки устройства.
func (c *Controller) Connect() error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.tr.Connect(); err != nil {
		return err
	}

	check, err := c.deviceCheck()
	if err != nil {
		c.tr.Close()
		return fmt.Errorf("device check failed: %w", err)
	}
	if check.CardModule == ModuleError || check.CardModule == ModuleFail {
		c.logf("card module unavailable (%s)", check.CardModule)
	}
	if check.VANServer == ModuleError || check.VANServer == ModuleFail {
		c.logf("VAN server unavailable (%s)", check.VANServer)
	}
	if check.RFModule == ModuleError || check.RFModule == ModuleFail {
		c.logf("RF module unavailable (%s), contactless disabled", check.RFModule)
	}

	c.mu.Lock()
	c.state = StateConnected
	stop := make(chan struct{})
	c.stopCh = stop
	c.mu.Unlock()

	go c.dispatchLoop(stop)
	c.logf("terminal %q connected", c.cfg.TerminalID)
	return nil
}

// Disconnect выходит из режима ожидания (если был) и закрывает порт.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	inStandby := c.state == StatePaymentStandby
	c.mu.Unlock()

	if inStandby {
		// Лучшее из возможного: порт закрывается в любом случае
		if err := c.ExitPaymentMode(); err != nil {
			c.logf("exit payment mode on disconnect: %v", err)
		}
	}

	c.mu.Lock()
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.state = StateDisconnected
	c.pending = nil
	c.mu.Unlock()
	return c.tr.Close()
}

// Events отдаёт уведомления контроллера. Канал буферизован; при
// переполнении уведомления отбрасываются с записью в лог.
func (c *Controller) Events() <-chan Notification {
	return c.events
}

// Status возвращает снимок состояния.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Connected:     c.state != StateDisconnected,
		InPaymentMode: c.state == StatePaymentStandby,
		TerminalID:    c.cfg.TerminalID,
	}
}

// State возвращает текущее состояние контроллера.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// exchange кодирует запрос, выполняет обмен и сверяет код ответа.
func (c *Controller) exchange(job JobCode, data []byte) (*Packet, error) {
	req := NewRequest(c.cfg.TerminalID, job, data)
	frame, err := req.Encode()
	if err != nil {
		return nil, err
	}
	resp, err := c.tr.Send(frame)
	if err != nil {
		return nil, err
	}
	if resp.JobCode != job.Response() {
		return resp, fmt.Errorf("%w: sent %q, got %q", ErrUnexpectedResponse, byte(job), byte(resp.JobCode))
	}
	return resp, nil
}

func (c *Controller) deviceCheck() (*DeviceCheckResponse, error) {
	resp, err := c.exchange(JobDeviceCheck, nil)
	if err != nil {
		return nil, err
	}
	return parseDeviceCheckData(resp.Data)
}

// CheckDevice запрашивает состояние модулей терминала (job 'A').
func (c *Controller) CheckDevice() (*DeviceCheckResponse, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	return c.deviceCheck()
}

// CheckVersion запрашивает версию прошивки терминала (job 'V').
func (c *Controller) CheckVersion() (string, error) {
	if err := c.requireConnected(); err != nil {
		return "", err
	}
	resp, err := c.exchange(JobVersion, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(resp.Data)), nil
}

// ReadCardUID читает UID предъявленной карты (job 'U'). Терминал
// отвечает после предъявления карты, поэтому вызов ждёт до таймаута
// ответа транспорта.
func (c *Controller) ReadCardUID() (string, error) {
	if err := c.requireConnected(); err != nil {
		return "", err
	}
	resp, err := c.exchange(JobCardUID, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(resp.Data)), nil
}

// EnterPaymentMode переводит терминал в режим ожидания карты (job 'E')
// и запоминает параметры будущего одобрения. nil означает запрос по
// умолчанию (покупка, нулевая сумма). Предъявление карты инициирует
// одобрение автоматически; исход придёт в Events.
func (c *Controller) EnterPaymentMode(req *ApprovalRequest) error {
	c.mu.Lock()
	switch c.state {
	case StateDisconnected:
		c.mu.Unlock()
		return ErrNotConnected
	case StatePaymentStandby:
		c.mu.Unlock()
		return fmt.Errorf("%w: already in payment standby", ErrInvalidState)
	}
	c.mu.Unlock()

	if req == nil {
		req = DefaultApprovalRequest(0)
	}
	if _, err := buildApprovalRequestData(req); err != nil {
		return err
	}

	if _, err := c.exchange(JobPaymentStandby, buildStandbyData(true)); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = StatePaymentStandby
	c.pending = req
	c.mu.Unlock()

	c.notify(Notification{Kind: NotePaymentModeEntered})
	c.logf("payment standby entered, amount=%d", req.Amount)
	return nil
}

// ExitPaymentMode выводит терминал из режима ожидания карты.
func (c *Controller) ExitPaymentMode() error {
	c.mu.Lock()
	if c.state != StatePaymentStandby {
		c.mu.Unlock()
		return ErrNotInPaymentMode
	}
	// Состояние снимается до обмена: карта, предъявленная в этот
	// момент, уже не должна запускать одобрение
	c.state = StateConnected
	c.pending = nil
	c.mu.Unlock()

	_, err := c.exchange(JobPaymentStandby, buildStandbyData(false))
	if err != nil {
		c.logf("payment standby exit: %v", err)
	}
	return err
}

// RequestApproval выполняет запрос одобрения (job 'B') немедленно,
// минуя режим ожидания. Отказ возвращается как *RejectError.
func (c *Controller) RequestApproval(req *ApprovalRequest) (*ApprovalResponse, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	data, err := buildApprovalRequestData(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.exchange(JobApproval, data)
	if err != nil {
		return nil, err
	}
	result, err := parseApprovalResponseData(resp.Data)
	if err != nil {
		return nil, err
	}
	if result.Rejected {
		return nil, &RejectError{Code: result.RejectCode, Message: result.RejectMessage, Response: result}
	}
	return result, nil
}

// RequestCancel отменяет транзакцию по реквизитам (job 'C').
// Терминал отвечает кадром 'c' с исходом отмены либо кадром 'd',
// когда отменять нечего; второй случай возвращается как
// *CancelInquiryError.
func (c *Controller) RequestCancel(req *CancelRequest) (*ApprovalResponse, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	data, err := buildCancelRequestData(req)
	if err != nil {
		return nil, err
	}

	frame, err := NewRequest(c.cfg.TerminalID, JobCancel, data).Encode()
	if err != nil {
		return nil, err
	}
	resp, err := c.tr.Send(frame)
	if err != nil {
		return nil, err
	}

	switch resp.JobCode {
	case JobCancel.Response():
		result, err := parseApprovalResponseData(resp.Data)
		if err != nil {
			return nil, err
		}
		if result.Rejected {
			return nil, &RejectError{Code: result.RejectCode, Message: result.RejectMessage, Response: result}
		}
		return result, nil
	case JobInquiry.Response():
		inquiry, err := parseInquiryData(resp.Data)
		if err != nil {
			return nil, err
		}
		return nil, &CancelInquiryError{Status: inquiry.Status, Inquiry: inquiry}
	}
	return nil, fmt.Errorf("%w: sent %q, got %q", ErrUnexpectedResponse, byte(JobCancel), byte(resp.JobCode))
}

// InquireCard запрашивает справку по последней транзакции карты
// (job 'D'). Терминал ждёт предъявления карты перед ответом.
func (c *Controller) InquireCard() (*CardInquiryResponse, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	resp, err := c.exchange(JobInquiry, nil)
	if err != nil {
		return nil, err
	}
	return parseInquiryData(resp.Data)
}

func (c *Controller) requireConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return ErrNotConnected
	}
	return nil
}

// dispatchLoop обрабатывает несолиситированные кадры терминала и
// потерю соединения. stop привязывает горутину к своему сеансу:
// диспетчер прежнего подключения не должен трогать состояние нового.
func (c *Controller) dispatchLoop(stop chan struct{}) {
	for {
		select {
		case pkt, ok := <-c.tr.Events():
			if !ok {
				return
			}
			c.handleEvent(pkt)
		case <-c.tr.Disconnected():
			select {
			case <-stop:
				// Сеанс уже завершён явным Disconnect
				return
			default:
			}
			c.mu.Lock()
			wasConnected := c.state != StateDisconnected
			c.state = StateDisconnected
			c.pending = nil
			c.mu.Unlock()
			if wasConnected {
				c.notify(Notification{Kind: NoteDisconnected, Err: ErrDisconnected})
				c.logf("terminal connection lost")
			}
			return
		case <-stop:
			return
		}
	}
}

// handleEvent разбирает кадр '@'. Предъявление карты в режиме ожидания
// запускает одобрение с запомненными параметрами; ровно один исход
// (paymentApproved либо paymentRejected, либо error) уходит в Events.
// События вне режима ожидания — информационные.
func (c *Controller) handleEvent(pkt *Packet) {
	if len(pkt.Data) == 0 {
		c.logf("empty event frame ignored")
		return
	}
	ev := EventType(pkt.Data[0])

	switch {
	case ev == EventICRemove:
		c.notify(Notification{Kind: NoteCardRemoved})
		return
	case ev == EventBarcode:
		// Штрих-код сообщается, но одобрение не запускает
		c.notify(Notification{Kind: NoteCardDetected, Card: ev.CardType()})
		return
	case !ev.IsCardPresentation():
		c.logf("terminal event %q", byte(ev))
		return
	}

	c.mu.Lock()
	if c.state != StatePaymentStandby || c.pending == nil {
		c.mu.Unlock()
		c.notify(Notification{Kind: NoteCardDetected, Card: ev.CardType()})
		return
	}
	// Режим снимается до одобрения: повторное предъявление карты во
	// время обмена не должно породить второй запрос
	req := c.pending
	c.pending = nil
	c.state = StateConnected
	c.mu.Unlock()

	c.notify(Notification{Kind: NoteCardDetected, Card: ev.CardType()})
	c.notify(Notification{Kind: NoteProcessingPayment, Card: ev.CardType()})

	result, err := c.RequestApproval(req)
	if err != nil {
		var reject *RejectError
		if errors.As(err, &reject) {
			c.notify(Notification{Kind: NotePaymentRejected, Card: ev.CardType(), Result: reject.Response, Err: reject})
			c.logf("payment rejected: %v", reject)
			return
		}
		c.notify(Notification{Kind: NoteError, Err: err})
		c.logf("auto approval failed: %v", err)
		return
	}
	c.notify(Notification{Kind: NotePaymentApproved, Card: result.CardType, Result: result})
	c.logf("payment approved #%s amount=%d", result.ApprovalNumber, result.Amount)
}

func (c *Controller) notify(n Notification) {
	select {
	case c.events <- n:
	default:
		c.logf("notification %s dropped: no consumer", n.Kind)
	}
}
