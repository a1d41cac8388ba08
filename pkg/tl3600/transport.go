package tl3600

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Тайминги канального уровня по документу протокола V10.1.
const (
	DefaultBaudRate        = 115200
	DefaultAckTimeout      = 3 * time.Second
	DefaultResponseTimeout = 30 * time.Second
	DefaultMaxAttempts     = 3

	portReadTimeout = 200 * time.Millisecond
)

// Transport — канальный уровень обмена с терминалом. Он не интерпретирует
// семантику протокола дальше квитирования и границ кадров: солиситированный
// ответ возвращается из Send, кадры-события уходят в отдельный канал.
type Transport interface {
	Connect() error
	Close() error

	// Send передаёт закодированный кадр, выполняет квитирование ACK/NACK
	// с повторами и ждёт солиситированный ответный кадр.
	Send(frame []byte) (*Packet, error)

	// Events отдаёт несолиситированные кадры '@'. Канал буферизован;
	// события, которые некому принять, отбрасываются с записью в лог.
	Events() <-chan *Packet

	// Disconnected закрывается при потере порта. Любое незавершённое
	// ожидание при этом снимается с ошибкой ErrDisconnected.
	Disconnected() <-chan struct{}
}

// SerialConfig определяет параметры последовательного подключения.
type SerialConfig struct {
	PortName        string           `json:"portName"`
	BaudRate        int              `json:"baudRate,omitempty"` // 115200 по умолчанию
	AckTimeout      time.Duration    `json:"-"`
	ResponseTimeout time.Duration    `json:"-"`
	MaxAttempts     int              `json:"-"`
	Logger          func(msg string) `json:"-"`
}

// serialPort — открытый порт; выделен в интерфейс для подмены в тестах.
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialTransport реализует Transport поверх go.bug.st/serial.
// Порт — монопольный полудуплексный ресурс: строгая очередность
// запрос-ответ обеспечивается мьютексом.
type SerialTransport struct {
	cfg SerialConfig

	mu   sync.Mutex // очередность Send
	port serialPort

	ackCh    chan byte
	respCh   chan *Packet
	eventCh  chan *Packet
	done     chan struct{}
	doneOnce *sync.Once
}

// NewSerialTransport создаёт транспорт. Нулевые поля конфигурации
// заменяются значениями протокола по умолчанию.
func NewSerialTransport(cfg SerialConfig) *SerialTransport {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &SerialTransport{cfg: cfg}
}

// newTransportWithPort собирает транспорт поверх уже открытого порта.
// Используется в тестах.
func newTransportWithPort(cfg SerialConfig, port serialPort) *SerialTransport {
	t := NewSerialTransport(cfg)
	t.port = port
	t.startReader(port)
	return t
}

func (t *SerialTransport) logf(format string, args ...interface{}) {
	if t.cfg.Logger != nil {
		t.cfg.Logger(fmt.Sprintf(format, args...))
	}
}

// Connect открывает порт (115200 8N1) и запускает цикл чтения.
func (t *SerialTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil && !t.isDown() {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: t.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(t.cfg.PortName, mode)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPortOpen, t.cfg.PortName, err)
	}
	port.SetReadTimeout(portReadTimeout)

	t.port = port
	t.startReader(port)
	t.logf("port %s opened at %d baud", t.cfg.PortName, t.cfg.BaudRate)
	return nil
}

// rxSession — каналы одного сеанса чтения. Цикл чтения получает их
// значением: читатель прежнего сеанса, ещё не заметивший закрытие
// порта, не должен писать в каналы нового подключения.
type rxSession struct {
	ackCh   chan byte
	respCh  chan *Packet
	eventCh chan *Packet
	done    chan struct{}
	once    *sync.Once
}

// startReader инициализирует каналы сеанса и запускает цикл чтения.
func (t *SerialTransport) startReader(port serialPort) {
	s := rxSession{
		ackCh:   make(chan byte, 1),
		respCh:  make(chan *Packet, 1),
		eventCh: make(chan *Packet, 8),
		done:    make(chan struct{}),
		once:    &sync.Once{},
	}
	t.ackCh = s.ackCh
	t.respCh = s.respCh
	t.eventCh = s.eventCh
	t.done = s.done
	t.doneOnce = s.once
	go t.readLoop(port, s)
}

// Close закрывает порт. Цикл чтения завершится по ошибке чтения.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

func (t *SerialTransport) Events() <-chan *Packet {
	return t.eventCh
}

func (t *SerialTransport) Disconnected() <-chan struct{} {
	return t.done
}

func (t *SerialTransport) isDown() bool {
	if t.done == nil {
		return true
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Send выполняет полный цикл: запись кадра, ожидание ACK/NACK (3 с),
// до трёх попыток отправки, затем ожидание ответного кадра (30 с).
// Повторы никогда не продолжаются через разрыв соединения.
func (t *SerialTransport) Send(frame []byte) (*Packet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil || t.isDown() {
		return nil, ErrNotConnected
	}
	done := t.done

	// Сбрасываем устаревшие квитанции и ответы предыдущего обмена
	select {
	case <-t.ackCh:
	default:
	}
	select {
	case <-t.respCh:
	default:
	}

	var lastErr error
	acked := false
	for attempt := 1; attempt <= t.cfg.MaxAttempts && !acked; attempt++ {
		if _, err := t.port.Write(frame); err != nil {
			t.markDown()
			return nil, fmt.Errorf("%w: write failed: %v", ErrDisconnected, err)
		}
		t.logf(">> TX %d bytes (attempt %d/%d)", len(frame), attempt, t.cfg.MaxAttempts)

		select {
		case b := <-t.ackCh:
			if b == ACK {
				acked = true
			} else {
				lastErr = ErrNackReceived
				t.logf("<< NACK (attempt %d/%d)", attempt, t.cfg.MaxAttempts)
			}
		case <-done:
			return nil, ErrDisconnected
		case <-time.After(t.cfg.AckTimeout):
			lastErr = ErrAckTimeout
			t.logf("ACK timeout (attempt %d/%d)", attempt, t.cfg.MaxAttempts)
		}
	}
	if !acked {
		return nil, fmt.Errorf("%w after %d attempts", lastErr, t.cfg.MaxAttempts)
	}

	select {
	case resp := <-t.respCh:
		return resp, nil
	case <-done:
		return nil, ErrDisconnected
	case <-time.After(t.cfg.ResponseTimeout):
		return nil, ErrResponseTimeout
	}
}

// markDown объявляет потерю порта и снимает все ожидания.
func (t *SerialTransport) markDown() {
	if t.doneOnce != nil {
		t.doneOnce.Do(func() {
			close(t.done)
			t.logf("port %s lost", t.cfg.PortName)
		})
	}
}

// readLoop — единственный читатель порта. Одиночные байты ACK/NACK уходят
// ожидающему квитирования; кадры собираются, проверяются и квитируются,
// после чего раскладываются на ответы и события.
func (t *SerialTransport) readLoop(port serialPort, s rxSession) {
	down := func() {
		s.once.Do(func() {
			close(s.done)
			t.logf("port %s lost", t.cfg.PortName)
		})
	}

	buf := make([]byte, 1)
	for {
		n, err := port.Read(buf)
		if err != nil {
			down()
			return
		}
		if n == 0 {
			continue
		}

		switch buf[0] {
		case ACK, NACK:
			select {
			case s.ackCh <- buf[0]:
			default:
				t.logf("stray handshake byte 0x%02X dropped", buf[0])
			}
		case STX:
			if ok := t.readFrame(port, s, buf[0]); !ok {
				down()
				return
			}
		default:
			// Межкадровый мусор на линии игнорируется
		}
	}
}

// readFrame дочитывает кадр после байта STX. Возвращает false при
// ошибке чтения порта (разрыв).
func (t *SerialTransport) readFrame(port serialPort, s rxSession, stx byte) bool {
	header := make([]byte, headerSize-1)
	if !t.readFull(port, header) {
		return false
	}

	dataLen, err := strconv.Atoi(string(header[32:34]))
	if err != nil || dataLen < 0 {
		// Заголовок повреждён: длину не узнать, кадр не дочитать.
		// NACK заставит терминал повторить передачу.
		t.logf("malformed data length %q, frame rejected", header[32:34])
		t.writeByte(port, NACK)
		return true
	}

	rest := make([]byte, dataLen+2) // данные + ETX + BCC
	if !t.readFull(port, rest) {
		return false
	}

	frame := make([]byte, 0, frameOverhead+dataLen)
	frame = append(frame, stx)
	frame = append(frame, header...)
	frame = append(frame, rest...)

	pkt, err := ParsePacket(frame)
	if err != nil {
		t.logf("frame rejected: %v", err)
		t.writeByte(port, NACK)
		return true
	}
	t.writeByte(port, ACK)

	if pkt.JobCode.IsEvent() {
		select {
		case s.eventCh <- pkt:
		default:
			t.logf("event frame dropped: no consumer")
		}
		return true
	}

	select {
	case s.respCh <- pkt:
	default:
		t.logf("unsolicited response %q dropped", byte(pkt.JobCode))
	}
	return true
}

// readFull дочитывает буфер целиком, пережидая таймауты чтения порта.
func (t *SerialTransport) readFull(port serialPort, buf []byte) bool {
	off := 0
	for off < len(buf) {
		n, err := port.Read(buf[off:])
		if err != nil {
			return false
		}
		off += n
	}
	return true
}

func (t *SerialTransport) writeByte(port serialPort, b byte) {
	if _, err := port.Write([]byte{b}); err != nil {
		t.logf("handshake write failed: %v", err)
	}
}

// PortInfo описывает обнаруженный последовательный адаптер.
type PortInfo struct {
	Path         string `json:"path"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

// ListPorts перечисляет доступные последовательные порты. Не требует
// открытого соединения.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("tl3600: port enumeration failed: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{Path: d.Name}
		if d.IsUSB {
			info.Manufacturer = d.Product
		}
		ports = append(ports, info)
	}
	return ports, nil
}

// IsTransportError сообщает, относится ли ошибка к канальному уровню
// (в отличие от отказа по транзакции).
func IsTransportError(err error) bool {
	return errors.Is(err, ErrAckTimeout) ||
		errors.Is(err, ErrNackReceived) ||
		errors.Is(err, ErrResponseTimeout) ||
		errors.Is(err, ErrDisconnected) ||
		errors.Is(err, ErrNotConnected)
}
