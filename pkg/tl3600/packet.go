package tl3600

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// Раскладка кадра (смещения от STX):
//
//	[0]      STX (0x02)
//	[1:17]   Terminal ID, 16 символов ASCII, дополняется пробелами справа
//	[17:31]  Дата-время, 14 цифр YYYYMMDDhhmmss
//	[31]     Job Code
//	[32]     Response Code (резерв/эхо)
//	[33:35]  Длина данных, 2 десятичные цифры, 00-99
//	[35:n]   Данные переменной длины
//	[n]      ETX (0x03)
//	[n+1]    BCC — XOR всех байт после STX до ETX включительно
const (
	headerSize    = 35
	frameOverhead = headerSize + 2 // + ETX + BCC
	terminalIDLen = 16
	dateTimeLen   = 14

	// MaxDataLen — предел переменной части: длина кодируется двумя цифрами.
	MaxDataLen = 99
)

// Packet — единица обмена с терминалом. Конструируется на каждый запрос
// или входящий кадр и не имеет сохраняемой идентичности.
type Packet struct {
	TerminalID   string
	DateTime     string // 14 цифр YYYYMMDDhhmmss
	JobCode      JobCode
	ResponseCode byte
	Data         []byte
}

// NewRequest создаёт пакет запроса с текущим локальным временем.
func NewRequest(terminalID string, job JobCode, data []byte) *Packet {
	return &Packet{
		TerminalID:   terminalID,
		DateTime:     formatDateTime(time.Now()),
		JobCode:      job,
		ResponseCode: ' ',
		Data:         data,
	}
}

// Encode сериализует пакет в точную проводную последовательность байт.
func (p *Packet) Encode() ([]byte, error) {
	if len(p.TerminalID) > terminalIDLen {
		return nil, ErrTerminalIDTooLong
	}
	if len(p.Data) > MaxDataLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p.Data))
	}
	if len(p.DateTime) != dateTimeLen {
		return nil, fmt.Errorf("tl3600: date-time must be %d digits, got %q", dateTimeLen, p.DateTime)
	}

	buf := make([]byte, 0, frameOverhead+len(p.Data))
	buf = append(buf, STX)
	buf = append(buf, padRight(p.TerminalID, terminalIDLen)...)
	buf = append(buf, p.DateTime...)
	buf = append(buf, byte(p.JobCode))
	rc := p.ResponseCode
	if rc == 0 {
		rc = ' '
	}
	buf = append(buf, rc)
	buf = append(buf, fmt.Sprintf("%02d", len(p.Data))...)
	buf = append(buf, p.Data...)
	buf = append(buf, ETX)
	// BCC считается по всем байтам после STX до ETX включительно
	buf = append(buf, CalcBCC(buf[1:]))
	return buf, nil
}

// ParsePacket разбирает проводной кадр. Любое несоответствие — ошибка
// кадрирования; частичный разбор не выполняется.
func ParsePacket(raw []byte) (*Packet, error) {
	if len(raw) < frameOverhead {
		return nil, framingErr(FramingShortFrame, "%d bytes", len(raw))
	}
	if raw[0] != STX {
		return nil, framingErr(FramingBadSTX, "0x%02X", raw[0])
	}

	dataLen, err := strconv.Atoi(string(raw[33:35]))
	if err != nil || dataLen < 0 {
		return nil, framingErr(FramingBadLength, "%q", raw[33:35])
	}
	if len(raw) != frameOverhead+dataLen {
		return nil, framingErr(FramingLengthMismatch, "declared %d, frame %d bytes", dataLen, len(raw))
	}
	if raw[len(raw)-2] != ETX {
		return nil, framingErr(FramingBadETX, "0x%02X", raw[len(raw)-2])
	}
	if bcc := CalcBCC(raw[1 : len(raw)-1]); bcc != raw[len(raw)-1] {
		return nil, framingErr(FramingChecksumMismatch, "got 0x%02X, expected 0x%02X", raw[len(raw)-1], bcc)
	}

	p := &Packet{
		TerminalID:   strings.TrimRight(string(raw[1:17]), " "),
		DateTime:     string(raw[17:31]),
		JobCode:      JobCode(raw[31]),
		ResponseCode: raw[32],
	}
	if dataLen > 0 {
		p.Data = append([]byte(nil), raw[headerSize:headerSize+dataLen]...)
	}
	return p, nil
}

// CalcBCC вычисляет блочный контрольный символ: однопроходный XOR.
// Алгоритм фиксирован документом протокола V10.1 — аппаратная граница
// совместимости, расхождения недопустимы.
func CalcBCC(data []byte) byte {
	bcc := byte(0)
	for _, b := range data {
		bcc ^= b
	}
	return bcc
}

func formatDateTime(t time.Time) string {
	return t.Format("20060102150405")
}

// FormatAmount кодирует сумму фиксированной шириной с ведущими нулями.
func FormatAmount(v int64, width int) (string, error) {
	if v < 0 {
		return "", fmt.Errorf("tl3600: negative amount %d", v)
	}
	s := strconv.FormatInt(v, 10)
	if len(s) > width {
		return "", fmt.Errorf("tl3600: amount %d does not fit %d digits", v, width)
	}
	return strings.Repeat("0", width-len(s)) + s, nil
}

func parseAmount(field []byte) (int64, error) {
	s := strings.TrimLeft(strings.TrimSpace(string(field)), "0")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("tl3600: malformed amount field %q: %w", field, err)
	}
	return v, nil
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// Раскладка данных запроса одобрения (job 'B'), 33 байта:
//
//	[0:2]   тип транзакции
//	[2:14]  сумма
//	[14:22] налог
//	[22:30] сервисный сбор
//	[30:32] код рассрочки
//	[32]    признак подписи ('0'/'1')
func buildApprovalRequestData(req *ApprovalRequest) ([]byte, error) {
	tt := req.TransactionType
	if tt == "" {
		tt = TransactionTypePurchase
	}
	inst := req.Installment
	if inst == "" {
		inst = InstallmentNone
	}
	if len(tt) != 2 || len(inst) != 2 {
		return nil, fmt.Errorf("tl3600: transaction type and installment must be 2 characters")
	}
	amount, err := FormatAmount(req.Amount, 12)
	if err != nil {
		return nil, err
	}
	tax, err := FormatAmount(req.Tax, 8)
	if err != nil {
		return nil, err
	}
	svc, err := FormatAmount(req.ServiceCharge, 8)
	if err != nil {
		return nil, err
	}
	sig := byte('0')
	if req.SignatureRequired {
		sig = '1'
	}

	var b bytes.Buffer
	b.WriteString(tt)
	b.WriteString(amount)
	b.WriteString(tax)
	b.WriteString(svc)
	b.WriteString(inst)
	b.WriteByte(sig)
	return b.Bytes(), nil
}

// Раскладка данных запроса отмены (job 'C'), 42 байта:
//
//	[0:2]   тип отмены ("40" — VAN no-card)
//	[2:14]  номер одобрения
//	[14:22] дата исходной продажи YYYYMMDD
//	[22:28] время исходной продажи hhmmss
//	[28:40] сумма
//	[40:42] тип транзакции
func buildCancelRequestData(req *CancelRequest) ([]byte, error) {
	if req.ApprovalNumber == "" || len(req.ApprovalNumber) > 12 {
		return nil, fmt.Errorf("tl3600: approval number must be 1-12 digits, got %q", req.ApprovalNumber)
	}
	if len(req.OriginalDate) != 8 {
		return nil, fmt.Errorf("tl3600: original date must be YYYYMMDD, got %q", req.OriginalDate)
	}
	if len(req.OriginalTime) != 6 {
		return nil, fmt.Errorf("tl3600: original time must be hhmmss, got %q", req.OriginalTime)
	}
	tt := req.TransactionType
	if tt == "" {
		tt = TransactionTypePurchase
	}
	if len(tt) != 2 {
		return nil, fmt.Errorf("tl3600: transaction type must be 2 characters, got %q", tt)
	}
	amount, err := FormatAmount(req.Amount, 12)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.WriteString(CancelTypeVANNoCard)
	b.WriteString(strings.Repeat("0", 12-len(req.ApprovalNumber)) + req.ApprovalNumber)
	b.WriteString(req.OriginalDate)
	b.WriteString(req.OriginalTime)
	b.WriteString(amount)
	b.WriteString(tt)
	return b.Bytes(), nil
}

func buildStandbyData(enter bool) []byte {
	if enter {
		return []byte{'1'}
	}
	return []byte{'0'}
}

// Раскладка данных ответа одобрения/отмены (job 'b'/'c'), 72 байта:
//
//	[0]     признак отказа ('0' — одобрено, '1' — отказ)
//	[1:5]   код отказа
//	[5:21]  маскированный номер карты
//	[21:33] одобренная сумма
//	[33:45] номер одобрения
//	[45:53] дата продажи YYYYMMDD
//	[53:59] время продажи hhmmss
//	[59:71] серийный номер транзакции
//	[71]    код носителя
//	[72:]   необязательный текст терминала в EUC-KR
const approvalResponseLen = 72

func parseApprovalResponseData(data []byte) (*ApprovalResponse, error) {
	if len(data) < approvalResponseLen {
		return nil, fmt.Errorf("tl3600: approval response too short: %d bytes", len(data))
	}

	amount, err := parseAmount(data[21:33])
	if err != nil {
		return nil, err
	}

	r := &ApprovalResponse{
		Rejected:       data[0] == '1',
		CardNumber:     strings.TrimSpace(string(data[5:21])),
		Amount:         amount,
		ApprovalNumber: strings.TrimSpace(string(data[33:45])),
		SalesDate:      string(data[45:53]),
		SalesTime:      string(data[53:59]),
		TransactionID:  strings.TrimSpace(string(data[59:71])),
		Media:          MediaCode(data[71]),
	}
	r.CardType = r.Media.CardType()

	if r.Rejected {
		r.RejectCode = string(data[1:5])
		r.RejectMessage = RejectMessage(r.RejectCode)
		// Терминал может приложить собственный текст отказа в EUC-KR;
		// он дополняет табличное сообщение, но не заменяет его.
		if len(data) > approvalResponseLen {
			if text, err := decodeEUCKR(data[approvalResponseLen:]); err == nil && text != "" {
				r.RejectMessage = r.RejectMessage + ": " + text
			}
		}
	}
	return r, nil
}

func parseDeviceCheckData(data []byte) (*DeviceCheckResponse, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("tl3600: device check response too short: %d bytes", len(data))
	}
	return &DeviceCheckResponse{
		CardModule: ModuleStatus(data[0]),
		RFModule:   ModuleStatus(data[1]),
		VANServer:  ModuleStatus(data[2]),
	}, nil
}

// Раскладка данных ответа справки (job 'd'), 52 байта:
//
//	[0]     статус транзакции
//	[1:13]  номер одобрения
//	[13:21] дата продажи
//	[21:27] время продажи
//	[27:39] серийный номер транзакции
//	[39:51] сумма
//	[51]    код носителя
const inquiryResponseLen = 52

func parseInquiryData(data []byte) (*CardInquiryResponse, error) {
	if len(data) < inquiryResponseLen {
		return nil, fmt.Errorf("tl3600: inquiry response too short: %d bytes", len(data))
	}
	amount, err := parseAmount(data[39:51])
	if err != nil {
		return nil, err
	}
	return &CardInquiryResponse{
		Status:         data[0],
		ApprovalNumber: strings.TrimSpace(string(data[1:13])),
		SalesDate:      string(data[13:21]),
		SalesTime:      string(data[21:27]),
		TransactionID:  strings.TrimSpace(string(data[27:39])),
		Amount:         amount,
		Media:          MediaCode(data[51]),
	}, nil
}

// decodeEUCKR перекодирует текст терминала (EUC-KR) в UTF-8.
func decodeEUCKR(data []byte) (string, error) {
	r, err := charset.NewReaderLabel("euc-kr", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
