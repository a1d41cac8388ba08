package tl3600

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected       = errors.New("tl3600: transport is not connected")
	ErrPortOpen           = errors.New("tl3600: failed to open serial port")
	ErrAckTimeout         = errors.New("tl3600: timeout waiting for ACK")
	ErrNackReceived       = errors.New("tl3600: terminal responded with NACK")
	ErrResponseTimeout    = errors.New("tl3600: timeout waiting for response frame")
	ErrDisconnected       = errors.New("tl3600: terminal disconnected")
	ErrBusy               = errors.New("tl3600: another request is in flight")
	ErrPayloadTooLarge    = errors.New("tl3600: data payload exceeds 99 bytes")
	ErrTerminalIDTooLong  = errors.New("tl3600: terminal id exceeds 16 characters")
	ErrUnexpectedResponse = errors.New("tl3600: unexpected response job code")
	ErrNoCancellable      = errors.New("tl3600: no cancellable transaction")
	ErrAlreadyCancelled   = errors.New("tl3600: transaction already cancelled")
	ErrNotInPaymentMode   = errors.New("tl3600: controller is not in payment standby")
	ErrInvalidState       = errors.New("tl3600: operation not allowed in current state")
)

// FramingReason — причина отбраковки кадра.
type FramingReason int

const (
	FramingBadSTX FramingReason = iota
	FramingBadETX
	FramingShortFrame
	FramingBadLength
	FramingLengthMismatch
	FramingChecksumMismatch
)

func (r FramingReason) String() string {
	switch r {
	case FramingBadSTX:
		return "bad STX"
	case FramingBadETX:
		return "bad ETX"
	case FramingShortFrame:
		return "frame too short"
	case FramingBadLength:
		return "malformed data length field"
	case FramingLengthMismatch:
		return "declared length does not match frame"
	case FramingChecksumMismatch:
		return "BCC mismatch"
	}
	return "framing error"
}

// FramingError — ошибка разбора кадра. Кадр с такой ошибкой никогда не
// интерпретируется частично: транспорт отвечает NACK и ждёт повтора.
type FramingError struct {
	Reason FramingReason
	Detail string
}

func (e *FramingError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("tl3600: %s", e.Reason)
	}
	return fmt.Sprintf("tl3600: %s (%s)", e.Reason, e.Detail)
}

func framingErr(reason FramingReason, format string, args ...interface{}) error {
	return &FramingError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// RejectError — отказ терминала/VAN по транзакции. Не повторяется
// автоматически: повтор отклонённой карты — решение пользователя.
type RejectError struct {
	Code     string
	Message  string
	Response *ApprovalResponse
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("tl3600: rejected #%s: %s", e.Code, e.Message)
}

// CancelInquiryError возникает, когда на запрос отмены терминал вернул
// кадр справки вместо кадра отмены: так он сообщает об отсутствии
// отменяемой транзакции либо о повторной отмене.
type CancelInquiryError struct {
	Status  byte
	Inquiry *CardInquiryResponse
}

func (e *CancelInquiryError) Error() string {
	switch e.Status {
	case InquiryNoHistory:
		return ErrNoCancellable.Error()
	case InquiryAlreadyCancelled:
		return ErrAlreadyCancelled.Error()
	}
	return fmt.Sprintf("tl3600: cancel answered with inquiry status %q", e.Status)
}

// Unwrap позволяет различать исходы через errors.Is(err, ErrNoCancellable)
// и errors.Is(err, ErrAlreadyCancelled).
func (e *CancelInquiryError) Unwrap() error {
	switch e.Status {
	case InquiryNoHistory:
		return ErrNoCancellable
	case InquiryAlreadyCancelled:
		return ErrAlreadyCancelled
	}
	return nil
}
