package tl3600

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

const testDateTime = "20260115103000"

func testPacket(job JobCode, data []byte) *Packet {
	return &Packet{
		TerminalID:   "KIOSK001",
		DateTime:     testDateTime,
		JobCode:      job,
		ResponseCode: ' ',
		Data:         data,
	}
}

func mustEncode(t *testing.T, p *Packet) []byte {
	t.Helper()
	frame, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return frame
}

func TestCalcBCC(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want byte
	}{
		{"empty", nil, 0x00},
		{"single", []byte{0x5A}, 0x5A},
		{"self-cancelling", []byte{0x01, 0x02, 0x03}, 0x00},
		{"ascii", []byte("AB"), 0x41 ^ 0x42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalcBCC(tt.in); got != tt.want {
				t.Errorf("CalcBCC(% X) = 0x%02X, want 0x%02X", tt.in, got, tt.want)
			}
		})
	}
}

func TestFrameLayout(t *testing.T) {
	frame := mustEncode(t, testPacket(JobApproval, []byte("payload")))

	if got, want := len(frame), 37+7; got != want {
		t.Fatalf("frame length = %d, want %d", got, want)
	}
	if frame[0] != STX {
		t.Errorf("frame[0] = 0x%02X, want STX", frame[0])
	}
	if got := string(frame[1:17]); got != "KIOSK001        " {
		t.Errorf("terminal id field = %q", got)
	}
	if got := string(frame[17:31]); got != testDateTime {
		t.Errorf("date-time field = %q", got)
	}
	if frame[31] != 'B' {
		t.Errorf("job code = %q, want 'B'", frame[31])
	}
	if frame[32] != ' ' {
		t.Errorf("response code = %q, want ' '", frame[32])
	}
	if got := string(frame[33:35]); got != "07" {
		t.Errorf("data length field = %q, want \"07\"", got)
	}
	if got := string(frame[35:42]); got != "payload" {
		t.Errorf("data field = %q", got)
	}
	if frame[42] != ETX {
		t.Errorf("frame[42] = 0x%02X, want ETX", frame[42])
	}
	if want := CalcBCC(frame[1:43]); frame[43] != want {
		t.Errorf("BCC = 0x%02X, want 0x%02X", frame[43], want)
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pkt  *Packet
	}{
		{"no data", testPacket(JobDeviceCheck, nil)},
		{"standby enter", testPacket(JobPaymentStandby, []byte{'1'})},
		{"max payload", testPacket(JobApproval, bytes.Repeat([]byte{'9'}, MaxDataLen))},
		{"event frame", &Packet{
			TerminalID:   "TL3600",
			DateTime:     testDateTime,
			JobCode:      JobEvent,
			ResponseCode: ' ',
			Data:         []byte{'I'},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := mustEncode(t, tt.pkt)
			got, err := ParsePacket(frame)
			if err != nil {
				t.Fatalf("ParsePacket: %v", err)
			}
			if got.TerminalID != tt.pkt.TerminalID {
				t.Errorf("TerminalID = %q, want %q", got.TerminalID, tt.pkt.TerminalID)
			}
			if got.DateTime != tt.pkt.DateTime {
				t.Errorf("DateTime = %q, want %q", got.DateTime, tt.pkt.DateTime)
			}
			if got.JobCode != tt.pkt.JobCode {
				t.Errorf("JobCode = %q, want %q", byte(got.JobCode), byte(tt.pkt.JobCode))
			}
			if !bytes.Equal(got.Data, tt.pkt.Data) {
				t.Errorf("Data = % X, want % X", got.Data, tt.pkt.Data)
			}
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	t.Run("terminal id too long", func(t *testing.T) {
		p := testPacket(JobDeviceCheck, nil)
		p.TerminalID = strings.Repeat("X", 17)
		if _, err := p.Encode(); !errors.Is(err, ErrTerminalIDTooLong) {
			t.Errorf("err = %v, want ErrTerminalIDTooLong", err)
		}
	})
	t.Run("payload too large", func(t *testing.T) {
		p := testPacket(JobApproval, bytes.Repeat([]byte{'0'}, MaxDataLen+1))
		if _, err := p.Encode(); !errors.Is(err, ErrPayloadTooLarge) {
			t.Errorf("err = %v, want ErrPayloadTooLarge", err)
		}
	})
	t.Run("bad date-time", func(t *testing.T) {
		p := testPacket(JobDeviceCheck, nil)
		p.DateTime = "2026"
		if _, err := p.Encode(); err == nil {
			t.Error("expected error for short date-time")
		}
	})
}

func TestParsePacketErrors(t *testing.T) {
	base := mustEncode(t, testPacket(JobApproval, []byte("abc")))

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		reason FramingReason
	}{
		{"short frame", func(f []byte) []byte { return f[:10] }, FramingShortFrame},
		{"bad stx", func(f []byte) []byte { f[0] = 0x04; return f }, FramingBadSTX},
		{"non-digit length", func(f []byte) []byte { f[33] = 'x'; return f }, FramingBadLength},
		{"length mismatch", func(f []byte) []byte { f[34] = '9'; return f }, FramingLengthMismatch},
		{"truncated data", func(f []byte) []byte { return f[:len(f)-1] }, FramingLengthMismatch},
		{"bad etx", func(f []byte) []byte { f[len(f)-2] = 0x00; return f }, FramingBadETX},
		{"bad bcc", func(f []byte) []byte { f[len(f)-1] ^= 0xFF; return f }, FramingChecksumMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := tt.mutate(append([]byte(nil), base...))
			_, err := ParsePacket(frame)
			var fe *FramingError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want *FramingError", err)
			}
			if fe.Reason != tt.reason {
				t.Errorf("reason = %v, want %v", fe.Reason, tt.reason)
			}
		})
	}
}

// Любое одиночное искажение байта должно быть обнаружено: либо по
// структуре кадра, либо по контрольной сумме.
func TestSingleByteCorruptionDetected(t *testing.T) {
	base := mustEncode(t, testPacket(JobApproval, []byte("corruption probe")))
	for i := range base {
		frame := append([]byte(nil), base...)
		frame[i] ^= 0x01
		if _, err := ParsePacket(frame); err == nil {
			t.Errorf("corruption at offset %d went undetected", i)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name    string
		v       int64
		width   int
		want    string
		wantErr bool
	}{
		{"zero", 0, 12, "000000000000", false},
		{"padded", 5000, 12, "000000005000", false},
		{"exact width", 123456789012, 12, "123456789012", false},
		{"overflow", 1234567890123, 12, "", true},
		{"negative", -1, 12, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatAmount(tt.v, tt.width)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("FormatAmount: %v", err)
			}
			if got != tt.want {
				t.Errorf("FormatAmount = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildApprovalRequestData(t *testing.T) {
	req := &ApprovalRequest{
		TransactionType:   TransactionTypePurchase,
		Amount:            5000,
		Tax:               454,
		ServiceCharge:     0,
		Installment:       InstallmentNone,
		SignatureRequired: true,
	}
	data, err := buildApprovalRequestData(req)
	if err != nil {
		t.Fatalf("buildApprovalRequestData: %v", err)
	}
	if len(data) != 33 {
		t.Fatalf("data length = %d, want 33", len(data))
	}
	if got := string(data[0:2]); got != "01" {
		t.Errorf("transaction type = %q", got)
	}
	if got := string(data[2:14]); got != "000000005000" {
		t.Errorf("amount field = %q", got)
	}
	if got := string(data[14:22]); got != "00000454" {
		t.Errorf("tax field = %q", got)
	}
	if got := string(data[22:30]); got != "00000000" {
		t.Errorf("service charge field = %q", got)
	}
	if got := string(data[30:32]); got != "00" {
		t.Errorf("installment field = %q", got)
	}
	if data[32] != '1' {
		t.Errorf("signature flag = %q, want '1'", data[32])
	}

	t.Run("defaults applied", func(t *testing.T) {
		data, err := buildApprovalRequestData(&ApprovalRequest{Amount: 100})
		if err != nil {
			t.Fatalf("buildApprovalRequestData: %v", err)
		}
		if got := string(data[0:2]); got != TransactionTypePurchase {
			t.Errorf("transaction type = %q", got)
		}
		if got := string(data[30:32]); got != InstallmentNone {
			t.Errorf("installment = %q", got)
		}
		if data[32] != '0' {
			t.Errorf("signature flag = %q, want '0'", data[32])
		}
	})

	t.Run("amount overflow", func(t *testing.T) {
		if _, err := buildApprovalRequestData(&ApprovalRequest{Amount: 1_000_000_000_000}); err == nil {
			t.Error("expected error for 13-digit amount")
		}
	})
}

func TestBuildCancelRequestData(t *testing.T) {
	req := &CancelRequest{
		ApprovalNumber:  "30012345",
		OriginalDate:    "20260110",
		OriginalTime:    "143000",
		Amount:          5000,
		TransactionType: TransactionTypePurchase,
	}
	data, err := buildCancelRequestData(req)
	if err != nil {
		t.Fatalf("buildCancelRequestData: %v", err)
	}
	if len(data) != 42 {
		t.Fatalf("data length = %d, want 42", len(data))
	}
	if got := string(data[0:2]); got != CancelTypeVANNoCard {
		t.Errorf("cancel type = %q", got)
	}
	if got := string(data[2:14]); got != "000030012345" {
		t.Errorf("approval number field = %q", got)
	}
	if got := string(data[14:22]); got != "20260110" {
		t.Errorf("date field = %q", got)
	}
	if got := string(data[22:28]); got != "143000" {
		t.Errorf("time field = %q", got)
	}
	if got := string(data[28:40]); got != "000000005000" {
		t.Errorf("amount field = %q", got)
	}
	if got := string(data[40:42]); got != "01" {
		t.Errorf("transaction type = %q", got)
	}

	t.Run("missing approval number", func(t *testing.T) {
		bad := *req
		bad.ApprovalNumber = ""
		if _, err := buildCancelRequestData(&bad); err == nil {
			t.Error("expected error for empty approval number")
		}
	})
	t.Run("malformed date", func(t *testing.T) {
		bad := *req
		bad.OriginalDate = "2026-01-10"
		if _, err := buildCancelRequestData(&bad); err == nil {
			t.Error("expected error for 10-character date")
		}
	})
}

func TestBuildStandbyData(t *testing.T) {
	if got := buildStandbyData(true); !bytes.Equal(got, []byte{'1'}) {
		t.Errorf("enter = % X, want '1'", got)
	}
	if got := buildStandbyData(false); !bytes.Equal(got, []byte{'0'}) {
		t.Errorf("exit = % X, want '0'", got)
	}
}

// approvalData собирает 72-байтовые данные ответа 'b'/'c'.
func approvalData(t *testing.T, rejected bool, code, card string, amount int64, approvalNo, date, tm, txid string, media byte) []byte {
	t.Helper()
	amt, err := FormatAmount(amount, 12)
	if err != nil {
		t.Fatalf("FormatAmount: %v", err)
	}
	var b bytes.Buffer
	if rejected {
		b.WriteByte('1')
	} else {
		b.WriteByte('0')
	}
	b.WriteString(padRight(code, 4))
	b.WriteString(padRight(card, 16))
	b.WriteString(amt)
	b.WriteString(padRight(approvalNo, 12))
	b.WriteString(date)
	b.WriteString(tm)
	b.WriteString(padRight(txid, 12))
	b.WriteByte(media)
	return b.Bytes()
}

func TestParseApprovalResponse(t *testing.T) {
	t.Run("approved", func(t *testing.T) {
		data := approvalData(t, false, "0000", "541234**3456", 5000, "30012345", "20260115", "103015", "000000123456", '1')
		r, err := parseApprovalResponseData(data)
		if err != nil {
			t.Fatalf("parseApprovalResponseData: %v", err)
		}
		if r.Rejected {
			t.Error("Rejected = true, want false")
		}
		if r.CardNumber != "541234**3456" {
			t.Errorf("CardNumber = %q", r.CardNumber)
		}
		if r.Amount != 5000 {
			t.Errorf("Amount = %d, want 5000", r.Amount)
		}
		if r.ApprovalNumber != "30012345" {
			t.Errorf("ApprovalNumber = %q", r.ApprovalNumber)
		}
		if r.SalesDate != "20260115" || r.SalesTime != "103015" {
			t.Errorf("sales stamp = %q %q", r.SalesDate, r.SalesTime)
		}
		if r.TransactionID != "000000123456" {
			t.Errorf("TransactionID = %q", r.TransactionID)
		}
		if r.CardType != "ic" {
			t.Errorf("CardType = %q, want \"ic\"", r.CardType)
		}
	})

	t.Run("rejected with table message", func(t *testing.T) {
		data := approvalData(t, true, "2001", "", 5000, "", "20260115", "103015", "", '2')
		r, err := parseApprovalResponseData(data)
		if err != nil {
			t.Fatalf("parseApprovalResponseData: %v", err)
		}
		if !r.Rejected {
			t.Fatal("Rejected = false, want true")
		}
		if r.RejectCode != "2001" {
			t.Errorf("RejectCode = %q", r.RejectCode)
		}
		if r.RejectMessage == "" || r.RejectMessage == "transaction rejected" {
			t.Errorf("RejectMessage = %q, want table entry for 2001", r.RejectMessage)
		}
	})

	t.Run("rejected with euc-kr trailer", func(t *testing.T) {
		trailer, _, err := transform.Bytes(korean.EUCKR.NewEncoder(), []byte("한도초과"))
		if err != nil {
			t.Fatalf("EUC-KR encode: %v", err)
		}
		data := approvalData(t, true, "9999", "", 5000, "", "20260115", "103015", "", '2')
		data = append(data, trailer...)

		r, err := parseApprovalResponseData(data)
		if err != nil {
			t.Fatalf("parseApprovalResponseData: %v", err)
		}
		if !strings.Contains(r.RejectMessage, "한도초과") {
			t.Errorf("RejectMessage = %q, want terminal text appended", r.RejectMessage)
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, err := parseApprovalResponseData(make([]byte, 71)); err == nil {
			t.Error("expected error for 71-byte data")
		}
	})
}

func TestParseDeviceCheck(t *testing.T) {
	r, err := parseDeviceCheckData([]byte{'1', '3', '1'})
	if err != nil {
		t.Fatalf("parseDeviceCheckData: %v", err)
	}
	if r.CardModule != ModuleOK || r.VANServer != ModuleOK {
		t.Errorf("modules = %v %v, want OK", r.CardModule, r.VANServer)
	}
	if r.RFModule != ModuleFail {
		t.Errorf("RFModule = %v, want fail", r.RFModule)
	}
	if r.Healthy() {
		t.Error("Healthy = true with failed RF module")
	}

	if _, err := parseDeviceCheckData([]byte{'1'}); err == nil {
		t.Error("expected error for short data")
	}
}

func TestParseInquiry(t *testing.T) {
	var b bytes.Buffer
	b.WriteByte(InquiryCancellable)
	b.WriteString(padRight("30012345", 12))
	b.WriteString("20260115")
	b.WriteString("103015")
	b.WriteString(padRight("000000123456", 12))
	b.WriteString("000000005000")
	b.WriteByte('3')

	r, err := parseInquiryData(b.Bytes())
	if err != nil {
		t.Fatalf("parseInquiryData: %v", err)
	}
	if r.Status != InquiryCancellable {
		t.Errorf("Status = %q", r.Status)
	}
	if r.ApprovalNumber != "30012345" {
		t.Errorf("ApprovalNumber = %q", r.ApprovalNumber)
	}
	if r.Amount != 5000 {
		t.Errorf("Amount = %d, want 5000", r.Amount)
	}
	if r.Media.CardType() != "rf" {
		t.Errorf("media card type = %q, want \"rf\"", r.Media.CardType())
	}

	if _, err := parseInquiryData(b.Bytes()[:51]); err == nil {
		t.Error("expected error for short data")
	}
}
