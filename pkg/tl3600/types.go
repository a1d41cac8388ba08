package tl3600

// ApprovalRequest содержит параметры запроса одобрения (job 'B').
// Суммы — в минимальных единицах валюты терминала.
type ApprovalRequest struct {
	TransactionType   string `json:"transactionType"` // "01" — покупка
	Amount            int64  `json:"amount"`
	Tax               int64  `json:"tax"`
	ServiceCharge     int64  `json:"serviceCharge"`
	Installment       string `json:"installment"` // "00" — без рассрочки
	SignatureRequired bool   `json:"signatureRequired"`
}

// DefaultApprovalRequest возвращает запрос с параметрами по умолчанию:
// покупка на указанную сумму, без налога, сервисного сбора, рассрочки
// и подписи.
func DefaultApprovalRequest(amount int64) *ApprovalRequest {
	return &ApprovalRequest{
		TransactionType: TransactionTypePurchase,
		Amount:          amount,
		Installment:     InstallmentNone,
	}
}

// CancelRequest содержит реквизиты отмены транзакции (job 'C',
// вариант "VAN no-card cancel": по ссылке, без повторного предъявления карты).
type CancelRequest struct {
	ApprovalNumber  string `json:"approvalNumber"`  // 12 цифр
	OriginalDate    string `json:"originalDate"`    // YYYYMMDD исходной продажи
	OriginalTime    string `json:"originalTime"`    // hhmmss исходной продажи
	Amount          int64  `json:"amount"`
	TransactionType string `json:"transactionType"` // как в исходной транзакции
}

// ApprovalResponse — разобранный ответ одобрения или отмены (job 'b'/'c').
type ApprovalResponse struct {
	Rejected       bool      `json:"rejected"`
	RejectCode     string    `json:"rejectCode,omitempty"`
	RejectMessage  string    `json:"rejectMessage,omitempty"`
	CardNumber     string    `json:"cardNumber"` // маскированный
	Amount         int64     `json:"amount"`
	ApprovalNumber string    `json:"approvalNumber"` // до 12 цифр
	SalesDate      string    `json:"salesDate"`      // YYYYMMDD
	SalesTime      string    `json:"salesTime"`      // hhmmss
	TransactionID  string    `json:"transactionId"`  // 12 цифр, для отмены значимы последние 6
	Media          MediaCode `json:"-"`
	CardType       string    `json:"cardType"`
}

// DeviceCheckResponse — состояние модулей терминала (job 'a').
type DeviceCheckResponse struct {
	CardModule ModuleStatus `json:"-"`
	RFModule   ModuleStatus `json:"-"`
	VANServer  ModuleStatus `json:"-"`
}

// Healthy сообщает, что все установленные модули исправны.
func (r *DeviceCheckResponse) Healthy() bool {
	for _, s := range []ModuleStatus{r.CardModule, r.RFModule, r.VANServer} {
		if s == ModuleError || s == ModuleFail {
			return false
		}
	}
	return true
}

// CardInquiryResponse — результат справки по последней транзакции (job 'd').
type CardInquiryResponse struct {
	Status         byte      `json:"-"` // InquiryNoHistory / InquiryCancellable / InquiryAlreadyCancelled
	ApprovalNumber string    `json:"approvalNumber"`
	SalesDate      string    `json:"salesDate"`
	SalesTime      string    `json:"salesTime"`
	TransactionID  string    `json:"transactionId"`
	Amount         int64     `json:"amount"`
	Media          MediaCode `json:"-"`
}

// Status — снимок состояния контроллера для внешних потребителей.
type Status struct {
	Connected     bool   `json:"connected"`
	InPaymentMode bool   `json:"inPaymentMode"`
	TerminalID    string `json:"terminalId"`
}

// NotificationKind — вид уведомления контроллера.
type NotificationKind int

const (
	NoteCardDetected NotificationKind = iota
	NoteCardRemoved
	NoteProcessingPayment
	NotePaymentApproved
	NotePaymentRejected
	NotePaymentModeEntered
	NoteError
	NoteDisconnected
)

func (k NotificationKind) String() string {
	switch k {
	case NoteCardDetected:
		return "cardDetected"
	case NoteCardRemoved:
		return "cardRemoved"
	case NoteProcessingPayment:
		return "processingPayment"
	case NotePaymentApproved:
		return "paymentApproved"
	case NotePaymentRejected:
		return "paymentRejected"
	case NotePaymentModeEntered:
		return "paymentModeEntered"
	case NoteError:
		return "error"
	case NoteDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Notification — асинхронное уведомление контроллера.
// Card заполняется для cardDetected/paymentApproved/paymentRejected,
// Result — для исходов платежа, Err — для error.
type Notification struct {
	Kind   NotificationKind
	Card   string
	Result *ApprovalResponse
	Err    error
}
