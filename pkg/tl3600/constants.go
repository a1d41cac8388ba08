package tl3600

// Управляющие байты канального уровня.
const (
	STX  byte = 0x02 // начало пакета
	ETX  byte = 0x03 // конец пакета (перед BCC)
	ACK  byte = 0x06
	NACK byte = 0x15
)

// JobCode — однобайтовый код операции. Заглавная буква — запрос хоста,
// строчная — ответ терминала, '@' — несолиситированное событие.
type JobCode byte

const (
	JobDeviceCheck    JobCode = 'A' // проверка модулей терминала
	JobApproval       JobCode = 'B' // запрос одобрения транзакции
	JobCancel         JobCode = 'C' // отмена транзакции
	JobInquiry        JobCode = 'D' // справка по последней транзакции
	JobPaymentStandby JobCode = 'E' // вход/выход режима ожидания карты
	JobCardUID        JobCode = 'U' // чтение UID карты
	JobVersion        JobCode = 'V' // версия прошивки
	JobEvent          JobCode = '@' // событие терминала
)

// Response возвращает код ответа, парный данному запросу.
// Для события возвращается сам '@'.
func (j JobCode) Response() JobCode {
	if j >= 'A' && j <= 'Z' {
		return j + ('a' - 'A')
	}
	return j
}

// IsResponse сообщает, является ли код ответом терминала.
func (j JobCode) IsResponse() bool {
	return j >= 'a' && j <= 'z'
}

// IsEvent сообщает, является ли код событием.
func (j JobCode) IsEvent() bool {
	return j == JobEvent
}

// EventType — классификация события внутри кадра '@' (первый байт данных).
type EventType byte

const (
	EventMSSwipe    EventType = 'M' // прокат карты с магнитной полосой
	EventRFTap      EventType = 'R' // прикладывание RF-карты
	EventICInsert   EventType = 'I' // вставка IC-карты
	EventICRemove   EventType = 'O' // извлечение IC-карты
	EventICFallback EventType = 'F' // IC fallback, обрабатывается как MS
	EventBarcode    EventType = 'B' // сканирование штрих-кода
)

// IsCardPresentation сообщает, инициирует ли событие автоматическое
// одобрение. Извлечение карты и штрих-код — информационные.
func (e EventType) IsCardPresentation() bool {
	switch e {
	case EventMSSwipe, EventRFTap, EventICInsert, EventICFallback:
		return true
	}
	return false
}

// CardType возвращает тип носителя для внешнего потребителя.
func (e EventType) CardType() string {
	switch e {
	case EventMSSwipe:
		return "ms"
	case EventRFTap:
		return "rf"
	case EventICInsert:
		return "ic"
	case EventICFallback:
		// Терминал переключается на магнитную полосу
		return "ms"
	case EventBarcode:
		return "barcode"
	}
	return "unknown"
}

// MediaCode — способ предъявления карты в ответе одобрения/отмены.
type MediaCode byte

const (
	MediaIC      MediaCode = '1'
	MediaMS      MediaCode = '2'
	MediaRF      MediaCode = '3'
	MediaBarcode MediaCode = '4'
	MediaKeyIn   MediaCode = '5'
)

// CardType возвращает тип носителя для внешнего потребителя.
func (m MediaCode) CardType() string {
	switch m {
	case MediaIC:
		return "ic"
	case MediaMS:
		return "ms"
	case MediaRF:
		return "rf"
	case MediaBarcode:
		return "barcode"
	case MediaKeyIn:
		return "key"
	}
	return "unknown"
}

// ModuleStatus — состояние модуля в ответе проверки устройства.
type ModuleStatus byte

const (
	ModuleNotInstalled ModuleStatus = '0'
	ModuleOK           ModuleStatus = '1'
	ModuleError        ModuleStatus = '2'
	ModuleFail         ModuleStatus = '3'
)

func (s ModuleStatus) String() string {
	switch s {
	case ModuleNotInstalled:
		return "not installed"
	case ModuleOK:
		return "ok"
	case ModuleError:
		return "error"
	case ModuleFail:
		return "fail"
	}
	return "unknown"
}

// Статусы транзакции в ответе справки (job 'd').
const (
	InquiryNoHistory        byte = '0' // нет истории / транзакция не найдена
	InquiryCancellable      byte = '1' // транзакция может быть отменена
	InquiryAlreadyCancelled byte = 'X' // транзакция уже отменена
)

// CancelTypeVANNoCard — отмена по реквизитам без повторного предъявления
// карты ("VAN no-card cancel", раздел 7.3 протокола V10.1).
const CancelTypeVANNoCard = "40"

// TransactionTypePurchase — обычная покупка, значение по умолчанию.
const TransactionTypePurchase = "01"

// InstallmentNone — оплата без рассрочки.
const InstallmentNone = "00"

// RejectDescriptions — закрытая таблица кодов отказа терминала/VAN.
// Коды взяты из документа протокола V10.1 и не подлежат расширению.
var RejectDescriptions = map[string]string{
	"1001": "declined by issuer",
	"1002": "insufficient funds",
	"1003": "card expired",
	"1004": "invalid card",
	"1005": "amount limit exceeded",
	"1006": "card read error, retry",
	"2001": "VAN communication error",
	"2002": "VAN server timeout",
	"2003": "VAN service unavailable",
	"3001": "cancellation period expired",
	"3002": "original transaction not found",
	"3003": "amount mismatch with original",
	"9001": "terminal busy",
	"9002": "terminal internal error",
}

// RejectMessage возвращает описание кода отказа. Неизвестные коды
// не считаются ошибкой таблицы: терминал новее прошивки хоста.
func RejectMessage(code string) string {
	if msg, ok := RejectDescriptions[code]; ok {
		return msg
	}
	return "transaction rejected"
}
