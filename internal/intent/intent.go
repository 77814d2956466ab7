// Package intent определяет виды намерений акторов и их разбор на границе сервиса.
//
// Транспорт (бот-шлюз) присылает вид намерения строкой; строка разбирается
// ровно один раз, дальше по сервису ходит только типизированный Kind.
package intent

// Kind перечисляет поддерживаемые виды намерений.
type Kind string

const (
	KindRegister           Kind = "register"
	KindCheckBalance       Kind = "check_balance"
	KindRequestWithdrawal  Kind = "request_withdrawal"
	KindTransfer           Kind = "transfer"
	KindSearchRecipient    Kind = "search_recipient"
	KindAdminApprove       Kind = "admin_approve"
	KindAdminReject        Kind = "admin_reject"
	KindAdminAdjustBalance Kind = "admin_adjust_balance"
	KindAdminBroadcast     Kind = "admin_broadcast"
	KindAdminStats         Kind = "admin_stats"
	KindAdminHistory       Kind = "admin_history"
)

var kinds = map[string]Kind{
	string(KindRegister):           KindRegister,
	string(KindCheckBalance):       KindCheckBalance,
	string(KindRequestWithdrawal):  KindRequestWithdrawal,
	string(KindTransfer):           KindTransfer,
	string(KindSearchRecipient):    KindSearchRecipient,
	string(KindAdminApprove):       KindAdminApprove,
	string(KindAdminReject):        KindAdminReject,
	string(KindAdminAdjustBalance): KindAdminAdjustBalance,
	string(KindAdminBroadcast):     KindAdminBroadcast,
	string(KindAdminStats):         KindAdminStats,
	string(KindAdminHistory):       KindAdminHistory,
}

// ParseKind разбирает строковый вид намерения. Второе значение ложно,
// если вид неизвестен.
func ParseKind(s string) (Kind, bool) {
	k, ok := kinds[s]
	return k, ok
}

// IsAdmin сообщает, требует ли намерение прав администратора.
func (k Kind) IsAdmin() bool {
	switch k {
	case KindAdminApprove, KindAdminReject, KindAdminAdjustBalance,
		KindAdminBroadcast, KindAdminStats, KindAdminHistory:
		return true
	}
	return false
}
