package consts

import "time"

// Callback data
const (
	CallbackStart     = "start"
	CallbackHelp      = "help"
	CallbackStatus    = "status"
	CallbackSubscribe = "subscribe"
	CallbackLanguage  = "language"

	CallbackLangPrefix     = "lang_"
	CallbackSubPrefix      = "sub_"
	CallbackPayCheckPrefix = "pay_check_"
)

// Commands
const (
	CommandStart          = "/start"
	CommandHelp           = "/help"
	CommandStatus         = "/status"
	CommandSubscribe      = "/subscribe"
	CommandLanguage       = "/language"
	CommandAdminStats     = "/admin_stats"
	CommandAdminUsers     = "/admin_users"
	CommandAdminSubs      = "/admin_subs"
	CommandAdminDownloads = "/admin_downloads"
	CommandGrant          = "/grant"
	CommandRevoke         = "/revoke"
)

// Languages
const (
	LangArabic   = "ar"
	LangEnglish  = "en"
	LangFallback = LangArabic
)

// Cache keys and lifetimes
const (
	CacheKeyCallbackPrefix  = "cb:"
	CacheKeyInvoicePrefix   = "invoice:"
	CacheKeyPaidPrefix      = "paid:"
	CacheKeyLastErrorPrefix = "lasterr:"
	CacheKeySuggestPrefix   = "suggest:"

	CallbackDedupTTL = 5 * time.Minute
	InvoiceTTL       = 1 * time.Hour
	PaidNoticeTTL    = 24 * time.Hour
	LastErrorTTL     = 1 * time.Hour
	SuggestionTTL    = 24 * time.Hour
)

// Telegram limits
const (
	MediaGroupMaxItems = 10
	MaxMessageLength   = 4096
)

// Admin listings
const (
	AdminListLimit    = 20
	AdminDownloadDays = 7
)

// Rate limiting
const (
	GlobalSendRate  = 30 // messages per second across all chats
	GlobalSendBurst = 30
	UserSendRate    = 1 // messages per second per chat
	UserSendBurst   = 5

	UserLimiterIdleTTL = 30 * time.Minute
)

// Reservations for in-flight downloads expire after this long in shared
// stores so a crashed worker cannot hold quota forever.
const ReservationTTL = 10 * time.Minute
