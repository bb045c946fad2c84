package i18n

// Messages use Telegram HTML. Values substituted into them must already be
// escaped by the caller.
var catalogue = map[string]map[string]string{
	Arabic: {
		"welcome_title": "🎬 <b>مرحباً {name}!</b>",
		"welcome_intro": `
أنا بوت تنزيل الفيديوهات والصور والأصوات من:
• يوتيوب 🎥
• تيك توك 🎵
• انستقرام 📸
`,
		"welcome_how_to": `
<b>كيف تستخدمني؟</b>
فقط أرسل لي رابط الفيديو أو الصورة وسأقوم بتنزيله لك!
`,
		"welcome_commands": `
<b>الأوامر المتاحة:</b>
/help - عرض المساعدة
/status - حالة حسابك وحدود التنزيل
/subscribe - الاشتراكات المدفوعة
/language - تغيير اللغة
`,
		"welcome_types": `
<b>أنواع التنزيل:</b>
🎥 فيديو - أرسل الرابط مباشرة
🖼 صور - أرسل الرابط مباشرة
🎵 صوت - أرسل الرابط مع كلمة "صوت" أو "audio"

جرب الآن! 🚀
`,

		"btn_help":          "📖 المساعدة",
		"btn_status":        "📊 حالتي",
		"btn_subscribe":     "💎 الاشتراكات",
		"btn_home":          "🏠 الرئيسية",
		"btn_back":          "🔙 رجوع",
		"btn_language":      "🌍 اللغة",
		"btn_pay":           "💳 ادفع ${price}",
		"btn_check_payment": "✅ تحقق من الدفع",

		"help_title": "📖 <b>دليل الاستخدام</b>",
		"help_platforms": `
<b>المنصات المدعومة:</b>
• يوتيوب (YouTube)
• تيك توك (TikTok)
• انستقرام (Instagram)
`,
		"help_video": `
🎥 <b>تنزيل فيديو:</b>
فقط أرسل رابط الفيديو مباشرة

مثال:
<code>https://www.youtube.com/watch?v=xxxxx</code>
<code>https://www.tiktok.com/@user/video/xxxxx</code>
<code>https://www.instagram.com/p/xxxxx</code>
`,
		"help_images": `
🖼 <b>تنزيل صور:</b>
أرسل رابط المنشور الذي يحتوي على صور
(تيك توك وانستقرام)
`,
		"help_audio": `
🎵 <b>تنزيل صوت:</b>
أرسل الرابط مع كلمة "صوت" أو "audio"

مثال:
<code>https://www.youtube.com/watch?v=xxxxx صوت</code>
<code>audio https://www.tiktok.com/@user/video/xxxxx</code>
`,
		"help_commands": `
<b>الأوامر:</b>
/start - البداية
/help - المساعدة
/status - حالة حسابك
/subscribe - الاشتراكات
/language - تغيير اللغة
`,
		"help_notes": `
<b>ملاحظات:</b>
• الحد اليومي للتنزيل يعتمد على اشتراكك
• الجودة تعتمد على المصدر المتاح
• بعض الفيديوهات قد لا تكون متاحة للتنزيل

هل تحتاج مساعدة؟ تواصل مع الدعم! 💬
`,

		"status_title":        "📊 <b>حالة حسابك</b>",
		"status_user":         "👤 <b>المستخدم:</b> {name}",
		"status_id":           "🆔 <b>المعرف:</b> <code>{user_id}</code>",
		"status_subscription": "💎 <b>الاشتراك:</b> {tier}",
		"status_state":        "📈 <b>الحالة:</b> {status}",
		"status_expires":      "\nينتهي في: {days} يوم",
		"status_downloads":    "📥 <b>التنزيلات اليوم:</b> {today} / {limit}",
		"status_remaining":    "✨ <b>المتبقي:</b> {remaining} تنزيل",
		"status_features":     "<b>المميزات الحالية:</b>",
		"status_upgrade":      "\n💡 <b>ترقية اشتراكك للحصول على المزيد!</b>",
		"status_active":       "نشط ✅",
		"status_inactive":     "غير مشترك",

		"subscribe_title":         "💎 <b>خطط الاشتراك</b>\n\nاختر الخطة المناسبة لك:",
		"subscribe_month":         "/شهر",
		"subscribe_payment_title": "💳 <b>الدفع - {tier}</b>",
		"subscribe_price":         "السعر: ${price}/شهر",
		"subscribe_features":      "<b>المميزات:</b>",
		"subscribe_payment_method": `
<b>طريقة الدفع:</b>
الدفع الإلكتروني غير متاح حالياً.

في الوقت الحالي، يمكنك التواصل مع الإدارة للاشتراك.

شكراً لاهتمامك! 💙
`,
		"subscribe_checkout": "\nاضغط على زر الدفع لإتمام العملية، ثم اضغط \"تحقق من الدفع\".",

		"payment_pending":    "⏳ لم يكتمل الدفع بعد. أكمل الدفع ثم حاول مرة أخرى.",
		"payment_success":    "🎉 تم تفعيل اشتراك <b>{tier}</b> لمدة {days} يوم!\nحدك اليومي الآن: {limit} تنزيل.",
		"payment_no_invoice": "❌ لا توجد عملية دفع معلقة. استخدم /subscribe للبدء من جديد.",
		"payment_error":      "❌ تعذر إنشاء عملية الدفع. حاول مرة أخرى لاحقاً.",

		"language_title":   "🌍 <b>اختر اللغة / Choose Language</b>",
		"language_changed": "✅ تم تغيير اللغة إلى العربية",
		"btn_arabic":       "🇸🇦 العربية",
		"btn_english":      "🇬🇧 English",

		"error_invalid_url":     "❌ الرجاء إرسال رابط صحيح من يوتيوب، تيك توك، أو انستقرام.",
		"error_limit_reached":   "⚠️ لقد وصلت إلى الحد اليومي ({used}/{limit} تنزيل).\n\nيمكنك الترقية لاشتراك أعلى للحصول على المزيد!\n/subscribe",
		"error_no_url":          "❌ لم يتم العثور على رابط صحيح.",
		"error_download_failed": "❌ {error}",
		"error_admin_only":      "❌ هذا الأمر متاح للمسؤولين فقط.",
		"error_unavailable":     "⏳ الخدمة غير متاحة مؤقتاً. يرجى المحاولة بعد قليل.",
		"error_generic":         "❌ حدث خطأ غير متوقع. حاول مرة أخرى.",
		"error_no_media":        "❌ لم يتم العثور على ملف للتنزيل.",
		"error_network":         "⚠️ مشكلة في الاتصال. يرجى المحاولة مرة أخرى بعد قليل.",
		"error_not_found":       "❌ الفيديو غير موجود أو تم حذفه. تأكد من الرابط.",
		"error_private":         "🔒 هذا الفيديو خاص أو غير متاح للتنزيل.",
		"error_age_restricted":  "⛔ هذا الفيديو محظور بسبب قيود العمر.",
		"error_upstream":        "❌ حدث خطأ: {error}\n\nحاول مرة أخرى أو تواصل مع الدعم.",

		"download_processing":     "⏳ جاري المعالجة...",
		"download_sending_audio":  "🎵 جاري إرسال الملف الصوتي...",
		"download_sending_video":  "🎥 جاري إرسال الفيديو...",
		"download_sending_images": "🖼 جاري إرسال {count} صورة...",
		"download_success":        "✅ تم التنزيل بنجاح!\n\nالمتبقي اليوم: {remaining} تنزيل",
		"download_from":           "تم التنزيل من {platform}",
		"download_image_count":    "🖼 صورة {current}/{total} من {platform}",

		"tier_free":         "مجاني",
		"tier_basic":        "أساسي",
		"tier_professional": "احترافي",
		"tier_advanced":     "متقدم",

		"feature_daily_limit":       "{limit} تنزيلات يومياً",
		"feature_quality_standard":  "جودة قياسية",
		"feature_quality_high":      "جودة عالية",
		"feature_quality_very_high": "جودة عالية جداً",
		"feature_quality_best":      "أعلى جودة",
		"feature_all_platforms":     "جميع المنصات",
		"feature_priority":          "أولوية في المعالجة",
		"feature_instant":           "معالجة فورية",
		"feature_support":           "دعم أولوية",

		"suggest_basic": "💡 <b>اقتراح:</b> يبدو أنك تستخدم البوت بشكل متكرر! باقة <b>{tier}</b> (${price}/شهر) ستمنحك {limit} تنزيل يومياً.",
		"suggest_power": "🔥 <b>اقتراح:</b> أنت مستخدم نشط جداً! باقة <b>{tier}</b> (${price}/شهر) تمنحك {limit} تنزيل يومياً.",

		"assistant_greeting": "👋 أهلاً بك! أرسل لي رابط فيديو من يوتيوب أو تيك توك أو انستقرام وسأقوم بتنزيله.",
		"assistant_question": "🤔 لست متأكداً من سؤالك. اكتب /help لمعرفة طريقة الاستخدام.",
		"assistant_unknown":  "📎 أرسل لي رابطاً للتنزيل، أو اكتب /help للمساعدة.",

		"admin_stats_title":     "📊 <b>إحصائيات البوت</b>",
		"admin_stats_body":      "\n👥 المستخدمون: {users}\n💎 الاشتراكات النشطة: {subs}\n📥 إجمالي التنزيلات: {total}\n✅ الناجحة: {success} ({rate}%)\n📅 اليوم: {today}",
		"admin_users_title":     "👥 <b>قائمة المستخدمين</b> ({count} مستخدم)",
		"admin_subs_title":      "💎 <b>الاشتراكات</b> ({count} اشتراك)",
		"admin_downloads_title": "📥 <b>إحصائيات التنزيلات (آخر 7 أيام)</b>",
		"admin_by_platform":     "\n<b>حسب المنصة:</b>",
		"admin_by_kind":         "\n<b>حسب النوع:</b>",
		"admin_grant_usage":     "الاستخدام: /grant &lt;user_id&gt; &lt;tier&gt; [days]",
		"admin_revoke_usage":    "الاستخدام: /revoke &lt;user_id&gt;",
		"admin_grant_done":      "✅ تم تفعيل {tier} للمستخدم {user_id} حتى {until}",
		"admin_revoke_done":     "✅ تم إلغاء اشتراك المستخدم {user_id}",
		"admin_no_subscription": "ℹ️ لا يوجد اشتراك نشط للمستخدم {user_id}",
		"admin_unknown_user":    "❌ المستخدم {user_id} غير موجود",
	},

	English: {
		"welcome_title": "🎬 <b>Welcome {name}!</b>",
		"welcome_intro": `
I'm a bot for downloading videos, images, and audio from:
• YouTube 🎥
• TikTok 🎵
• Instagram 📸
`,
		"welcome_how_to": `
<b>How to use me?</b>
Just send me a video or image link and I'll download it for you!
`,
		"welcome_commands": `
<b>Available Commands:</b>
/help - Show help
/status - Your account status and download limits
/subscribe - Premium subscriptions
/language - Change language
`,
		"welcome_types": `
<b>Download Types:</b>
🎥 Video - Send the link directly
🖼 Images - Send the link directly
🎵 Audio - Send the link with "audio" or "صوت"

Try it now! 🚀
`,

		"btn_help":          "📖 Help",
		"btn_status":        "📊 My Status",
		"btn_subscribe":     "💎 Subscriptions",
		"btn_home":          "🏠 Home",
		"btn_back":          "🔙 Back",
		"btn_language":      "🌍 Language",
		"btn_pay":           "💳 Pay ${price}",
		"btn_check_payment": "✅ I've paid",

		"help_title": "📖 <b>User Guide</b>",
		"help_platforms": `
<b>Supported Platforms:</b>
• YouTube
• TikTok
• Instagram
`,
		"help_video": `
🎥 <b>Download Video:</b>
Just send the video link directly

Example:
<code>https://www.youtube.com/watch?v=xxxxx</code>
<code>https://www.tiktok.com/@user/video/xxxxx</code>
<code>https://www.instagram.com/p/xxxxx</code>
`,
		"help_images": `
🖼 <b>Download Images:</b>
Send the post link containing images
(TikTok and Instagram)
`,
		"help_audio": `
🎵 <b>Download Audio:</b>
Send the link with "audio" or "صوت"

Example:
<code>https://www.youtube.com/watch?v=xxxxx audio</code>
<code>audio https://www.tiktok.com/@user/video/xxxxx</code>
`,
		"help_commands": `
<b>Commands:</b>
/start - Start
/help - Help
/status - Your account status
/subscribe - Subscriptions
/language - Change language
`,
		"help_notes": `
<b>Notes:</b>
• Daily download limit depends on your subscription
• Quality depends on available source
• Some videos may not be available for download

Need help? Contact support! 💬
`,

		"status_title":        "📊 <b>Your Account Status</b>",
		"status_user":         "👤 <b>User:</b> {name}",
		"status_id":           "🆔 <b>ID:</b> <code>{user_id}</code>",
		"status_subscription": "💎 <b>Subscription:</b> {tier}",
		"status_state":        "📈 <b>Status:</b> {status}",
		"status_expires":      "\nExpires in: {days} days",
		"status_downloads":    "📥 <b>Downloads Today:</b> {today} / {limit}",
		"status_remaining":    "✨ <b>Remaining:</b> {remaining} downloads",
		"status_features":     "<b>Current Features:</b>",
		"status_upgrade":      "\n💡 <b>Upgrade your subscription for more!</b>",
		"status_active":       "Active ✅",
		"status_inactive":     "Not subscribed",

		"subscribe_title":         "💎 <b>Subscription Plans</b>\n\nChoose the plan that suits you:",
		"subscribe_month":         "/month",
		"subscribe_payment_title": "💳 <b>Payment - {tier}</b>",
		"subscribe_price":         "Price: ${price}/month",
		"subscribe_features":      "<b>Features:</b>",
		"subscribe_payment_method": `
<b>Payment Method:</b>
Online payment is not available right now.

For now, you can contact admin to subscribe.

Thank you for your interest! 💙
`,
		"subscribe_checkout": "\nTap the pay button to complete checkout, then tap \"I've paid\".",

		"payment_pending":    "⏳ Payment is not complete yet. Finish checkout and try again.",
		"payment_success":    "🎉 Your <b>{tier}</b> subscription is active for {days} days!\nYour daily limit is now {limit} downloads.",
		"payment_no_invoice": "❌ No pending payment found. Use /subscribe to start again.",
		"payment_error":      "❌ Could not start the payment. Please try again later.",

		"language_title":   "🌍 <b>Choose Language / اختر اللغة</b>",
		"language_changed": "✅ Language changed to English",
		"btn_arabic":       "🇸🇦 العربية",
		"btn_english":      "🇬🇧 English",

		"error_invalid_url":     "❌ Please send a valid link from YouTube, TikTok, or Instagram.",
		"error_limit_reached":   "⚠️ You have reached your daily limit ({used}/{limit} downloads).\n\nYou can upgrade to a higher subscription for more!\n/subscribe",
		"error_no_url":          "❌ No valid link found.",
		"error_download_failed": "❌ {error}",
		"error_admin_only":      "❌ This command is available for admins only.",
		"error_unavailable":     "⏳ The service is temporarily unavailable. Please try again shortly.",
		"error_generic":         "❌ Something went wrong. Please try again.",
		"error_no_media":        "❌ No downloadable file was found.",
		"error_network":         "⚠️ Network connection issue. Please try again in a moment.",
		"error_not_found":       "❌ Video not found or deleted. Please check the URL.",
		"error_private":         "🔒 This video is private or unavailable for download.",
		"error_age_restricted":  "⛔ This video is age-restricted.",
		"error_upstream":        "❌ Error: {error}\n\nTry again or contact support.",

		"download_processing":     "⏳ Processing...",
		"download_sending_audio":  "🎵 Sending audio file...",
		"download_sending_video":  "🎥 Sending video...",
		"download_sending_images": "🖼 Sending {count} images...",
		"download_success":        "✅ Downloaded successfully!\n\nRemaining today: {remaining} downloads",
		"download_from":           "Downloaded from {platform}",
		"download_image_count":    "🖼 Image {current}/{total} from {platform}",

		"tier_free":         "Free",
		"tier_basic":        "Basic",
		"tier_professional": "Professional",
		"tier_advanced":     "Advanced",

		"feature_daily_limit":       "{limit} daily downloads",
		"feature_quality_standard":  "Standard quality",
		"feature_quality_high":      "High quality",
		"feature_quality_very_high": "Very high quality",
		"feature_quality_best":      "Best quality",
		"feature_all_platforms":     "All platforms",
		"feature_priority":          "Priority processing",
		"feature_instant":           "Instant processing",
		"feature_support":           "Priority support",

		"suggest_basic": "💡 <b>Suggestion:</b> You're using the bot frequently! The <b>{tier}</b> plan (${price}/month) gives you {limit} daily downloads.",
		"suggest_power": "🔥 <b>Suggestion:</b> You're a power user! The <b>{tier}</b> plan (${price}/month) gives you {limit} daily downloads.",

		"assistant_greeting": "👋 Hi there! Send me a video link from YouTube, TikTok or Instagram and I'll download it.",
		"assistant_question": "🤔 I'm not sure about that. Type /help to see how to use me.",
		"assistant_unknown":  "📎 Send me a link to download, or type /help for help.",

		"admin_stats_title":     "📊 <b>Bot Statistics</b>",
		"admin_stats_body":      "\n👥 Users: {users}\n💎 Active subscriptions: {subs}\n📥 Total downloads: {total}\n✅ Successful: {success} ({rate}%)\n📅 Today: {today}",
		"admin_users_title":     "👥 <b>Users List</b> ({count} users)",
		"admin_subs_title":      "💎 <b>Subscriptions</b> ({count} subscriptions)",
		"admin_downloads_title": "📥 <b>Download Statistics (Last 7 Days)</b>",
		"admin_by_platform":     "\n<b>By platform:</b>",
		"admin_by_kind":         "\n<b>By type:</b>",
		"admin_grant_usage":     "Usage: /grant &lt;user_id&gt; &lt;tier&gt; [days]",
		"admin_revoke_usage":    "Usage: /revoke &lt;user_id&gt;",
		"admin_grant_done":      "✅ Granted {tier} to user {user_id} until {until}",
		"admin_revoke_done":     "✅ Cancelled the subscription of user {user_id}",
		"admin_no_subscription": "ℹ️ User {user_id} has no active subscription",
		"admin_unknown_user":    "❌ User {user_id} not found",
	},
}
