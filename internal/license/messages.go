package license

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Persian is the second shipped catalog
var Persian = language.Persian

var supportedLanguages = []language.Tag{language.English, Persian}

var languageMatcher = language.NewMatcher(supportedLanguages)

// catalogs hold one format string per code. Valid takes the remaining days,
// Expired and BadDateFormat take the expiry text.
var catalogs = map[language.Tag]map[Code]string{
	language.English: {
		CodeValid:              "License is valid (%d days remaining)",
		CodeUnsupportedVersion: "Unsupported license version",
		CodeMissingSignature:   "License signature is missing",
		CodeNoPublicKey:        "No public key is configured to verify the license",
		CodeBadSignature:       "License signature is invalid",
		CodeWrongDevice:        "This license is not valid for this device",
		CodeHardwareChanged:    "Hardware change detected - license is invalid",
		CodeExpired:            "License has expired (expiry date: %s)",
		CodeInvalidExpiry:      "License expiry date is invalid",
		CodeRevoked:            "This license has been revoked by the administrator",
		CodeBadDateFormat:      "Invalid date format: %s",
		CodeMalformed:          "Invalid license format",
		CodeLegacyDisabled:     "This version only accepts signed license files",
		CodeNotActivated:       "No license found - please activate",
		CodeStorage:            "Failed to save the license",
	},
	Persian: {
		CodeValid:              "لایسنس معتبر است (باقیمانده: %d روز)",
		CodeUnsupportedVersion: "نسخه لایسنس پشتیبانی نمی‌شود",
		CodeMissingSignature:   "امضای لایسنس وجود ندارد",
		CodeNoPublicKey:        "کلید عمومی برای اعتبارسنجی لایسنس تنظیم نشده است",
		CodeBadSignature:       "امضای لایسنس نامعتبر است",
		CodeWrongDevice:        "این لایسنس برای این دستگاه معتبر نیست",
		CodeHardwareChanged:    "تغییر سخت‌افزار تشخیص داده شد - لایسنس نامعتبر است",
		CodeExpired:            "لایسنس منقضی شده است (تاریخ انقضا: %s)",
		CodeInvalidExpiry:      "تاریخ انقضای لایسنس نامعتبر است",
		CodeRevoked:            "این لایسنس توسط مدیر سیستم لغو شده است",
		CodeBadDateFormat:      "فرمت تاریخ نامعتبر: %s",
		CodeMalformed:          "فرمت لایسنس نامعتبر است",
		CodeLegacyDisabled:     "این نسخه از نرم‌افزار فقط فایل لایسنس امضاشده را می‌پذیرد",
		CodeNotActivated:       "لایسنس یافت نشد - لطفاً فعال‌سازی کنید",
		CodeStorage:            "خطا در ذخیره لایسنس",
	},
}

// MatchLanguage picks a catalog for an Accept-Language header or a bare tag
// such as "fa". Unknown or empty input yields English.
func MatchLanguage(accept string) language.Tag {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return language.English
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, index, confidence := languageMatcher.Match(tags...)
	if confidence == language.No {
		return language.English
	}
	return supportedLanguages[index]
}

// Message formats the catalog entry for code in tag
func Message(tag language.Tag, code Code, days int, expiry string) string {
	catalog, ok := catalogs[tag]
	if !ok {
		catalog = catalogs[MatchLanguage(tag.String())]
	}
	format, ok := catalog[code]
	if !ok {
		format = catalog[CodeMalformed]
	}

	switch code {
	case CodeValid:
		return fmt.Sprintf(format, days)
	case CodeExpired, CodeBadDateFormat:
		return fmt.Sprintf(format, expiry)
	default:
		return format
	}
}
