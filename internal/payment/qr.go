// Package payment implements the manual bank-transfer top-up: a VietQR code
// the user scans, and a confirmer that waits for the credit balance to rise.
package payment

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/book-expert/voice-studio/internal/config"
)

const (
	memoPrefix = "EF"
	qrTemplate = "compact"
)

// Memo returns the transfer description that lets the bank webhook match a
// payment to the user: the email when known, otherwise EF plus the user id
// without dashes.
func Memo(userID, email string) string {
	if email = strings.TrimSpace(email); email != "" {
		return email
	}

	if userID = strings.TrimSpace(userID); userID != "" {
		return memoPrefix + strings.ReplaceAll(userID, "-", "")
	}

	return memoPrefix
}

// QRURL returns the image URL of a VietQR code prefilled with the account,
// amount and memo.
func QRURL(cfg config.PaymentConfig, memo string) string {
	var builder strings.Builder

	builder.WriteString(cfg.QRBaseURL)
	builder.WriteString("?acc=")
	builder.WriteString(url.QueryEscape(cfg.AccountNumber))
	builder.WriteString("&bank=")
	builder.WriteString(url.QueryEscape(cfg.BankID))
	builder.WriteString("&amount=")
	builder.WriteString(strconv.FormatInt(cfg.Amount, 10))
	builder.WriteString("&des=")
	builder.WriteString(url.QueryEscape(memo))
	builder.WriteString("&template=")
	builder.WriteString(qrTemplate)

	return builder.String()
}
