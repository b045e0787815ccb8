// Package gateway handles the external card gateway: building signed pay
// URLs before redirecting, and parsing/verifying the redirect that brings
// the client back.
package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Redirect query parameters in the gateway's return contract.
const (
	ParamResponseCode = "vnp_ResponseCode"
	ParamAmount       = "vnp_Amount"
	ParamTxnRef       = "vnp_TxnRef"
	ParamOrderInfo    = "vnp_OrderInfo"
	ParamSecureHash   = "vnp_SecureHash"
)

// ResponseCodeSuccess marks a successful card payment.
const ResponseCodeSuccess = "00"

// ErrInvalidSignature is returned when a return's secure hash does not
// match the merchant secret.
var ErrInvalidSignature = errors.New("invalid gateway signature")

// Return is the parsed gateway redirect. Amount is in display currency
// units (the gateway reports minor units, one hundredth of a unit).
type Return struct {
	ResponseCode string
	TxnRef       string
	Amount       int64
	AmountMinor  int64
	OrderInfo    string
}

// Success reports whether the gateway confirmed the payment.
func (r Return) Success() bool {
	return r.ResponseCode == ResponseCodeSuccess
}

// ParseReturn reads the outcome fields from a gateway redirect's query.
// Missing parameters yield zero values; the classifier decides what an
// absent code means.
func ParseReturn(q url.Values) Return {
	r := Return{
		ResponseCode: q.Get(ParamResponseCode),
		TxnRef:       q.Get(ParamTxnRef),
		OrderInfo:    q.Get(ParamOrderInfo),
	}
	if raw := q.Get(ParamAmount); raw != "" {
		if minor, err := strconv.ParseInt(raw, 10, 64); err == nil {
			r.AmountMinor = minor
			r.Amount = minor / 100
		}
	}
	return r
}

// Config identifies the merchant with the gateway.
type Config struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

// PayURLRequest describes one redirect to the gateway.
type PayURLRequest struct {
	TxnRef    string
	Amount    int64 // display currency units
	OrderInfo string
	ClientIP  string
	Now       time.Time
}

// BuildPayURL constructs the signed redirect URL for one payment. The
// secure hash is an HMAC-SHA512 over the sorted, URL-encoded parameters.
func BuildPayURL(cfg Config, req PayURLRequest) string {
	params := url.Values{}
	params.Set("vnp_Version", "2.1.0")
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", cfg.TmnCode)
	params.Set(ParamAmount, strconv.FormatInt(req.Amount*100, 10))
	params.Set("vnp_CurrCode", "VND")
	params.Set(ParamTxnRef, req.TxnRef)
	params.Set(ParamOrderInfo, req.OrderInfo)
	params.Set("vnp_Locale", "vn")
	params.Set("vnp_ReturnUrl", cfg.ReturnURL)
	params.Set("vnp_IpAddr", req.ClientIP)
	params.Set("vnp_CreateDate", req.Now.Format("20060102150405"))

	query := canonicalQuery(params)
	hash := signQuery(cfg.HashSecret, query)

	return cfg.PayURL + "?" + query + "&" + ParamSecureHash + "=" + hash
}

// VerifyReturn checks the secure hash on a gateway redirect. The hash
// parameter itself is excluded from the signed payload.
func VerifyReturn(secret string, q url.Values) error {
	got := q.Get(ParamSecureHash)
	if got == "" {
		return ErrInvalidSignature
	}

	want := SignReturn(secret, q)
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignReturn computes the secure hash over a return parameter set, the same
// value the gateway attaches to its redirect. Any hash already present is
// excluded from the signed payload.
func SignReturn(secret string, q url.Values) string {
	params := url.Values{}
	for k, vs := range q {
		if k == ParamSecureHash || k == "vnp_SecureHashType" {
			continue
		}
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	return signQuery(secret, canonicalQuery(params))
}

// canonicalQuery encodes parameters sorted by key, the gateway's signing
// order.
func canonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}
	return b.String()
}

func signQuery(secret, query string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}
