package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"couponmarket/internal/config"
)

// TrustedClient talks to the privileged server-side callables. Those run
// with elevated trust and may update third-party balances directly, which
// the local fallback path is not permitted to do for the coupon owner's
// account.
type TrustedClient struct {
	redeemURL string
	trackURL  string
	client    *http.Client
}

func NewTrustedClient(cfg *config.TrustedConfig) *TrustedClient {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &TrustedClient{
		redeemURL: cfg.RedeemURL,
		trackURL:  cfg.TrackURL,
		client:    &http.Client{Timeout: timeout},
	}
}

type trustedRedeemRequest struct {
	CouponNo    string `json:"coupon_no"`
	AffiliateID *int64 `json:"affiliate_id,omitempty"`
}

// trustedRedeemResponse is the callable contract: a success flag, a
// machine-readable failure code from the shared taxonomy, and a
// human-readable message.
type trustedRedeemResponse struct {
	Success      bool   `json:"success"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message"`
	RedemptionNo string `json:"redemption_no,omitempty"`
}

// Redeem invokes the privileged redemption callable as callerID. Transport
// failures and 5xx responses surface as ErrTrustedUnavailable so the
// orchestrator can fall back; business rejections come back typed.
func (t *TrustedClient) Redeem(ctx context.Context, callerID int64, couponNo string, affiliateID *int64) (string, error) {
	if t.redeemURL == "" {
		return "", ErrTrustedUnavailable
	}

	body, err := json.Marshal(trustedRedeemRequest{CouponNo: couponNo, AffiliateID: affiliateID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.redeemURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-ID", fmt.Sprintf("%d", callerID))

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTrustedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: status %d", ErrTrustedUnavailable, resp.StatusCode)
	}

	var out trustedRedeemResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: bad response: %v", ErrTrustedUnavailable, err)
	}

	if !out.Success {
		return "", trustedCodeToError(out.Code, out.Message)
	}
	return out.RedemptionNo, nil
}

// Track fires the click-tracking callable. Errors are returned so the
// caller can degrade to a direct counter increment; there is no response
// body to consume.
func (t *TrustedClient) Track(ctx context.Context, couponNo string) error {
	if t.trackURL == "" {
		return ErrTrustedUnavailable
	}

	body, _ := json.Marshal(map[string]string{"coupon_no": couponNo})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.trackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTrustedUnavailable, err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", ErrTrustedUnavailable, resp.StatusCode)
	}
	return nil
}

func trustedCodeToError(code, message string) error {
	switch code {
	case "COUPON_NOT_FOUND":
		return ErrCouponNotFound
	case "COUPON_EXHAUSTED":
		return ErrCouponExhausted
	case "COUPON_EXPIRED":
		return ErrCouponExpired
	default:
		if message == "" {
			message = "redemption rejected"
		}
		return fmt.Errorf("trusted callable rejected: %s", message)
	}
}
