package ingress

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Verifier authenticates an inbound request before it is decoded.
type Verifier interface {
	Verify(ctx context.Context, req InboundRequest) error
}

type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("ingress: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("ingress: signature secret is required")
	}
	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("ingress: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("ingress: decode base64 signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("ingress: signature verification failed")
		}
	default:
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("ingress: decode hex signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("ingress: signature verification failed")
		}
	}
	return nil
}

type HeaderTokenVerifier struct {
	Header string
	Token  string
}

func (v HeaderTokenVerifier) Verify(_ context.Context, req InboundRequest) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return fmt.Errorf("ingress: verification token is required")
	}
	actual := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if actual == "" {
		return fmt.Errorf("ingress: %s verification header is required", strings.TrimSpace(v.Header))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("ingress: verification token mismatch")
	}
	return nil
}

// DeliveryIDExtractor resolves the dedup key for an inbound request.
type DeliveryIDExtractor func(req InboundRequest) (string, error)

func HeaderDeliveryIDExtractor(headers ...string) DeliveryIDExtractor {
	keys := append([]string(nil), headers...)
	return func(req InboundRequest) (string, error) {
		for _, key := range keys {
			if value := strings.TrimSpace(headerValue(req.Headers, key)); value != "" {
				return value, nil
			}
		}
		return "", fmt.Errorf("ingress: delivery id is required for dedupe")
	}
}

func DefaultDeliveryIDExtractor(req InboundRequest) (string, error) {
	if req.Metadata != nil {
		if value := trimAny(req.Metadata["delivery_id"]); value != "" {
			return value, nil
		}
	}
	if req.Headers != nil {
		if value := headerValue(req.Headers, "x-delivery-id"); value != "" {
			return value, nil
		}
		if value := headerValue(req.Headers, "x-github-delivery"); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("ingress: delivery id is required for dedupe")
}

func trimAny(value any) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
