// Package badge renders the QR code printed on participant badges.
package badge

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/skip2/go-qrcode"
)

type QRGenerator struct {
	size  int
	level qrcode.RecoveryLevel
}

func NewQRGenerator(size int) *QRGenerator {
	if size <= 0 {
		size = 256
	}
	return &QRGenerator{size: size, level: qrcode.Medium}
}

// Payload is the text encoded in a badge: {"user_id":"<id>"}.
func Payload(participantID string) (string, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return "", errors.New("participant id is required")
	}
	data, err := json.Marshal(struct {
		UserID string `json:"user_id"`
	}{participantID})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GenerateBadgeQR returns the PNG badge for participantID.
func (q *QRGenerator) GenerateBadgeQR(participantID string) ([]byte, error) {
	payload, err := Payload(participantID)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(payload, q.level, q.size)
}
