// Package tasks: validate.go проверяет присланные ссылки и email.
package tasks

import (
	"net/mail"
	"net/url"
	"strings"

	"bitbee.app/rewards-core/internal/common"
)

// normalizeSubmission проверяет данные заявки под режим задания.
// Возвращает очищенные payload и платформу.
func normalizeSubmission(def Definition, sub Submission) (Submission, error) {
	payload := strings.TrimSpace(sub.Payload)
	if payload == "" {
		return Submission{}, common.ErrEmptyPayload
	}

	switch def.Mode {
	case ModeEmailCapture:
		addr, err := mail.ParseAddress(payload)
		if err != nil || addr.Address != payload {
			return Submission{}, common.Reject(common.ErrInvalidPayload, "expected", "email")
		}
	case ModeURLReview:
		u, err := url.Parse(payload)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Submission{}, common.Reject(common.ErrInvalidPayload, "expected", "url")
		}
	}

	platform := strings.ToLower(strings.TrimSpace(sub.Platform))
	if len(def.Platforms) > 0 {
		if platform == "" && len(def.Platforms) == 1 {
			platform = def.Platforms[0]
		}
		if !def.AllowsPlatform(platform) {
			return Submission{}, common.Reject(common.ErrInvalidPlatform,
				"platform", platform, "allowed", strings.Join(def.Platforms, ","))
		}
	} else {
		platform = ""
	}
	return Submission{Payload: payload, Platform: platform}, nil
}
