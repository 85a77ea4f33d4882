package filters

import (
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// ReviewerFilter пропускает только личные сообщения ревьюеров из REVIEWER_IDS.
type ReviewerFilter struct {
	allowed map[int64]struct{}
}

func NewReviewerFilter(reviewerIDs []int64) *ReviewerFilter {
	allowed := make(map[int64]struct{}, len(reviewerIDs))
	for _, id := range reviewerIDs {
		allowed[id] = struct{}{}
	}
	return &ReviewerFilter{allowed: allowed}
}

// IsReviewer: есть ли пользователь в списке ревьюеров.
func (f *ReviewerFilter) IsReviewer(userID int64) bool {
	_, ok := f.allowed[userID]
	return ok
}

// CheckAccess решает, обрабатывать ли сообщение.
func (f *ReviewerFilter) CheckAccess(message *telego.Message) bool {
	if message == nil {
		log.WithField("component", "ReviewerFilter").Warn("nil message")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ReviewerFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Warn("nil message.From (service/channel message?)")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "ReviewerFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	if message.Chat.Type != telego.ChatTypePrivate {
		logger.Debug("deny: not a private chat")
		return false
	}
	if !f.IsReviewer(message.From.ID) {
		logger.Info("deny: not a reviewer")
		return false
	}
	return true
}
