package models

import (
	"time"

	"github.com/lib/pq"
)

type Chat struct {
	ID                   string         `json:"id" gorm:"primaryKey;type:varchar(160)"`
	Participants         pq.StringArray `json:"participants" gorm:"type:text[];not null"`
	LastMessage          string         `json:"lastMessage"`
	LastMessageTimestamp *time.Time     `json:"lastMessageTimestamp" gorm:"index"`
	LastMessageSenderID  string         `json:"lastMessageSenderId"`
	Members              []ChatMember   `json:"-" gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
	UnreadCount          map[string]int `json:"unreadCount" gorm:"-"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

// ChatMember holds one participant's unread counter.
type ChatMember struct {
	ChatID      string `json:"chatId" gorm:"primaryKey;type:varchar(160)"`
	UserID      string `json:"userId" gorm:"primaryKey;type:varchar(64);index"`
	UnreadCount int    `json:"unreadCount" gorm:"not null;default:0"`
}

// FillUnread copies the member counters into UnreadCount.
func (c *Chat) FillUnread() {
	c.UnreadCount = make(map[string]int, len(c.Participants))
	for _, id := range c.Participants {
		c.UnreadCount[id] = 0
	}
	for _, m := range c.Members {
		c.UnreadCount[m.UserID] = m.UnreadCount
	}
}

// OtherParticipant returns the participant that is not userID.
func (c *Chat) OtherParticipant(userID string) (string, bool) {
	for _, id := range c.Participants {
		if id != userID {
			return id, true
		}
	}
	return "", false
}

func (c *Chat) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

type Message struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	ChatID     string    `json:"chatId" gorm:"not null;type:varchar(160);index:idx_messages_chat_ts,priority:1"`
	SenderID   string    `json:"senderId" gorm:"not null;type:varchar(64)"`
	ReceiverID string    `json:"receiverId" gorm:"not null;type:varchar(64);index"`
	Content    string    `json:"content" gorm:"not null"`
	Timestamp  time.Time `json:"timestamp" gorm:"not null;index:idx_messages_chat_ts,priority:2"`
	IsRead     bool      `json:"isRead" gorm:"not null;default:false"`
}

// ChatUser is the chat-list row shown for one chat from the reader's side.
type ChatUser struct {
	ChatID          string     `json:"chatId"`
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	ProfileImageURL string     `json:"profileImageUrl"`
	LastMessage     string     `json:"lastMessage"`
	LastMessageTime *time.Time `json:"lastMessageTime"`
	UnreadCount     int        `json:"unreadCount"`
}
