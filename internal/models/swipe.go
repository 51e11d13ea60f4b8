package models

import "time"

const (
	SwipeLike = "like"
	SwipePass = "pass"
)

type Swipe struct {
	SwiperID  string    `json:"swiperId" gorm:"primaryKey;type:varchar(64)"`
	TargetID  string    `json:"targetId" gorm:"primaryKey;type:varchar(64);index"`
	Action    string    `json:"action" gorm:"not null"` // like, pass
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
