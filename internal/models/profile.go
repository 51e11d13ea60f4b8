package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	AuthProviderEmail  = "email"
	AuthProviderPhone  = "phone"
	AuthProviderGoogle = "google"
)

// Connection types a user can be seeking.
const (
	WantProfessional = "professional"
	WantSocial       = "social"
	WantBoth         = "both"
)

// Flags is a string→bool preference map (interests, qualities).
type Flags = datatypes.JSONType[map[string]bool]

func NewFlags(m map[string]bool) Flags {
	if m == nil {
		m = map[string]bool{}
	}
	return datatypes.NewJSONType(m)
}

type Profile struct {
	ID                string     `json:"userId" gorm:"primaryKey;type:varchar(64)"`
	Username          string     `json:"username"`
	Email             *string    `json:"email,omitempty" gorm:"uniqueIndex"`
	PhoneNumber       *string    `json:"phoneNumber,omitempty" gorm:"uniqueIndex"`
	PasswordHash      string     `json:"-"`
	AuthProvider      string     `json:"authProvider" gorm:"not null;default:email"`
	FirebaseUID       *string    `json:"-" gorm:"uniqueIndex"`
	ProfileImageURL   string     `json:"profileImageUrl"`
	DateOfBirth       string     `json:"dateOfBirth"` // YYYY-MM-DD
	Gender            string     `json:"gender"`
	GenderSubcategory string     `json:"genderSubcategory,omitempty"`
	Bio               *string    `json:"bio"`
	Latitude          *float64   `json:"latitude"`
	Longitude         *float64   `json:"longitude"`
	LocationName      string     `json:"locationName"`
	LocationUpdatedAt *time.Time `json:"locationUpdatedAt,omitempty"`
	Purpose           string     `json:"purpose"`
	Want              string     `json:"want"`
	Interests         Flags      `json:"interests"`
	Qualities         Flags      `json:"qualities"`
	IsOnline          bool       `json:"isOnline" gorm:"default:false"`
	LastActive        *time.Time `json:"lastActive,omitempty"`
	DeviceToken       string     `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// IsComplete mirrors the onboarding gate: basics filled in and a bio present.
func (p *Profile) IsComplete() bool {
	return strings.TrimSpace(p.Username) != "" &&
		strings.TrimSpace(p.DateOfBirth) != "" &&
		strings.TrimSpace(p.Gender) != "" &&
		p.Bio != nil
}

// HasLocation is false for missing or zeroed coordinates.
func (p *Profile) HasLocation() bool {
	if p.Latitude == nil || p.Longitude == nil {
		return false
	}
	return !(*p.Latitude == 0 && *p.Longitude == 0)
}

const DateOfBirthLayout = "2006-01-02"

// Age is the age in whole years on now; ok is false when the date of birth
// is missing or malformed.
func (p *Profile) Age(now time.Time) (age int, ok bool) {
	dob, err := time.Parse(DateOfBirthLayout, p.DateOfBirth)
	if err != nil {
		return 0, false
	}
	return AgeOn(dob, now), true
}

func AgeOn(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// Selected returns the keys set to true, in no particular order.
func Selected(f Flags) []string {
	var keys []string
	for k, v := range f.Data() {
		if v {
			keys = append(keys, k)
		}
	}
	return keys
}
