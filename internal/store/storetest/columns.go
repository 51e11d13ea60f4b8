package storetest

import (
	"fmt"
	"time"

	"brewnet-server/internal/models"
)

func applyColumn(p *models.Profile, col string, v interface{}) error {
	var ok bool
	switch col {
	case "username":
		p.Username, ok = v.(string)
	case "date_of_birth":
		p.DateOfBirth, ok = v.(string)
	case "gender":
		p.Gender, ok = v.(string)
	case "gender_subcategory":
		p.GenderSubcategory, ok = v.(string)
	case "bio":
		var s string
		if s, ok = v.(string); ok {
			p.Bio = &s
		}
	case "latitude":
		var f float64
		if f, ok = v.(float64); ok {
			p.Latitude = &f
		}
	case "longitude":
		var f float64
		if f, ok = v.(float64); ok {
			p.Longitude = &f
		}
	case "location_name":
		p.LocationName, ok = v.(string)
	case "location_updated_at":
		var t time.Time
		if t, ok = v.(time.Time); ok {
			p.LocationUpdatedAt = &t
		}
	case "purpose":
		p.Purpose, ok = v.(string)
	case "want":
		p.Want, ok = v.(string)
	case "interests":
		p.Interests, ok = v.(models.Flags)
	case "qualities":
		p.Qualities, ok = v.(models.Flags)
	case "profile_image_url":
		p.ProfileImageURL, ok = v.(string)
	case "is_online":
		p.IsOnline, ok = v.(bool)
	case "last_active":
		var t time.Time
		if t, ok = v.(time.Time); ok {
			p.LastActive = &t
		}
	case "device_token":
		p.DeviceToken, ok = v.(string)
	case "firebase_uid":
		var uid string
		if uid, ok = v.(string); ok {
			p.FirebaseUID = &uid
		}
	case "password_hash":
		p.PasswordHash, ok = v.(string)
	default:
		return fmt.Errorf("%w: %s", errUnknownColumn, col)
	}
	if !ok {
		return fmt.Errorf("storetest: column %s got %T", col, v)
	}
	return nil
}
