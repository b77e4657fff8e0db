package models

import "gorm.io/gorm"

// Setting is one persisted key/value pair: cached entry URL, access token, refresh token.
type Setting struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex;size:128"`
	Value string
}
