package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptDraftsKey returns the hash key holding autosaved answer drafts of one attempt.
// fingerprint identifies the access token without storing it.
func (r *CacheKeyStruct) AttemptDraftsKey(fingerprint, testID string) string {
	return fmt.Sprintf("attempt:%s:test:%s:drafts", fingerprint, testID)
}

var CacheKey = NewCacheKeyStruct()
