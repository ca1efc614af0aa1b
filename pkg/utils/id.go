package utils

import (
	"github.com/google/uuid"
	"github.com/jxskiss/base62"
)

const (
	PublishPrefix   = "PUB_"
	SubscribePrefix = "SUB_"
)

func NewGuid(prefix string) string {
	id := uuid.New()
	return prefix + base62.EncodeToString(id[:])
}
