package redisx

import (
	"fmt"
	"time"
)

const (
	// idem:order:create:{user_id}:{key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%d:%s"
)

var TTLIdempotency = 24 * time.Hour

func IdemOrderCreateKey(userID int64, key string) string {
	return fmt.Sprintf(KeyIdemOrderCreate, userID, key)
}
