package config

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

// ConnectRedisWithRetry connects the optional Redis client used for
// best-effort workflow locks. Redis is never a correctness dependency:
// when REDIS_ADDRESS is unset or Redis stays unreachable, the service
// runs without it and callers must tolerate a nil lock client.
func ConnectRedisWithRetry() {
	address := strings.TrimSpace(os.Getenv("REDIS_ADDRESS"))
	if address == "" {
		log.Printf("REDIS_ADDRESS not set; running without redis locks")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr: address,
	})

	const maxAttempts = 5
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err == nil {
			rdb = client
			locker = redislock.New(client)
			log.Printf("connected to redis (attempt=%d)", attempt)
			return
		}
		log.Printf("failed to connect redis (attempt=%d): %v", attempt, err)
		time.Sleep(time.Second * time.Duration(attempt))
	}
	log.Printf("redis unreachable after %d attempts; running without redis locks", maxAttempts)
}

func CloseRedis() {
	if rdb != nil {
		_ = rdb.Close()
	}
}
