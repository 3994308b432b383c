// Package cache answers "does this student own this course" for the course
// and progress endpoints, optionally through redis.
package cache

import (
	"context"
	"fmt"
	"time"

	"learnedge/db"
	"learnedge/logger"

	goredis "github.com/redis/go-redis/v9"
)

// Entitlements reports course ownership.
type Entitlements interface {
	Owns(ctx context.Context, studentID, courseID string) (bool, error)
	// Forget drops anything cached for the student. It is called after
	// every successful capture.
	Forget(ctx context.Context, studentID string) error
}

// direct reads the store on every call.
type direct struct {
	store db.Store
}

func NewDirect(store db.Store) Entitlements {
	return &direct{store: store}
}

func (d *direct) Owns(ctx context.Context, studentID, courseID string) (bool, error) {
	record, err := d.store.GetStudentCourses(ctx, studentID)
	if err != nil {
		return false, err
	}
	return record.Owns(courseID), nil
}

func (d *direct) Forget(context.Context, string) error { return nil }

// redisEntitlements keeps one hash per student with a "1" field for every
// course known to be owned. Only ownership is cached: entitlements are never
// revoked, while a cached "not owned" could outlive the purchase that ends it.
type redisEntitlements struct {
	rdb    *goredis.Client
	direct *direct
	ttl    time.Duration
	log    *logger.Logger
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewRedis wraps store with a redis read-through cache. Redis failures are
// logged and answered from the store.
func NewRedis(rdb *goredis.Client, store db.Store, ttl time.Duration, log *logger.Logger) Entitlements {
	return &redisEntitlements{
		rdb:    rdb,
		direct: &direct{store: store},
		ttl:    ttl,
		log:    log.With("component", "entitlement_cache"),
	}
}

func entitlementKey(studentID string) string {
	return "entitlements:" + studentID
}

func (r *redisEntitlements) Owns(ctx context.Context, studentID, courseID string) (bool, error) {
	key := entitlementKey(studentID)
	cached, err := r.rdb.HGet(ctx, key, courseID).Result()
	switch {
	case err == nil && cached == "1":
		return true, nil
	case err != nil && err != goredis.Nil:
		r.log.Warn("entitlement cache read failed", "student_id", studentID, "error", err)
		return r.direct.Owns(ctx, studentID, courseID)
	}

	owns, err := r.direct.Owns(ctx, studentID, courseID)
	if err != nil || !owns {
		return owns, err
	}
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, courseID, "1")
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn("entitlement cache write failed", "student_id", studentID, "error", err)
	}
	return owns, nil
}

func (r *redisEntitlements) Forget(ctx context.Context, studentID string) error {
	if err := r.rdb.Del(ctx, entitlementKey(studentID)).Err(); err != nil {
		return fmt.Errorf("clearing entitlement cache: %w", err)
	}
	return nil
}
