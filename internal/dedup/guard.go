// Package dedup recognizes retransmitted device messages. Radio links are
// lossy: a device resends after a missed acknowledgment, and both copies
// must collapse onto one effective check-in.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/store"
)

const keyPrefix = "loracp:dedup:"

// Guard admits a message fingerprint at most once per retention window.
type Guard struct {
	kv     store.KV
	window time.Duration
	logger *zap.Logger
}

func NewGuard(kv store.KV, window time.Duration, logger *zap.Logger) *Guard {
	if window < time.Second {
		window = time.Second
	}
	return &Guard{kv: kv, window: window, logger: logger}
}

// Window returns the retention window.
func (g *Guard) Window() time.Duration {
	return g.window
}

// DeviceFingerprint derives the fingerprint for a device uplink from its
// stable fields plus a coarse time bucket, so the same sighting reported
// again much later counts as new.
func (g *Guard) DeviceFingerprint(competitionID int64, devNum int, uid string, at time.Time) string {
	return fingerprint(fmt.Sprintf("%d|%d|%s|%d", competitionID, devNum, uid, g.bucket(at)))
}

// ManualFingerprint derives the fingerprint for a judge-entered check-in,
// keyed on the action itself so repeated form submissions collapse.
func (g *Guard) ManualFingerprint(competitionID, teamID, checkpointID int64, at time.Time) string {
	return fingerprint(fmt.Sprintf("%d|%d|%d|manual|%d", competitionID, teamID, checkpointID, g.bucket(at)))
}

// Admit reports whether the fingerprint is new within the window. The
// check is a single conditional insert, so two near-simultaneous
// retransmissions cannot both pass. A store outage admits the message
// (logged): the check-in table's uniqueness constraint still prevents a
// second effective check-in, and field ingestion must stay available.
func (g *Guard) Admit(ctx context.Context, fingerprint string) bool {
	first, err := g.kv.SetNX(ctx, keyPrefix+fingerprint, "1", g.window)
	if err != nil {
		g.logger.Warn("dedup store unavailable, admitting message",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
		return true
	}
	return first
}

func (g *Guard) bucket(at time.Time) int64 {
	return at.Unix() / int64(g.window/time.Second)
}

func fingerprint(base string) string {
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])[:32]
}
