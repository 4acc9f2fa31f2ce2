package scan

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

// SelectOrder returns a copy of categories ordered by the shuffle policy.
// The input slice is never mutated. With shuffling disabled the configured
// order passes through unchanged.
//
// Ordering matters because the backoff strategy truncates from the tail:
// whatever sits at the front of the list is what survives narrowing. The
// daily seed gives every city a stable order for one UTC day, so reruns
// within a day dedupe against identical queries while day-to-day runs
// rotate which categories get sampled first.
func SelectOrder(categories []string, p model.ShuffleParams, city string, now time.Time, logger *log.Logger) []string {
	out := make([]string, len(categories))
	copy(out, categories)
	if len(out) == 0 || !p.Enabled {
		return out
	}

	seed := seedFor(p, city, now)
	rng := mrand.New(mrand.NewSource(int64(seed)))
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})

	logger.Debug("shuffled category order", "seed_mode", p.SeedMode, "seed", seed, "order", out)
	return out
}

// seedFor derives the shuffle seed. Daily mode hashes "{city}|{YYYY-MM-DD}"
// with MD5 and reads the first 8 bytes big-endian; the hash is a seed
// derivation, not a security boundary.
func seedFor(p model.ShuffleParams, city string, now time.Time) uint64 {
	switch p.SeedMode {
	case "fixed":
		return uint64(p.FixedSeed)
	case "random":
		var b [8]byte
		rand.Read(b[:])
		return binary.BigEndian.Uint64(b[:])
	default: // daily
		key := fmt.Sprintf("%s|%s", city, now.UTC().Format("2006-01-02"))
		sum := md5.Sum([]byte(key))
		return binary.BigEndian.Uint64(sum[:8])
	}
}
