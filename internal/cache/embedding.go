package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cloo-solutions/strom/internal/logger"
)

const keyPrefix = "strom:emb:"

// Encoder is the wrapped embedding source.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// CachedEncoder decorates an Encoder with a read-through cache. Cache
// failures are logged and never fail an Encode call.
type CachedEncoder struct {
	next  Encoder
	store Store
	model string
	ttl   time.Duration
	log   *logger.Logger
}

func NewCachedEncoder(next Encoder, store Store, model string, ttl time.Duration, log *logger.Logger) *CachedEncoder {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedEncoder{
		next:  next,
		store: store,
		model: model,
		ttl:   ttl,
		log:   log.With("service", "EmbeddingCache"),
	}
}

func (c *CachedEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	key := Key(c.model, text)

	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		if vec, decErr := decodeVector(raw); decErr == nil {
			return vec, nil
		}
		c.log.Warn("discarding corrupt cached embedding", "key", key)
	case !errors.Is(err, ErrMiss):
		c.log.Warn("embedding cache read failed", "error", err)
	}

	vec, err := c.next.Encode(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, key, encodeVector(vec), c.ttl); err != nil {
		c.log.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

// Key derives the cache key for a model and text.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid cached vector length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
