package compliance

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/hoistscout/hoistscout-core/internal/models"
)

func (g *Gate) loadCached(ctx context.Context, domain string) (*models.ComplianceVerdict, bool) {
	if g.redis == nil {
		return nil, false
	}
	data, err := g.redis.Get(ctx, cacheKey(domain)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			g.logf("compliance cache read failed for %s: %v", domain, err)
		}
		return nil, false
	}
	var verdict models.ComplianceVerdict
	if err := json.Unmarshal(data, &verdict); err != nil {
		return nil, false
	}
	return &verdict, true
}

func (g *Gate) saveCached(ctx context.Context, verdict *models.ComplianceVerdict) {
	if g.redis == nil {
		return
	}
	data, err := json.Marshal(verdict)
	if err != nil {
		return
	}
	if err := g.redis.Set(ctx, cacheKey(verdict.Domain), data, models.VerdictTTL).Err(); err != nil {
		g.logf("compliance cache write failed for %s: %v", verdict.Domain, err)
	}
}
