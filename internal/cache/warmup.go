package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// WarmUp prefetches db info, a lightweight schema, relationships, and
// per-table info for pool name; tables with fewer than 10,000 rows also get
// a shallow profile. Failures are logged, never fatal: a cold cache is a
// valid, if slower, starting state.
func (c *SchemaCache) WarmUp(ctx context.Context, poolName string, analyzer dbadapter.SchemaAnalyzer, profiler dbadapter.DataProfiler) {
	log := c.logger.With(zap.String("pool", poolName))

	if info, err := analyzer.GetDatabaseInfo(ctx); err != nil {
		log.Warn("schema cache warm-up: database info failed", zap.Error(err))
	} else {
		c.Set(fmt.Sprintf("dbinfo:%s", poolName), *info)
	}

	schema, err := analyzer.GetSchema(ctx)
	if err != nil {
		log.Warn("schema cache warm-up: schema failed", zap.Error(err))
		return
	}
	c.Set(fmt.Sprintf("schema:%s", poolName), *schema)

	if rel, err := analyzer.GetRelationships(ctx); err != nil {
		log.Warn("schema cache warm-up: relationships failed", zap.Error(err))
	} else {
		c.Set(fmt.Sprintf("relationships:%s", poolName), rel)
	}

	for _, t := range schema.Tables {
		c.Set(fmt.Sprintf("table:%s:%s", poolName, t.Name), t)

		if t.RowCount != nil && *t.RowCount < 10000 && profiler != nil {
			profile, err := profiler.ProfileTable(ctx, t.Name, 0)
			if err != nil {
				log.Warn("schema cache warm-up: profile failed", zap.String("table", t.Name), zap.Error(err))
				continue
			}
			c.Set(fmt.Sprintf("profile:%s:%s", poolName, t.Name), *profile)
		}
	}
}
