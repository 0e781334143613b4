// Package commands contains the request-scoped operations behind the HTTP
// surface: one query or command type per API operation, wired against the
// storage backends, the tiered cache, and the continuation token codec.
package commands

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/merchantd/merchantd/pkg/cache"
)

var tracer = otel.Tracer("merchantd/pkg/server/commands")

// Cache tags group entries for invalidation. Id lookups and unfiltered list
// pages carry the entity tag; filtered list pages carry only their grouping
// tag, so invalidating one grouping leaves the others cached.
const (
	productTag = "product"
	orderTag   = "order"
)

func categoryTag(category string) string {
	return "category:" + category
}

func statusTag(status string) string {
	return "status:" + status
}

// invalidateTags purges the entity tag plus the tag of each non-empty group.
// A nil cache is a no-op so commands run uncached without branching.
func invalidateTags(ctx context.Context, c *cache.TieredCache, entityTag string, groupTag func(string) string, groups ...string) {
	if c == nil {
		return
	}

	c.InvalidateByTag(ctx, entityTag)

	seen := make(map[string]struct{}, len(groups))
	for _, group := range groups {
		if group == "" {
			continue
		}
		if _, ok := seen[group]; ok {
			continue
		}
		seen[group] = struct{}{}
		c.InvalidateByTag(ctx, groupTag(group))
	}
}
