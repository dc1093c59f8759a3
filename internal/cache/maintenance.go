package cache

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PruneOptions limits what stays in the cache. Zero values disable a limit.
type PruneOptions struct {
	OlderThan  time.Duration
	MaxBytes   int64
	MaxEntries int
}

// Prune drops entries older than OlderThan, then the oldest remaining entries
// until the size and count budgets hold. It returns the number of removed entries.
func (c *Cache) Prune(opts PruneOptions) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]*Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sortNewestFirst(entries)

	var cutoff time.Time
	if opts.OlderThan > 0 {
		cutoff = now().Add(-opts.OlderThan)
	}

	kept := make([]*Entry, 0, len(entries))
	var size int64
	removed := 0
	for _, entry := range entries {
		n := entrySize(entry)
		switch {
		case !cutoff.IsZero() && entry.CreatedAt.Before(cutoff),
			opts.MaxEntries > 0 && len(kept) >= opts.MaxEntries,
			opts.MaxBytes > 0 && size+n > opts.MaxBytes:
			delete(c.entries, entry.Key)
			removed++
			continue
		}
		size += n
		kept = append(kept, entry)
	}

	if removed > 0 {
		c.dirty = true
		c.logger.Info("pruned cache entries",
			zap.Int("removed", removed),
			zap.Int("left", len(c.entries)),
			zap.Int64("bytes", size),
		)
	}

	return removed
}

// Clear removes every entry and returns how many were dropped.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := len(c.entries)
	c.entries = make(map[string]*Entry)
	c.dirty = true
	return removed
}

type CompanyCount struct {
	Company string `json:"company"`
	Count   int    `json:"count"`
}

// TopCompanies counts cached analyses per company, most frequent first.
func (c *Cache) TopCompanies(limit int) []CompanyCount {
	c.mu.RLock()
	counts := make(map[string]*CompanyCount)
	for _, entry := range c.entries {
		name := strings.TrimSpace(entry.Origin.Company)
		if name == "" {
			name = "unknown"
		}
		key := strings.ToLower(name)
		if counts[key] == nil {
			counts[key] = &CompanyCount{Company: name}
		}
		counts[key].Count++
	}
	c.mu.RUnlock()

	result := make([]CompanyCount, 0, len(counts))
	for _, count := range counts {
		result = append(result, *count)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Count == result[j].Count {
			return result[i].Company < result[j].Company
		}
		return result[i].Count > result[j].Count
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
