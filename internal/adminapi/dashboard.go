package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2beens/cutroom-admin/internal/session"
	"github.com/2beens/cutroom-admin/internal/telemetry/tracing"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

const (
	dashboardStatsEndpoint = "/admin/dashboard/stats"
	dashboardStatsCacheKey = "dashboard::stats"

	DefaultDashboardCacheTTL = 30 * time.Second
)

type DashboardStats struct {
	TotalUsers      int     `json:"totalUsers"`
	TotalEditors    int     `json:"totalEditors"`
	TotalClients    int     `json:"totalClients"`
	ActiveOrders    int     `json:"activeOrders"`
	CompletedOrders int     `json:"completedOrders"`
	PendingKYC      int     `json:"pendingKYC"`
	Revenue         float64 `json:"revenue"`
}

type Dashboard struct {
	client   *session.Client
	cache    *freecache.Cache
	cacheTTL time.Duration
}

// NewDashboard keeps fetched stats for cacheTTL. A non-positive ttl disables caching.
func NewDashboard(client *session.Client, cacheTTL time.Duration) *Dashboard {
	megabyte := 1024 * 1024
	return &Dashboard{
		client:   client,
		cache:    freecache.NewCache(megabyte),
		cacheTTL: cacheTTL,
	}
}

func (d *Dashboard) Stats(ctx context.Context) (stats *DashboardStats, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "adminapi.dashboard.stats")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	stats = &DashboardStats{}
	if d.cacheTTL > 0 {
		if statsBytes, err := d.cache.Get([]byte(dashboardStatsCacheKey)); err == nil {
			if err := json.Unmarshal(statsBytes, stats); err == nil {
				log.Tracef("dashboard stats served from cache")
				return stats, nil
			} else {
				log.Errorf("unmarshal cached dashboard stats: %s", err)
			}
		}
	}

	var resp itemResponse[*DashboardStats]
	if err := d.client.GetJSON(ctx, dashboardStatsEndpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("get dashboard stats: %w", err)
	}
	if !resp.Success || resp.Data == nil {
		return nil, unsuccessful(resp.Message)
	}
	stats = resp.Data

	if d.cacheTTL > 0 {
		statsBytes, err := json.Marshal(stats)
		if err == nil {
			// freecache treats 0 as never expire
			expireSeconds := max(int(d.cacheTTL.Seconds()), 1)
			err = d.cache.Set([]byte(dashboardStatsCacheKey), statsBytes, expireSeconds)
		}
		if err != nil {
			log.Errorf("cache dashboard stats: %s", err)
		}
	}

	return stats, nil
}

// Invalidate drops cached stats, e.g. after an action that changes the counts.
func (d *Dashboard) Invalidate() {
	d.cache.Del([]byte(dashboardStatsCacheKey))
}
