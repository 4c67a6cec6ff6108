package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/hydradns/internal/adb"
	"github.com/jroosing/hydradns/internal/cache"
)

func registerRoutes(engine *gin.Engine, c *cache.Cache, a *adb.ADB) {
	engine.GET("/healthz", handleHealthz)
	engine.GET("/dump", handleDump(c))
	engine.GET("/stats", handleStats(c))
	engine.GET("/adb/stats", handleADBStats(a))
}

func handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleDump streams the operator-facing text dump of the answer cache
// (spec §6 Persistent state / dump()), never meant to be parsed back.
func handleDump(ch *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; charset=utf-8")
		now := time.Now().Unix()
		if err := ch.Dump(c.Writer, now); err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
		}
	}
}

// handleStats returns the cache's counters as JSON: global hit/miss
// totals plus the (type, kind) x bucket cross from qpcache.c's
// dns_rdatasetstats categories.
func handleStats(ch *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := ch.Stats()
		snap := st.Snapshot()

		byType := make([]gin.H, 0, len(snap))
		for k, v := range snap {
			byType = append(byType, gin.H{
				"type":   k.Type,
				"kind":   k.Kind,
				"bucket": k.Bucket,
				"count":  v,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"hits":          st.Hits.Load(),
			"misses":        st.Misses.Load(),
			"covering_nsec": st.CoveringNSEC.Load(),
			"delete_ttl":    st.DeleteTTL.Load(),
			"delete_lru":    st.DeleteLRU.Load(),
			"by_type":       byType,
		})
	}
}

// handleADBStats returns the address database's table sizes.
func handleADBStats(a *adb.ADB) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := a.Stats()
		c.JSON(http.StatusOK, gin.H{"names": st.Names, "entries": st.Entries})
	}
}
