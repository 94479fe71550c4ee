package v1

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/personakit/personakit/store"
)

// quotaSnapshot is the caller-visible view of a quota record, used for
// rate-limit headers and the /quota endpoint.
type quotaSnapshot struct {
	Tier      string `json:"tier"`
	Limit     int32  `json:"limit"`
	Used      int32  `json:"used"`
	Remaining int32  `json:"remaining"`
	ResetAt   string `json:"resetAt"`
}

func newQuotaSnapshot(record *store.QuotaRecord) *quotaSnapshot {
	return &quotaSnapshot{
		Tier:      record.Tier,
		Limit:     record.DailyLimit,
		Used:      record.UsedCount,
		Remaining: record.Remaining(),
		ResetAt:   time.Unix(record.WindowResetAt, 0).UTC().Format(time.RFC3339),
	}
}

// checkQuota reads the caller's quota record without mutating it.
// The returned snapshot reflects the state before any charge.
func (s *APIV1Service) checkQuota(ctx context.Context, userID, tier string) (*store.QuotaRecord, error) {
	return s.Store.GetQuotaRecord(ctx, userID, tier)
}

// setRateLimitHeaders attaches quota metadata to the response. Sent on
// both accepted and quota-rejected requests.
func setRateLimitHeaders(header http.Header, snap *quotaSnapshot) {
	header.Set("X-RateLimit-Limit", fmt.Sprintf("%d", snap.Limit))
	header.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", snap.Remaining))
	header.Set("X-RateLimit-Reset", snap.ResetAt)
}
