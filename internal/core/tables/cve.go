package tables

import (
	"context"

	"github.com/JonMunkholm/nvdsync/internal/core"
	"github.com/JonMunkholm/nvdsync/internal/feed"
)

// CVE table and column names.
const (
	CVETable = "CVE"

	ColCVEID         = "cve_id"
	ColDescription   = "description"
	ColLastModified  = "last_modified"
	ColLastUpdatedAt = "last_updated_at"
)

// CVE builds the CVE table. Each stream performs one fresh fetch and emits
// the records in feed order.
func CVE(fetcher Fetcher, dates core.DateFormat) *core.Table {
	columns := []core.Column{
		{
			Name:        ColCVEID,
			Type:        core.TypeText,
			Description: "CVE identifier, e.g. CVE-2024-0001",
			PrimaryKey:  true,
			Resolver:    core.Extract(func(r feed.Record) string { return r.CVEID }),
		},
		{
			Name:        ColDescription,
			Type:        core.TypeText,
			Description: "English description of the vulnerability",
			Resolver:    core.Extract(func(r feed.Record) string { return r.Description }),
		},
		{
			Name:        ColLastModified,
			Type:        core.TypeText,
			Description: "When NVD last modified the record",
			Resolver:    core.ExtractDate(func(r feed.Record) string { return r.LastModified }, dates),
		},
		{
			Name:        ColLastUpdatedAt,
			Type:        core.TypeText,
			Description: "Timestamp of the feed response the record came from",
			Resolver:    core.ExtractDate(func(r feed.Record) string { return r.LastUpdatedAt }, dates),
		},
	}

	return core.NewTable(CVETable, "Vulnerabilities from the NVD CVE API", columns, resolveCVEs(fetcher))
}

func resolveCVEs(fetcher Fetcher) core.TableResolver {
	return func(ctx context.Context, emit func(any) error) error {
		recs, err := fetcher.Fetch(ctx)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if err := emit(r); err != nil {
				return err
			}
		}
		return nil
	}
}
