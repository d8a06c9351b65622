// Package extract reads learned dial patterns from the call manager and
// writes them to the raw pattern CSV consumed by the normalize stage.
package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/acme/dialplan-sync/internal/domain"
	"github.com/acme/dialplan-sync/pkg/logger"
)

// SQLRunner is the part of the AXL client the extractor needs.
type SQLRunner interface {
	SQLQuery(ctx context.Context, query string) ([]map[string]string, error)
}

// Extractor pulls learned patterns out of the call manager's tables.
type Extractor struct {
	axl    SQLRunner
	logger *logger.Logger
}

// New creates an extractor on top of an AXL client.
func New(axl SQLRunner, lg *logger.Logger) *Extractor {
	return &Extractor{axl: axl, logger: lg}
}

// LearnedPatterns reads learned patterns joined with their catalog route
// strings. The base selection covers the numeric pattern usages; numbers
// (enterprise and E.164) are included on request.
func (e *Extractor) LearnedPatterns(ctx context.Context, withNumbers bool) ([]domain.RawPattern, error) {
	routeStrings, err := e.routeStringsByCatalogKey(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"select remotecatalogkey_id,pattern,tkpatternusage from remoteroutingpattern where tkpatternusage in %s",
		usageClause(withNumbers))
	rows, err := e.axl.SQLQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("extract: learned patterns: %w", err)
	}

	patterns := make([]domain.RawPattern, 0, len(rows))
	for _, row := range rows {
		key := row["remotecatalogkey_id"]
		routeString, ok := routeStrings[key]
		if !ok {
			e.logger.Warn("extract: pattern references unknown catalog key",
				zap.String("catalog_key", key), zap.String("pattern", row["pattern"]))
			continue
		}
		usage, err := strconv.Atoi(row["tkpatternusage"])
		if err != nil {
			e.logger.Warn("extract: unparsable usage code",
				zap.String("usage", row["tkpatternusage"]), zap.String("pattern", row["pattern"]))
			continue
		}
		patterns = append(patterns, domain.RawPattern{
			Catalog:     key,
			RouteString: routeString,
			Pattern:     row["pattern"],
			Usage:       domain.PatternUsage(usage),
		})
	}
	return patterns, nil
}

// routeStringsByCatalogKey joins remotecatalogkey through
// remoteclusteruricatalog to resolve each catalog key's route string.
func (e *Extractor) routeStringsByCatalogKey(ctx context.Context) (map[string]string, error) {
	catalogRows, err := e.axl.SQLQuery(ctx, "select peerid,routestring from remoteclusteruricatalog")
	if err != nil {
		return nil, fmt.Errorf("extract: catalogs: %w", err)
	}
	routeStringByPeer := make(map[string]string, len(catalogRows))
	for _, row := range catalogRows {
		routeStringByPeer[row["peerid"]] = row["routestring"]
	}

	keyRows, err := e.axl.SQLQuery(ctx,
		"select remotecatalogkey_id,remoteclusteruricatalog_peerid from remotecatalogkey")
	if err != nil {
		return nil, fmt.Errorf("extract: catalog keys: %w", err)
	}
	routeStrings := make(map[string]string, len(keyRows))
	for _, row := range keyRows {
		peer := row["remoteclusteruricatalog_peerid"]
		routeString, ok := routeStringByPeer[peer]
		if !ok {
			e.logger.Warn("extract: catalog key references unknown catalog",
				zap.String("peer_id", peer))
			continue
		}
		routeStrings[row["remotecatalogkey_id"]] = routeString
	}
	return routeStrings, nil
}

func usageClause(withNumbers bool) string {
	usages := []domain.PatternUsage{domain.UsageEnterprisePattern, domain.UsageE164Pattern}
	if withNumbers {
		usages = append(usages, domain.UsageEnterpriseNumber, domain.UsageE164Number)
	}
	parts := make([]string, len(usages))
	for i, u := range usages {
		parts[i] = strconv.Itoa(int(u))
	}
	return "(" + strings.Join(parts, ",") + ")"
}
