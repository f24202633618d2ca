package poi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

// DefaultOverpassURL is the public Overpass API interpreter endpoint.
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

var _ Service = (*OverpassClient)(nil)

// Service is the POI discovery contract. A nil error with an empty slice means the query
// succeeded with no results; failures and timeouts return an error wrapping
// models.ErrPOIServiceUnavailable.
type Service interface {
	Nearby(ctx context.Context, center models.Location, radiusMeters float64) ([]models.POI, error)
}

// OverpassClient queries OpenStreetMap nodes through the Overpass API.
type OverpassClient struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	memo       *cache.Cache
	logger     *zap.Logger
}

// NewOverpassClient creates a POI client. memoTTL of zero disables memoization of identical
// queries.
func NewOverpassClient(endpoint string, timeout, memoTTL time.Duration, logger *zap.Logger) *OverpassClient {
	if endpoint == "" {
		endpoint = DefaultOverpassURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &OverpassClient{
		endpoint: endpoint,
		timeout:  timeout,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
	if memoTTL > 0 {
		c.memo = cache.New(memoTTL, 2*memoTTL)
	}
	return c
}

type overpassResponse struct {
	Elements []struct {
		Type string            `json:"type"`
		ID   int64             `json:"id"`
		Lat  float64           `json:"lat"`
		Lon  float64           `json:"lon"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// tagFilters are the tag combinations the classifier knows about. Anything else would classify
// as street, so it is not worth the response size.
var tagFilters = []string{
	`["amenity"~"^(cafe|restaurant|fountain|library|marketplace|bench)$"]`,
	`["leisure"~"^(park|garden|playground)$"]`,
	`["tourism"~"^(artwork|viewpoint)$"]`,
	`["historic"~"^(monument|memorial|statue)$"]`,
	`["man_made"="bridge"]`,
	`["bridge"]["bridge"!="no"]`,
	`["shop"]`,
	`["artwork_type"="statue"]`,
	`["highway"="bus_stop"]`,
	`["railway"="tram_stop"]`,
}

// BuildQuery renders the category-scoped Overpass QL query for a center and radius.
func BuildQuery(center models.Location, radiusMeters float64, timeout time.Duration) string {
	around := fmt.Sprintf("(around:%.0f,%.6f,%.6f)", radiusMeters, center.Latitude, center.Longitude)
	seconds := int(timeout.Seconds())
	if seconds <= 0 {
		seconds = 25
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];(", seconds)
	for _, f := range tagFilters {
		b.WriteString("node")
		b.WriteString(f)
		b.WriteString(around)
		b.WriteString(";")
	}
	b.WriteString(");out body;")
	return b.String()
}

func memoKey(center models.Location, radiusMeters float64) string {
	return fmt.Sprintf("overpass:%.4f:%.4f:%.0f", center.Latitude, center.Longitude, radiusMeters)
}

// Nearby returns the POIs within radiusMeters of center.
func (c *OverpassClient) Nearby(ctx context.Context, center models.Location, radiusMeters float64) ([]models.POI, error) {
	ctx, span := otel.Tracer("POIService").Start(ctx, "Nearby", trace.WithAttributes(
		attribute.Float64("location.lat", center.Latitude),
		attribute.Float64("location.lon", center.Longitude),
		attribute.Float64("radius.meters", radiusMeters),
	))
	defer span.End()

	l := c.logger.With(zap.String("method", "Nearby"))

	key := memoKey(center, radiusMeters)
	if c.memo != nil {
		if cached, found := c.memo.Get(key); found {
			if pois, ok := cached.([]models.POI); ok {
				l.Debug("Serving POIs from memo", zap.String("key", key), zap.Int("count", len(pois)))
				span.SetAttributes(attribute.Bool("memo.hit", true))
				return append([]models.POI(nil), pois...), nil
			}
		}
	}

	form := url.Values{}
	form.Set("data", BuildQuery(center, radiusMeters, c.timeout))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: failed to build request: %v", models.ErrPOIServiceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		l.Warn("POI query failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		span.RecordError(err)
		span.SetStatus(codes.Error, "POI query failed")
		return nil, fmt.Errorf("%w: %v", models.ErrPOIServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		l.Warn("POI query returned non-2xx",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		span.SetStatus(codes.Error, "non-2xx response")
		return nil, fmt.Errorf("%w: status %d", models.ErrPOIServiceUnavailable, resp.StatusCode)
	}

	var payload overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		l.Warn("Failed to decode POI response", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed response")
		return nil, fmt.Errorf("%w: malformed response: %v", models.ErrPOIServiceUnavailable, err)
	}

	pois := make([]models.POI, 0, len(payload.Elements))
	for _, el := range payload.Elements {
		if el.Type != "" && el.Type != "node" {
			continue
		}
		loc := models.Location{Latitude: el.Lat, Longitude: el.Lon}
		if !loc.Valid() {
			continue
		}
		pois = append(pois, models.POI{
			ID:       "node/" + strconv.FormatInt(el.ID, 10),
			Location: loc,
			Tags:     el.Tags,
		})
	}

	l.Info("POI query completed",
		zap.Int("count", len(pois)),
		zap.Duration("elapsed", time.Since(start)))
	span.SetAttributes(attribute.Int("pois.count", len(pois)))
	span.SetStatus(codes.Ok, "POIs fetched")

	if c.memo != nil {
		c.memo.Set(key, pois, cache.DefaultExpiration)
	}
	return append([]models.POI(nil), pois...), nil
}
