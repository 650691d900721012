package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cwysong85/whenr-database/internal/geoindex"
	"github.com/cwysong85/whenr-database/internal/indexer"
	"github.com/cwysong85/whenr-database/internal/searcher"
	"github.com/cwysong85/whenr-database/internal/storage"
	"github.com/cwysong85/whenr-database/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound           = -32001 // Referenced entity does not exist
	ErrorCodeIndexingInProgress = -32002 // Another reindex is already running
	ErrorCodeNotIndexed         = -32003 // A source row is missing its derived entry
	ErrorCodeInvalidCoordinate  = -32004 // Latitude or longitude out of range
	ErrorCodeInvalidSort        = -32005 // Sort not allowed for the given filters
	ErrorCodeStoreUnavailable   = -32006 // Database cannot be reached
)

var validate = validator.New()

// searchArgs holds the decoded search_events arguments
type searchArgs struct {
	Latitude    *float64
	Longitude   *float64
	RadiusMiles *float64 `validate:"omitempty,gt=0"`
	Text        string   `validate:"max=500"`
	From        *time.Time
	To          *time.Time
	MinPrice    *float64 `validate:"omitempty,gte=0"`
	MaxPrice    *float64 `validate:"omitempty,gte=0"`
	Currency    string   `validate:"omitempty,iso4217"`
	Sort        string
	Offset      int `validate:"min=0"`
	Limit       int `validate:"min=0"`
}

// handleUpsertVenue handles the upsert_venue tool invocation
func (s *Server) handleUpsertVenue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	var venue types.Venue
	if venue.ID, err = getOptionalID(args, "id"); err != nil {
		return nil, err
	}
	if venue.Name, err = getRequiredString(args, "name"); err != nil {
		return nil, err
	}
	if venue.Latitude, err = getOptionalFloat(args, "latitude"); err != nil {
		return nil, err
	}
	if venue.Longitude, err = getOptionalFloat(args, "longitude"); err != nil {
		return nil, err
	}
	venue.Address = getOptionalString(args, "address")
	venue.City = getOptionalString(args, "city")

	if err := s.writer.SaveVenue(ctx, &venue); err != nil {
		return nil, toMCPError("failed to save venue", err)
	}

	response := map[string]interface{}{
		"id":          venue.ID,
		"name":        venue.Name,
		"geo_indexed": venue.Geo != nil,
		"updated_at":  venue.UpdatedAt.Format(time.RFC3339),
	}
	if venue.Geo != nil {
		response["geo"] = map[string]interface{}{
			"lon":  venue.Geo.Lon,
			"lat":  venue.Geo.Lat,
			"srid": venue.Geo.SRID,
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUpsertEvent handles the upsert_event tool invocation
func (s *Server) handleUpsertEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	var event types.Event
	if event.ID, err = getOptionalID(args, "id"); err != nil {
		return nil, err
	}
	if event.Title, err = getRequiredString(args, "title"); err != nil {
		return nil, err
	}
	start, err := getOptionalTime(args, "start_at")
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, missingParam("start_at")
	}
	event.StartAt = *start
	if event.EndAt, err = getOptionalTime(args, "end_at"); err != nil {
		return nil, err
	}
	venueID, err := getOptionalID(args, "venue_id")
	if err != nil {
		return nil, err
	}
	if venueID != 0 {
		event.VenueID = &venueID
	}
	event.Description = getOptionalString(args, "description")
	event.LocationText = getOptionalString(args, "location_text")
	if event.Source, err = types.ParseEventSource(getStringDefault(args, "source", "")); err != nil {
		return nil, invalidParam("source", err.Error())
	}

	if err := s.writer.SaveEvent(ctx, &event); err != nil {
		return nil, toMCPError("failed to save event", err)
	}

	response := map[string]interface{}{
		"id":         event.ID,
		"title":      event.Title,
		"start_at":   event.StartAt.Format(time.RFC3339),
		"source":     event.Source,
		"updated_at": event.UpdatedAt.Format(time.RFC3339),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUpsertOffer handles the upsert_offer tool invocation
func (s *Server) handleUpsertOffer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	var offer types.Offer
	if offer.ID, err = getOptionalID(args, "id"); err != nil {
		return nil, err
	}
	if offer.EventID, err = getOptionalID(args, "event_id"); err != nil {
		return nil, err
	}
	if offer.EventID == 0 {
		return nil, missingParam("event_id")
	}
	if offer.Price, err = getOptionalFloat(args, "price"); err != nil {
		return nil, err
	}
	if currency := getOptionalString(args, "currency"); currency != nil {
		upper := strings.ToUpper(*currency)
		if err := validate.Var(upper, "iso4217"); err != nil {
			return nil, invalidParam("currency", "not an ISO 4217 code")
		}
		offer.Currency = &upper
	}
	offer.URL = getOptionalString(args, "url")

	if err := s.writer.SaveOffer(ctx, &offer); err != nil {
		return nil, toMCPError("failed to save offer", err)
	}

	response := map[string]interface{}{
		"id":       offer.ID,
		"event_id": offer.EventID,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDeleteEvent handles the delete_event tool invocation
func (s *Server) handleDeleteEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleDelete(ctx, request, "event", s.writer.DeleteEvent)
}

// handleDeleteVenue handles the delete_venue tool invocation
func (s *Server) handleDeleteVenue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleDelete(ctx, request, "venue", s.writer.DeleteVenue)
}

// handleDeleteOffer handles the delete_offer tool invocation
func (s *Server) handleDeleteOffer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleDelete(ctx, request, "offer", s.writer.DeleteOffer)
}

func (s *Server) handleDelete(ctx context.Context, request mcp.CallToolRequest, entity string, del func(context.Context, int64) error) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	id, err := getOptionalID(args, "id")
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, missingParam("id")
	}

	if err := del(ctx, id); err != nil {
		return nil, toMCPError("failed to delete "+entity, err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"deleted": true,
		"id":      id,
	})), nil
}

// handleSearchEvents handles the search_events tool invocation
func (s *Server) handleSearchEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	sa, err := parseSearchArgs(args)
	if err != nil {
		return nil, err
	}

	req := searcher.SearchRequest{
		Filters: searcher.Filters{Text: sa.Text},
		Sort:    types.SortOrder(sa.Sort),
		Offset:  sa.Offset,
		Limit:   sa.Limit,
	}
	if sa.From != nil || sa.To != nil {
		req.Filters.DateRange = &searcher.DateRange{From: sa.From, To: sa.To}
	}
	if sa.Latitude != nil || sa.Longitude != nil || sa.RadiusMiles != nil {
		if sa.Latitude == nil || sa.Longitude == nil || sa.RadiusMiles == nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "latitude, longitude and radius_miles must be given together", map[string]interface{}{
				"param": "radius_miles",
			})
		}
		req.Filters.Geo = searcher.NewGeoFilter(*sa.Latitude, *sa.Longitude, geoindex.MilesToMeters(*sa.RadiusMiles))
	}
	if sa.MinPrice != nil || sa.MaxPrice != nil || sa.Currency != "" {
		req.Filters.Price = &searcher.PriceRange{Min: sa.MinPrice, Max: sa.MaxPrice, Currency: sa.Currency}
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, toMCPError("search failed", err)
	}

	hits := make([]map[string]interface{}, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		h := map[string]interface{}{
			"rank":     hit.Rank,
			"event_id": hit.EventID,
			"start_at": hit.StartAt.Format(time.RFC3339),
		}
		if event, err := s.storage.GetEvent(ctx, hit.EventID); err == nil {
			h["title"] = event.Title
		}
		if hit.VenueID != nil {
			h["venue_id"] = *hit.VenueID
		}
		if hit.Distance != nil {
			h["distance_meters"] = *hit.Distance
			h["distance_miles"] = geoindex.MetersToMiles(*hit.Distance)
		}
		if hit.Score != nil {
			h["score"] = *hit.Score
		}
		hits = append(hits, h)
	}

	response := map[string]interface{}{
		"hits":        hits,
		"total":       resp.Total,
		"sort":        resp.Sort,
		"offset":      resp.Offset,
		"limit":       resp.Limit,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func parseSearchArgs(args map[string]interface{}) (*searchArgs, error) {
	var (
		sa  searchArgs
		err error
	)
	if sa.Latitude, err = getOptionalFloat(args, "latitude"); err != nil {
		return nil, err
	}
	if sa.Longitude, err = getOptionalFloat(args, "longitude"); err != nil {
		return nil, err
	}
	if sa.RadiusMiles, err = getOptionalFloat(args, "radius_miles"); err != nil {
		return nil, err
	}
	if sa.From, err = getOptionalTime(args, "from"); err != nil {
		return nil, err
	}
	if sa.To, err = getOptionalTime(args, "to"); err != nil {
		return nil, err
	}
	if sa.MinPrice, err = getOptionalFloat(args, "min_price"); err != nil {
		return nil, err
	}
	if sa.MaxPrice, err = getOptionalFloat(args, "max_price"); err != nil {
		return nil, err
	}
	sa.Text = getStringDefault(args, "text", "")
	sa.Currency = strings.ToUpper(getStringDefault(args, "currency", ""))
	sa.Sort = getStringDefault(args, "sort", "")
	sa.Offset = getIntDefault(args, "offset", 0)
	sa.Limit = getIntDefault(args, "limit", 0)

	if err := validate.Struct(&sa); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return nil, invalidParam(fe.Field(), fmt.Sprintf("failed %q", fe.Tag()))
		}
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return &sa, nil
}

// handleReindex handles the reindex tool invocation
func (s *Server) handleReindex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	config := s.reindex
	if workers := getIntDefault(args, "workers", 0); workers > 0 {
		config.Workers = workers
	}

	stats, err := s.writer.Reindex(ctx, &config)
	if err != nil {
		return nil, toMCPError("reindex failed", err)
	}

	response := map[string]interface{}{
		"events_indexed": stats.EventsIndexed,
		"venues_indexed": stats.VenuesIndexed,
		"failed":         stats.Failed,
		"duration_ms":    stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, toMCPError("failed to get status", err)
	}

	response := map[string]interface{}{
		"schema_version": status.SchemaVersion,
		"statistics": map[string]interface{}{
			"events_count":       status.EventsCount,
			"venues_count":       status.VenuesCount,
			"offers_count":       status.OffersCount,
			"event_text_rows":    status.EventTextRows,
			"venue_text_rows":    status.VenueTextRows,
			"geo_indexed_venues": status.GeoIndexedVenues,
			"venues_with_coords": status.VenuesWithCoords,
			"index_size_mb":      fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible": status.Health.DatabaseAccessible,
			"text_index_complete": status.Health.TextIndexComplete,
			"geo_index_complete":  status.Health.GeoIndexComplete,
		},
		"cache_generation": s.searcher.Generation(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toMCPError maps a domain error onto an MCP error code
func toMCPError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrInvalidCoordinate):
		code = ErrorCodeInvalidCoordinate
	case errors.Is(err, types.ErrInvalidSortRequest):
		code = ErrorCodeInvalidSort
	case errors.Is(err, types.ErrStoreUnavailable):
		code = ErrorCodeStoreUnavailable
	case errors.Is(err, types.ErrEntityNotIndexed):
		code = ErrorCodeNotIndexed
	case errors.Is(err, types.ErrInvalidRequest), errors.Is(err, types.ErrInvalidEntity):
		code = ErrorCodeInvalidParams
	case errors.Is(err, storage.ErrNotFound):
		code = ErrorCodeNotFound
	case errors.Is(err, indexer.ErrReindexInProgress):
		code = ErrorCodeIndexingInProgress
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

func missingParam(name string) error {
	return newMCPError(ErrorCodeInvalidParams, name+" parameter is required", map[string]interface{}{
		"param":  name,
		"reason": "missing or empty",
	})
}

func invalidParam(name, reason string) error {
	return newMCPError(ErrorCodeInvalidParams, "invalid "+name, map[string]interface{}{
		"param":  name,
		"reason": reason,
	})
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

func getRequiredString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || strings.TrimSpace(val) == "" {
		return "", missingParam(key)
	}
	return val, nil
}

// getOptionalString returns nil for absent or empty strings
func getOptionalString(args map[string]interface{}, key string) *string {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return nil
	}
	return &val
}

func getOptionalFloat(args map[string]interface{}, key string) (*float64, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return nil, nil
	}
	switch val := raw.(type) {
	case float64:
		return &val, nil
	case int:
		f := float64(val)
		return &f, nil
	default:
		return nil, invalidParam(key, "must be a number")
	}
}

// getOptionalID returns 0 when the id is absent
func getOptionalID(args map[string]interface{}, key string) (int64, error) {
	f, err := getOptionalFloat(args, key)
	if err != nil || f == nil {
		return 0, err
	}
	if *f < 1 || *f != float64(int64(*f)) {
		return 0, invalidParam(key, "must be a positive integer")
	}
	return int64(*f), nil
}

func getOptionalTime(args map[string]interface{}, key string) (*time.Time, error) {
	raw, ok := args[key].(string)
	if !ok || raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, invalidParam(key, "must be an RFC 3339 timestamp")
	}
	return &t, nil
}
