package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func idProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
		"minimum":     1,
	}
}

// upsertVenueTool returns the tool definition for upsert_venue
func upsertVenueTool() mcp.Tool {
	return mcp.Tool{
		Name:        "upsert_venue",
		Description: "Create or replace a venue. Coordinates are optional; a venue is only geo-searchable when both are set.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": idProperty("Existing venue id to replace; omit to create"),
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Venue name, indexed for text search",
				},
				"latitude": map[string]interface{}{
					"type":        "number",
					"description": "Latitude in degrees (-90 to 90)",
				},
				"longitude": map[string]interface{}{
					"type":        "number",
					"description": "Longitude in degrees (-180 to 180)",
				},
				"address": map[string]interface{}{
					"type":        "string",
					"description": "Street address",
				},
				"city": map[string]interface{}{
					"type":        "string",
					"description": "City",
				},
			},
			Required: []string{"name"},
		},
	}
}

// upsertEventTool returns the tool definition for upsert_event
func upsertEventTool() mcp.Tool {
	return mcp.Tool{
		Name:        "upsert_event",
		Description: "Create or replace an event. Title and description are indexed for text search.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": idProperty("Existing event id to replace; omit to create"),
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Event title (weighted highest in relevance)",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "Event description",
				},
				"start_at": map[string]interface{}{
					"type":        "string",
					"description": "Start time, RFC 3339",
					"format":      "date-time",
				},
				"end_at": map[string]interface{}{
					"type":        "string",
					"description": "End time, RFC 3339",
					"format":      "date-time",
				},
				"location_text": map[string]interface{}{
					"type":        "string",
					"description": "Free-form location when no venue is known",
				},
				"venue_id": idProperty("Venue the event is held at"),
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Where the event came from",
					"enum":        []string{"MANUAL", "TICKETMASTER", "EVENTBRITE", "SEATGEEK"},
					"default":     "MANUAL",
				},
			},
			Required: []string{"title", "start_at"},
		},
	}
}

// upsertOfferTool returns the tool definition for upsert_offer
func upsertOfferTool() mcp.Tool {
	return mcp.Tool{
		Name:        "upsert_offer",
		Description: "Create or replace a ticket offer for an event",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id":       idProperty("Existing offer id to replace; omit to create"),
				"event_id": idProperty("Event the offer is for"),
				"price": map[string]interface{}{
					"type":        "number",
					"description": "Ticket price",
					"minimum":     0,
				},
				"currency": map[string]interface{}{
					"type":        "string",
					"description": "ISO 4217 currency code",
				},
				"url": map[string]interface{}{
					"type":        "string",
					"description": "Where to buy",
				},
			},
			Required: []string{"event_id"},
		},
	}
}

// deleteTool returns a delete_<entity> tool definition
func deleteTool(name, entity string) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Description: "Delete a " + entity + " and its derived index entries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": idProperty(entity + " id"),
			},
			Required: []string{"id"},
		},
	}
}

// searchEventsTool returns the tool definition for search_events
func searchEventsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_events",
		Description: "Search events by date range, distance from a point, text and price. All given filters must match.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"latitude": map[string]interface{}{
					"type":        "number",
					"description": "Latitude of the search center; requires longitude and radius_miles",
				},
				"longitude": map[string]interface{}{
					"type":        "number",
					"description": "Longitude of the search center",
				},
				"radius_miles": map[string]interface{}{
					"type":        "number",
					"description": "Search radius in miles, greater than zero",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Words that must all appear in the event title, description or venue name",
				},
				"from": map[string]interface{}{
					"type":        "string",
					"description": "Earliest start time, RFC 3339, inclusive",
					"format":      "date-time",
				},
				"to": map[string]interface{}{
					"type":        "string",
					"description": "Latest start time, RFC 3339, inclusive",
					"format":      "date-time",
				},
				"min_price": map[string]interface{}{
					"type":        "number",
					"description": "Lowest acceptable offer price",
					"minimum":     0,
				},
				"max_price": map[string]interface{}{
					"type":        "number",
					"description": "Highest acceptable offer price",
					"minimum":     0,
				},
				"currency": map[string]interface{}{
					"type":        "string",
					"description": "Only consider offers in this ISO 4217 currency",
				},
				"sort": map[string]interface{}{
					"type":        "string",
					"description": "DATE (soonest first), DISTANCE (nearest first, needs a location) or RELEVANCE (best text match first)",
					"enum":        []string{"DATE", "DISTANCE", "RELEVANCE"},
					"default":     "DATE",
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of hits to skip",
					"default":     0,
					"minimum":     0,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of hits to return (1-100)",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
			},
		},
	}
}

// reindexTool returns the tool definition for reindex
func reindexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reindex",
		Description: "Rebuild every derived text and spatial entry from the source rows",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Concurrent workers (defaults to the configured value)",
					"minimum":     1,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report row counts and derived index health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
