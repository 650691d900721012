// Package mcp implements the Model Context Protocol (MCP) server for whenr.
//
// The server exposes the write path and the search path as tools:
//   - upsert_venue, upsert_event, upsert_offer: create or replace source rows
//   - delete_event, delete_venue, delete_offer: remove source rows and their derived entries
//   - search_events: compound date, distance, text and price search
//   - reindex: rebuild every derived entry from the source rows
//   - get_status: row counts and derived index health
//
// Every write goes through indexer.Writer, so derived text and spatial
// entries are committed in the same transaction as the source row and the
// search cache is invalidated after commit.
//
// # Protocol Overview
//
// MCP is JSON-RPC 2.0 over stdio. stdout carries protocol messages only;
// logs go to stderr.
//
//	whenr serve
//
// # Tool: search_events
//
//	Request:
//	{
//	  "name": "search_events",
//	  "arguments": {
//	    "latitude": 39.77,
//	    "longitude": -86.15,
//	    "radius_miles": 5,
//	    "text": "concert",
//	    "sort": "DISTANCE"
//	  }
//	}
//
//	Response:
//	{
//	  "hits": [
//	    {
//	      "rank": 1,
//	      "event_id": 12,
//	      "title": "Concert Night",
//	      "venue_id": 3,
//	      "start_at": "2025-06-01T19:00:00Z",
//	      "distance_meters": 714.8,
//	      "distance_miles": 0.44,
//	      "score": 0.000001
//	    }
//	  ],
//	  "total": 1,
//	  "sort": "DISTANCE"
//	}
//
// latitude, longitude and radius_miles must be given together. Radius is
// converted to meters at 1609.34 meters per mile.
//
// # Error Handling
//
// Handlers return *MCPError with a JSON-RPC style code:
//   - -32602: invalid params, including rejected entity fields
//   - -32603: internal error
//   - -32001: entity not found
//   - -32002: reindex already running
//   - -32003: a source row is missing its derived entry
//   - -32004: coordinate out of range
//   - -32005: sort not allowed, e.g. DISTANCE without a location
//   - -32006: store unavailable
package mcp
