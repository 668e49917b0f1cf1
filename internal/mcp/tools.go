package mcp

import "github.com/mark3labs/mcp-go/mcp"

var searchToolDef = mcp.NewTool("activity_search",
	mcp.WithDescription("Full-text search over recognized screen text. Returns matching captures with highlight snippets, newest-relevant first."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Search terms. Terms are matched literally; FTS operators are not interpreted."),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum results to return (default 20)."),
	),
)

var timelineToolDef = mcp.NewTool("activity_timeline",
	mcp.WithDescription("Recent captures, newest first: time, app, window title, URL, and session."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum entries to return (default 50)."),
	),
)

var journalToolDef = mcp.NewTool("activity_journal",
	mcp.WithDescription("The daily journal and digest documents for a given date."),
	mcp.WithString("date",
		mcp.Required(),
		mcp.Description("Date in YYYY-MM-DD form."),
	),
)

var chunkToolDef = mcp.NewTool("activity_chunk",
	mcp.WithDescription("Locate the video chunk covering a point in time."),
	mcp.WithString("at",
		mcp.Required(),
		mcp.Description("Timestamp in RFC 3339 form."),
	),
)
