package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/streed/notesai/internal/constants"
	"github.com/streed/notesai/internal/embeddings"
	"github.com/streed/notesai/internal/logger"
	"github.com/streed/notesai/internal/models"
	"github.com/streed/notesai/internal/services"
)

// NotesServer exposes one user's notes as MCP tools.
type NotesServer struct {
	svc       *services.Services
	userID    int
	mcpServer *server.MCPServer
}

func NewNotesServer(svc *services.Services, user *models.User, version string) *NotesServer {
	ns := &NotesServer{
		svc:    svc,
		userID: user.ID,
	}

	ns.mcpServer = server.NewMCPServer(
		"notesai",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
	)

	ns.registerTools()
	ns.registerResources()
	ns.registerPrompts()

	logger.Debug("MCP server acting as %s (user %d)", user.Username, user.ID)
	return ns
}

func (s *NotesServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// Serve runs the server over stdin/stdout until the client disconnects.
func (s *NotesServer) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *NotesServer) registerTools() {
	addNoteTool := mcp.NewTool("add_note",
		mcp.WithDescription("Add a new note. The note is embedded for semantic search when it is saved."),
		mcp.WithString("title",
			mcp.Description("The title of the note (at most 20 characters)"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The content of the note"),
		),
		mcp.WithNumber("folder",
			mcp.Description("Folder ID to file the note under (optional)"),
		),
	)
	s.mcpServer.AddTool(addNoteTool, s.handleAddNote)

	updateNoteTool := mcp.NewTool("update_note",
		mcp.WithDescription("Update an existing note. Changing the content records a version and re-embeds the note."),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("The ID of the note to update"),
		),
		mcp.WithString("title",
			mcp.Description("New title for the note (optional)"),
		),
		mcp.WithString("content",
			mcp.Description("New content for the note (optional)"),
		),
	)
	s.mcpServer.AddTool(updateNoteTool, s.handleUpdateNote)

	searchTool := mcp.NewTool("search_notes",
		mcp.WithDescription("Find the notes most semantically similar to a query"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 5)"),
		),
	)
	s.mcpServer.AddTool(searchTool, s.handleSearchNotes)

	getNoteTool := mcp.NewTool("get_note",
		mcp.WithDescription("Get a specific note by ID"),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("The ID of the note to retrieve"),
		),
	)
	s.mcpServer.AddTool(getNoteTool, s.handleGetNote)

	listNotesTool := mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of notes to return"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of notes to skip"),
		),
	)
	s.mcpServer.AddTool(listNotesTool, s.handleListNotes)

	deleteNoteTool := mcp.NewTool("delete_note",
		mcp.WithDescription("Move a note to the trash. It can be restored later."),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("The ID of the note to delete"),
		),
	)
	s.mcpServer.AddTool(deleteNoteTool, s.handleDeleteNote)

	summarizeTool := mcp.NewTool("summarize_note",
		mcp.WithDescription("Start summarizing a note in the background and return the task ID"),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("The ID of the note to summarize"),
		),
	)
	s.mcpServer.AddTool(summarizeTool, s.handleSummarizeNote)
}

func (s *NotesServer) registerResources() {
	recentResource := mcp.NewResource("notes://recent",
		"Recent Notes",
		mcp.WithResourceDescription("The most recently created notes"),
		mcp.WithMIMEType("text/plain"),
	)
	s.mcpServer.AddResource(recentResource, s.handleRecentNotes)

	statsResource := mcp.NewResource("notes://stats",
		"Notes Statistics",
		mcp.WithResourceDescription("Note counts and which embedding providers indexed them"),
		mcp.WithMIMEType("text/plain"),
	)
	s.mcpServer.AddResource(statsResource, s.handleStats)
}

func (s *NotesServer) registerPrompts() {
	searchPrompt := mcp.NewPrompt("search_notes",
		mcp.WithPromptDescription("Ask the assistant to search the notes"),
		mcp.WithArgument("query",
			mcp.ArgumentDescription("Search query string"),
		),
	)
	s.mcpServer.AddPrompt(searchPrompt, s.handleSearchPrompt)
}

// Tool handlers
func (s *NotesServer) handleAddNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: add_note")

	content, err := request.RequireString("content")
	if err != nil {
		return nil, fmt.Errorf("missing required parameter 'content': %w", err)
	}
	in := services.NoteInput{
		Title:   request.GetString("title", ""),
		Content: content,
	}
	if folder := request.GetInt("folder", 0); folder > 0 {
		in.FolderID = &folder
	}

	note, err := s.svc.Notes.Create(ctx, s.userID, in)
	var indexErr *services.IndexError
	if err != nil && !errors.As(err, &indexErr) {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create note: %v", err)), nil
	}

	result := fmt.Sprintf("Note created successfully with ID: %d\nTitle: %s", note.ID, note.Title)
	if indexErr != nil {
		result += fmt.Sprintf("\nWarning: %v", indexErr)
	}
	return mcp.NewToolResultText(result), nil
}

func (s *NotesServer) handleUpdateNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: update_note")

	id, err := request.RequireInt("id")
	if err != nil {
		return nil, fmt.Errorf("missing required parameter 'id': %w", err)
	}

	var upd services.NoteUpdate
	args := request.GetArguments()
	if _, ok := args["title"]; ok {
		title := request.GetString("title", "")
		upd.Title = &title
	}
	if _, ok := args["content"]; ok {
		content := request.GetString("content", "")
		upd.Content = &content
	}
	if upd.Title == nil && upd.Content == nil {
		return mcp.NewToolResultError("nothing to update: provide title or content"), nil
	}

	note, err := s.svc.Notes.Update(ctx, s.userID, id, upd)
	var indexErr *services.IndexError
	if err != nil && !errors.As(err, &indexErr) {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update note: %v", err)), nil
	}

	result := fmt.Sprintf("Note %d updated successfully\nTitle: %s", note.ID, note.Title)
	if indexErr != nil {
		result += fmt.Sprintf("\nWarning: %v", indexErr)
	}
	return mcp.NewToolResultText(result), nil
}

func (s *NotesServer) handleSearchNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: search_notes")

	query := request.GetString("query", "")
	limit := request.GetInt("limit", constants.DefaultSearchLimit)

	results, err := s.svc.Search.Search(ctx, s.userID, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No notes found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d notes:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "%d. [ID: %d] %s (score %.4f)\n   %s\n\n",
			i+1, r.ID, r.Title, r.Score, truncateString(r.Content, constants.PreviewLength))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *NotesServer) handleGetNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: get_note")

	id, err := request.RequireInt("id")
	if err != nil {
		return nil, fmt.Errorf("missing required parameter 'id': %w", err)
	}

	note, err := s.svc.Notes.Get(ctx, s.userID, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get note: %v", err)), nil
	}

	result := fmt.Sprintf("Note ID: %d\nTitle: %s\nIndex: %s", note.ID, note.Title, note.IndexStatus)
	if note.IsDeleted {
		result += "\nStatus: deleted"
	}
	if note.Summary != nil {
		result += fmt.Sprintf("\nSummary: %s", *note.Summary)
	}
	result += fmt.Sprintf("\nCreated: %s\nUpdated: %s\n\nContent:\n%s",
		note.CreatedAt.Format("2006-01-02 15:04:05"),
		note.UpdatedAt.Format("2006-01-02 15:04:05"),
		note.Content)

	return mcp.NewToolResultText(result), nil
}

func (s *NotesServer) handleListNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: list_notes")

	limit := request.GetInt("limit", constants.DefaultListLimit)
	offset := request.GetInt("offset", 0)

	notes, err := s.svc.Notes.List(ctx, s.userID, models.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	if len(notes) == 0 {
		return mcp.NewToolResultText("No notes found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Listing %d notes (offset: %d):\n\n", len(notes), offset)
	for i, note := range notes {
		fmt.Fprintf(&b, "%d. [ID: %d] %s (Created: %s)\n   %s\n\n",
			i+1+offset, note.ID, note.Title,
			note.CreatedAt.Format("2006-01-02"),
			truncateString(note.Content, 80))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *NotesServer) handleDeleteNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: delete_note")

	id, err := request.RequireInt("id")
	if err != nil {
		return nil, fmt.Errorf("missing required parameter 'id': %w", err)
	}

	if err := s.svc.Notes.Delete(ctx, s.userID, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete note: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Note %d moved to trash", id)), nil
}

func (s *NotesServer) handleSummarizeNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: summarize_note")

	id, err := request.RequireInt("id")
	if err != nil {
		return nil, fmt.Errorf("missing required parameter 'id': %w", err)
	}

	task, err := s.svc.Notes.Summarize(ctx, s.userID, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to summarize note: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Summarization started (task %s)", task.ID)), nil
}

// Resource handlers
func (s *NotesServer) handleRecentNotes(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	logger.Debug("MCP resource read: notes://recent")

	notes, err := s.svc.Notes.List(ctx, s.userID, models.ListOptions{Limit: 10})
	if err != nil {
		return nil, fmt.Errorf("failed to get recent notes: %w", err)
	}

	var b strings.Builder
	b.WriteString("Recent Notes:\n\n")
	for i, note := range notes {
		fmt.Fprintf(&b, "%d. [ID: %d] %s\n   Created: %s\n   %s\n\n",
			i+1, note.ID, note.Title,
			note.CreatedAt.Format("2006-01-02 15:04:05"),
			truncateString(note.Content, constants.SearchPreviewLength))
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "text/plain",
			Text:     b.String(),
		},
	}, nil
}

func (s *NotesServer) handleStats(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	logger.Debug("MCP resource read: notes://stats")

	notes, err := s.svc.Notes.List(ctx, s.userID, models.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to count notes: %w", err)
	}
	counts, err := s.svc.Store.ProviderCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}

	byStatus := map[models.IndexStatus]int{}
	for _, n := range notes {
		byStatus[n.IndexStatus]++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Notes Statistics:\n- Total Notes: %d\n- Indexed: %d\n- Pending: %d\n- Failed: %d\n- Embedding Provider: %s\n",
		len(notes), byStatus[models.IndexIndexed], byStatus[models.IndexPending], byStatus[models.IndexFailed],
		s.svc.Embedder.ProviderID())

	providers := make([]embeddings.ProviderID, 0, len(counts))
	for p := range counts {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	for _, p := range providers {
		fmt.Fprintf(&b, "- Embeddings from %s: %d\n", p, counts[p])
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "text/plain",
			Text:     b.String(),
		},
	}, nil
}

func (s *NotesServer) handleSearchPrompt(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	query := request.Params.Arguments["query"]

	prompt := fmt.Sprintf("Search my notes for: %s\n\nUse the search_notes tool and summarize what the most relevant notes say.", query)
	return &mcp.GetPromptResult{
		Description: "Search prompt for notes",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(prompt),
			},
		},
	}, nil
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
