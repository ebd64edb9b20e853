package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/agentworker/internal/proposal"
	"github.com/nextlevelbuilder/agentworker/internal/sharedcontext"
)

func (s *Server) buildMCPServer(agent string, validAgents []string) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"agentworker-context",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithHooks(NewHooks(s)),
	)

	mcpServer.AddTool(
		mcp.NewTool("channel_send",
			mcp.WithDescription("Post a message to the shared channel log, optionally addressed to one agent."),
			mcp.WithString("message", mcp.Required(), mcp.Description("message content")),
			mcp.WithString("to", mcp.Description("optional recipient agent name for a private message")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			message := req.GetString("message", "")
			to := req.GetString("to", "")
			entry, err := s.ctx.AppendChannel(agent, message, sharedcontext.AppendOptions{To: to})
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(entry)
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("channel_read",
			mcp.WithDescription("Read channel entries since an id, filtered to what this agent may see."),
			mcp.WithNumber("since", mcp.Description("exclusive lower bound id, default 0")),
			mcp.WithNumber("limit", mcp.Description("max entries to return, default unlimited")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			since := int64(req.GetFloat("since", 0))
			limit := req.GetInt("limit", 0)
			entries, err := s.ctx.ReadChannel(sharedcontext.ReadOptions{Since: since, Limit: limit, Agent: agent})
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(entries)
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("resource_create",
			mcp.WithDescription("Create an opaque, globally-unique-within-context resource."),
			mcp.WithString("content", mcp.Required()),
			mcp.WithString("type", mcp.Description("markdown|json|text|diff, default text")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			content := req.GetString("content", "")
			typ := sharedcontext.ResourceType(req.GetString("type", ""))
			res, err := s.ctx.CreateResource(content, agent, typ)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(res)
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("resource_read",
			mcp.WithDescription("Read a resource by id."),
			mcp.WithString("id", mcp.Required()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			res, err := s.ctx.ReadResource(req.GetString("id", ""))
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(res)
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("my_inbox", mcp.WithDescription("List unacked entries addressed to this agent.")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			inbox, err := s.ctx.GetInbox(agent)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(inbox)
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("my_inbox_ack",
			mcp.WithDescription("Advance this agent's inbox cursor; ack can never move it backwards."),
			mcp.WithNumber("until", mcp.Required()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			until := int64(req.GetFloat("until", 0))
			if err := s.ctx.AckInbox(agent, until); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText("ok"), nil
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("team_members", mcp.WithDescription("List the agents sharing this workflow.")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			type member struct {
				Name string `json:"name"`
				Self bool   `json:"self"`
			}
			members := make([]member, 0, len(validAgents))
			for _, a := range validAgents {
				members = append(members, member{Name: a, Self: a == agent})
			}
			return jsonResult(members)
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("team_doc_read",
			mcp.WithDescription("Read a team document, default README.md."),
			mcp.WithString("file", mcp.Description("document name, default README.md")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			content, err := s.ctx.ReadDocument(req.GetString("file", ""))
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(content), nil
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("team_doc_write",
			mcp.WithDescription("Overwrite a team document."),
			mcp.WithString("content", mcp.Required()),
			mcp.WithString("file", mcp.Description("document name, default README.md")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if err := s.ctx.WriteDocument(req.GetString("content", ""), req.GetString("file", "")); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText("ok"), nil
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("team_doc_append",
			mcp.WithDescription("Append to a team document."),
			mcp.WithString("content", mcp.Required()),
			mcp.WithString("file", mcp.Description("document name, default README.md")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if err := s.ctx.AppendDocument(req.GetString("content", ""), req.GetString("file", "")); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText("ok"), nil
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("team_doc_list", mcp.WithDescription("List team document names.")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			names, err := s.ctx.ListDocuments()
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(names)
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("team_doc_create",
			mcp.WithDescription("Create a new team document; fails if it already exists."),
			mcp.WithString("file", mcp.Required()),
			mcp.WithString("content", mcp.Description("initial content")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if err := s.ctx.CreateDocument(req.GetString("file", ""), req.GetString("content", "")); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText("ok"), nil
		},
	)

	if s.proposals != nil {
		s.registerProposalTools(mcpServer, agent)
	}

	return mcpServer
}

func (s *Server) registerProposalTools(mcpServer *server.MCPServer, agent string) {
	mcpServer.AddTool(
		mcp.NewTool("team_proposal_create",
			mcp.WithDescription("Create a proposal for the team to vote on."),
			mcp.WithString("type", mcp.Required(), mcp.Description("election|decision|approval|assignment")),
			mcp.WithString("title", mcp.Required()),
			mcp.WithString("description", mcp.Description("optional longer description")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			p, err := s.proposals.Create(proposal.CreateOptions{
				Type:        proposal.Kind(req.GetString("type", "")),
				Title:       req.GetString("title", ""),
				Description: req.GetString("description", ""),
				CreatedBy:   agent,
			})
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(p)
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("team_vote",
			mcp.WithDescription("Vote on an active proposal."),
			mcp.WithString("proposalId", mcp.Required()),
			mcp.WithString("choice", mcp.Required()),
			mcp.WithString("reason", mcp.Description("optional rationale")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			p, err := s.proposals.Vote(req.GetString("proposalId", ""), agent, req.GetString("choice", ""), req.GetString("reason", ""))
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(p)
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("team_proposal_status",
			mcp.WithDescription("Check a proposal's current status and result."),
			mcp.WithString("proposalId", mcp.Required()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			p, err := s.proposals.Status(req.GetString("proposalId", ""))
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(p)
		},
	)

	mcpServer.AddTool(
		mcp.NewTool("team_proposal_cancel",
			mcp.WithDescription("Cancel a proposal you created."),
			mcp.WithString("proposalId", mcp.Required()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if err := s.proposals.Cancel(req.GetString("proposalId", ""), agent); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText("ok"), nil
		},
	)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
