package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/integrasalud/integrasalud/pkg/knowledge"
	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/integrasalud/integrasalud/pkg/usecase/chat"
	"github.com/integrasalud/integrasalud/pkg/usecase/token"
	"github.com/integrasalud/integrasalud/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server exposes one consultation session as MCP tools
type Server struct {
	session *chat.Session
	catalog *knowledge.Catalog
	server  *mcp.Server
}

type askParams struct {
	Query string `json:"query"`
}

type selectTopicParams struct {
	Topic string `json:"topic"`
}

type issueTokenParams struct {
	Facility  string `json:"facility"`
	Specialty string `json:"specialty"`
}

func New(session *chat.Session, catalog *knowledge.Catalog, version string) *Server {
	s := &Server{
		session: session,
		catalog: catalog,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "integrasalud",
			Version: version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_topics",
		Description: "Lista las áreas de consulta, el área activa y los centros de salud con sus especialidades",
		InputSchema: emptySchema(),
	}, s.listTopics)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Responde una consulta de salud del área activa",
		InputSchema: askSchema(),
	}, s.ask)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "select_topic",
		Description: "Cambia el área de consulta activa; borra el historial",
		InputSchema: selectTopicSchema(catalog),
	}, s.selectTopic)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "issue_token",
		Description: "Genera un código de turno anónimo para un centro y especialidad del área activa",
		InputSchema: issueTokenSchema(),
	}, s.issueToken)

	return s
}

// MCPServer returns the underlying SDK server, e.g. to mount it over HTTP
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Run serves over stdio until the client disconnects or ctx is done
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server stopped")
	}
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	result := textResult(err.Error())
	result.IsError = true
	return result
}

func (s *Server) listTopics(ctx context.Context, req *mcp.CallToolRequest, params *struct{}) (*mcp.CallToolResult, any, error) {
	current := s.session.Topic().ID

	var b strings.Builder
	for _, t := range s.catalog.Topics() {
		marker := " "
		if t.ID == current {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", marker, t.ID, t.Title)
		for _, f := range t.Facilities {
			fmt.Fprintf(&b, "    - %s: %s\n", f.Name, strings.Join(f.Specialties, ", "))
		}
	}
	return textResult(b.String()), nil, nil
}

func (s *Server) ask(ctx context.Context, req *mcp.CallToolRequest, params *askParams) (*mcp.CallToolResult, any, error) {
	answer, err := s.session.Ask(ctx, params.Query)
	if err != nil {
		return errorResult(err), nil, nil
	}

	if answer.Provenance == model.ProvenanceAppointmentIntent {
		topic := s.session.Topic()
		var b strings.Builder
		fmt.Fprintf(&b, "[%s]\nElige un centro y una especialidad y llama a issue_token:\n", answer.Provenance)
		for _, f := range topic.Facilities {
			fmt.Fprintf(&b, "- %s: %s\n", f.Name, strings.Join(f.Specialties, ", "))
		}
		return textResult(b.String()), nil, nil
	}

	return textResult(fmt.Sprintf("[%s]\n%s", answer.Provenance, answer.Text)), nil, nil
}

func (s *Server) selectTopic(ctx context.Context, req *mcp.CallToolRequest, params *selectTopicParams) (*mcp.CallToolResult, any, error) {
	if err := s.session.SelectTopic(model.TopicID(params.Topic)); err != nil {
		return errorResult(err), nil, nil
	}
	topic := s.session.Topic()
	logging.From(ctx).Info("topic selected", "topic", topic.ID)
	return textResult(fmt.Sprintf("Área activa: %s\n%s", topic.Title, topic.Placeholder)), nil, nil
}

func (s *Server) issueToken(ctx context.Context, req *mcp.CallToolRequest, params *issueTokenParams) (*mcp.CallToolResult, any, error) {
	tk, err := s.session.IssueToken(params.Facility, params.Specialty)
	if err != nil {
		return errorResult(err), nil, nil
	}
	s.session.BackToChat()
	return textResult(token.Instructions(tk)), nil, nil
}
