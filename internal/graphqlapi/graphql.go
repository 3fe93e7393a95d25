// Package graphqlapi exposes a read-only GraphQL view over scenarios,
// sessions, personas and history.
package graphqlapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"github.com/oremus-labs/ol-cvi-coach/internal/persona"
	"github.com/oremus-labs/ol-cvi-coach/internal/session"
	"github.com/oremus-labs/ol-cvi-coach/internal/store"
)

// ScenarioProvider exposes the scenario catalog.
type ScenarioProvider interface {
	List() []persona.Scenario
	Get(key string) (persona.Scenario, error)
}

// SessionProvider looks up sessions.
type SessionProvider interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// RecordStore exposes persisted personas and history.
type RecordStore interface {
	ListPersonas() ([]store.PersonaRecord, error)
	ListHistory(limit int) ([]store.HistoryEntry, error)
}

// Config wires the GraphQL schema. Sessions and Records may be nil.
type Config struct {
	Scenarios ScenarioProvider
	Sessions  SessionProvider
	Records   RecordStore
}

// NewHandler returns an http.Handler that serves /graphql requests.
func NewHandler(cfg Config) (http.Handler, error) {
	schema, err := NewSchema(cfg)
	if err != nil {
		return nil, err
	}

	return handler.New(&handler.Config{
		Schema:   schema,
		Pretty:   true,
		GraphiQL: true,
	}), nil
}

// NewSchema builds the query schema.
func NewSchema(cfg Config) (*graphql.Schema, error) {
	builder := schemaBuilder{cfg: cfg}
	return builder.buildSchema()
}

type schemaBuilder struct {
	cfg Config
}

func (b schemaBuilder) buildSchema() (*graphql.Schema, error) {
	jsonScalar := graphql.NewScalar(graphql.ScalarConfig{
		Name: "JSON",
		Serialize: func(value interface{}) interface{} {
			return value
		},
	})

	scenarioType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Scenario",
		Fields: graphql.Fields{
			"key":          {Type: graphql.NewNonNull(graphql.String)},
			"label":        {Type: graphql.String},
			"employeeType": {Type: graphql.String},
			"description":  {Type: graphql.String},
		},
	})

	messageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Message",
		Fields: graphql.Fields{
			"role": {Type: graphql.String},
			"text": {Type: graphql.String},
		},
	})

	tipType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Tip",
		Fields: graphql.Fields{
			"title":       {Type: graphql.String},
			"description": {Type: graphql.String},
			"category":    {Type: graphql.String},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Session",
		Fields: graphql.Fields{
			"id":              {Type: graphql.NewNonNull(graphql.ID)},
			"status":          {Type: graphql.NewNonNull(graphql.String)},
			"scenarioKey":     {Type: graphql.String},
			"name":            {Type: graphql.String},
			"role":            {Type: graphql.String},
			"topic":           {Type: graphql.String},
			"personaId":       {Type: graphql.String},
			"conversationId":  {Type: graphql.String},
			"conversationUrl": {Type: graphql.String},
			"transcript":      {Type: graphql.NewList(messageType)},
			"tips":            {Type: graphql.NewList(tipType)},
			"emailSent":       {Type: graphql.Boolean},
			"createdAt":       {Type: graphql.String},
			"updatedAt":       {Type: graphql.String},
		},
	})

	personaType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PersonaRecord",
		Fields: graphql.Fields{
			"scenarioKey": {Type: graphql.String},
			"promptHash":  {Type: graphql.String},
			"personaId":   {Type: graphql.NewNonNull(graphql.String)},
			"createdAt":   {Type: graphql.String},
		},
	})

	historyType := graphql.NewObject(graphql.ObjectConfig{
		Name: "HistoryEntry",
		Fields: graphql.Fields{
			"id":        {Type: graphql.NewNonNull(graphql.ID)},
			"event":     {Type: graphql.NewNonNull(graphql.String)},
			"sessionId": {Type: graphql.String},
			"metadata":  {Type: jsonScalar},
			"createdAt": {Type: graphql.String},
		},
	})

	queryFields := graphql.Fields{
		"scenarios": &graphql.Field{
			Type: graphql.NewList(scenarioType),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Scenarios == nil {
					return []interface{}{}, nil
				}
				return mapScenarios(b.cfg.Scenarios.List()), nil
			},
		},
		"scenario": &graphql.Field{
			Type: scenarioType,
			Args: graphql.FieldConfigArgument{
				"key": {Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Scenarios == nil {
					return nil, nil
				}
				key, _ := p.Args["key"].(string)
				s, err := b.cfg.Scenarios.Get(key)
				if errors.Is(err, persona.ErrUnknownScenario) {
					return nil, nil
				}
				if err != nil {
					return nil, err
				}
				return mapScenario(s), nil
			},
		},
		"session": &graphql.Field{
			Type: sessionType,
			Args: graphql.FieldConfigArgument{
				"id": {Type: graphql.NewNonNull(graphql.ID)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Sessions == nil {
					return nil, nil
				}
				id, _ := p.Args["id"].(string)
				sess, err := b.cfg.Sessions.Get(p.Context, id)
				if errors.Is(err, session.ErrNotFound) {
					return nil, nil
				}
				if err != nil {
					return nil, err
				}
				return mapSession(sess), nil
			},
		},
		"personas": &graphql.Field{
			Type: graphql.NewList(personaType),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Records == nil {
					return []interface{}{}, nil
				}
				records, err := b.cfg.Records.ListPersonas()
				if err != nil {
					return nil, err
				}
				return mapPersonas(records), nil
			},
		},
		"history": &graphql.Field{
			Type: graphql.NewList(historyType),
			Args: graphql.FieldConfigArgument{
				"limit": {Type: graphql.Int},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Records == nil {
					return []interface{}{}, nil
				}
				limit := 50
				if l, ok := p.Args["limit"].(int); ok && l > 0 {
					limit = l
				}
				entries, err := b.cfg.Records.ListHistory(limit)
				if err != nil {
					return nil, err
				}
				return mapHistory(entries), nil
			},
		},
	}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	})
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

func mapScenarios(list []persona.Scenario) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, s := range list {
		out = append(out, mapScenario(s))
	}
	return out
}

func mapScenario(s persona.Scenario) map[string]interface{} {
	return map[string]interface{}{
		"key":          s.Key,
		"label":        s.Label,
		"employeeType": s.EmployeeType,
		"description":  s.Description,
	}
}

func mapSession(s *session.Session) map[string]interface{} {
	transcript := make([]map[string]interface{}, 0, len(s.Transcript))
	for _, m := range s.Transcript {
		transcript = append(transcript, map[string]interface{}{"role": m.Role, "text": m.Text})
	}
	tips := make([]map[string]interface{}, 0, len(s.Tips))
	for _, t := range s.Tips {
		tips = append(tips, map[string]interface{}{
			"title":       t.Title,
			"description": t.Description,
			"category":    t.Category,
		})
	}
	return map[string]interface{}{
		"id":              s.ID,
		"status":          string(s.Status),
		"scenarioKey":     s.ScenarioKey,
		"name":            s.Profile.Name,
		"role":            s.Profile.Role,
		"topic":           s.Profile.Topic,
		"personaId":       s.PersonaID,
		"conversationId":  s.ConversationID,
		"conversationUrl": s.ConversationURL,
		"transcript":      transcript,
		"tips":            tips,
		"emailSent":       s.EmailSent,
		"createdAt":       formatTime(s.CreatedAt),
		"updatedAt":       formatTime(s.UpdatedAt),
	}
}

func mapPersonas(records []store.PersonaRecord) []interface{} {
	out := make([]interface{}, 0, len(records))
	for _, r := range records {
		out = append(out, map[string]interface{}{
			"scenarioKey": r.ScenarioKey,
			"promptHash":  r.PromptHash,
			"personaId":   r.PersonaID,
			"createdAt":   formatTime(r.CreatedAt),
		})
	}
	return out
}

func mapHistory(entries []store.HistoryEntry) []interface{} {
	out := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"id":        e.ID,
			"event":     e.Event,
			"sessionId": e.SessionID,
			"metadata":  e.Metadata,
			"createdAt": formatTime(e.CreatedAt),
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
