package builtintools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emmett08/unified-agent-sdk/internal/bus"
	"github.com/emmett08/unified-agent-sdk/internal/toolexec"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// Retriever is the out-of-scope interface the core consumes for
// retrieve_context, per spec §1's "embedding providers and vector
// indexes" non-goal — the core only depends on this shape.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]events.RetrievedItem, error)
}

const defaultTopK = 5

// retrieveContext implements retrieve_context, emitting retrieval_query
// then retrieval_results.
type retrieveContext struct {
	bus       *bus.Bus
	retriever Retriever
}

// NewRetrieveContext builds the retrieve_context tool bound to eventBus
// and backed by retriever.
func NewRetrieveContext(eventBus *bus.Bus, retriever Retriever) toolexec.Definition {
	return retrieveContext{bus: eventBus, retriever: retriever}
}

func (retrieveContext) Name() string           { return "retrieve_context" }
func (retrieveContext) Capabilities() []string { return []string{"retrieval:read"} }

type retrieveContextInput struct {
	Query string `json:"query" jsonschema:"required"`
	TopK  int    `json:"topK,omitempty" jsonschema:"minimum=1"`
}

func (retrieveContext) InputSchema() json.RawMessage { return structSchema[retrieveContextInput]() }

func (t retrieveContext) Execute(ctx context.Context, args json.RawMessage, _ toolexec.ExecutionContext) (json.RawMessage, error) {
	var in retrieveContextInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("retrieve_context: %w", err)
	}
	topK := in.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	t.bus.Emit(events.AgentEvent{Kind: events.KindRetrievalQuery, At: time.Now(), RetrievalQuery: in.Query, RetrievalTopK: topK})

	items, err := t.retriever.Retrieve(ctx, in.Query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve_context: %w", err)
	}
	t.bus.Emit(events.AgentEvent{Kind: events.KindRetrievalResults, At: time.Now(), RetrievalQuery: in.Query, RetrievalItems: items})
	return json.Marshal(items)
}
