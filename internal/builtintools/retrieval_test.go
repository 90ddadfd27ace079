package builtintools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emmett08/unified-agent-sdk/internal/bus"
	"github.com/emmett08/unified-agent-sdk/internal/toolexec"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

type stubRetriever struct {
	gotQuery string
	gotTopK  int
	items    []events.RetrievedItem
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, topK int) ([]events.RetrievedItem, error) {
	s.gotQuery = query
	s.gotTopK = topK
	return s.items, nil
}

func TestRetrieveContext_DefaultsTopKAndEmitsQueryThenResults(t *testing.T) {
	retriever := &stubRetriever{items: []events.RetrievedItem{{ID: "doc-1", Text: "hello", Score: 0.9}}}
	eventBus := bus.New()
	ch := eventBus.Iterate()

	tool := NewRetrieveContext(eventBus, retriever)
	args, _ := json.Marshal(map[string]string{"query": "find me"})
	out, err := tool.Execute(context.Background(), args, toolexec.ExecutionContext{})
	require.NoError(t, err)

	var items []events.RetrievedItem
	require.NoError(t, json.Unmarshal(out, &items))
	require.Equal(t, retriever.items, items)
	require.Equal(t, "find me", retriever.gotQuery)
	require.Equal(t, defaultTopK, retriever.gotTopK)

	eventBus.Close("done")
	var kinds []events.Kind
	for ev := range ch {
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []events.Kind{events.KindRetrievalQuery, events.KindRetrievalResults}, kinds)
}

func TestRetrieveContext_HonorsExplicitTopK(t *testing.T) {
	retriever := &stubRetriever{}
	eventBus := bus.New()
	tool := NewRetrieveContext(eventBus, retriever)
	args, _ := json.Marshal(map[string]any{"query": "q", "topK": 3})
	_, err := tool.Execute(context.Background(), args, toolexec.ExecutionContext{})
	require.NoError(t, err)
	require.Equal(t, 3, retriever.gotTopK)
}
