package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"finsight-backend/llm"
)

// maxTripletsPerChunk bounds how many entity/relation triplets the model
// is asked for per chunk
const maxTripletsPerChunk = 2

const tripletPromptTemplate = `Extract up to %d knowledge triplets from the text below.
A triplet is (subject, relation, object), for example ("Acme Corp", "reported revenue of", "$4.2 billion").

Return ONLY a valid JSON array with this structure:
[
    {"subject": "...", "relation": "...", "object": "..."}
]

Do not include any additional text or explanations.

Text: %s`

// extractTriplets asks the completion adapter for entity/relation triplets
// for each chunk. Extraction is best-effort: the graph is visualization
// only, so a failed chunk is logged and skipped rather than failing the
// build.
func (m *Manager) extractTriplets(ctx context.Context, chunks []string) []graphEdge {
	var edges []graphEdge
	for i, chunk := range chunks {
		prompt := fmt.Sprintf(tripletPromptTemplate, maxTripletsPerChunk, chunk)
		raw, err := m.completer.Complete(ctx, prompt, 0)
		if err != nil {
			m.log.Warn("triplet extraction failed for chunk",
				zap.Int("chunk", i), zap.Error(err))
			continue
		}

		var triplets []graphEdge
		if err := json.Unmarshal([]byte(llm.StripCodeFences(raw)), &triplets); err != nil {
			m.log.Warn("triplet response was not valid JSON",
				zap.Int("chunk", i), zap.Error(err))
			continue
		}

		for _, t := range triplets {
			if t.Subject == "" || t.Object == "" {
				continue
			}
			edges = append(edges, t)
		}
	}
	return edges
}

// graphTemplate renders a self-contained interactive network page the
// frontend embeds as-is.
var graphTemplate = template.Must(template.New("graph").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<script src="https://unpkg.com/vis-network/standalone/umd/vis-network.min.js"></script>
<style type="text/css">
  #graph { width: 100%; height: 600px; border: 1px solid #ddd; }
</style>
</head>
<body>
<div id="graph"></div>
<script type="text/javascript">
  var nodes = new vis.DataSet({{.Nodes}});
  var edges = new vis.DataSet({{.Edges}});
  var container = document.getElementById("graph");
  var data = { nodes: nodes, edges: edges };
  var options = {
    edges: { arrows: "to", font: { size: 10, align: "middle" } },
    nodes: { shape: "dot", size: 12 },
    physics: { stabilization: true }
  };
  new vis.Network(container, data, options);
</script>
</body>
</html>
`))

type visNode struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

type visEdge struct {
	From  int    `json:"from"`
	To    int    `json:"to"`
	Label string `json:"label"`
}

// renderGraphHTML produces the visualization snapshot for the partition's
// current edge set
func renderGraphHTML(edges []graphEdge) ([]byte, error) {
	nodeIDs := make(map[string]int)
	var nodes []visNode
	nodeID := func(label string) int {
		if id, ok := nodeIDs[label]; ok {
			return id
		}
		id := len(nodes)
		nodeIDs[label] = id
		nodes = append(nodes, visNode{ID: id, Label: label})
		return id
	}

	visEdges := make([]visEdge, 0, len(edges))
	for _, e := range edges {
		visEdges = append(visEdges, visEdge{
			From:  nodeID(e.Subject),
			To:    nodeID(e.Object),
			Label: e.Relation,
		})
	}

	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal graph nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(visEdges)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal graph edges: %w", err)
	}

	var buf bytes.Buffer
	err = graphTemplate.Execute(&buf, map[string]template.JS{
		"Nodes": template.JS(nodesJSON),
		"Edges": template.JS(edgesJSON),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render graph html: %w", err)
	}
	return buf.Bytes(), nil
}
