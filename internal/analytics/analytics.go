// Package analytics implements C8: PageRank, Louvain community detection,
// dedup-candidate Jaccard scoring, serendipitous discovery, path exploration
// and precomputed discovery-candidate generation over the entity graph.
package analytics

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// Named analytics parameters, per spec.md §4.8.
const (
	// PageRankDamping (α) is PageRank's damping factor.
	PageRankDamping = 0.85

	// PageRankTolerance bounds PageRank's iterative convergence; gonum's
	// implementation does not expose a max-iteration knob directly, so the
	// tolerance is tightened instead to approximate the ~100-iteration
	// convergence window named in the source design.
	PageRankTolerance = 1e-7

	// communityResolution is Louvain's resolution parameter (1.0 = standard
	// modularity).
	communityResolution = 1.0

	// communitySeed fixes the modularity optimizer's tie-breaking RNG so
	// repeated analyze() calls over the same graph are deterministic.
	communitySeed = 42

	// jaccardSampleLimit caps the nodes considered for pairwise dedup
	// scoring.
	jaccardSampleLimit = 200

	// jaccardDedupThreshold is the minimum neighbor-set Jaccard ratio for a
	// pair of entities to be surfaced as a dedup candidate.
	jaccardDedupThreshold = 0.8

	// scoreWriteBatchSize batches WriteScores calls, per spec.md's
	// UNWIND-MATCH-SET batching of 500.
	scoreWriteBatchSize = 500

	// bridgeHubTopN is how many top-betweenness nodes become
	// high_betweenness_hub candidates.
	bridgeHubTopN = 10
)

// Engine implements C8 over a graph store.
type Engine struct {
	Graph memory.GraphStore
}

// entityGraph is the in-memory undirected projection analytics operates on,
// with a stable string<->int64 id mapping.
type entityGraph struct {
	g        *simple.UndirectedGraph
	idOf     map[string]int64
	nameOf   map[int64]string
}

func (e *Engine) buildProjection(ctx context.Context) (*entityGraph, error) {
	rels, err := e.Graph.AllRelationshipsForProjection(ctx)
	if err != nil {
		return nil, fmt.Errorf("analytics: load relationships: %w", err)
	}

	eg := &entityGraph{g: simple.NewUndirectedGraph(), idOf: map[string]int64{}, nameOf: map[int64]string{}}
	nodeID := func(name string) int64 {
		if id, ok := eg.idOf[name]; ok {
			return id
		}
		id := int64(len(eg.idOf))
		eg.idOf[name] = id
		eg.nameOf[id] = name
		eg.g.AddNode(simple.Node(id))
		return id
	}

	for _, r := range rels {
		if r.Source == r.Target {
			continue // self-loops forbidden at insert; defensive skip here too
		}
		u, v := nodeID(r.Source), nodeID(r.Target)
		if !eg.g.HasEdgeBetween(u, v) {
			eg.g.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(v)})
		}
	}
	return eg, nil
}

// AnalyzeResult is returned by [Engine.Analyze].
type AnalyzeResult struct {
	PageRank        map[string]float64
	Community       map[string]int
	DedupCandidates []DedupCandidate
}

// DedupCandidate is a pair of entities whose neighbor sets are highly
// overlapping, surfaced as a merge suggestion.
type DedupCandidate struct {
	EntityA string
	EntityB string
	Jaccard float64
}

// Analyze implements analyze(): PageRank + Louvain community detection on
// the undirected projection, plus pairwise-Jaccard dedup candidates over up
// to jaccardSampleLimit nodes. When storeScores, pagerank/community are
// written back in batches of scoreWriteBatchSize.
func (e *Engine) Analyze(ctx context.Context, storeScores bool) (AnalyzeResult, error) {
	eg, err := e.buildProjection(ctx)
	if err != nil {
		return AnalyzeResult{}, err
	}
	if eg.g.Nodes().Len() == 0 {
		return AnalyzeResult{PageRank: map[string]float64{}, Community: map[string]int{}}, nil
	}

	ranks := network.PageRank(eg.g, PageRankDamping, PageRankTolerance)
	pageRank := make(map[string]float64, len(ranks))
	for id, score := range ranks {
		pageRank[eg.nameOf[id]] = score
	}

	reduced := community.Modularize(eg.g, communityResolution, rand.New(rand.NewSource(communitySeed)))
	communityOf := make(map[string]int, len(eg.idOf))
	for ci, members := range reduced.Structure() {
		for _, n := range members {
			communityOf[eg.nameOf[n.ID()]] = ci
		}
	}

	dedup := jaccardDedupCandidates(eg)

	if storeScores {
		if err := e.writeScoresBatched(ctx, pageRank, communityOf); err != nil {
			return AnalyzeResult{}, err
		}
	}

	return AnalyzeResult{PageRank: pageRank, Community: communityOf, DedupCandidates: dedup}, nil
}

func (e *Engine) writeScoresBatched(ctx context.Context, pageRank map[string]float64, communityOf map[string]int) error {
	names := make([]string, 0, len(pageRank))
	for name := range pageRank {
		names = append(names, name)
	}
	sort.Strings(names)

	for i := 0; i < len(names); i += scoreWriteBatchSize {
		end := min(i+scoreWriteBatchSize, len(names))
		batch := make(map[string]struct {
			PageRank  float64
			Community int
		}, end-i)
		for _, name := range names[i:end] {
			batch[name] = struct {
				PageRank  float64
				Community int
			}{PageRank: pageRank[name], Community: communityOf[name]}
		}
		if err := e.Graph.WriteScores(ctx, batch); err != nil {
			return fmt.Errorf("analytics: write scores: %w", err)
		}
	}
	return nil
}

// jaccardDedupCandidates scores pairwise neighbor-set overlap for up to
// jaccardSampleLimit nodes (the first names in sorted order), keeping pairs whose
// ratio exceeds jaccardDedupThreshold.
func jaccardDedupCandidates(eg *entityGraph) []DedupCandidate {
	names := make([]string, 0, len(eg.idOf))
	for name := range eg.idOf {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > jaccardSampleLimit {
		names = names[:jaccardSampleLimit]
	}

	neighborSets := make(map[string]map[int64]bool, len(names))
	for _, name := range names {
		id := eg.idOf[name]
		set := map[int64]bool{}
		nodes := eg.g.From(id)
		for nodes.Next() {
			set[nodes.Node().ID()] = true
		}
		neighborSets[name] = set
	}

	var out []DedupCandidate
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			ratio := jaccard(neighborSets[names[i]], neighborSets[names[j]])
			if ratio > jaccardDedupThreshold {
				out = append(out, DedupCandidate{EntityA: names[i], EntityB: names[j], Jaccard: ratio})
			}
		}
	}
	return out
}

func jaccard(a, b map[int64]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// DiscoverResult is one scored entry returned by [Engine.Discover].
type DiscoverResult struct {
	Entity      string
	Relevance   float64
	Novelty     float64
	Serendipity float64
	Community   int
	Neighbors   []string
}

// discoverNeighborSampleSize caps the neighbor sample attached to each
// discover() result.
const discoverNeighborSampleSize = 5

// Discover implements discover(topic, novelty_weight), per spec.md §4.8: home
// nodes are located by case-insensitive substring match (falling back to
// shared-token overlap); every other reachable node is scored on
// relevance = 1/(1+d(home,node)) shortest-path distance, blended with a
// novelty term of 0.6·cross_community + 0.4·pagerank-obscurity.
func (e *Engine) Discover(ctx context.Context, topic string, noveltyWeight float64, maxResults int) ([]DiscoverResult, error) {
	eg, err := e.buildProjection(ctx)
	if err != nil {
		return nil, err
	}
	if eg.g.Nodes().Len() == 0 {
		return nil, nil
	}

	ranks := network.PageRank(eg.g, PageRankDamping, PageRankTolerance)
	reduced := community.Modularize(eg.g, communityResolution, rand.New(rand.NewSource(communitySeed)))
	communityOf := make(map[int64]int, eg.g.Nodes().Len())
	for ci, members := range reduced.Structure() {
		for _, n := range members {
			communityOf[n.ID()] = ci
		}
	}

	homeNodes := findHomeNodes(eg, topic)
	homeCommunities := map[int]bool{}
	for _, id := range homeNodes {
		homeCommunities[communityOf[id]] = true
	}
	distances := multiSourceDistances(eg, homeNodes)

	maxPageRank := 0.0
	for _, r := range ranks {
		maxPageRank = math.Max(maxPageRank, r)
	}
	if maxPageRank == 0 {
		maxPageRank = 1
	}

	homeSet := map[int64]bool{}
	for _, id := range homeNodes {
		homeSet[id] = true
	}

	var results []DiscoverResult
	nodes := eg.g.Nodes()
	for nodes.Next() {
		n := nodes.Node()
		id := n.ID()
		if homeSet[id] {
			continue
		}
		dist, reachable := distances[id]
		if !reachable {
			continue
		}
		relevance := 1.0 / (1.0 + float64(dist))

		crossCommunity := 0.0
		if !homeCommunities[communityOf[id]] {
			crossCommunity = 1.0
		}
		obscurity := 1 - ranks[id]/maxPageRank
		novelty := 0.6*crossCommunity + 0.4*obscurity
		serendipity := (1-noveltyWeight)*relevance + noveltyWeight*novelty

		if serendipity <= 0.1 {
			continue
		}

		results = append(results, DiscoverResult{
			Entity: eg.nameOf[id], Relevance: relevance, Novelty: novelty,
			Serendipity: serendipity, Community: communityOf[id],
			Neighbors: sampleNeighbors(eg, id, discoverNeighborSampleSize),
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Serendipity > results[j].Serendipity })
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// multiSourceDistances returns each reachable node's hop count to its
// nearest home node via breadth-first search over the undirected
// projection. Home nodes themselves are distance 0.
func multiSourceDistances(eg *entityGraph, homeNodes []int64) map[int64]int {
	dist := make(map[int64]int, len(homeNodes))
	queue := make([]int64, 0, len(homeNodes))
	for _, id := range homeNodes {
		if _, ok := dist[id]; !ok {
			dist[id] = 0
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		nodes := eg.g.From(id)
		for nodes.Next() {
			nid := nodes.Node().ID()
			if _, ok := dist[nid]; !ok {
				dist[nid] = dist[id] + 1
				queue = append(queue, nid)
			}
		}
	}
	return dist
}

// findHomeNodes resolves topic to graph nodes: first by case-insensitive
// substring match against entity names, falling back to shared-token
// overlap when no substring match exists.
func findHomeNodes(eg *entityGraph, topic string) []int64 {
	lower := strings.ToLower(topic)
	var matches []int64
	for name, id := range eg.idOf {
		if strings.Contains(strings.ToLower(name), lower) {
			matches = append(matches, id)
		}
	}
	if len(matches) > 0 {
		return matches
	}

	topicTokens := strings.Fields(lower)
	if len(topicTokens) == 0 {
		return nil
	}
	bestScore := 0
	for name, id := range eg.idOf {
		nameTokens := strings.Fields(strings.ToLower(name))
		score := sharedTokenCount(topicTokens, nameTokens)
		if score > bestScore {
			bestScore = score
			matches = []int64{id}
		} else if score == bestScore && score > 0 {
			matches = append(matches, id)
		}
	}
	return matches
}

func sharedTokenCount(a, b []string) int {
	set := map[string]bool{}
	for _, t := range a {
		set[t] = true
	}
	n := 0
	for _, t := range b {
		if set[t] {
			n++
		}
	}
	return n
}

func sampleNeighbors(eg *entityGraph, id int64, limit int) []string {
	var out []string
	nodes := eg.g.From(id)
	for nodes.Next() && len(out) < limit {
		out = append(out, eg.nameOf[nodes.Node().ID()])
	}
	sort.Strings(out)
	return out
}

// PathStep is one hop in an explore_paths result.
type PathStep struct {
	Entity       string
	Relationship string
}

// ExplorePath is one path entry in an explore_paths result.
type ExplorePath struct {
	Steps               []PathStep
	Detour               bool
	CommunitiesTraversed []int
}

// ExplorePaths implements explore_paths(source, target?, max_depth,
// max_paths), per spec.md §4.8.
func (e *Engine) ExplorePaths(ctx context.Context, source, target string, maxDepth, maxPaths int) ([]ExplorePath, error) {
	if target != "" {
		return e.explorePathsToTarget(ctx, source, target, maxDepth, maxPaths)
	}
	return e.exploreReachableRanked(ctx, source, maxDepth, maxPaths)
}

func (e *Engine) explorePathsToTarget(ctx context.Context, source, target string, maxDepth, maxPaths int) ([]ExplorePath, error) {
	nodes, rels, err := e.Graph.FindPath(ctx, source, target, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("analytics: find path: %w", err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	eg, err := e.buildProjection(ctx)
	if err != nil {
		return nil, err
	}
	reduced := community.Modularize(eg.g, communityResolution, rand.New(rand.NewSource(communitySeed)))
	communityOf := make(map[string]int, len(eg.idOf))
	for ci, members := range reduced.Structure() {
		for _, n := range members {
			communityOf[eg.nameOf[n.ID()]] = ci
		}
	}

	shortest := formatPath(nodes, rels, communityOf, false)
	out := []ExplorePath{shortest}

	longer, err := e.Graph.Neighbors(ctx, source, maxDepth, memory.TraverseMaxNodes(50))
	if err == nil && len(longer) > len(nodes) {
		detourNodes := longer
		if maxDepth > 0 && len(detourNodes) > maxDepth+1 {
			detourNodes = detourNodes[:maxDepth+1]
		}
		detourNames := make([]string, len(detourNodes))
		for i, n := range detourNodes {
			detourNames[i] = n.Name
		}
		out = append(out, formatPath(detourNames, nil, communityOf, true))
	}

	if maxPaths > 0 && len(out) > maxPaths {
		out = out[:maxPaths]
	}
	return out, nil
}

func (e *Engine) exploreReachableRanked(ctx context.Context, source string, maxDepth, maxPaths int) ([]ExplorePath, error) {
	reachable, err := e.Graph.Neighbors(ctx, source, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("analytics: neighbors: %w", err)
	}

	eg, err := e.buildProjection(ctx)
	if err != nil {
		return nil, err
	}
	reduced := community.Modularize(eg.g, communityResolution, rand.New(rand.NewSource(communitySeed)))
	communityOf := make(map[string]int, len(eg.idOf))
	for ci, members := range reduced.Structure() {
		for _, n := range members {
			communityOf[eg.nameOf[n.ID()]] = ci
		}
	}
	sourceCommunity := communityOf[source]

	type scored struct {
		name  string
		score float64
	}
	var entries []scored
	for i, n := range reachable {
		distance := float64(i + 1)
		crossCommunity := 0.0
		if communityOf[n.Name] != sourceCommunity {
			crossCommunity = 1.0
		}
		entries = append(entries, scored{name: n.Name, score: crossCommunity * distance})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].score > entries[j].score })

	var out []ExplorePath
	for _, en := range entries {
		out = append(out, ExplorePath{
			Steps:                []PathStep{{Entity: source}, {Entity: en.name}},
			CommunitiesTraversed: []int{sourceCommunity, communityOf[en.name]},
		})
	}
	if maxPaths > 0 && len(out) > maxPaths {
		out = out[:maxPaths]
	}
	return out, nil
}

func formatPath(nodeNames []string, rels []memory.Relationship, communityOf map[string]int, detour bool) ExplorePath {
	steps := make([]PathStep, len(nodeNames))
	for i, name := range nodeNames {
		step := PathStep{Entity: name}
		if i > 0 && i-1 < len(rels) {
			step.Relationship = string(rels[i-1].Type)
		}
		steps[i] = step
	}
	traversed := map[int]bool{}
	var order []int
	for _, name := range nodeNames {
		c := communityOf[name]
		if !traversed[c] {
			traversed[c] = true
			order = append(order, c)
		}
	}
	return ExplorePath{Steps: steps, Detour: detour, CommunitiesTraversed: order}
}

// GenerateCandidates implements generate_candidates(), per spec.md §4.8:
// every edge whose endpoints sit in different non-negative communities
// becomes a cross_community_bridge candidate scored 1/(1+min(deg u, deg v));
// the top bridgeHubTopN betweenness-centrality nodes become
// high_betweenness_hub candidates. Prior candidates are purged first.
func (e *Engine) GenerateCandidates(ctx context.Context) ([]memory.DiscoveryCandidate, error) {
	eg, err := e.buildProjection(ctx)
	if err != nil {
		return nil, err
	}
	if eg.g.Nodes().Len() == 0 {
		return nil, nil
	}

	reduced := community.Modularize(eg.g, communityResolution, rand.New(rand.NewSource(communitySeed)))
	communityOf := make(map[int64]int, eg.g.Nodes().Len())
	for ci, members := range reduced.Structure() {
		for _, n := range members {
			communityOf[n.ID()] = ci
		}
	}

	var candidates []memory.DiscoveryCandidate
	edges := eg.g.Edges()
	for edges.Next() {
		edge := edges.Edge()
		u, v := edge.From().ID(), edge.To().ID()
		cu, cv := communityOf[u], communityOf[v]
		if cu < 0 || cv < 0 || cu == cv {
			continue
		}
		degU := eg.g.From(u).Len()
		degV := eg.g.From(v).Len()
		score := 1.0 / (1.0 + float64(min(degU, degV)))
		candidates = append(candidates, memory.DiscoveryCandidate{
			EntityA: eg.nameOf[u], EntityB: eg.nameOf[v], Type: memory.CrossCommunityBridge,
			BridgeScore: score, CommunityA: cu, CommunityB: cv,
		})
	}

	between := network.Betweenness(eg.g)
	type hub struct {
		id    int64
		score float64
	}
	hubs := make([]hub, 0, len(between))
	for id, score := range between {
		hubs = append(hubs, hub{id: id, score: score})
	}
	sort.Slice(hubs, func(i, j int) bool { return hubs[i].score > hubs[j].score })
	if len(hubs) > bridgeHubTopN {
		hubs = hubs[:bridgeHubTopN]
	}
	for _, h := range hubs {
		candidates = append(candidates, memory.DiscoveryCandidate{
			EntityA: eg.nameOf[h.id], Type: memory.HighBetweennessHub,
			BridgeScore: h.score, CommunityA: communityOf[h.id], CommunityB: -1,
		})
	}

	if err := e.Graph.ReplaceDiscoveryCandidates(ctx, candidates); err != nil {
		return nil, fmt.Errorf("analytics: replace discovery candidates: %w", err)
	}
	return candidates, nil
}

const defaultExportLimit = 100

// Export implements GET /graph/export: "top" sorts by descending PageRank,
// "community" filters to a single community index, "all" returns every
// entity up to limit.
func (e *Engine) Export(ctx context.Context, mode string, limit int, community *int) ([]memory.Entity, error) {
	if limit <= 0 {
		limit = defaultExportLimit
	}
	filter := memory.EntityFilter{Limit: limit}
	if mode == "community" {
		filter.Community = community
	}
	entities, err := e.Graph.FindEntities(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("analytics: export: find entities: %w", err)
	}
	if mode == "top" {
		sort.Slice(entities, func(i, j int) bool { return entities[i].PageRank > entities[j].PageRank })
	}
	if len(entities) > limit {
		entities = entities[:limit]
	}
	return entities, nil
}
