package similarity

import "container/heap"

// Match is a token with its percentage-scaled similarity score.
type Match struct {
	Token string  `json:"token"`
	Score float64 `json:"score"`
}

// Better reports whether a ranks ahead of b: higher score first, then
// ascending token.
func Better(a, b Match) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Token < b.Token
}

// topK keeps the best limit matches seen so far.
type topK struct {
	limit int
	h     matchHeap
}

func newTopK(limit int) *topK {
	return &topK{limit: limit, h: make(matchHeap, 0, limit+1)}
}

func (t *topK) push(m Match) {
	if t.h.Len() == t.limit && !Better(m, t.h[0]) {
		return
	}
	heap.Push(&t.h, m)
	if t.h.Len() > t.limit {
		heap.Pop(&t.h)
	}
}

// result drains the heap, best match first.
func (t *topK) result() []Match {
	out := make([]Match, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(Match)
	}
	return out
}

// matchHeap is a min-heap with the worst-ranked match at the root.
type matchHeap []Match

func (h matchHeap) Len() int { return len(h) }

func (h matchHeap) Less(i, j int) bool { return Better(h[j], h[i]) }

func (h matchHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *matchHeap) Push(x interface{}) {
	*h = append(*h, x.(Match))
}

func (h *matchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
