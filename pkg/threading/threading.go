// Package threading groups normalized messages into conversation threads:
// checksum dedupe, conversation-id grouping, reply-chain closure, normalized
// subject fallback, and a trigram-similarity semantic merge.
package threading

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/inboxly/maildigest/pkg/models"
)

// SemanticMergeThreshold is the minimum trigram Jaccard similarity for
// merging two subject-identical groups.
const SemanticMergeThreshold = 0.7

// Stats summarizes one thread-build run.
type Stats struct {
	OriginalMessages int
	DuplicatesFound  int
	ThreadCount      int

	// MergesByMethod counts union operations per merge method.
	MergesByMethod map[models.MergeMethod]int
}

// RedundancyIndex is the fraction of the original message count eliminated
// by dedupe and merging.
func (s Stats) RedundancyIndex() float64 {
	if s.OriginalMessages == 0 {
		return 0
	}
	return float64(s.OriginalMessages-s.ThreadCount) / float64(s.OriginalMessages)
}

// merge method strength, weakest-applied wins as provenance: a thread that
// needed the semantic fallback is recorded as semantic even if parts of it
// were linked by conversation id.
var methodRank = map[models.MergeMethod]int{
	models.MergedByConversationID: 0,
	models.MergedByReplyChain:     1,
	models.MergedBySubject:        2,
	models.MergedBySemantic:       3,
}

var rankMethod = []models.MergeMethod{
	models.MergedByConversationID,
	models.MergedByReplyChain,
	models.MergedBySubject,
	models.MergedBySemantic,
}

// Build groups messages into threads. Input order does not matter; output
// threads are sorted by latest received-at descending and each message
// appears in exactly one thread.
func Build(msgs []models.Message) ([]models.Thread, Stats) {
	stats := Stats{
		OriginalMessages: len(msgs),
		MergesByMethod:   make(map[models.MergeMethod]int),
	}
	if len(msgs) == 0 {
		return nil, stats
	}

	ordered := make([]models.Message, len(msgs))
	copy(ordered, msgs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].ReceivedAt.Equal(ordered[j].ReceivedAt) {
			return ordered[i].ReceivedAt.Before(ordered[j].ReceivedAt)
		}
		return ordered[i].MessageID < ordered[j].MessageID
	})

	primaries, duplicates := dedupe(ordered)
	stats.DuplicatesFound = len(ordered) - len(primaries)

	b := newBuilder(primaries)
	b.groupByConversation()
	b.groupByReplyChain()
	b.groupBySubject()
	b.semanticMerge()

	threads := b.threads(duplicates)
	sort.SliceStable(threads, func(i, j int) bool {
		if !threads[i].LatestReceivedAt.Equal(threads[j].LatestReceivedAt) {
			return threads[i].LatestReceivedAt.After(threads[j].LatestReceivedAt)
		}
		return threads[i].ThreadID < threads[j].ThreadID
	})

	stats.ThreadCount = len(threads)
	for k, v := range b.merges {
		stats.MergesByMethod[k] = v
	}
	return threads, stats
}

// dedupe collapses messages sharing a body checksum onto the earliest one.
// Returns the retained primaries and suppressed ids keyed by primary id.
func dedupe(ordered []models.Message) ([]models.Message, map[string][]string) {
	seen := make(map[string]string, len(ordered)) // checksum -> primary id
	duplicates := make(map[string][]string)
	primaries := make([]models.Message, 0, len(ordered))
	for _, m := range ordered {
		if primary, ok := seen[m.BodyChecksum]; ok {
			duplicates[primary] = append(duplicates[primary], m.MessageID)
			continue
		}
		seen[m.BodyChecksum] = m.MessageID
		primaries = append(primaries, m)
	}
	return primaries, duplicates
}

// builder is a union-find over primary message indices with per-component
// merge provenance.
type builder struct {
	msgs    []models.Message
	parent  []int
	rank    []int // provenance rank per root
	byID    map[string]int
	subject []string // normalized subject per message
	linked  []bool   // touched by conversation-id or reply-chain grouping
	merges  map[models.MergeMethod]int
}

func newBuilder(msgs []models.Message) *builder {
	b := &builder{
		msgs:    msgs,
		parent:  make([]int, len(msgs)),
		rank:    make([]int, len(msgs)),
		byID:    make(map[string]int, len(msgs)),
		subject: make([]string, len(msgs)),
		linked:  make([]bool, len(msgs)),
		merges:  make(map[models.MergeMethod]int),
	}
	for i := range msgs {
		b.parent[i] = i
		b.byID[msgs[i].MessageID] = i
		b.subject[i] = NormalizeSubject(msgs[i].Subject)
	}
	return b
}

func (b *builder) find(i int) int {
	for b.parent[i] != i {
		b.parent[i] = b.parent[b.parent[i]]
		i = b.parent[i]
	}
	return i
}

func (b *builder) union(i, j int, method models.MergeMethod) {
	ri, rj := b.find(i), b.find(j)
	if ri == rj {
		return
	}
	// Lower index wins as root so the earliest message anchors the thread.
	if rj < ri {
		ri, rj = rj, ri
	}
	b.parent[rj] = ri
	r := methodRank[method]
	if b.rank[rj] > r {
		r = b.rank[rj]
	}
	if b.rank[ri] > r {
		r = b.rank[ri]
	}
	b.rank[ri] = r
	b.merges[method]++
}

func (b *builder) groupByConversation() {
	first := make(map[string]int)
	for i, m := range b.msgs {
		if m.ConversationID == "" {
			continue
		}
		b.linked[i] = true
		if j, ok := first[m.ConversationID]; ok {
			b.union(i, j, models.MergedByConversationID)
			continue
		}
		first[m.ConversationID] = i
	}
}

func (b *builder) groupByReplyChain() {
	for i, m := range b.msgs {
		refs := m.References
		if m.InReplyTo != "" {
			refs = append(refs[:len(refs):len(refs)], m.InReplyTo)
		}
		for _, ref := range refs {
			j, ok := b.byID[ref]
			if !ok {
				continue
			}
			b.linked[i] = true
			b.linked[j] = true
			b.union(i, j, models.MergedByReplyChain)
		}
	}
}

// groupBySubject is the fallback for messages with no conversation id and no
// resolvable reply reference.
func (b *builder) groupBySubject() {
	first := make(map[string]int)
	for i := range b.msgs {
		if b.linked[i] || b.subject[i] == "" {
			continue
		}
		if j, ok := first[b.subject[i]]; ok {
			b.union(i, j, models.MergedBySubject)
			continue
		}
		first[b.subject[i]] = i
	}
}

// semanticMerge joins otherwise-unlinked groups that share a normalized
// subject when their body openings are near-duplicates.
func (b *builder) semanticMerge() {
	bySubject := make(map[string][]int)
	for i := range b.msgs {
		root := b.find(i)
		subj := b.subject[root]
		if subj == "" {
			continue
		}
		roots := bySubject[subj]
		if len(roots) == 0 || roots[len(roots)-1] != root {
			if !containsInt(roots, root) {
				bySubject[subj] = append(roots, root)
			}
		}
	}

	for _, roots := range bySubject {
		if len(roots) < 2 {
			continue
		}
		samples := make(map[int]string, len(roots))
		for _, r := range roots {
			samples[r] = bodySample(b.concatBodies(r))
		}
		for x := 0; x < len(roots); x++ {
			for y := x + 1; y < len(roots); y++ {
				rx, ry := b.find(roots[x]), b.find(roots[y])
				if rx == ry {
					continue
				}
				if trigramJaccard(samples[roots[x]], samples[roots[y]]) >= SemanticMergeThreshold {
					b.union(roots[x], roots[y], models.MergedBySemantic)
				}
			}
		}
	}
}

func (b *builder) concatBodies(root int) string {
	var parts []string
	for i := range b.msgs {
		if b.find(i) == root {
			parts = append(parts, b.msgs[i].BodyNormalized)
		}
	}
	return strings.Join(parts, "\n")
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// threads materializes the final components.
func (b *builder) threads(duplicates map[string][]string) []models.Thread {
	members := make(map[int][]int)
	for i := range b.msgs {
		root := b.find(i)
		members[root] = append(members[root], i)
	}

	out := make([]models.Thread, 0, len(members))
	for root, idxs := range members {
		sort.Ints(idxs) // input already sorted by received-at ascending

		t := models.Thread{
			ThreadID:   threadID(b.msgs[idxs[0]].MessageID),
			MessageIDs: make([]string, 0, len(idxs)),
			MergedBy:   b.provenance(root, idxs),
		}
		participants := make(map[string]struct{})
		for _, i := range idxs {
			m := &b.msgs[i]
			t.MessageIDs = append(t.MessageIDs, m.MessageID)
			t.DuplicateSources = append(t.DuplicateSources, duplicates[m.MessageID]...)
			if m.ReceivedAt.After(t.LatestReceivedAt) {
				t.LatestReceivedAt = m.ReceivedAt
			}
			if m.FromEmail != "" {
				participants[m.FromEmail] = struct{}{}
			}
			for _, e := range m.ToEmails {
				participants[e] = struct{}{}
			}
			for _, e := range m.CcEmails {
				participants[e] = struct{}{}
			}
		}
		t.ParticipantsCount = len(participants)
		out = append(out, t)
	}
	return out
}

// provenance is the recorded merge method: for multi-message threads the
// weakest link that was needed; for singletons, conversation id when the
// mailbox supplied one, subject otherwise.
func (b *builder) provenance(root int, idxs []int) models.MergeMethod {
	if len(idxs) > 1 {
		return rankMethod[b.rank[root]]
	}
	if b.msgs[idxs[0]].ConversationID != "" {
		return models.MergedByConversationID
	}
	return models.MergedBySubject
}

// threadID derives a stable thread id from the earliest member's message id.
func threadID(firstMessageID string) string {
	sum := sha256.Sum256([]byte("thread\x00" + firstMessageID))
	return hex.EncodeToString(sum[:8])
}
