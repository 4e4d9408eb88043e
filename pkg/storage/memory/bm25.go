package memory

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

const snippetTokens = 32

// bm25Index is an inverted index over message text scored with BM25. It is
// not safe for concurrent use; Storage guards it with its own lock.
type bm25Index struct {
	k1 float64
	b  float64

	// term -> message ids
	postings map[string]map[string]struct{}
	// message id -> term frequencies
	termFreqs  map[string]map[string]int
	docLengths map[string]int
	owners     map[string]string

	totalLen  int
	stopWords map[string]struct{}
}

func newBM25Index(k1, b float64) *bm25Index {
	return &bm25Index{
		k1:         k1,
		b:          b,
		postings:   make(map[string]map[string]struct{}),
		termFreqs:  make(map[string]map[string]int),
		docLengths: make(map[string]int),
		owners:     make(map[string]string),
		stopWords:  defaultStopWords(),
	}
}

func (idx *bm25Index) add(msgID, userID, text string) {
	idx.remove(msgID)

	tokens := idx.tokenize(text)
	freqs := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freqs[tok]++
	}
	idx.termFreqs[msgID] = freqs
	idx.docLengths[msgID] = len(tokens)
	idx.owners[msgID] = userID
	idx.totalLen += len(tokens)

	for term := range freqs {
		if idx.postings[term] == nil {
			idx.postings[term] = make(map[string]struct{})
		}
		idx.postings[term][msgID] = struct{}{}
	}
}

func (idx *bm25Index) remove(msgID string) {
	freqs, ok := idx.termFreqs[msgID]
	if !ok {
		return
	}
	for term := range freqs {
		if docs, ok := idx.postings[term]; ok {
			delete(docs, msgID)
			if len(docs) == 0 {
				delete(idx.postings, term)
			}
		}
	}
	idx.totalLen -= idx.docLengths[msgID]
	delete(idx.termFreqs, msgID)
	delete(idx.docLengths, msgID)
	delete(idx.owners, msgID)
}

type scoredDoc struct {
	id    string
	score float64
}

// search returns the owner's matching documents, best first, unsorted among
// equal scores.
func (idx *bm25Index) search(userID string, terms []string) []scoredDoc {
	total := len(idx.termFreqs)
	if total == 0 || len(terms) == 0 {
		return nil
	}
	avgDL := float64(idx.totalLen) / float64(total)

	candidates := make(map[string]struct{})
	for _, term := range terms {
		for id := range idx.postings[term] {
			if idx.owners[id] == userID {
				candidates[id] = struct{}{}
			}
		}
	}

	results := make([]scoredDoc, 0, len(candidates))
	for id := range candidates {
		if score := idx.score(id, terms, avgDL, total); score > 0 {
			results = append(results, scoredDoc{id: id, score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	return results
}

func (idx *bm25Index) score(docID string, terms []string, avgDL float64, total int) float64 {
	docLen := float64(idx.docLengths[docID])
	freqs := idx.termFreqs[docID]
	score := 0.0
	for _, term := range terms {
		tf := float64(freqs[term])
		if tf == 0 {
			continue
		}
		// IDF: log((N - n + 0.5) / (n + 0.5) + 1)
		n := float64(len(idx.postings[term]))
		idf := math.Log((float64(total)-n+0.5)/(n+0.5) + 1.0)

		numerator := tf * (idx.k1 + 1)
		denominator := tf + idx.k1*(1-idx.b+idx.b*docLen/avgDL)
		score += idf * numerator / denominator
	}
	return score
}

// queryTerms keeps the storage-level terms that the index would keep.
func (idx *bm25Index) queryTerms(terms []string) []string {
	out := terms[:0:0]
	for _, t := range terms {
		if _, stop := idx.stopWords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

// tokenize splits text into lowercase tokens, dropping punctuation and stop words.
func (idx *bm25Index) tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := make([]string, 0, len(text)/4)
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		tok := current.String()
		if _, stop := idx.stopWords[tok]; !stop {
			tokens = append(tokens, tok)
		}
		current.Reset()
	}
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// snippet highlights matching words with ** and keeps a window of
// snippetTokens words around the first match, eliding the rest with "...".
func snippet(text string, terms []string) string {
	want := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		want[t] = struct{}{}
	}
	matches := func(word string) bool {
		var b strings.Builder
		for _, r := range strings.ToLower(word) {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		_, ok := want[b.String()]
		return ok
	}

	words := strings.Fields(text)
	first := -1
	for i, w := range words {
		if matches(w) {
			first = i
			break
		}
	}
	start := 0
	if first > snippetTokens/4 {
		start = first - snippetTokens/4
	}
	end := start + snippetTokens
	if end > len(words) {
		end = len(words)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	for i := start; i < end; i++ {
		if i > start {
			b.WriteByte(' ')
		}
		if matches(words[i]) {
			b.WriteString("**" + words[i] + "**")
		} else {
			b.WriteString(words[i])
		}
	}
	if end < len(words) {
		b.WriteString("...")
	}
	return b.String()
}

func defaultStopWords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "could",
		"should", "may", "might", "shall", "can", "to", "of", "in", "for",
		"on", "with", "at", "by", "from", "as", "into", "and", "but", "or",
		"nor", "not", "so", "if", "then", "than", "this", "that", "these",
		"those", "i", "me", "my", "we", "our", "you", "your", "he", "him",
		"his", "she", "her", "it", "its", "they", "them", "their",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
