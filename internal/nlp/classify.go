// Package nlp implements the deterministic heuristic classification
// pipeline applied to every ingested NewsItem: topic, sentiment,
// priority, and keyword extraction (§4.5 step 4). Every function here
// is a pure, deterministic mapping from text to label — no external
// model calls, so identical input always produces identical output.
package nlp

import (
	"regexp"
	"sort"
	"strings"

	"github.com/arrowhq/sentinel/internal/models"
)

// Result is the full classification output for one item's text.
type Result struct {
	Topic     models.Topic
	Sentiment models.Sentiment
	Priority  float64
	Keywords  []models.KeywordRelevance
}

var topicKeywords = map[models.Topic][]string{
	models.TopicProduct:    {"launch", "release", "feature", "update", "version", "rollout", "beta", "ga availability"},
	models.TopicStrategy:   {"acquisition", "merger", "partnership", "expansion", "strategy", "roadmap"},
	models.TopicFinance:    {"funding", "revenue", "valuation", "ipo", "round", "investor", "earnings"},
	models.TopicTechnology: {"architecture", "infrastructure", "api", "sdk", "platform", "integration"},
	models.TopicSecurity:   {"breach", "vulnerability", "exploit", "patch", "incident", "compliance"},
	models.TopicResearch:   {"research", "study", "paper", "benchmark", "whitepaper"},
	models.TopicCommunity:  {"community", "open source", "contributor", "meetup", "conference"},
	models.TopicTalent:     {"hiring", "layoff", "headcount", "team", "executive", "appointed"},
	models.TopicRegulation: {"regulation", "lawsuit", "compliance", "gdpr", "antitrust", "ruling"},
	models.TopicMarket:     {"market share", "competitor", "industry", "demand", "adoption"},
}

var positiveWords = []string{
	"launch", "growth", "success", "record", "win", "award", "breakthrough",
	"partnership", "expand", "improve", "strong", "milestone", "raise",
}

var negativeWords = []string{
	"breach", "lawsuit", "layoff", "decline", "loss", "delay", "outage",
	"vulnerability", "incident", "fail", "shutdown", "controversy", "fine",
}

// priorityBoostWords increase an item's priority score when present,
// reflecting urgency/impact signals independent of sentiment polarity.
var priorityBoostWords = []string{
	"acquisition", "breach", "outage", "funding", "lawsuit", "ipo", "layoff",
}

var wordRe = regexp.MustCompile(`[a-z0-9']+`)
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "with": true, "is": true,
	"it": true, "at": true, "by": true, "as": true, "be": true, "are": true,
	"was": true, "were": true, "this": true, "that": true, "from": true,
}

// Classify runs the full pipeline over a title+content pair.
func Classify(title, content string) Result {
	text := strings.ToLower(title + " " + content)

	return Result{
		Topic:     classifyTopic(text),
		Sentiment: classifySentiment(text),
		Priority:  computePriority(text),
		Keywords:  extractKeywords(text),
	}
}

// classifyTopic scores each topic by keyword hit count and returns the
// highest-scoring topic, breaking ties by enum declaration order via a
// fixed iteration sequence; TopicOther is returned when nothing matches.
func classifyTopic(text string) models.Topic {
	order := []models.Topic{
		models.TopicProduct, models.TopicStrategy, models.TopicFinance,
		models.TopicTechnology, models.TopicSecurity, models.TopicResearch,
		models.TopicCommunity, models.TopicTalent, models.TopicRegulation,
		models.TopicMarket,
	}

	best := models.TopicOther
	bestScore := 0
	for _, topic := range order {
		score := 0
		for _, kw := range topicKeywords[topic] {
			score += strings.Count(text, kw)
		}
		if score > bestScore {
			bestScore = score
			best = topic
		}
	}
	return best
}

// classifySentiment counts positive/negative word hits; a tie with at
// least one hit on each side is "mixed", no hits on either side is
// "neutral".
func classifySentiment(text string) models.Sentiment {
	pos := countHits(text, positiveWords)
	neg := countHits(text, negativeWords)

	switch {
	case pos == 0 && neg == 0:
		return models.SentimentNeutral
	case pos > neg:
		return models.SentimentPositive
	case neg > pos:
		return models.SentimentNegative
	default:
		return models.SentimentMixed
	}
}

func countHits(text string, words []string) int {
	n := 0
	for _, w := range words {
		n += strings.Count(text, w)
	}
	return n
}

// computePriority maps keyword-boost and sentiment-word hit counts into
// a bounded [0,1] score (0.3 base, +0.15 per boost hit, +0.05 per
// sentiment hit, capped at 1.0); text length plays no part. The
// function is monotonic in hit count so identical input always yields
// identical output.
func computePriority(text string) float64 {
	boost := countHits(text, priorityBoostWords)
	sentimentHits := countHits(text, positiveWords) + countHits(text, negativeWords)

	score := 0.3 + 0.15*float64(boost) + 0.05*float64(sentimentHits)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// extractKeywords tokenizes, strips stopwords, and ranks by frequency;
// relevance is the token's frequency normalized by the most frequent
// token's count, so the top keyword always has relevance 1.0.
func extractKeywords(text string) []models.KeywordRelevance {
	counts := make(map[string]int)
	for _, tok := range wordRe.FindAllString(text, -1) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		counts[tok]++
	}
	if len(counts) == 0 {
		return nil
	}

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}

	type pair struct {
		word  string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for w, c := range counts {
		pairs = append(pairs, pair{w, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].word < pairs[j].word
	})

	limit := 10
	if len(pairs) < limit {
		limit = len(pairs)
	}

	out := make([]models.KeywordRelevance, 0, limit)
	for _, p := range pairs[:limit] {
		out = append(out, models.KeywordRelevance{
			Keyword:   p.word,
			Relevance: float64(p.count) / float64(maxCount),
		})
	}
	return out
}
