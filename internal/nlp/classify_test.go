package nlp

import "testing"

func TestClassify_Deterministic(t *testing.T) {
	title := "Acme announces major funding round amid lawsuit concerns"
	content := "The company raised a new round of funding while facing a lawsuit over patent infringement."

	first := Classify(title, content)
	second := Classify(title, content)

	if first.Topic != second.Topic || first.Sentiment != second.Sentiment || first.Priority != second.Priority {
		t.Fatalf("classification is not deterministic: %+v vs %+v", first, second)
	}
	if len(first.Keywords) != len(second.Keywords) {
		t.Fatalf("keyword extraction is not deterministic: %v vs %v", first.Keywords, second.Keywords)
	}
}

func TestClassify_Topic(t *testing.T) {
	res := Classify("New product launch", "We are excited to announce the launch of our new feature rollout.")
	if res.Topic != "product" {
		t.Errorf("expected product topic, got %s", res.Topic)
	}
}

func TestClassify_SentimentNegative(t *testing.T) {
	res := Classify("Security breach disclosed", "The company suffered a major breach and incident resulting in an outage.")
	if res.Sentiment != "negative" {
		t.Errorf("expected negative sentiment, got %s", res.Sentiment)
	}
}

func TestClassify_SentimentNeutral(t *testing.T) {
	res := Classify("Quarterly update", "The team published a routine status page with no notable events.")
	if res.Sentiment != "neutral" {
		t.Errorf("expected neutral sentiment, got %s", res.Sentiment)
	}
}

func TestClassify_KeywordsTopRelevanceOne(t *testing.T) {
	res := Classify("Launch", "launch launch launch platform integration")
	if len(res.Keywords) == 0 {
		t.Fatal("expected at least one keyword")
	}
	if res.Keywords[0].Relevance != 1.0 {
		t.Errorf("expected top keyword relevance 1.0, got %f", res.Keywords[0].Relevance)
	}
}

func TestClassify_PriorityBounded(t *testing.T) {
	res := Classify("Acquisition breach outage funding lawsuit ipo layoff", "acquisition breach outage funding lawsuit ipo layoff")
	if res.Priority < 0 || res.Priority > 1.0 {
		t.Errorf("priority out of bounds: %f", res.Priority)
	}
}
