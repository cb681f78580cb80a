// Package moderation scores free-text submissions (business descriptions and
// customer inquiries) and decides whether to allow, flag or block them.
//
// Scoring is a fixed rule table over keyword lists and regular expressions.
// A Scorer holds no mutable state after construction.
package moderation

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionFlag  Decision = "flag"
	DecisionBlock Decision = "block"
)

const (
	ReasonProfanity       = "contains profanity"
	ReasonExcessiveLinks  = "too many links"
	ReasonHighSpamScore   = "high spam score"
	ReasonDisposableEmail = "disposable email domain"
	ReasonTooShort        = "content too short"
	ReasonRepetitive      = "repetitive content"
	ReasonLongSentences   = "overly long sentences"
)

// Rule thresholds.
const (
	MaxLinks              = 3
	SpamThreshold         = 0.6
	MinWords              = 3
	DiversityMinWords     = 10
	MinLexicalDiversity   = 0.3
	MaxAvgSentenceLength  = 60.0
	spamPhraseWeight      = 0.3
	capsRunWeight         = 0.15
	exclamationRunWeight  = 0.15
	extraLinkWeight       = 0.1
	blockProfanityConf    = 0.95
	blockSpamMinConf      = 0.7
	flagBaseConf          = 0.5
	flagPerSignalConf     = 0.1
	flagMaxConf           = 0.8
	allowMinConf          = 0.5
)

var (
	urlPattern         = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	capsRunPattern     = regexp.MustCompile(`\b[A-Z]{5,}\b`)
	exclamationPattern = regexp.MustCompile(`!{3,}`)
	sentenceSplit      = regexp.MustCompile(`[.!?]+`)
)

type Submission struct {
	Type  string
	Text  string
	Email string
}

type Flags struct {
	HasProfanity      bool `json:"hasProfanity"`
	IsSpam            bool `json:"isSpam"`
	IsDisposableEmail bool `json:"isDisposableEmail"`
	HasExcessiveLinks bool `json:"hasExcessiveLinks"`
	IsLowQuality      bool `json:"isLowQuality"`
}

type Result struct {
	Decision   Decision `json:"decision"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
	Flags      Flags    `json:"flags"`
	SpamScore  float64  `json:"spamScore"`
}

type Scorer struct {
	profanity   map[string]struct{}
	disposable  map[string]struct{}
	spamPhrases []*regexp.Regexp
}

func NewScorer(lists Lists) *Scorer {
	lists = lists.normalized()
	s := &Scorer{
		profanity:   make(map[string]struct{}, len(lists.Profanity)),
		disposable:  make(map[string]struct{}, len(lists.DisposableDomains)),
		spamPhrases: make([]*regexp.Regexp, 0, len(lists.SpamPhrases)),
	}
	for _, p := range lists.SpamPhrases {
		s.spamPhrases = append(s.spamPhrases, phrasePattern(p))
	}
	for _, w := range lists.Profanity {
		s.profanity[w] = struct{}{}
	}
	for _, d := range lists.DisposableDomains {
		s.disposable[d] = struct{}{}
	}
	return s
}

func (s *Scorer) Score(sub Submission) Result {
	var (
		flags   Flags
		reasons []string
	)

	words := tokenize(sub.Text)

	if s.hasProfanity(words) {
		flags.HasProfanity = true
		reasons = append(reasons, ReasonProfanity)
	}

	links := CountLinks(sub.Text)
	if links > MaxLinks {
		flags.HasExcessiveLinks = true
		reasons = append(reasons, ReasonExcessiveLinks)
	}

	spam := s.SpamScore(sub.Text)
	if spam >= SpamThreshold {
		flags.IsSpam = true
		reasons = append(reasons, ReasonHighSpamScore)
	}

	if s.IsDisposableEmail(sub.Email) {
		flags.IsDisposableEmail = true
		reasons = append(reasons, ReasonDisposableEmail)
	}

	if q := qualityReasons(sub.Text, words); len(q) > 0 {
		flags.IsLowQuality = true
		reasons = append(reasons, q...)
	}

	decision, confidence := decide(flags, spam)
	if reasons == nil {
		reasons = []string{}
	}

	return Result{
		Decision:   decision,
		Confidence: confidence,
		Reasons:    reasons,
		Flags:      flags,
		SpamScore:  spam,
	}
}

// SpamScore sums weighted pattern hits and caps the result at 1.
func (s *Scorer) SpamScore(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0

	for _, phrase := range s.spamPhrases {
		if phrase.MatchString(lower) {
			score += spamPhraseWeight
		}
	}
	score += float64(len(capsRunPattern.FindAllString(text, -1))) * capsRunWeight
	score += float64(len(exclamationPattern.FindAllString(text, -1))) * exclamationRunWeight
	if links := CountLinks(text); links > 1 {
		score += float64(links-1) * extraLinkWeight
	}

	return math.Min(score, 1)
}

// IsDisposableEmail matches the address domain and each parent domain
// against the disposable list.
func (s *Scorer) IsDisposableEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	for domain != "" {
		if _, ok := s.disposable[domain]; ok {
			return true
		}
		dot := strings.Index(domain, ".")
		if dot < 0 {
			break
		}
		domain = domain[dot+1:]
	}
	return false
}

// phrasePattern matches phrase on word boundaries, so "act now" does not
// hit inside "contact now". Edges that are not word characters match as is.
func phrasePattern(phrase string) *regexp.Regexp {
	expr := regexp.QuoteMeta(phrase)
	if isWordByte(phrase[0]) {
		expr = `\b` + expr
	}
	if isWordByte(phrase[len(phrase)-1]) {
		expr += `\b`
	}
	return regexp.MustCompile(expr)
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

func CountLinks(text string) int {
	return len(urlPattern.FindAllString(text, -1))
}

func (s *Scorer) hasProfanity(words []string) bool {
	for _, w := range words {
		if _, ok := s.profanity[w]; ok {
			return true
		}
	}
	return false
}

func qualityReasons(text string, words []string) []string {
	var reasons []string

	if len(words) < MinWords {
		return append(reasons, ReasonTooShort)
	}

	if len(words) >= DiversityMinWords && LexicalDiversity(words) < MinLexicalDiversity {
		reasons = append(reasons, ReasonRepetitive)
	}

	if AverageSentenceLength(text) > MaxAvgSentenceLength {
		reasons = append(reasons, ReasonLongSentences)
	}

	return reasons
}

// LexicalDiversity is the ratio of distinct words to total words.
func LexicalDiversity(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	return float64(len(unique)) / float64(len(words))
}

// AverageSentenceLength is measured in words.
func AverageSentenceLength(text string) float64 {
	sentences, words := 0, 0
	for _, part := range sentenceSplit.Split(text, -1) {
		n := len(tokenize(part))
		if n == 0 {
			continue
		}
		sentences++
		words += n
	}
	if sentences == 0 {
		return 0
	}
	return float64(words) / float64(sentences)
}

func decide(f Flags, spam float64) (Decision, float64) {
	switch {
	case f.HasProfanity:
		return DecisionBlock, blockProfanityConf
	case f.IsSpam:
		return DecisionBlock, math.Max(blockSpamMinConf, spam)
	}

	signals := 0
	for _, on := range []bool{f.IsDisposableEmail, f.HasExcessiveLinks, f.IsLowQuality} {
		if on {
			signals++
		}
	}
	if signals > 0 {
		return DecisionFlag, math.Min(flagBaseConf+flagPerSignalConf*float64(signals), flagMaxConf)
	}

	return DecisionAllow, math.Max(1-spam, allowMinConf)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
