// internal/moderation/lists.go
package moderation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Lists holds the keyword data the scorer matches against. It is plain
// configuration: load it from a file or the moderation_terms table and merge.
type Lists struct {
	Profanity         []string `mapstructure:"profanity" json:"profanity"`
	DisposableDomains []string `mapstructure:"disposable_domains" json:"disposableDomains"`
	SpamPhrases       []string `mapstructure:"spam_phrases" json:"spamPhrases"`
}

// Term kinds as stored in moderation_terms.kind.
const (
	KindProfanity        = "profanity"
	KindDisposableDomain = "disposable_domain"
	KindSpamPhrase       = "spam_phrase"
)

func DefaultLists() Lists {
	return Lists{
		Profanity: []string{
			"fuck", "fucking", "shit", "bullshit", "bitch", "bastard", "asshole",
			"dickhead", "cunt", "wanker", "prick", "slut", "whore",
		},
		DisposableDomains: []string{
			"mailinator.com", "10minutemail.com", "guerrillamail.com", "guerrillamail.net",
			"tempmail.com", "temp-mail.org", "throwawaymail.com", "yopmail.com",
			"trashmail.com", "getnada.com", "sharklasers.com", "maildrop.cc",
			"dispostable.com", "fakeinbox.com", "mintemail.com", "mohmal.com",
		},
		SpamPhrases: []string{
			"click here", "buy now", "act now", "limited time", "free money",
			"make money fast", "work from home", "100% free", "risk free",
			"no obligation", "you have been selected", "congratulations you won",
			"earn extra cash", "cheap viagra", "online casino", "crypto investment",
			"double your income", "seo services", "guaranteed ranking",
		},
	}
}

// LoadLists reads lists from a YAML or JSON file. Sections missing from the
// file keep their defaults.
func LoadLists(path string) (Lists, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Lists{}, fmt.Errorf("read moderation lists %s: %w", path, err)
	}

	var fromFile Lists
	if err := v.Unmarshal(&fromFile); err != nil {
		return Lists{}, fmt.Errorf("decode moderation lists %s: %w", path, err)
	}

	lists := DefaultLists()
	if v.IsSet("profanity") {
		lists.Profanity = fromFile.Profanity
	}
	if v.IsSet("disposable_domains") {
		lists.DisposableDomains = fromFile.DisposableDomains
	}
	if v.IsSet("spam_phrases") {
		lists.SpamPhrases = fromFile.SpamPhrases
	}
	return lists.normalized(), nil
}

// Merge returns the union of both lists.
func (l Lists) Merge(other Lists) Lists {
	return Lists{
		Profanity:         append(append([]string{}, l.Profanity...), other.Profanity...),
		DisposableDomains: append(append([]string{}, l.DisposableDomains...), other.DisposableDomains...),
		SpamPhrases:       append(append([]string{}, l.SpamPhrases...), other.SpamPhrases...),
	}.normalized()
}

// Add appends a term of the given kind. Unknown kinds are reported.
func (l *Lists) Add(kind, term string) error {
	switch kind {
	case KindProfanity:
		l.Profanity = append(l.Profanity, term)
	case KindDisposableDomain:
		l.DisposableDomains = append(l.DisposableDomains, term)
	case KindSpamPhrase:
		l.SpamPhrases = append(l.SpamPhrases, term)
	default:
		return fmt.Errorf("unknown moderation term kind %q", kind)
	}
	return nil
}

func (l Lists) normalized() Lists {
	return Lists{
		Profanity:         dedupe(l.Profanity),
		DisposableDomains: dedupe(l.DisposableDomains),
		SpamPhrases:       dedupe(l.SpamPhrases),
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
