package slate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Slate is a reference image and its precomputed comparison fingerprint.
type Slate struct {
	ID          string
	SourceURL   string
	Fingerprint Fingerprint
}

// Library holds every distinct slate referenced by the configuration's
// transitions, loaded once at startup and never mutated afterward.
type Library struct {
	slates []Slate
	byURL  map[string]Slate
}

// Load fetches, decodes, and fingerprints every URL in urls. Duplicate URLs
// are loaded once. Load fails loading entirely if any slate cannot be
// fetched or decoded, per the Slate Library's all-or-nothing contract.
func Load(urls []string) (*Library, error) {
	lib := &Library{byURL: make(map[string]Slate)}

	for _, u := range urls {
		if _, ok := lib.byURL[u]; ok {
			continue
		}
		s, err := loadOne(u)
		if err != nil {
			return nil, fmt.Errorf("loading slate %s: %w", u, err)
		}
		lib.byURL[u] = s
		lib.slates = append(lib.slates, s)
	}

	return lib, nil
}

func loadOne(u string) (Slate, error) {
	raw, err := fetch(u)
	if err != nil {
		return Slate{}, err
	}

	img, err := Decode(raw)
	if err != nil {
		return Slate{}, fmt.Errorf("decoding image: %w", err)
	}

	sum := sha256.Sum256(raw)
	return Slate{
		ID:          hex.EncodeToString(sum[:]),
		SourceURL:   u,
		Fingerprint: Compute(img),
	}, nil
}

// fetch reads slate bytes from the closed set of supported schemes. Only
// file:// is wired up today; adding a scheme means adding a case here and to
// the config loader's allowed-scheme set in lockstep.
func fetch(u string) ([]byte, error) {
	const filePrefix = "file://"
	if !strings.HasPrefix(u, filePrefix) {
		return nil, fmt.Errorf("unsupported scheme in %q", u)
	}
	path := strings.TrimPrefix(u, filePrefix)
	return os.ReadFile(path)
}

// Match pairs a matched slate's identity with the similarity score that
// produced the match.
type Match struct {
	SlateID string
	Score   float64
}

// FindBestMatch scores fp against every loaded slate and returns the best
// match if its score meets threshold. Ties are broken by lowest
// lexicographic slate ID, making the result deterministic under equal
// scores.
func (l *Library) FindBestMatch(fp Fingerprint, threshold float64) (Match, bool) {
	var best Match
	found := false

	for _, s := range l.slates {
		score := Score(fp, s.Fingerprint)
		if score < threshold {
			continue
		}
		if !found || score > best.Score || (score == best.Score && s.ID < best.SlateID) {
			best = Match{SlateID: s.ID, Score: score}
			found = true
		}
	}

	return best, found
}

// BestScore returns the highest similarity score against any loaded slate,
// regardless of whether it meets a threshold. An empty library scores 0.
// This feeds the slate_match_score gauge, which reports the last observed
// best score even on frames classified as content.
func (l *Library) BestScore(fp Fingerprint) (slateID string, score float64) {
	best := -2.0 // below the valid [-1,1] range, so the first slate always wins
	for _, s := range l.slates {
		sc := Score(fp, s.Fingerprint)
		if sc > best || (sc == best && s.ID < slateID) {
			best = sc
			slateID = s.ID
		}
	}
	if best < -1 {
		return "", 0
	}
	return slateID, best
}

// IDs returns every loaded slate's ID, sorted for deterministic iteration
// (log output, tests).
func (l *Library) IDs() []string {
	ids := make([]string, 0, len(l.slates))
	for _, s := range l.slates {
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	return ids
}

// IDByURL returns the content-hash ID assigned to each loaded slate URL, for
// resolving configuration's slate_context.url references to slate identity
// once at startup (see internal/transition.NewMatcher).
func (l *Library) IDByURL() map[string]string {
	out := make(map[string]string, len(l.byURL))
	for u, s := range l.byURL {
		out[u] = s.ID
	}
	return out
}

// Len reports the number of distinct slates loaded.
func (l *Library) Len() int {
	return len(l.slates)
}
