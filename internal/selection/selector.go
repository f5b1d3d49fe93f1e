// Package selection picks questions from the pool collaborator.
// An empty result is a normal outcome and is never reported as an error.
package selection

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/adaptive"
	"github.com/stemsi/exstem-adaptive/internal/model"
)

const (
	DefaultLimit   = 10
	BroadenedLimit = 5
)

// Filter is what the pool understands. Zero difficulty bounds are open.
type Filter struct {
	MinDifficulty int
	MaxDifficulty int
	Tags          []string
	ExcludeIDs    []uuid.UUID
}

// Pool is the question pool collaborator.
type Pool interface {
	Query(ctx context.Context, f Filter, limit int) ([]model.Question, error)
	Sample(ctx context.Context, f Filter, n int) ([]model.Question, error)
}

// Criteria selects by band or exact difficulty, optional tags and an
// exclusion set of already-seen question IDs.
type Criteria struct {
	Band            model.Band
	ExactDifficulty *int
	Tags            []string
	ExcludeIDs      []uuid.UUID
	Limit           int
}

func (c Criteria) filter() Filter {
	f := Filter{Tags: c.Tags, ExcludeIDs: c.ExcludeIDs}
	switch {
	case c.ExactDifficulty != nil:
		f.MinDifficulty, f.MaxDifficulty = *c.ExactDifficulty, *c.ExactDifficulty
	case c.Band != "":
		f.MinDifficulty, f.MaxDifficulty = adaptive.LevelRange(c.Band)
	}
	return f
}

// Selector wraps the pool with exclusion, sampling and fallback rules.
type Selector struct {
	pool Pool
	rnd  adaptive.Source
	log  zerolog.Logger
}

// NewSelector creates a new Selector.
func NewSelector(pool Pool, rnd adaptive.Source, log zerolog.Logger) *Selector {
	return &Selector{
		pool: pool,
		rnd:  rnd,
		log:  log.With().Str("component", "question_selector").Logger(),
	}
}

// Select returns up to Limit questions matching c.
func (s *Selector) Select(ctx context.Context, c Criteria) ([]model.Question, error) {
	limit := c.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	qs, err := s.pool.Query(ctx, c.filter(), limit)
	if err != nil {
		return nil, fmt.Errorf("query pool: %w", err)
	}
	return without(qs, c.ExcludeIDs), nil
}

// Sample draws up to n distinct questions at random.
func (s *Selector) Sample(ctx context.Context, c Criteria, n int) ([]model.Question, error) {
	if n <= 0 {
		return nil, nil
	}

	qs, err := s.pool.Sample(ctx, c.filter(), n)
	if err != nil {
		return nil, fmt.Errorf("sample pool: %w", err)
	}

	qs = without(qs, c.ExcludeIDs)
	s.shuffle(qs)
	if len(qs) > n {
		qs = qs[:n]
	}
	return qs, nil
}

// Pick returns one unseen question for c. When nothing matches it
// broadens once to any unseen question with the same tags; broadened
// reports that.
// A nil question means the pool is exhausted for this caller.
func (s *Selector) Pick(ctx context.Context, c Criteria) (q *model.Question, broadened bool, err error) {
	q, err = s.PickExact(ctx, c)
	if err != nil || q != nil {
		return q, false, err
	}

	s.log.Debug().
		Str("band", string(c.Band)).
		Strs("tags", c.Tags).
		Int("excluded", len(c.ExcludeIDs)).
		Msg("No question at requested difficulty, broadening")

	qs, err := s.Select(ctx, Criteria{Tags: c.Tags, ExcludeIDs: c.ExcludeIDs, Limit: BroadenedLimit})
	if err != nil {
		return nil, true, err
	}
	if len(qs) == 0 {
		return nil, true, nil
	}
	return s.one(qs), true, nil
}

// PickExact returns one unseen question for c without broadening.
func (s *Selector) PickExact(ctx context.Context, c Criteria) (*model.Question, error) {
	qs, err := s.Select(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, nil
	}
	return s.one(qs), nil
}

// BuildSet samples a per-user question set of size total, split
// 34% easy, 33% medium and the rest hard. Bands that run short are
// topped up from the whole tagged pool.
func (s *Selector) BuildSet(ctx context.Context, tags []string, total int) ([]model.Question, error) {
	if total <= 0 {
		return nil, nil
	}

	easyN := total * 34 / 100
	mediumN := total * 33 / 100
	quota := map[model.Band]int{
		model.BandEasy:   easyN,
		model.BandMedium: mediumN,
		model.BandHard:   total - easyN - mediumN,
	}

	set := make([]model.Question, 0, total)
	seen := make([]uuid.UUID, 0, total)
	for _, b := range model.Bands {
		qs, err := s.Sample(ctx, Criteria{Band: b, Tags: tags, ExcludeIDs: seen}, quota[b])
		if err != nil {
			return nil, err
		}
		for _, q := range qs {
			set = append(set, q)
			seen = append(seen, q.ID)
		}
	}

	if missing := total - len(set); missing > 0 {
		extra, err := s.Sample(ctx, Criteria{Tags: tags, ExcludeIDs: seen}, missing)
		if err != nil {
			return nil, err
		}
		set = append(set, extra...)
	}

	s.shuffle(set)
	return set, nil
}

// ShuffleOptions returns a copy of q with its options permuted.
func (s *Selector) ShuffleOptions(q model.QuestionForStudent) model.QuestionForStudent {
	opts := make([]string, len(q.Options))
	copy(opts, q.Options)
	adaptive.Shuffle(s.rnd, len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
	q.Options = opts
	return q
}

func (s *Selector) one(qs []model.Question) *model.Question {
	q := qs[s.rnd.Intn(len(qs))]
	return &q
}

func (s *Selector) shuffle(qs []model.Question) {
	adaptive.Shuffle(s.rnd, len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
}

// without drops excluded and repeated IDs while keeping order.
func without(qs []model.Question, exclude []uuid.UUID) []model.Question {
	skip := make(map[uuid.UUID]struct{}, len(exclude)+len(qs))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	out := make([]model.Question, 0, len(qs))
	for _, q := range qs {
		if _, ok := skip[q.ID]; ok {
			continue
		}
		skip[q.ID] = struct{}{}
		out = append(out, q)
	}
	return out
}
