package leaderboard

import (
	"context"
	"strconv"
	"strings"

	"github.com/DoyleJ11/testination-backend/internal/store"
	"go.uber.org/zap"
)

// PageSize is the number of players per leaderboard page.
const PageSize = 25

type Page struct {
	CurrentPage int                      `json:"currentPage"`
	Pages       int                      `json:"pages"`
	Entries     []store.LeaderboardEntry `json:"entries"`
}

type Source interface {
	LeaderboardCount(ctx context.Context) (int, error)
	Leaderboard(ctx context.Context, page, size int) ([]store.LeaderboardEntry, error)
}

// Cache stores rendered pages. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, page int) (*Page, error)
	Set(ctx context.Context, page int, p Page) error
}

// ParsePage reads a requested page number. Anything that is not a positive
// integer means the first page.
func ParsePage(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// PageCount is never below one so an empty leaderboard still has a page.
func PageCount(total, size int) int {
	if total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

func Clamp(page, pages int) int {
	return min(max(page, 1), max(pages, 1))
}

type Service struct {
	src   Source
	cache Cache
	log   *zap.Logger
}

// NewService builds the leaderboard reader. cache may be nil.
func NewService(src Source, cache Cache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{src: src, cache: cache, log: log}
}

// Page returns the requested page, clamped to the pages that exist. Pages
// are cached under their clamped number.
func (s *Service) Page(ctx context.Context, raw string) (Page, error) {
	total, err := s.src.LeaderboardCount(ctx)
	if err != nil {
		return Page{}, err
	}
	pages := PageCount(total, PageSize)
	current := Clamp(ParsePage(raw), pages)

	if s.cache != nil {
		p, err := s.cache.Get(ctx, current)
		if err != nil {
			s.log.Warn("leaderboard cache read failed", zap.Error(err))
		} else if p != nil {
			return *p, nil
		}
	}

	entries, err := s.src.Leaderboard(ctx, current, PageSize)
	if err != nil {
		return Page{}, err
	}
	if entries == nil {
		entries = []store.LeaderboardEntry{}
	}
	p := Page{CurrentPage: current, Pages: pages, Entries: entries}

	if s.cache != nil {
		if err := s.cache.Set(ctx, current, p); err != nil {
			s.log.Warn("leaderboard cache write failed", zap.Error(err))
		}
	}
	return p, nil
}
