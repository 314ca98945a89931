package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("not found")
var ErrAlreadyCompleted = errors.New("play already completed")

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to Postgres through pgx's database/sql driver.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	sqlDB := stdlib.OpenDB(*cfg)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: NewGormLogger(log, 200*time.Millisecond),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return New(db, log), nil
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&Game{}, &Block{}, &Player{}, &Play{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	// Older schemas made usernames unique.
	if m := db.Migrator(); m.HasIndex(&Player{}, "idx_players_username") {
		if err := m.DropIndex(&Player{}, "idx_players_username"); err != nil {
			return fmt.Errorf("migrate: drop username index: %w", err)
		}
	}
	return nil
}

// SeedGames inserts games keyed by GameOrder, replacing the content and
// blocks of any game already stored at that order.
func (s *Store) SeedGames(ctx context.Context, games []Game) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, g := range games {
			var existing Game
			err := tx.Where("game_order = ?", g.GameOrder).First(&existing).Error
			switch {
			case err == nil:
				g.ID = existing.ID
				g.CreatedAt = existing.CreatedAt
				if err := tx.Where("game_id = ?", g.ID).Delete(&Block{}).Error; err != nil {
					return fmt.Errorf("clear blocks of game %d: %w", g.GameOrder, err)
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
			default:
				return fmt.Errorf("look up game %d: %w", g.GameOrder, err)
			}

			blocks := slices.Clone(g.Blocks)
			g.Blocks = nil
			if err := tx.Save(&g).Error; err != nil {
				return fmt.Errorf("save game %d: %w", g.GameOrder, err)
			}
			for i := range blocks {
				blocks[i].ID = ""
				blocks[i].GameID = g.ID
			}
			if len(blocks) > 0 {
				if err := tx.Create(&blocks).Error; err != nil {
					return fmt.Errorf("save blocks of game %d: %w", g.GameOrder, err)
				}
			}
			s.log.Info("seeded game", zap.Int("order", g.GameOrder), zap.String("id", g.ID), zap.Int("blocks", len(blocks)))
		}
		return nil
	})
}

func (s *Store) Games(ctx context.Context) ([]Game, error) {
	var games []Game
	if err := s.db.WithContext(ctx).Order("game_order").Find(&games).Error; err != nil {
		return nil, err
	}
	return games, nil
}

func (s *Store) Game(ctx context.Context, id string) (*Game, error) {
	var g Game
	err := s.db.WithContext(ctx).Preload("Blocks").First(&g, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

// NextGameID returns the game that follows id, or ErrNotFound after the last.
func (s *Store) NextGameID(ctx context.Context, id string) (string, error) {
	var next Game
	err := s.db.WithContext(ctx).
		Where("game_order = (?) + 1", s.db.Model(&Game{}).Select("game_order").Where("id = ?", id)).
		Select("id").
		First(&next).Error
	if err != nil {
		return "", notFound(err)
	}
	return next.ID, nil
}

// Unlocked reports whether the player finished the game before g.
func (s *Store) Unlocked(ctx context.Context, playerID string, g *Game) (bool, error) {
	if g.GameOrder <= 1 {
		return true, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&Play{}).
		Joins("JOIN games ON games.id = plays.game_id").
		Where("plays.player_id = ? AND games.game_order = ? AND plays.end_time IS NOT NULL", playerID, g.GameOrder-1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) UpsertPlayer(ctx context.Context, id, username string) error {
	p := Player{Model: Model{ID: id}, Username: username}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
	}).Create(&p).Error
}

// StartPlay returns the player's play of a game, creating it on first visit.
func (s *Store) StartPlay(ctx context.Context, playerID, gameID string) (*Play, error) {
	p := Play{PlayerID: playerID, GameID: gameID}
	err := s.db.WithContext(ctx).
		Where(Play{PlayerID: playerID, GameID: gameID}).
		Attrs(Play{StartTime: time.Now().UTC()}).
		FirstOrCreate(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Play(ctx context.Context, playerID, gameID string) (*Play, error) {
	var p Play
	err := s.db.WithContext(ctx).First(&p, "player_id = ? AND game_id = ?", playerID, gameID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Plays returns every play of the player, keyed by game id.
func (s *Store) Plays(ctx context.Context, playerID string) (map[string]Play, error) {
	var plays []Play
	if err := s.db.WithContext(ctx).Where("player_id = ?", playerID).Find(&plays).Error; err != nil {
		return nil, err
	}
	out := make(map[string]Play, len(plays))
	for _, p := range plays {
		out[p.GameID] = p
	}
	return out, nil
}

// IncrementAttempts counts a wrong answer. Completed plays are left alone.
func (s *Store) IncrementAttempts(ctx context.Context, playerID, gameID string) error {
	return s.db.WithContext(ctx).Model(&Play{}).
		Where("player_id = ? AND game_id = ? AND end_time IS NULL", playerID, gameID).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}

func (s *Store) CompletePlay(ctx context.Context, playerID, gameID string, score int, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&Play{}).
		Where("player_id = ? AND game_id = ? AND end_time IS NULL", playerID, gameID).
		Updates(map[string]any{"score": score, "end_time": at.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

// Coins is the sum over the player's plays of score minus hint spend.
func (s *Store) Coins(ctx context.Context, playerID string) (int, error) {
	var coins int
	err := s.db.WithContext(ctx).Model(&Play{}).
		Select("COALESCE(SUM(score - textual_hint_spent - fill_hint_spent - freeze_spent), 0)").
		Where("player_id = ?", playerID).
		Scan(&coins).Error
	return coins, err
}

func (s *Store) SpendHint(ctx context.Context, playerID, gameID string, kind HintKind, price int) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown hint kind %q", kind)
	}
	return s.db.WithContext(ctx).Model(&Play{}).
		Where("player_id = ? AND game_id = ?", playerID, gameID).
		UpdateColumn(kind.column(), price).Error
}

func (s *Store) LeaderboardCount(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Play{}).Distinct("player_id").Count(&n).Error
	return int(n), err
}

// Leaderboard returns one 1-indexed page of players ranked by coins.
func (s *Store) Leaderboard(ctx context.Context, page, size int) ([]LeaderboardEntry, error) {
	if page < 1 {
		page = 1
	}
	entries := []LeaderboardEntry{}
	err := s.db.WithContext(ctx).Model(&Play{}).
		Joins("JOIN players ON players.id = plays.player_id").
		Select("players.username AS username, SUM(plays.score - plays.textual_hint_spent - plays.fill_hint_spent - plays.freeze_spent) AS score").
		Group("players.id, players.username").
		Order("score DESC, players.username").
		Limit(size).
		Offset((page - 1) * size).
		Scan(&entries).Error
	return entries, err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
