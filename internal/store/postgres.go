package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/officeshinyujun/sien/internal/domain"
)

const pgUniqueViolation = "23505"

// Postgres is the pgx-backed Store implementation.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a connection pool against databaseURL.
func NewPostgres(ctx context.Context, databaseURL string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) CreateUser(ctx context.Context, nickname, passwordHash, profileImage string) (domain.User, error) {
	var u domain.User
	err := p.pool.QueryRow(ctx,
		`INSERT INTO users (nickname, password_hash, profile_image)
		 VALUES ($1, $2, $3)
		 RETURNING id, nickname, password_hash, profile_image`,
		nickname, passwordHash, profileImage,
	).Scan(&u.ID, &u.Nickname, &u.PasswordHash, &u.ProfileImage)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("create user %q: %w", nickname, ErrAlreadyExists)
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (p *Postgres) UserByNickname(ctx context.Context, nickname string) (domain.User, error) {
	var u domain.User
	err := p.pool.QueryRow(ctx,
		`SELECT id, nickname, password_hash, profile_image FROM users WHERE nickname = $1`,
		nickname,
	).Scan(&u.ID, &u.Nickname, &u.PasswordHash, &u.ProfileImage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, fmt.Errorf("user %q: %w", nickname, ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("user by nickname: %w", err)
	}
	return u, nil
}

func (p *Postgres) UserByID(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	err := p.pool.QueryRow(ctx,
		`SELECT id, nickname, password_hash, profile_image FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Nickname, &u.PasswordHash, &u.ProfileImage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("user by id: %w", err)
	}
	return u, nil
}

func (p *Postgres) Rooms(ctx context.Context, offset, limit int) ([]domain.Room, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT r.id, r.name, r.description, r.max_players, r.point,
		        r.restitution, r.friction, r.image, r.owner_id,
		        (SELECT COUNT(*) FROM game_sessions s
		          WHERE s.room_id = r.id AND s.is_active) AS player_count
		   FROM rooms r
		  ORDER BY r.id
		 OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []domain.Room{}
	for rows.Next() {
		var r domain.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.MaxPlayers, &r.Point,
			&r.Restitution, &r.Friction, &r.Image, &r.OwnerID, &r.PlayerCount); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

func (p *Postgres) CreateRoom(ctx context.Context, spec RoomSpec, ownerID int64) (domain.Room, error) {
	var r domain.Room
	err := p.pool.QueryRow(ctx,
		`INSERT INTO rooms (name, description, max_players, point, restitution, friction, image, owner_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, name, description, max_players, point, restitution, friction, image, owner_id`,
		spec.Name, spec.Description, spec.MaxPlayers, spec.Point,
		spec.Restitution, spec.Friction, spec.Image, ownerID,
	).Scan(&r.ID, &r.Name, &r.Description, &r.MaxPlayers, &r.Point,
		&r.Restitution, &r.Friction, &r.Image, &r.OwnerID)
	if err != nil {
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}
	return r, nil
}

func (p *Postgres) ActiveUsers(ctx context.Context, roomID int64) ([]domain.User, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT DISTINCT u.id, u.nickname, u.profile_image
		   FROM users u
		   JOIN game_sessions s ON s.user_id = u.id
		  WHERE s.room_id = $1 AND s.is_active
		  ORDER BY u.id`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Nickname, &u.ProfileImage); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (p *Postgres) LatestShot(ctx context.Context, roomID int64) (domain.Shot, error) {
	var (
		s   domain.Shot
		raw []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT sh.id, sh.session_id, sh.ball_positions, sh.type, sh.created_at
		   FROM shots sh
		   JOIN game_sessions s ON s.id = sh.session_id
		  WHERE s.room_id = $1
		  ORDER BY sh.created_at DESC, sh.id DESC
		  LIMIT 1`,
		roomID,
	).Scan(&s.ID, &s.SessionID, &raw, &s.Type, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Shot{}, fmt.Errorf("latest shot in room %d: %w", roomID, ErrNotFound)
		}
		return domain.Shot{}, fmt.Errorf("latest shot: %w", err)
	}
	if err := json.Unmarshal(raw, &s.BallPositions); err != nil {
		return domain.Shot{}, fmt.Errorf("decode ball positions: %w", err)
	}
	return s, nil
}

func (p *Postgres) CreateSession(ctx context.Context, roomID, userID int64) (domain.GameSession, error) {
	var s domain.GameSession
	err := p.pool.QueryRow(ctx,
		`INSERT INTO game_sessions (room_id, user_id, is_active)
		 VALUES ($1, $2, TRUE)
		 RETURNING id, room_id, user_id, is_active`,
		roomID, userID,
	).Scan(&s.ID, &s.RoomID, &s.UserID, &s.IsActive)
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

func (p *Postgres) SessionByID(ctx context.Context, id int64) (domain.GameSession, error) {
	var s domain.GameSession
	err := p.pool.QueryRow(ctx,
		`SELECT id, room_id, user_id, is_active FROM game_sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.RoomID, &s.UserID, &s.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GameSession{}, fmt.Errorf("session %d: %w", id, ErrNotFound)
		}
		return domain.GameSession{}, fmt.Errorf("session by id: %w", err)
	}
	return s, nil
}

func (p *Postgres) EndSession(ctx context.Context, id int64) (domain.GameSession, error) {
	var s domain.GameSession
	err := p.pool.QueryRow(ctx,
		`UPDATE game_sessions SET is_active = FALSE
		  WHERE id = $1
		 RETURNING id, room_id, user_id, is_active`,
		id,
	).Scan(&s.ID, &s.RoomID, &s.UserID, &s.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GameSession{}, fmt.Errorf("session %d: %w", id, ErrNotFound)
		}
		return domain.GameSession{}, fmt.Errorf("end session: %w", err)
	}
	return s, nil
}

func (p *Postgres) CreateShot(ctx context.Context, sessionID int64, positions []domain.BallState, shotType domain.ShotType) (domain.Shot, error) {
	raw, err := json.Marshal(positions)
	if err != nil {
		return domain.Shot{}, fmt.Errorf("encode ball positions: %w", err)
	}

	s := domain.Shot{BallPositions: positions}
	err = p.pool.QueryRow(ctx,
		`INSERT INTO shots (session_id, ball_positions, type)
		 VALUES ($1, $2, $3)
		 RETURNING id, session_id, type, created_at`,
		sessionID, raw, shotType,
	).Scan(&s.ID, &s.SessionID, &s.Type, &s.CreatedAt)
	if err != nil {
		return domain.Shot{}, fmt.Errorf("create shot: %w", err)
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

var _ Store = (*Postgres)(nil)
