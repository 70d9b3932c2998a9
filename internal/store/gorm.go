package store

import (
	"context"
	"time"

	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	AvatarURL string    `gorm:"type:varchar(512)" json:"avatarUrl"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Party struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	LeaderID  string    `gorm:"type:varchar(64);not null" json:"leaderId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// PartyMember is the join row. The unique index on UserID enforces one party per user.
type PartyMember struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PartyID  string    `gorm:"type:varchar(36);not null;index" json:"partyId"`
	UserID   string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"userId"`
	Role     string    `gorm:"type:varchar(16);not null;default:MEMBER" json:"role"`
	JoinedAt time.Time `gorm:"not null" json:"joinedAt"`
}

// Models lists every table the store needs, for AutoMigrate.
func Models() []any {
	return []any{&User{}, &Party{}, &PartyMember{}}
}

type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) UpsertUser(ctx context.Context, user state.Identity) error {
	row := User{ID: user.ID, Name: user.Name, AvatarURL: user.AvatarURL}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "avatar_url", "updated_at"}),
	}).Create(&row).Error
	return errors.Wrap(err, "upsert user")
}

func (s *GormStore) FindUserByID(ctx context.Context, userID string) (*state.Identity, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		return nil, translate(err, ErrNotFound, "find user")
	}
	return &state.Identity{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}, nil
}

func (s *GormStore) GetMembership(ctx context.Context, userID string) (*state.Membership, error) {
	var m PartyMember
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		return nil, translate(err, ErrNotFound, "get membership")
	}
	var p Party
	if err := s.db.WithContext(ctx).Where("id = ?", m.PartyID).First(&p).Error; err != nil {
		return nil, translate(err, ErrPartyNotFound, "get membership party")
	}
	membership := toMembership(m, p.LeaderID)
	membership.User = s.identity(ctx, userID)
	return &membership, nil
}

func (s *GormStore) GetParty(ctx context.Context, partyID string) (*state.Party, error) {
	var p Party
	if err := s.db.WithContext(ctx).Where("id = ?", partyID).First(&p).Error; err != nil {
		return nil, translate(err, ErrPartyNotFound, "get party")
	}
	return &state.Party{ID: p.ID, LeaderID: p.LeaderID, CreatedAt: p.CreatedAt}, nil
}

func (s *GormStore) CreateParty(ctx context.Context, leaderID string) (*state.Party, error) {
	party := Party{ID: uuid.NewString(), LeaderID: leaderID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&PartyMember{}).Where("user_id = ?", leaderID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyMember
		}
		if err := tx.Create(&party).Error; err != nil {
			return err
		}
		member := PartyMember{PartyID: party.ID, UserID: leaderID, Role: string(state.RoleMember), JoinedAt: time.Now()}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, translate(err, nil, "create party")
	}
	return &state.Party{ID: party.ID, LeaderID: party.LeaderID, CreatedAt: party.CreatedAt}, nil
}

func (s *GormStore) AddMember(ctx context.Context, partyID, userID string, role state.Role) (*state.Membership, error) {
	if !role.Valid() {
		return nil, errors.Errorf("invalid role %q", role)
	}
	var (
		party  Party
		member PartyMember
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", partyID).First(&party).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPartyNotFound
			}
			return err
		}
		member = PartyMember{PartyID: partyID, UserID: userID, Role: string(role), JoinedAt: time.Now()}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, translate(err, nil, "add member")
	}
	m := toMembership(member, party.LeaderID)
	m.User = s.identity(ctx, userID)
	return &m, nil
}

func (s *GormStore) RemoveMember(ctx context.Context, partyID, userID string) error {
	res := s.db.WithContext(ctx).Where("party_id = ? AND user_id = ?", partyID, userID).Delete(&PartyMember{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "remove member")
	}
	if res.RowsAffected == 0 {
		return errors.WithStack(ErrNotPartyMember)
	}
	return nil
}

func (s *GormStore) TransferLeader(ctx context.Context, partyID, newLeaderID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var party Party
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", partyID).First(&party).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPartyNotFound
			}
			return err
		}
		var count int64
		if err := tx.Model(&PartyMember{}).Where("party_id = ? AND user_id = ?", partyID, newLeaderID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotPartyMember
		}
		return tx.Model(&party).Update("leader_id", newLeaderID).Error
	})
	return translate(err, nil, "transfer leader")
}

func (s *GormStore) LeaveAndTransfer(ctx context.Context, partyID, userID, successorID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var party Party
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", partyID).First(&party).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPartyNotFound
			}
			return err
		}
		var count int64
		if err := tx.Model(&PartyMember{}).Where("party_id = ? AND user_id = ?", partyID, successorID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 || successorID == userID {
			return ErrNotPartyMember
		}
		if err := tx.Model(&party).Update("leader_id", successorID).Error; err != nil {
			return err
		}
		res := tx.Where("party_id = ? AND user_id = ?", partyID, userID).Delete(&PartyMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotPartyMember
		}
		return nil
	})
	return translate(err, nil, "leave and transfer")
}

func (s *GormStore) DeleteParty(ctx context.Context, partyID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("party_id = ?", partyID).Delete(&PartyMember{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", partyID).Delete(&Party{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPartyNotFound
		}
		return nil
	})
	return translate(err, nil, "delete party")
}

func (s *GormStore) SetMemberRole(ctx context.Context, partyID, userID string, role state.Role) error {
	if !role.Valid() {
		return errors.Errorf("invalid role %q", role)
	}
	res := s.db.WithContext(ctx).Model(&PartyMember{}).
		Where("party_id = ? AND user_id = ?", partyID, userID).
		Update("role", string(role))
	if res.Error != nil {
		return errors.Wrap(res.Error, "set member role")
	}
	if res.RowsAffected == 0 {
		return errors.WithStack(ErrNotPartyMember)
	}
	return nil
}

func (s *GormStore) ListMembers(ctx context.Context, partyID string) ([]state.Membership, error) {
	var party Party
	if err := s.db.WithContext(ctx).Where("id = ?", partyID).First(&party).Error; err != nil {
		return nil, translate(err, ErrPartyNotFound, "list members")
	}
	var rows []PartyMember
	if err := s.db.WithContext(ctx).Where("party_id = ?", partyID).Order("joined_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list members")
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.UserID
	}
	users := make(map[string]User, len(rows))
	if len(ids) > 0 {
		var found []User
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
			return nil, errors.Wrap(err, "list member users")
		}
		for _, u := range found {
			users[u.ID] = u
		}
	}

	members := make([]state.Membership, len(rows))
	for i, r := range rows {
		members[i] = toMembership(r, party.LeaderID)
		u := users[r.UserID]
		members[i].User = state.Identity{ID: r.UserID, Name: u.Name, AvatarURL: u.AvatarURL}
	}
	return members, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "close store")
	}
	return sqlDB.Close()
}

// identity is best effort; a membership whose user row is missing still has an id.
func (s *GormStore) identity(ctx context.Context, userID string) state.Identity {
	if u, err := s.FindUserByID(ctx, userID); err == nil {
		return *u
	}
	return state.Identity{ID: userID}
}

func toMembership(m PartyMember, leaderID string) state.Membership {
	return state.Membership{
		RowID:    m.ID,
		PartyID:  m.PartyID,
		UserID:   m.UserID,
		Role:     state.Role(m.Role),
		JoinedAt: m.JoinedAt,
		LeaderID: leaderID,
	}
}

// translate maps gorm errors onto the package sentinels and wraps everything else.
// notFound replaces gorm.ErrRecordNotFound when non-nil.
func translate(err error, notFound error, op string) error {
	switch {
	case err == nil:
		return nil
	case notFound != nil && errors.Is(err, gorm.ErrRecordNotFound):
		return errors.WithStack(notFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errors.WithStack(ErrAlreadyMember)
	case errors.Is(err, ErrAlreadyMember), errors.Is(err, ErrPartyNotFound),
		errors.Is(err, ErrNotPartyMember), errors.Is(err, ErrNotFound):
		return errors.WithStack(err)
	default:
		return errors.Wrap(err, op)
	}
}
