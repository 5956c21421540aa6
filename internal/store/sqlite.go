package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/nanoncore/nano-onuprov/internal/logger"
	"github.com/nanoncore/nano-onuprov/model"
	"github.com/nanoncore/nano-onuprov/types"
)

// profileRow is the devices table
type profileRow struct {
	Name          string `gorm:"primaryKey;type:varchar(128)"`
	Vendor        string `gorm:"type:varchar(16);not null;default:'zte'"`
	Host          string `gorm:"type:varchar(255)"`
	Port          int    `gorm:"not null;default:22"`
	Username      string `gorm:"type:varchar(64)"`
	Password      string `gorm:"type:varchar(256)"`
	SNMPCommunity string `gorm:"type:varchar(64)"`
	Metadata      string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (profileRow) TableName() string { return "profiles" }

// runRow is one batch run
type runRow struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	Device      string `gorm:"type:varchar(128);not null;index"`
	StartedAt   time.Time
	FinishedAt  time.Time
	Total       int
	Provisioned int
	Skipped     int
	Failed      int
	Incomplete  bool
	Records     []recordRow `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

func (runRow) TableName() string { return "runs" }

// recordRow is one record outcome of a run
type recordRow struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	RunID        string `gorm:"type:varchar(64);not null;index"`
	Position     int
	Serial       string `gorm:"type:varchar(64);index"`
	Name         string `gorm:"type:varchar(128)"`
	VLAN         int
	Outcome      string `gorm:"type:varchar(16)"`
	Port         string `gorm:"type:varchar(16)"`
	Identifier   int
	ErrorKind    string `gorm:"type:varchar(32)"`
	ErrorCode    string `gorm:"type:varchar(32)"`
	Error        string `gorm:"type:text"`
	CommandIndex int
	Command      string `gorm:"type:text"`
}

func (recordRow) TableName() string { return "run_records" }

// SQLStore keeps profiles and the run journal in SQLite through gorm
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore opens (and migrates) the database at path
func NewSQLStore(path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	cfg := &gorm.Config{
		Logger: gormLogger.New(
			logger.GetLogger(),
			gormLogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		SkipDefaultTransaction: true,
	}

	dsn := path + "?_pragma=busy_timeout(15000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// one connection so the pragmas hold for every statement
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&profileRow{}, &runRow{}, &recordRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func toRow(p Profile) (profileRow, error) {
	row := profileRow{
		Name:          p.Name,
		Vendor:        string(p.Vendor),
		Host:          p.Host,
		Port:          p.Port,
		Username:      p.Username,
		Password:      p.Password,
		SNMPCommunity: p.SNMPCommunity,
	}
	if len(p.Metadata) > 0 {
		md, err := json.Marshal(p.Metadata)
		if err != nil {
			return row, err
		}
		row.Metadata = string(md)
	}
	return row, nil
}

func fromRow(row profileRow) (Profile, error) {
	p := Profile{
		Name:          row.Name,
		Vendor:        types.Vendor(row.Vendor),
		Host:          row.Host,
		Port:          row.Port,
		Username:      row.Username,
		Password:      row.Password,
		SNMPCommunity: row.SNMPCommunity,
	}
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &p.Metadata); err != nil {
			return p, fmt.Errorf("profile %s metadata: %w", row.Name, err)
		}
	}
	return p, nil
}

// List returns profiles sorted by name
func (s *SQLStore) List(ctx context.Context) ([]Profile, error) {
	var rows []profileRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	profiles := make([]Profile, 0, len(rows))
	for _, row := range rows {
		p, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Get returns the profile called name
func (s *SQLStore) Get(ctx context.Context, name string) (Profile, error) {
	var row profileRow
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	if err != nil {
		return Profile{}, err
	}
	return fromRow(row)
}

// Add stores a new profile
func (s *SQLStore) Add(ctx context.Context, p Profile) error {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	row, err := toRow(p)
	if err != nil {
		return err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&profileRow{}).Where("name = ?", p.Name).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", ErrProfileExists, p.Name)
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Remove deletes the profile called name
func (s *SQLStore) Remove(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&profileRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return nil
}

// SaveRun journals a finished batch with its per-record outcomes
func (s *SQLStore) SaveRun(ctx context.Context, res *model.BatchResult) error {
	run := runRow{
		ID:          res.RunID,
		Device:      res.Device,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
		Total:       res.Total,
		Provisioned: res.Count(model.OutcomeSuccess),
		Skipped:     res.Count(model.OutcomeSkipped),
		Failed:      res.Count(model.OutcomeFailed),
		Incomplete:  res.Incomplete,
	}
	for i, r := range res.Records {
		rec := recordRow{
			RunID:        res.RunID,
			Position:     i,
			Serial:       r.Record.Serial,
			Name:         r.Record.DisplayName(),
			VLAN:         r.Record.VLAN,
			Outcome:      string(r.Outcome.Kind),
			Identifier:   r.Outcome.Identifier,
			ErrorKind:    string(r.Outcome.ErrorKind),
			ErrorCode:    r.Outcome.ErrorCode,
			Error:        r.Outcome.Error,
			CommandIndex: r.Outcome.CommandIndex,
			Command:      r.Outcome.Command,
		}
		if r.Outcome.Port != nil {
			rec.Port = r.Outcome.Port.String()
		}
		run.Records = append(run.Records, rec)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&run).Error
	})
}

// ListRuns returns the most recent runs first
func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	if err := s.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]RunSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, RunSummary{
			RunID:       r.ID,
			Device:      r.Device,
			StartedAt:   r.StartedAt.Format("2006-01-02 15:04:05"),
			Total:       r.Total,
			Provisioned: r.Provisioned,
			Skipped:     r.Skipped,
			Failed:      r.Failed,
			Incomplete:  r.Incomplete,
		})
	}
	return out, nil
}

// RunRecords returns the stored outcomes of one run in input order
func (s *SQLStore) RunRecords(ctx context.Context, runID string) ([]model.RecordResult, error) {
	var rows []recordRow
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("position").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.RecordResult, 0, len(rows))
	for _, r := range rows {
		o := model.Outcome{
			Kind:         model.OutcomeKind(r.Outcome),
			Identifier:   r.Identifier,
			ErrorKind:    model.ErrorKind(r.ErrorKind),
			ErrorCode:    r.ErrorCode,
			Error:        r.Error,
			CommandIndex: r.CommandIndex,
			Command:      r.Command,
		}
		if r.Port != "" {
			if port, err := model.ParsePortAddress(r.Port); err == nil {
				o.Port = &port
			}
		}
		out = append(out, model.RecordResult{
			Record:  model.TerminalRecord{Serial: r.Serial, Name: r.Name, VLAN: r.VLAN},
			Outcome: o,
		})
	}
	return out, nil
}

// Close releases the database
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var (
	_ Store   = (*SQLStore)(nil)
	_ Journal = (*SQLStore)(nil)
)
