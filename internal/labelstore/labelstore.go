// Package labelstore loads label definitions from a database, falling back
// to a built-in set when no database is reachable.
package labelstore

import (
	"encoding/json"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tilelabel/overlay/internal/config"
	"github.com/tilelabel/overlay/internal/geo"
	"github.com/tilelabel/overlay/internal/label"
)

// Record is the persistence shape of one label.
type Record struct {
	gorm.Model
	Lat     float64        `json:"lat"`
	Lng     float64        `json:"lng"`
	Text    string         `json:"text" gorm:"size:256"`
	MinZoom float64        `json:"minZoom"`
	MaxZoom float64        `json:"maxZoom"`
	Style   datatypes.JSON `json:"style" gorm:"default:'{}'"`
}

func (*Record) TableName() string {
	return "labels"
}

// ToLabel converts a record into a renderable label.
func (r *Record) ToLabel() (*label.Label, error) {
	l := &label.Label{
		Position: geo.LatLng{Lat: r.Lat, Lng: r.Lng},
		Text:     r.Text,
		MinZoom:  r.MinZoom,
		MaxZoom:  r.MaxZoom,
	}
	if !l.Position.Valid() {
		return nil, fmt.Errorf("label %d: invalid position (%f, %f)", r.ID, r.Lat, r.Lng)
	}
	if len(r.Style) > 0 {
		if err := json.Unmarshal(r.Style, &l.Style); err != nil {
			return nil, fmt.Errorf("label %d: decode style: %w", r.ID, err)
		}
	}
	return l, nil
}

// FromLabel converts a label into its persistence shape.
func FromLabel(l *label.Label) (*Record, error) {
	style, err := json.Marshal(l.Style)
	if err != nil {
		return nil, fmt.Errorf("encode style: %w", err)
	}
	return &Record{
		Lat:     l.Position.Lat,
		Lng:     l.Position.Lng,
		Text:    l.Text,
		MinZoom: l.MinZoom,
		MaxZoom: l.MaxZoom,
		Style:   style,
	}, nil
}

// Store is a gorm-backed label source.
type Store struct {
	DB     *gorm.DB
	Logger zerolog.Logger
}

// Open connects per the labels configuration. Postgres failures fall back
// to SQLite, and an empty SQLite path means in-memory.
func Open(lc config.LabelsConfig, log zerolog.Logger) (*Store, error) {
	s := &Store{Logger: log}
	var err error

	switch lc.Source {
	case "postgres":
		s.DB, err = openPostgres()
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
			s.DB, err = openSqlite(lc.SQLitePath)
		}
	case "sqlite":
		s.DB, err = openSqlite(lc.SQLitePath)
	default:
		return nil, fmt.Errorf("no database source configured")
	}
	if err != nil {
		return nil, fmt.Errorf("open label store: %w", err)
	}

	if err := s.DB.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate label store: %w", err)
	}
	return s, nil
}

func openPostgres() (*gorm.DB, error) {
	dc := config.GetDBConfig()
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		dc.Host, dc.Port, dc.Username, dc.Password, dc.Database)

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

func openSqlite(path string) (*gorm.DB, error) {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// Load reads all records and converts them, skipping invalid rows.
func (s *Store) Load() (*label.Set, error) {
	var records []Record
	if err := s.DB.Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}

	labels := make([]*label.Label, 0, len(records))
	for i := range records {
		l, err := records[i].ToLabel()
		if err != nil {
			s.Logger.Warn().Err(err).Msg("Skipping bad label record")
			continue
		}
		labels = append(labels, l)
	}
	return label.NewSet(labels), nil
}

// Save persists labels, replacing the current contents.
func (s *Store) Save(labels []*label.Label) error {
	records := make([]*Record, 0, len(labels))
	for _, l := range labels {
		r, err := FromLabel(l)
		if err != nil {
			return err
		}
		records = append(records, r)
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&Record{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Create(records).Error
	})
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	db, err := s.DB.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// Fallback is the built-in label set used when no database is configured
// or reachable. Never empty.
func Fallback() *label.Set {
	return label.NewSet([]*label.Label{
		{
			Position: geo.LatLng{Lat: 37.7749, Lng: -122.4194},
			Text:     "San Francisco",
			MinZoom:  8, MaxZoom: 18,
			Style: label.Style{Background: label.BackgroundPlate},
		},
		{
			Position: geo.LatLng{Lat: 51.5074, Lng: -0.1278},
			Text:     "London",
			MinZoom:  8, MaxZoom: 18,
			Style: label.Style{Background: label.BackgroundPlate},
		},
		{
			Position: geo.LatLng{Lat: 35.6762, Lng: 139.6503},
			Text:     "Tokyo",
			MinZoom:  8, MaxZoom: 18,
			Style: label.Style{Background: label.BackgroundPlate},
		},
	})
}

// LoadLabels opens the configured source and loads labels, returning the
// fallback set on any failure. The engine always gets something to paint.
func LoadLabels(lc config.LabelsConfig, log zerolog.Logger) *label.Set {
	if lc.Source == "" || lc.Source == "fallback" {
		return Fallback()
	}
	store, err := Open(lc, log)
	if err != nil {
		log.Error().Err(err).Msg("Label store unavailable, using fallback labels")
		return Fallback()
	}
	defer store.Close()

	set, err := store.Load()
	if err != nil {
		log.Error().Err(err).Msg("Label load failed, using fallback labels")
		return Fallback()
	}
	if set.Len() == 0 {
		log.Info().Msg("Label store empty, using fallback labels")
		return Fallback()
	}
	return set
}
