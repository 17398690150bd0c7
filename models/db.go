package models

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"VideoCreator-server/config"

	_ "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *sql.DB
var GormDB *gorm.DB

func InitDB() {
	if config.AppConfig == nil {
		log.Fatal("config.AppConfig is nil, call config.InitConfig first")
	}
	dsn := config.AppConfig.MySQL.DSN
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	DB = db
	GormDB, err = gorm.Open(mysql.New(mysql.Config{
		Conn: DB,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("GORM init failed: %v", err)
	}

	if err := GormDB.AutoMigrate(&Project{}, &Segment{}, &TaskRecord{}); err != nil {
		log.Fatalf("auto migrate failed: %v", err)
	}
	log.Println("database connected (Native SQL + GORM)")
}

// GormStore is the production persistence layer behind service.Store.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// Projects

func (g *GormStore) CreateProject(p *Project) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	return g.DB.Create(p).Error
}

func (g *GormStore) GetProject(id string) (*Project, error) {
	var p Project
	if err := g.DB.First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (g *GormStore) SaveProject(p *Project) error {
	p.UpdatedAt = time.Now()
	return g.DB.Save(p).Error
}

// DeleteProject removes the project together with its segments and tasks.
func (g *GormStore) DeleteProject(id string) error {
	return g.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&TaskRecord{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&Segment{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&Project{}, "id = ?", id).Error
	})
}

// Segments

func (g *GormStore) CreateSegments(segments []Segment) error {
	if len(segments) == 0 {
		return nil
	}
	return g.DB.Create(&segments).Error
}

func (g *GormStore) GetSegment(id string) (*Segment, error) {
	var s Segment
	if err := g.DB.First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (g *GormStore) SegmentsByProject(projectID string) ([]Segment, error) {
	var res []Segment
	if err := g.DB.Where("project_id = ?", projectID).Order("ordinal ASC").Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (g *GormStore) SaveSegment(s *Segment) error {
	s.UpdatedAt = time.Now()
	return g.DB.Save(s).Error
}

// Tasks

func (g *GormStore) CreateTask(t *TaskRecord) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	return g.DB.Create(t).Error
}

func (g *GormStore) GetTask(id string) (*TaskRecord, error) {
	var t TaskRecord
	if err := g.DB.First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (g *GormStore) PendingTasks() ([]TaskRecord, error) {
	var res []TaskRecord
	if err := g.DB.Where("status = ?", TaskStatusPending).Order("submitted_at ASC").Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// TaskByOwner returns the newest TaskRecord for an owning entity, or nil.
func (g *GormStore) TaskByOwner(ownerID string) (*TaskRecord, error) {
	var t TaskRecord
	err := g.DB.Where("owner_id = ?", ownerID).Order("submitted_at DESC").First(&t).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FinishTask flips a pending record to a terminal status with a single
// conditional UPDATE, so a crash can never leave it half-written and a
// second finisher loses the race cleanly.
func (g *GormStore) FinishTask(id, status string, result *TaskResult, errMsg string) (bool, error) {
	updates := map[string]interface{}{
		"status":     status,
		"error":      errMsg,
		"updated_at": time.Now(),
	}
	if result != nil {
		updates["result"] = *result
	}
	res := g.DB.Model(&TaskRecord{}).
		Where("id = ? AND status = ?", id, TaskStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// BumpTaskAttempts increments the poll attempt counter.
func (g *GormStore) BumpTaskAttempts(id string) error {
	res := g.DB.Model(&TaskRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %s not found", id)
	}
	return nil
}
